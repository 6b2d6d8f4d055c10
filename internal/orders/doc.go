// Package orders is a small order-management domain wired onto the bus.
//
// Commands ([PlaceOrder], [CancelOrder]) change state and publish events
// ([OrderPlaced], [OrderCancelled]). Both events extend [OrderEvent], so the
// history hook declared against the parent sees every one of them. Queries
// are answered by [GetOrder] and streamed by [ListOrders].
//
// Hooks:
//   - every message is logged before and after its handler
//   - commands are checked against their validate struct tags
//   - event handler failures are recorded as dead letters and absorbed
//
// Wire it with [Register], then hand the mediator back with [Service.Use]:
//
//	svc := orders.NewService(orders.NewStore(), orders.NewInventory(stock))
//	reg := bus.NewRegistry()
//	if err := orders.Register(reg, svc); err != nil {
//		return err
//	}
//	m := bus.New(reg)
//	svc.Use(m)
package orders

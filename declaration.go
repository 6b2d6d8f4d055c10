package bus

import (
	"context"
	"iter"
	"reflect"
)

// Declaration is a handler or hook together with the message type and mode it
// targets. Declarations are produced by the As* constructors and consumed by
// Registry.Register.
//
// The type parameters of the constructor carry the capability: Go cannot
// recover them from a value at runtime, so the registry reads them from the
// declaration instead of inspecting handler types.
type Declaration struct {
	handler *HandlerDescriptor
	hook    *HookDescriptor
	isFunc  bool
}

// Declarer is implemented by values that describe their own declarations,
// typically a struct handling several message types or carrying its hooks.
//
//	func (m *OrdersModule) Declarations() []bus.Declaration {
//	    return []bus.Declaration{
//	        bus.AsFunc[*PlaceOrder, *Receipt](m.place),
//	        bus.AsPreHook[*PlaceOrder](m.authorize),
//	    }
//	}
type Declarer interface {
	Declarations() []Declaration
}

// MessageType returns the message type the declaration targets.
func (d Declaration) MessageType() reflect.Type {
	if d.handler != nil {
		return d.handler.messageType
	}
	if d.hook != nil {
		return d.hook.appliesTo
	}
	return nil
}

func (d Declaration) valid() bool {
	return d.handler != nil || d.hook != nil
}

// AsProc declares p as an asynchronous handler for M without a result.
func AsProc[M any](p Proc[M]) Declaration {
	return handlerDeclaration[M](p, nil, Asynchronous, func(ctx context.Context, instance, msg any) (any, error) {
		return nil, instance.(Proc[M]).Run(ctx, msg.(M))
	}, nil)
}

// AsFunc declares f as an asynchronous handler for M returning R.
func AsFunc[M, R any](f Func[M, R]) Declaration {
	return handlerDeclaration[M](f, reflect.TypeFor[R](), Asynchronous, func(ctx context.Context, instance, msg any) (any, error) {
		return instance.(Func[M, R]).Call(ctx, msg.(M))
	}, nil)
}

// AsSyncProc declares p as a synchronous handler for M without a result.
func AsSyncProc[M any](p SyncProc[M]) Declaration {
	return handlerDeclaration[M](p, nil, Synchronous, func(_ context.Context, instance, msg any) (any, error) {
		return nil, instance.(SyncProc[M]).RunSync(msg.(M))
	}, nil)
}

// AsSyncFunc declares f as a synchronous handler for M returning R.
func AsSyncFunc[M, R any](f SyncFunc[M, R]) Declaration {
	return handlerDeclaration[M](f, reflect.TypeFor[R](), Synchronous, func(_ context.Context, instance, msg any) (any, error) {
		return instance.(SyncFunc[M, R]).CallSync(msg.(M))
	}, nil)
}

// AsStream declares s as a streaming handler for M producing R elements.
func AsStream[M, R any](s Stream[M, R]) Declaration {
	return handlerDeclaration[M](s, reflect.TypeFor[R](), Streaming, nil, func(ctx context.Context, instance, msg any) iter.Seq2[any, error] {
		seq := instance.(Stream[M, R]).Stream(ctx, msg.(M))
		return func(yield func(any, error) bool) {
			for v, err := range seq {
				if !yield(v, err) {
					return
				}
			}
		}
	})
}

// AsPreHook declares h as a pre-handle hook for every message assignable to M.
func AsPreHook[M any](h PreHook[M]) Declaration {
	d := hookDeclaration[M](h, PreHandle)
	d.hook.pre = func(ctx context.Context, instance, msg any) error {
		return instance.(PreHook[M]).PreHandle(ctx, msg.(M))
	}
	return d
}

// AsPostHook declares h as a post-handle hook for every message assignable to M.
func AsPostHook[M any](h PostHook[M]) Declaration {
	d := hookDeclaration[M](h, PostHandle)
	d.hook.post = func(ctx context.Context, instance, msg, result any) error {
		return instance.(PostHook[M]).PostHandle(ctx, msg.(M), result)
	}
	return d
}

// AsErrorHook declares h as an error hook for every message assignable to M.
func AsErrorHook[M any](h ErrorHook[M]) Declaration {
	d := hookDeclaration[M](h, ErrorHandle)
	d.hook.err = func(ctx context.Context, instance, msg, result any, err error) error {
		return instance.(ErrorHook[M]).HandleError(ctx, msg.(M), result, err)
	}
	return d
}

func handlerDeclaration[M any](instance any, result reflect.Type, mode ExecutionMode, call callFunc, stream streamFunc) Declaration {
	return Declaration{
		handler: &HandlerDescriptor{
			Component:   Component{Type: reflect.TypeOf(instance), Instance: instance},
			messageType: reflect.TypeFor[M](),
			resultType:  result,
			mode:        mode,
			call:        call,
			stream:      stream,
		},
		isFunc: isFuncValue(instance),
	}
}

func hookDeclaration[M any](instance any, kind HookKind) Declaration {
	return Declaration{
		hook: &HookDescriptor{
			Component: Component{Type: reflect.TypeOf(instance), Instance: instance},
			kind:      kind,
			appliesTo: reflect.TypeFor[M](),
		},
		isFunc: isFuncValue(instance),
	}
}

// isFuncValue reports whether instance is a function adapter. Adapters share
// one dynamic type per type argument, so they are never deduplicated.
func isFuncValue(instance any) bool {
	return reflect.ValueOf(instance).Kind() == reflect.Func
}

// Package ingest turns raw messages from queues, files, or webhooks into
// typed messages and hands them to a bus.Mediator.
//
// # Quick Start
//
//	m := bus.New(reg)
//
//	r := ingest.New(ingest.Publish(m))
//	r.AddSource(ingest.EnvelopeSource())
//
//	ingest.Bind[*OrderPlaced](r, "order.placed")
//	ingest.Bind[*PlaceOrder](r, "order.place", ingest.Via(ingest.Send(m)))
//
//	err := r.Process(ctx, rawMessageBytes)
//
// # Layers
//
//   - Sources: recognize a wire format and extract an Envelope (type, version, payload)
//   - Router: finds the bound message type, decodes, validates, and dispatches
//   - Dispatcher: delivers the message, usually through bus.Publish or bus.Send
//
// # Discriminators
//
// Sources are matched in two phases:
//
//  1. Discriminator: cheap field presence and value checks on a View
//  2. Parse: full envelope extraction, only once the discriminator matched
//
// The source that matched last is tried first on the next message, so a
// stream of same-format messages costs one discriminator evaluation each.
//
//	ingest.And(
//	    ingest.HasFields("specversion", "type", "data"),
//	    ingest.FieldPrefix("specversion", "1."),
//	)
//
// Views are produced by an Inspector. JSONInspector, backed by gjson, is the
// default; AddGroup registers sources that need another inspector.
//
// # Bindings
//
// Bind maps an envelope type to a Go message type. Bindings made with
// Version apply only to envelopes of that schema version and take precedence
// over the unversioned binding. Via routes one binding to its own Dispatcher,
// which is how commands and events share one stream.
//
// Decoded messages are checked against their struct tags when the router has
// a validator (WithValidator). Messages that implement Validate() error are
// validated by the mediator; both failures reach the OnValidationError hooks.
//
// # Hooks
//
// Hooks report progress and decide policy without tying the router to a
// logging or metrics system:
//
//   - WithOnParse: called after parsing, enriches the context
//   - WithOnDispatched: called after the dispatcher succeeded
//   - WithOnFailed: called after the dispatcher failed
//   - WithOnNoSource: called when no source recognizes the message
//   - WithOnParseError: called when the matched source cannot parse
//   - WithOnUnknownType: called when no message type is bound
//   - WithOnDecodeError: called when the payload does not decode
//   - WithOnValidationError: called when the message is invalid
//
// The policy hooks return nil to skip the message and an error to fail it.
// Without policy hooks every one of those conditions is an error.
//
// Sources may implement OnParseHook, OnFailedHook, and OnUnknownTypeHook to
// add behavior that runs after the global hooks.
//
// # Thread Safety
//
// Router is safe for concurrent use after configuration is complete. Do not
// call AddSource, AddGroup, or Bind after calling Process.
package ingest

package bus

import (
	"context"
	"iter"
	"reflect"
	"slices"
)

// ExecutionMode is the way a handler runs, derived from the capability
// interface it was declared with.
type ExecutionMode int

const (
	// Synchronous handlers (SyncProc, SyncFunc) run on the calling goroutine
	// without a context.
	Synchronous ExecutionMode = iota + 1
	// Asynchronous handlers (Proc, Func) receive the dispatch context and may
	// block on it.
	Asynchronous
	// Streaming handlers (Stream) return a lazy sequence of results.
	Streaming
)

func (m ExecutionMode) String() string {
	switch m {
	case Synchronous:
		return "synchronous"
	case Asynchronous:
		return "asynchronous"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// HookKind identifies the pipeline phase a hook belongs to.
type HookKind int

const (
	PreHandle HookKind = iota + 1
	PostHandle
	ErrorHandle
)

func (k HookKind) String() string {
	switch k {
	case PreHandle:
		return "pre-handle"
	case PostHandle:
		return "post-handle"
	case ErrorHandle:
		return "error-handle"
	default:
		return "unknown"
	}
}

// MatchKind tags how a descriptor's message type relates to the type a hook
// (or a discovered descriptor) was declared against.
type MatchKind int

const (
	// MatchExact means the types are identical.
	MatchExact MatchKind = iota + 1
	// MatchSupertype means the declared type is an interface the message
	// type implements, or an ancestor declared with Extend.
	MatchSupertype
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSupertype:
		return "supertype"
	default:
		return "none"
	}
}

// Component identifies a registered handler or hook for the instantiation
// boundary. Resolvers receive it once per dispatch call.
type Component struct {
	// ID is unique per registry and assigned in registration order.
	ID int
	// Type is the dynamic type of the registered handler or hook.
	Type reflect.Type
	// Instance is the value passed at registration.
	Instance any
}

type (
	callFunc   func(ctx context.Context, instance, msg any) (any, error)
	streamFunc func(ctx context.Context, instance, msg any) iter.Seq2[any, error]
	preFunc    func(ctx context.Context, instance, msg any) error
	postFunc   func(ctx context.Context, instance, msg, result any) error
	errFunc    func(ctx context.Context, instance, msg, result any, err error) error
)

// HandlerDescriptor describes one registered handler.
type HandlerDescriptor struct {
	Component

	messageType reflect.Type
	resultType  reflect.Type
	mode        ExecutionMode

	call   callFunc
	stream streamFunc
}

// HandlerType returns the dynamic type of the handler.
func (d *HandlerDescriptor) HandlerType() reflect.Type { return d.Type }

// MessageType returns the message type the handler was declared for.
func (d *HandlerDescriptor) MessageType() reflect.Type { return d.messageType }

// ResultType returns the declared result type, or nil for procs.
func (d *HandlerDescriptor) ResultType() reflect.Type { return d.resultType }

// Mode returns the handler's execution mode.
func (d *HandlerDescriptor) Mode() ExecutionMode { return d.mode }

// HookDescriptor describes one registered pre, post, or error hook.
type HookDescriptor struct {
	Component

	kind      HookKind
	appliesTo reflect.Type

	pre  preFunc
	post postFunc
	err  errFunc
}

// HookType returns the dynamic type of the hook.
func (d *HookDescriptor) HookType() reflect.Type { return d.Type }

// AppliesTo returns the type the hook was declared against. The hook is
// attached to every message type assignable to it.
func (d *HookDescriptor) AppliesTo() reflect.Type { return d.appliesTo }

// Kind returns the pipeline phase of the hook.
func (d *HookDescriptor) Kind() HookKind { return d.kind }

// attachment binds a hook to a message descriptor together with the cached
// conversion from the descriptor's message type to the hook's declared type.
type attachment struct {
	hook  *HookDescriptor
	match MatchKind
	cast  caster
}

// MessageDescriptor binds a message type to its handlers and hooks. It is
// built by Registry.Seal and never mutated afterwards.
type MessageDescriptor struct {
	messageType reflect.Type
	handlers    []*HandlerDescriptor
	pre         []attachment
	post        []attachment
	errs        []attachment
	base        *MessageDescriptor
}

// MessageType returns the described message type.
func (d *MessageDescriptor) MessageType() reflect.Type { return d.messageType }

// Base returns the descriptor of the message type's declared parent, or nil
// when the parent has no descriptor of its own.
func (d *MessageDescriptor) Base() *MessageDescriptor { return d.base }

// Handlers returns all handlers in registration order.
func (d *MessageDescriptor) Handlers() []*HandlerDescriptor {
	return slices.Clone(d.handlers)
}

// HandlersFor returns the handlers whose execution mode is one of modes, in
// registration order.
func (d *MessageDescriptor) HandlersFor(modes ...ExecutionMode) []*HandlerDescriptor {
	var out []*HandlerDescriptor
	for _, h := range d.handlers {
		if slices.Contains(modes, h.mode) {
			out = append(out, h)
		}
	}
	return out
}

// PreHooks returns the applicable pre-handle hooks in registration order.
func (d *MessageDescriptor) PreHooks() []*HookDescriptor { return hooksOf(d.pre) }

// PostHooks returns the applicable post-handle hooks in registration order.
func (d *MessageDescriptor) PostHooks() []*HookDescriptor { return hooksOf(d.post) }

// ErrorHooks returns the applicable error hooks in registration order, both
// those declared for the exact type and those declared for broader types.
func (d *MessageDescriptor) ErrorHooks() []*HookDescriptor { return hooksOf(d.errs) }

// HookMatch reports how the descriptor's message type relates to the type h
// was declared for, or false when h does not apply to it.
func (d *MessageDescriptor) HookMatch(h *HookDescriptor) (MatchKind, bool) {
	for _, as := range [][]attachment{d.pre, d.post, d.errs} {
		for _, a := range as {
			if a.hook == h {
				return a.match, true
			}
		}
	}
	return 0, false
}

func hooksOf(as []attachment) []*HookDescriptor {
	out := make([]*HookDescriptor, len(as))
	for i, a := range as {
		out[i] = a.hook
	}
	return out
}

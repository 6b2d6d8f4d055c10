package bus

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Registry.
type State int

const (
	// Open registries accept declarations.
	Open State = iota
	// Sealed registries are read-only and safe for concurrent dispatch.
	Sealed
)

func (s State) String() string {
	if s == Sealed {
		return "sealed"
	}
	return "open"
}

type caster func(any) any

func identity(v any) any { return v }

// ancestor is the declared parent of a message type and the conversion to it.
type ancestor struct {
	parent reflect.Type
	up     caster
}

type declKey struct {
	component reflect.Type
	message   reflect.Type
	role      int
}

// Registry stores handler and hook declarations and, once sealed, the
// descriptor graph built from them.
//
// Usage:
//  1. Create a registry with NewRegistry
//  2. Register declarations (and Extend relationships) during startup
//  3. Seal it, directly or by passing it to New
//
// Registration is single-writer and must complete before the first dispatch.
// After Seal the registry is read-only and safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	state  State
	sealed atomic.Bool
	logger zerolog.Logger

	nextID    int
	seen      map[declKey]struct{}
	origins   map[any]struct{}
	handlers  []*HandlerDescriptor
	hooks     []*HookDescriptor
	ancestors map[reflect.Type]ancestor

	descriptors []*MessageDescriptor
	byType      map[reflect.Type]*MessageDescriptor
	assignable  sync.Map // reflect.Type -> Match
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for registration and sealing.
func WithRegistryLogger(l zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry creates an open registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		logger:    zerolog.Nop(),
		seen:      make(map[declKey]struct{}),
		origins:   make(map[any]struct{}),
		ancestors: make(map[reflect.Type]ancestor),
		byType:    make(map[reflect.Type]*MessageDescriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records declarations. Each item may be a Declaration, a slice of
// Declarations, or a Declarer; anything else is ignored, so a startup scan can
// pass every value it finds. Registering the same handler or hook type for
// the same message type twice has no effect.
//
// Example:
//
//	reg := bus.NewRegistry()
//	err := reg.Register(
//	    bus.AsFunc[*PlaceOrder, *Receipt](&PlaceOrderHandler{}),
//	    bus.AsPreHook[bus.Command](&AuditHook{}),
//	    bus.AsErrorHook[any](&ErrorReporter{}),
//	)
func (r *Registry) Register(items ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Sealed {
		return ErrRegistrySealed
	}

	for _, item := range items {
		switch v := item.(type) {
		case Declaration:
			r.add(v)
		case []Declaration:
			for _, d := range v {
				r.add(d)
			}
		case Declarer:
			for _, d := range v.Declarations() {
				r.add(d)
			}
		default:
			r.logger.Debug().Str("type", fmt.Sprintf("%T", item)).Msg("ignoring value without handler or hook capability")
		}
	}
	return nil
}

func (r *Registry) add(d Declaration) {
	if !d.valid() {
		return
	}

	// Declarations may be shared between registries; each registry keeps its
	// own copy so IDs stay registry-scoped.
	var (
		key    declKey
		origin any
	)
	if d.handler != nil {
		origin = d.handler
		key = declKey{component: d.handler.Type, message: d.handler.messageType, role: int(d.handler.mode)}
	} else {
		origin = d.hook
		key = declKey{component: d.hook.Type, message: d.hook.appliesTo, role: 10 + int(d.hook.kind)}
	}

	if _, dup := r.origins[origin]; dup {
		return
	}
	if !d.isFunc {
		if _, dup := r.seen[key]; dup {
			r.logger.Debug().Stringer("component", key.component).Stringer("message_type", key.message).Msg("skipping duplicate registration")
			return
		}
		r.seen[key] = struct{}{}
	}
	r.origins[origin] = struct{}{}
	r.nextID++

	if d.handler != nil {
		h := *d.handler
		h.ID = r.nextID
		r.handlers = append(r.handlers, &h)
		r.logger.Info().
			Stringer("handler", h.Type).
			Stringer("message_type", h.messageType).
			Stringer("mode", h.mode).
			Msg("adding handler to registry")
		return
	}
	h := *d.hook
	h.ID = r.nextID
	r.hooks = append(r.hooks, &h)
	r.logger.Info().
		Stringer("hook", h.Type).
		Stringer("applies_to", h.appliesTo).
		Stringer("kind", h.kind).
		Msg("adding hook to registry")
}

// Extend declares Parent as the direct base message type of Child. Handlers
// and hooks declared for Parent then apply to Child, receiving the value
// produced by up.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the receiver.
//
// Example:
//
//	bus.Extend(reg, func(e *OrderShipped) *OrderEvent { return &e.OrderEvent })
func Extend[Child, Parent any](r *Registry, up func(Child) Parent) error {
	child, parent := reflect.TypeFor[Child](), reflect.TypeFor[Parent]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Sealed {
		return ErrRegistrySealed
	}
	if child == parent {
		return fmt.Errorf("bus: extend %s: type cannot extend itself", child)
	}
	if existing, ok := r.ancestors[child]; ok {
		if existing.parent == parent {
			return nil
		}
		return fmt.Errorf("bus: extend %s: already extends %s", child, existing.parent)
	}
	for t := parent; t != nil; {
		a, ok := r.ancestors[t]
		if !ok {
			break
		}
		if a.parent == child {
			return fmt.Errorf("bus: extend %s: %s already descends from it", child, parent)
		}
		t = a.parent
	}

	r.ancestors[child] = ancestor{
		parent: parent,
		up:     func(v any) any { return up(v.(Child)) },
	}
	r.logger.Info().Stringer("message_type", child).Stringer("base", parent).Msg("declaring message base type")
	return nil
}

// Seal builds the descriptor graph and makes the registry read-only. It is
// idempotent.
//
// Descriptors are created in order of each message type's first handler
// declaration. Every hook is attached, in registration order, to every
// descriptor whose message type is assignable to the hook's declared type,
// regardless of whether the hook was registered before or after the handler.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == Sealed {
		return
	}

	for _, h := range r.handlers {
		d, ok := r.byType[h.messageType]
		if !ok {
			d = &MessageDescriptor{messageType: h.messageType}
			r.byType[h.messageType] = d
			r.descriptors = append(r.descriptors, d)
		}
		d.handlers = append(d.handlers, h)
	}

	for _, d := range r.descriptors {
		r.attach(d)
		if a, ok := r.ancestors[d.messageType]; ok {
			d.base = r.byType[a.parent]
		}
	}

	r.state = Sealed
	r.sealed.Store(true)
	r.logger.Info().
		Int("descriptors", len(r.descriptors)).
		Int("handlers", len(r.handlers)).
		Int("hooks", len(r.hooks)).
		Msg("registry sealed")
}

func (r *Registry) attach(d *MessageDescriptor) {
	for _, h := range r.hooks {
		cast, match, ok := r.convert(d.messageType, h.appliesTo)
		if !ok {
			continue
		}
		a := attachment{hook: h, match: match, cast: cast}
		switch h.kind {
		case PreHandle:
			d.pre = append(d.pre, a)
		case PostHandle:
			d.post = append(d.post, a)
		case ErrorHandle:
			d.errs = append(d.errs, a)
		}
	}
}

// convert reports whether values of type from are assignable to to, and how
// to convert them.
func (r *Registry) convert(from, to reflect.Type) (caster, MatchKind, bool) {
	if from == to {
		return identity, MatchExact, true
	}
	c, ok := r.widen(from, to)
	if !ok {
		return nil, 0, false
	}
	return c, MatchSupertype, true
}

func (r *Registry) widen(from, to reflect.Type) (caster, bool) {
	if to.Kind() == reflect.Interface && from.Implements(to) {
		return identity, true
	}
	a, ok := r.ancestors[from]
	if !ok {
		return nil, false
	}
	if a.parent == to {
		return a.up, true
	}
	next, ok := r.widen(a.parent, to)
	if !ok {
		return nil, false
	}
	up := a.up
	return func(v any) any { return next(up(v)) }, true
}

// State returns the registry's lifecycle state.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// readable reports whether the descriptor graph may be read. Lookups on an
// open registry report nothing, which dispatch surfaces as ErrNoHandlerFound.
func (r *Registry) readable() bool {
	if r.sealed.Load() {
		return true
	}
	r.logger.Debug().Msg("registry read before seal")
	return false
}

// Len returns the number of message descriptors. It is zero until sealed.
func (r *Registry) Len() int {
	if !r.readable() {
		return 0
	}
	return len(r.descriptors)
}

// Descriptors returns the message descriptors in creation order. It is empty
// until sealed.
func (r *Registry) Descriptors() []*MessageDescriptor {
	if !r.readable() {
		return nil
	}
	out := make([]*MessageDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Descriptor returns the descriptor for exactly t. It reports false until
// sealed.
func (r *Registry) Descriptor(t reflect.Type) (*MessageDescriptor, bool) {
	if !r.readable() {
		return nil, false
	}
	d, ok := r.byType[t]
	return d, ok
}

// Exact returns a match for the descriptor of exactly t. It reports false
// until sealed.
func (r *Registry) Exact(t reflect.Type) (Match, bool) {
	if !r.readable() {
		return Match{}, false
	}
	d, ok := r.byType[t]
	if !ok {
		return Match{}, false
	}
	return Match{Descriptor: d, Kind: MatchExact, cast: identity}, true
}

// FirstAssignable returns a match for the first descriptor, in creation
// order, whose message type t is assignable to. It is a first match, not a
// most-derived match. Results are cached per type. It reports false until
// sealed.
func (r *Registry) FirstAssignable(t reflect.Type) (Match, bool) {
	if !r.readable() {
		return Match{}, false
	}
	if v, ok := r.assignable.Load(t); ok {
		m := v.(Match)
		return m, m.Descriptor != nil
	}

	var found Match
	for _, d := range r.descriptors {
		if cast, kind, ok := r.convert(t, d.messageType); ok {
			found = Match{Descriptor: d, Kind: kind, cast: cast}
			break
		}
	}
	r.assignable.Store(t, found)
	return found, found.Descriptor != nil
}

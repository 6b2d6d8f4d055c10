package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bjaus/bus"
)

var (
	// ErrNoSource is returned when no source recognizes a message.
	ErrNoSource = errors.New("no source matched message")
	// ErrUnknownType is returned when no message type is bound to an
	// envelope type.
	ErrUnknownType = errors.New("unknown message type")
)

// decoder turns a payload into a message value ready for dispatch.
type decoder func(payload json.RawMessage) (any, error)

// binding is a message type bound to an envelope type.
type binding struct {
	decode     decoder
	dispatcher Dispatcher
}

// Router turns raw messages into typed bus messages and dispatches them.
//
// Usage:
//  1. Create a router with New
//  2. Add sources with AddSource (or AddGroup for custom inspectors)
//  3. Bind envelope types to message types with Bind
//  4. Process messages with Process
//
// Router is safe for concurrent use after configuration. Do not call AddSource,
// AddGroup, or Bind after calling Process.
type Router struct {
	dispatcher       Dispatcher
	defaultInspector Inspector
	defaultSources   []Source
	groups           []group
	bindings         map[string]binding
	validate         *validator.Validate
	logger           zerolog.Logger
	hooks            hooks

	// lastMatch holds the sourceRef that matched most recently; it is tried
	// first on the next message.
	lastMatch atomic.Pointer[sourceRef]
}

type group struct {
	inspector Inspector
	sources   []Source
}

type sourceRef struct {
	inspector Inspector
	source    Source
}

// New creates a Router that hands decoded messages to d unless a binding
// names its own dispatcher.
//
// Example:
//
//	m := bus.New(reg)
//	r := ingest.New(ingest.Publish(m),
//	    ingest.WithValidator(validator.New()),
//	    ingest.WithOnFailed(func(ctx context.Context, source, typ string, err error, d time.Duration) {
//	        log.Error().Err(err).Str("type", typ).Msg("dispatch failed")
//	    }),
//	)
func New(d Dispatcher, opts ...Option) *Router {
	r := &Router{
		dispatcher:       d,
		defaultInspector: JSONInspector(),
		bindings:         make(map[string]binding),
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddSource registers a source to the default inspector group. Sources are
// matched in registration order.
func (r *Router) AddSource(s Source) {
	r.defaultSources = append(r.defaultSources, s)
}

// AddGroup registers sources that share a custom inspector. Groups are
// checked after the default group, in registration order.
func (r *Router) AddGroup(inspector Inspector, sources ...Source) {
	r.groups = append(r.groups, group{inspector: inspector, sources: sources})
}

// BindOption configures a binding.
type BindOption func(*bindConfig)

type bindConfig struct {
	version    string
	dispatcher Dispatcher
}

// Version restricts a binding to envelopes of one schema version.
func Version(v string) BindOption {
	return func(c *bindConfig) { c.version = v }
}

// Via sends messages of a binding to d instead of the router's dispatcher.
func Via(d Dispatcher) BindOption {
	return func(c *bindConfig) { c.dispatcher = d }
}

// Bind decodes payloads of envelope type typ into M. When M is a pointer
// type a new value is allocated for every message.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the receiver.
//
// Example:
//
//	ingest.Bind[*orders.PlaceOrder](r, "order.place", ingest.Via(ingest.Send(m)))
//	ingest.Bind[*orders.OrderPlaced](r, "order.placed")
//	ingest.Bind[*orders.OrderPlacedV2](r, "order.placed", ingest.Version("2"))
func Bind[M any](r *Router, typ string, opts ...BindOption) {
	var cfg bindConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	t := reflect.TypeFor[M]()
	r.bindings[bindingKey(typ, cfg.version)] = binding{
		dispatcher: cfg.dispatcher,
		decode: func(payload json.RawMessage) (any, error) {
			var msg M
			target := any(&msg)
			if t.Kind() == reflect.Pointer {
				v := reflect.New(t.Elem())
				msg = v.Interface().(M)
				target = msg
			}
			if err := json.Unmarshal(payload, target); err != nil {
				return nil, &decodeError{err: err}
			}
			if err := r.validateStruct(target); err != nil {
				return nil, &validationError{err: err}
			}
			return msg, nil
		},
	}
	r.logger.Debug().Str("type", typ).Str("version", cfg.version).Stringer("message_type", t).Msg("binding message type")
}

func bindingKey(typ, version string) string {
	if version == "" {
		return typ
	}
	return typ + "@" + version
}

func (r *Router) validateStruct(target any) error {
	if r.validate == nil {
		return nil
	}
	t := reflect.TypeOf(target)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	return r.validate.Struct(target)
}

func (r *Router) lookup(env Envelope) (binding, bool) {
	if env.Version != "" {
		if b, ok := r.bindings[bindingKey(env.Type, env.Version)]; ok {
			return b, true
		}
	}
	b, ok := r.bindings[env.Type]
	return b, ok
}

// Process recognizes, decodes, and dispatches one raw message.
//
// The processing flow:
//  1. Use discriminators to find a matching source
//  2. Parse the envelope with the matched source
//  3. Look up the binding by envelope type and version
//  4. Decode the payload and validate its struct tags
//  5. Dispatch the message
//  6. Call the envelope's Complete callback if provided
//
// Hooks are called at appropriate points throughout this flow.
func (r *Router) Process(ctx context.Context, raw []byte) error {
	source := r.match(raw)
	if source == nil {
		return r.handleNoSource(ctx, raw)
	}

	env, err := source.Parse(raw)
	if err != nil {
		return r.handleParseError(ctx, source, err)
	}

	name := source.Name()
	ctx = r.callOnParse(ctx, source, name, env.Type)

	b, found := r.lookup(env)
	if !found {
		return r.handleUnknownType(ctx, source, name, env.Type)
	}

	msg, err := b.decode(env.Payload)
	if err != nil {
		return r.complete(ctx, env, r.handleDecodeFailure(ctx, name, env.Type, err))
	}

	d := b.dispatcher
	if d == nil {
		d = r.dispatcher
	}

	start := time.Now()
	err = d.Dispatch(ctx, msg)
	duration := time.Since(start)

	var verr *bus.ValidationError
	if errors.As(err, &verr) {
		return r.complete(ctx, env, r.handleValidationError(ctx, name, env.Type, err))
	}

	if err != nil {
		r.callOnFailed(ctx, source, name, env.Type, err, duration)
	} else {
		r.callOnDispatched(ctx, name, env.Type, duration)
	}
	return r.complete(ctx, env, err)
}

func (r *Router) complete(ctx context.Context, env Envelope, err error) error {
	if env.Complete != nil {
		return env.Complete(ctx, err)
	}
	return err
}

// viewCache parses the raw bytes at most once per inspector while sources
// are matched.
type viewCache struct {
	raw   []byte
	views map[Inspector]View
}

func newViewCache(raw []byte) *viewCache {
	return &viewCache{raw: raw, views: make(map[Inspector]View)}
}

// get returns nil when the inspector rejects the bytes.
func (c *viewCache) get(insp Inspector) View {
	if v, ok := c.views[insp]; ok {
		return v
	}
	v, err := insp.Inspect(c.raw)
	if err != nil {
		v = nil
	}
	c.views[insp] = v
	return v
}

// match finds a source whose discriminator matches the raw message, trying
// the most recent match first.
func (r *Router) match(raw []byte) Source {
	cache := newViewCache(raw)

	if last := r.lastMatch.Load(); last != nil {
		if view := cache.get(last.inspector); view != nil && last.source.Discriminator().Match(view) {
			return last.source
		}
	}

	ref := r.matchAll(cache)
	if ref == nil {
		return nil
	}
	r.lastMatch.Store(ref)
	return ref.source
}

func (r *Router) matchAll(cache *viewCache) *sourceRef {
	all := make([]group, 0, len(r.groups)+1)
	if len(r.defaultSources) > 0 {
		all = append(all, group{inspector: r.defaultInspector, sources: r.defaultSources})
	}
	all = append(all, r.groups...)

	for _, g := range all {
		view := cache.get(g.inspector)
		if view == nil {
			continue
		}
		for _, src := range g.sources {
			if src.Discriminator().Match(view) {
				return &sourceRef{inspector: g.inspector, source: src}
			}
		}
	}
	return nil
}

func (r *Router) callOnParse(ctx context.Context, source Source, name, typ string) context.Context {
	for _, fn := range r.hooks.onParse {
		ctx = fn(ctx, name, typ)
	}
	if h, ok := source.(OnParseHook); ok {
		ctx = h.OnParse(ctx, typ)
	}
	return ctx
}

func (r *Router) callOnDispatched(ctx context.Context, name, typ string, duration time.Duration) {
	r.logger.Debug().Str("source", name).Str("type", typ).Dur("duration", duration).Msg("message dispatched")
	for _, fn := range r.hooks.onDispatched {
		fn(ctx, name, typ, duration)
	}
}

func (r *Router) callOnFailed(ctx context.Context, source Source, name, typ string, err error, duration time.Duration) {
	r.logger.Debug().Err(err).Str("source", name).Str("type", typ).Dur("duration", duration).Msg("message dispatch failed")
	for _, fn := range r.hooks.onFailed {
		fn(ctx, name, typ, err, duration)
	}
	if h, ok := source.(OnFailedHook); ok {
		h.OnFailed(ctx, typ, err, duration)
	}
}

func (r *Router) handleNoSource(ctx context.Context, raw []byte) error {
	if len(r.hooks.onNoSource) == 0 {
		return ErrNoSource
	}
	for _, fn := range r.hooks.onNoSource {
		if err := fn(ctx, raw); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) handleParseError(ctx context.Context, source Source, parseErr error) error {
	name := source.Name()
	if len(r.hooks.onParseError) == 0 {
		return fmt.Errorf("parse failed for source %s: %w", name, parseErr)
	}
	for _, fn := range r.hooks.onParseError {
		if err := fn(ctx, name, parseErr); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) handleUnknownType(ctx context.Context, source Source, name, typ string) error {
	var errs []error
	for _, fn := range r.hooks.onUnknownType {
		if err := fn(ctx, name, typ); err != nil {
			errs = append(errs, err)
		}
	}
	if h, ok := source.(OnUnknownTypeHook); ok {
		if err := h.OnUnknownType(ctx, typ); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	if len(r.hooks.onUnknownType) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	return nil
}

func (r *Router) handleDecodeFailure(ctx context.Context, name, typ string, err error) error {
	var verr *validationError
	if errors.As(err, &verr) {
		return r.handleValidationError(ctx, name, typ, verr.err)
	}
	var derr *decodeError
	if !errors.As(err, &derr) {
		return err
	}
	if len(r.hooks.onDecodeError) == 0 {
		return fmt.Errorf("decode payload: %w", derr.err)
	}
	for _, fn := range r.hooks.onDecodeError {
		if herr := fn(ctx, name, typ, derr.err); herr != nil {
			return herr
		}
	}
	return nil
}

func (r *Router) handleValidationError(ctx context.Context, name, typ string, err error) error {
	if len(r.hooks.onValidationError) == 0 {
		return fmt.Errorf("validate message: %w", err)
	}
	for _, fn := range r.hooks.onValidationError {
		if herr := fn(ctx, name, typ, err); herr != nil {
			return herr
		}
	}
	return nil
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

type validationError struct {
	err error
}

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

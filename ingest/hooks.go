package ingest

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// OnParseFunc is called after a source parsed a message. The returned
// context is used for the rest of the processing.
type OnParseFunc func(ctx context.Context, source, typ string) context.Context

// OnDispatchedFunc is called after the dispatcher accepted the message.
type OnDispatchedFunc func(ctx context.Context, source, typ string, duration time.Duration)

// OnFailedFunc is called after the dispatcher returned an error.
type OnFailedFunc func(ctx context.Context, source, typ string, err error, duration time.Duration)

// OnNoSourceFunc is called when no source recognizes the message.
// Return nil to skip the message, return an error to fail.
type OnNoSourceFunc func(ctx context.Context, raw []byte) error

// OnParseErrorFunc is called when the matched source fails to parse.
// Return nil to skip, return an error to fail.
type OnParseErrorFunc func(ctx context.Context, source string, err error) error

// OnUnknownTypeFunc is called when no message type is bound to the envelope
// type. Return nil to skip, return an error to fail.
type OnUnknownTypeFunc func(ctx context.Context, source, typ string) error

// OnDecodeErrorFunc is called when the payload cannot be decoded into the
// bound message type. Return nil to skip, return an error to fail.
type OnDecodeErrorFunc func(ctx context.Context, source, typ string, err error) error

// OnValidationErrorFunc is called when the decoded message fails validation,
// either on its struct tags or on its own Validate method.
// Return nil to skip, return an error to fail.
type OnValidationErrorFunc func(ctx context.Context, source, typ string, err error) error

type hooks struct {
	onParse           []OnParseFunc
	onDispatched      []OnDispatchedFunc
	onFailed          []OnFailedFunc
	onNoSource        []OnNoSourceFunc
	onParseError      []OnParseErrorFunc
	onUnknownType     []OnUnknownTypeFunc
	onDecodeError     []OnDecodeErrorFunc
	onValidationError []OnValidationErrorFunc
}

// Option configures a Router.
type Option func(*Router)

// WithOnParse adds a hook called after a source parsed a message.
// Multiple hooks are called in order, with context chaining through each.
//
// Example:
//
//	ingest.WithOnParse(func(ctx context.Context, source, typ string) context.Context {
//	    return log.With().Str("source", source).Str("type", typ).Logger().WithContext(ctx)
//	})
func WithOnParse(fn OnParseFunc) Option {
	return func(r *Router) {
		r.hooks.onParse = append(r.hooks.onParse, fn)
	}
}

// WithOnDispatched adds a hook called after a message was dispatched.
func WithOnDispatched(fn OnDispatchedFunc) Option {
	return func(r *Router) {
		r.hooks.onDispatched = append(r.hooks.onDispatched, fn)
	}
}

// WithOnFailed adds a hook called after dispatching a message failed.
func WithOnFailed(fn OnFailedFunc) Option {
	return func(r *Router) {
		r.hooks.onFailed = append(r.hooks.onFailed, fn)
	}
}

// WithOnNoSource adds a hook called when no source recognizes the message.
// Multiple hooks are called in order; first error wins.
//
// Example:
//
//	ingest.WithOnNoSource(func(ctx context.Context, raw []byte) error {
//	    log.Warn().Int("bytes", len(raw)).Msg("unrecognized message")
//	    return nil
//	})
func WithOnNoSource(fn OnNoSourceFunc) Option {
	return func(r *Router) {
		r.hooks.onNoSource = append(r.hooks.onNoSource, fn)
	}
}

// WithOnParseError adds a hook called when a source fails to parse.
// Multiple hooks are called in order; first error wins.
func WithOnParseError(fn OnParseErrorFunc) Option {
	return func(r *Router) {
		r.hooks.onParseError = append(r.hooks.onParseError, fn)
	}
}

// WithOnUnknownType adds a hook called when no message type is bound.
// Multiple hooks are called in order; first error wins.
func WithOnUnknownType(fn OnUnknownTypeFunc) Option {
	return func(r *Router) {
		r.hooks.onUnknownType = append(r.hooks.onUnknownType, fn)
	}
}

// WithOnDecodeError adds a hook called when a payload cannot be decoded.
// Multiple hooks are called in order; first error wins.
func WithOnDecodeError(fn OnDecodeErrorFunc) Option {
	return func(r *Router) {
		r.hooks.onDecodeError = append(r.hooks.onDecodeError, fn)
	}
}

// WithOnValidationError adds a hook called when a message fails validation.
// Multiple hooks are called in order; first error wins.
func WithOnValidationError(fn OnValidationErrorFunc) Option {
	return func(r *Router) {
		r.hooks.onValidationError = append(r.hooks.onValidationError, fn)
	}
}

// WithInspector sets the inspector for sources added with AddSource.
func WithInspector(i Inspector) Option {
	return func(r *Router) {
		r.defaultInspector = i
	}
}

// WithValidator checks struct tags of every decoded message with v before it
// is dispatched.
func WithValidator(v *validator.Validate) Option {
	return func(r *Router) {
		r.validate = v
	}
}

// WithLogger sets the logger used for routing diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = l
	}
}

// OnParseHook is an optional interface that sources can implement to add
// source-specific context enrichment. Called after global OnParse hooks.
type OnParseHook interface {
	OnParse(ctx context.Context, typ string) context.Context
}

// OnFailedHook is an optional interface that sources can implement to react
// to dispatch failures. Called after global OnFailed hooks.
type OnFailedHook interface {
	OnFailed(ctx context.Context, typ string, err error, duration time.Duration)
}

// OnUnknownTypeHook is an optional interface that sources can implement to
// override the unknown-type policy. Called after global hooks; if either
// returns an error, that error is used.
type OnUnknownTypeHook interface {
	OnUnknownType(ctx context.Context, typ string) error
}

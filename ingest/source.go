package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Source recognizes one wire format and extracts an Envelope from it.
//
// Sources are registered with Router.AddSource and matched using their
// Discriminator before Parse is called, so a cheap field check decides
// whether the full parse is attempted at all.
//
// Example:
//
//	type auditSource struct{}
//
//	func (auditSource) Name() string { return "audit" }
//
//	func (auditSource) Discriminator() ingest.Discriminator {
//	    return ingest.FieldEquals("producer", "audit-service")
//	}
//
//	func (auditSource) Parse(raw []byte) (ingest.Envelope, error) {
//	    r := gjson.ParseBytes(raw)
//	    return ingest.Envelope{
//	        Type:    r.Get("event").String(),
//	        Payload: json.RawMessage(r.Get("body").Raw),
//	    }, nil
//	}
type Source interface {
	// Name returns the source identifier for logging and metrics.
	Name() string

	// Discriminator returns a predicate for cheap message detection.
	Discriminator() Discriminator

	// Parse extracts the envelope, or returns an error describing why the
	// raw bytes are not a valid message of this format.
	Parse(raw []byte) (Envelope, error)
}

// SourceFunc creates a Source from a name, discriminator, and parse function.
func SourceFunc(name string, disc Discriminator, parse func([]byte) (Envelope, error)) Source {
	return &sourceFunc{name: name, disc: disc, parse: parse}
}

type sourceFunc struct {
	name  string
	disc  Discriminator
	parse func([]byte) (Envelope, error)
}

func (s *sourceFunc) Name() string                       { return s.name }
func (s *sourceFunc) Discriminator() Discriminator       { return s.disc }
func (s *sourceFunc) Parse(raw []byte) (Envelope, error) { return s.parse(raw) }

// Envelope is the routing information a Source extracts from a raw message.
type Envelope struct {
	// Type selects the bound message type.
	Type string

	// Version is the payload schema version, if the format carries one.
	// Bindings made with Version take precedence over unversioned ones.
	Version string

	// Payload is the JSON decoded into the bound message type.
	Payload json.RawMessage

	// Complete, when set, is called with the outcome after the message was
	// dispatched, for transports that acknowledge explicitly.
	Complete func(ctx context.Context, err error) error
}

var errMissingType = errors.New("missing type")

// EnvelopeSource returns the Source for the native line format:
//
//	{"type": "order.placed", "version": "1", "payload": {...}}
func EnvelopeSource() Source {
	return SourceFunc("envelope", HasFields("type", "payload"), func(raw []byte) (Envelope, error) {
		r := gjson.ParseBytes(raw)
		typ := r.Get("type")
		if typ.Type != gjson.String || typ.Str == "" {
			return Envelope{}, errMissingType
		}
		return Envelope{
			Type:    typ.Str,
			Version: r.Get("version").String(),
			Payload: json.RawMessage(r.Get("payload").Raw),
		}, nil
	})
}

// CloudEventSource returns a Source for CloudEvents in structured JSON mode.
// The event type becomes the envelope type and data the payload.
func CloudEventSource() Source {
	return SourceFunc("cloudevents", And(HasFields("specversion", "type", "data"), FieldPrefix("specversion", "1.")), func(raw []byte) (Envelope, error) {
		r := gjson.ParseBytes(raw)
		typ := r.Get("type").String()
		if typ == "" {
			return Envelope{}, errMissingType
		}
		return Envelope{
			Type:    typ,
			Version: r.Get("dataschemaversion").String(),
			Payload: json.RawMessage(r.Get("data").Raw),
		}, nil
	})
}

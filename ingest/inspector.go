package ingest

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when the input is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Inspector turns raw bytes into a View that discriminators query. One
// Inspector handles one wire format.
type Inspector interface {
	Inspect(raw []byte) (View, error)
}

// View answers path queries against one inspected message. Paths use the
// inspector's own syntax; for JSON that is gjson dot notation.
type View interface {
	// Has reports whether path is present.
	Has(path string) bool

	// Text returns the value at path when it is a string.
	Text(path string) (string, bool)

	// Number returns the value at path when it is a number.
	Number(path string) (float64, bool)

	// Raw returns the encoded value at path, quotes included for strings.
	Raw(path string) ([]byte, bool)
}

// JSONInspector returns the gjson-backed Inspector. Each message is
// validated and parsed once, however many discriminators query it.
func JSONInspector() Inspector { return jsonInspector{} }

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (View, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonView(gjson.ParseBytes(raw)), nil
}

// jsonView is a parsed document.
type jsonView gjson.Result

func (v jsonView) get(path string) gjson.Result { return gjson.Result(v).Get(path) }

func (v jsonView) Has(path string) bool { return v.get(path).Exists() }

func (v jsonView) Text(path string) (string, bool) {
	r := v.get(path)
	return r.Str, r.Type == gjson.String
}

func (v jsonView) Number(path string) (float64, bool) {
	r := v.get(path)
	return r.Num, r.Type == gjson.Number
}

func (v jsonView) Raw(path string) ([]byte, bool) {
	r := v.get(path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}

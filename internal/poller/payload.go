package poller

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"
)

// Kind identifies which arm of a [Payload] is populated.
type Kind int

const (
	// KindText is a body left as plain text.
	KindText Kind = iota

	// KindObject is a JSON object.
	KindObject

	// KindOther is any other JSON value: array, number, bool or null.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindObject:
		return "object"
	default:
		return "other"
	}
}

// Payload is a decoded response body.
//
// Exactly one arm is meaningful, selected by Kind. JSON strings decode to
// KindText so callers treat `"done"` and a text/plain `done` the same way.
type Payload struct {
	Kind   Kind
	Text   string
	Object map[string]any
	Value  any
}

// TextPayload wraps s as a text payload.
func TextPayload(s string) Payload {
	return Payload{Kind: KindText, Text: s, Value: s}
}

// FromValue classifies an already-decoded JSON value.
func FromValue(v any) Payload {
	switch t := v.(type) {
	case string:
		return TextPayload(t)
	case map[string]any:
		return Payload{Kind: KindObject, Object: t, Value: t}
	default:
		return Payload{Kind: KindOther, Value: t}
	}
}

// DecodeJSON decodes body as a single JSON value.
func DecodeJSON(body []byte) (Payload, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return Payload{}, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return FromValue(v), nil
}

// DecodeBody decodes body according to its content type. JSON media types are
// decoded as JSON; everything else, and JSON that fails to decode, is text.
func DecodeBody(contentType string, body []byte) Payload {
	if isJSONContentType(contentType) {
		if p, err := DecodeJSON(body); err == nil {
			return p
		}
	}
	return TextPayload(string(body))
}

// AsObject returns the object arm or a [ShapeError].
func (p Payload) AsObject() (map[string]any, error) {
	if p.Kind != KindObject {
		return nil, &ShapeError{Want: KindObject.String(), Got: p.Kind.String()}
	}
	return p.Object, nil
}

// String returns the object's string field key, if present.
func (p Payload) String(key string) (string, bool) {
	if p.Kind != KindObject {
		return "", false
	}
	s, ok := p.Object[key].(string)
	return s, ok
}

// Number returns the object's numeric field key, if present.
func (p Payload) Number(key string) (float64, bool) {
	if p.Kind != KindObject {
		return 0, false
	}
	f, ok := p.Object[key].(float64)
	return f, ok
}

func isJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

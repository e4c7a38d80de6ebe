package taskpoll

import (
	"encoding/json"
	"fmt"
)

// Extractor turns a decoded response payload into display text.
//
// An Extractor returns ok=false when the payload does not have the shape it
// recognizes, which lets extractors be chained with [FirstMatch]. Payloads
// are the values encoding/json produces: string, float64, bool, nil,
// []any and map[string]any.
type Extractor func(v any) (text string, ok bool)

// AnswerKeys are the top-level fields checked by [DefaultExtractor], in
// priority order.
var AnswerKeys = []string{"answer", "result", "output", "response", "text", "message"}

// StringExtractor matches a payload that is already a string.
var StringExtractor Extractor = func(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// FieldExtractor returns an [Extractor] that matches the first of keys
// holding a string value in a JSON object. Non-string values are skipped.
//
// Example:
//
//	// {"output": "42"} → "42"
//	extractor := taskpoll.FieldExtractor("answer", "output")
func FieldExtractor(keys ...string) Extractor {
	return func(v any) (string, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		for _, key := range keys {
			if s, ok := obj[key].(string); ok {
				return s, true
			}
		}
		return "", false
	}
}

// NestedContentExtractor returns an [Extractor] that matches field.content
// holding a string, for the first field present.
//
// Example:
//
//	// {"reply": {"content": "42"}} → "42"
//	extractor := taskpoll.NestedContentExtractor("reply")
func NestedContentExtractor(fields ...string) Extractor {
	return func(v any) (string, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		for _, field := range fields {
			if s, ok := contentOf(obj[field]); ok {
				return s, true
			}
		}
		return "", false
	}
}

// ChoicesExtractor returns an [Extractor] for chat-completion style payloads:
// it matches field[0].message.content.
//
// Example:
//
//	// {"choices": [{"message": {"content": "42"}}]} → "42"
//	extractor := taskpoll.ChoicesExtractor("choices")
func ChoicesExtractor(field string) Extractor {
	return func(v any) (string, bool) {
		obj, ok := v.(map[string]any)
		if !ok {
			return "", false
		}
		choices, ok := obj[field].([]any)
		if !ok || len(choices) == 0 {
			return "", false
		}
		first, ok := choices[0].(map[string]any)
		if !ok {
			return "", false
		}
		return contentOf(first["message"])
	}
}

// contentOf returns v.content when v is an object with a string content field.
func contentOf(v any) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	s, ok := obj["content"].(string)
	return s, ok
}

// FirstMatch returns an [Extractor] that tries extractors in order and
// returns the first match.
//
// Example:
//
//	// Prefer a custom field, then the default chain
//	extractor := taskpoll.FirstMatch(
//	    taskpoll.FieldExtractor("summary"),
//	    taskpoll.DefaultExtractor,
//	)
func FirstMatch(extractors ...Extractor) Extractor {
	return func(v any) (string, bool) {
		for _, extractor := range extractors {
			if s, ok := extractor(v); ok {
				return s, true
			}
		}
		return "", false
	}
}

// DefaultExtractor is the fixed priority chain used when no extractor is
// configured:
//  1. the payload itself, if it is a string
//  2. the first of [AnswerKeys] holding a string
//  3. reply.content
//  4. choices[0].message.content
//
// The order is part of the contract: payloads carrying several of these
// shapes at once always resolve the same way.
var DefaultExtractor = FirstMatch(
	StringExtractor,
	FieldExtractor(AnswerKeys...),
	NestedContentExtractor("reply"),
	ChoicesExtractor("choices"),
)

// ExtractText returns the display text for v using [DefaultExtractor].
func ExtractText(v any) string {
	return ExtractWith(DefaultExtractor, v)
}

// ExtractWith returns the display text for v using extractor. When nothing
// matches, the whole payload is serialized as JSON; a nil payload yields "".
func ExtractWith(extractor Extractor, v any) string {
	if s, ok := extractor(v); ok {
		return s
	}
	return serialize(v)
}

func serialize(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

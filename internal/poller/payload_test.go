package poller

import (
	"errors"
	"testing"
)

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantKind    Kind
	}{
		{"json object", "application/json", `{"a":1}`, KindObject},
		{"json with charset", "application/json; charset=utf-8", `{"a":1}`, KindObject},
		{"problem json", "application/problem+json", `{"a":1}`, KindObject},
		{"json string", "application/json", `"done"`, KindText},
		{"json array", "application/json", `[1,2]`, KindOther},
		{"json null", "application/json", `null`, KindOther},
		{"invalid json falls back to text", "application/json", `{oops`, KindText},
		{"text plain", "text/plain", `job done`, KindText},
		{"no content type", "", `{"a":1}`, KindText},
		{"garbage content type", ";;;", `{"a":1}`, KindText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeBody(tt.contentType, []byte(tt.body))
			if got.Kind != tt.wantKind {
				t.Errorf("DecodeBody(%q, %q).Kind = %v, want %v", tt.contentType, tt.body, got.Kind, tt.wantKind)
			}
		})
	}
}

func TestPayload_AsObject(t *testing.T) {
	obj, err := FromValue(map[string]any{"k": "v"}).AsObject()
	if err != nil || obj["k"] != "v" {
		t.Errorf("AsObject() = %v, %v", obj, err)
	}

	_, err = FromValue([]any{1.0}).AsObject()
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) {
		t.Fatalf("AsObject() error = %v, want *ShapeError", err)
	}
	if shapeErr.Want != "object" || shapeErr.Got != "other" {
		t.Errorf("ShapeError = %+v", shapeErr)
	}
}

func TestPayload_Accessors(t *testing.T) {
	p := FromValue(map[string]any{"status": "done", "progress": 12.5, "n": "x"})

	if s, ok := p.String("status"); !ok || s != "done" {
		t.Errorf("String(status) = %q, %v", s, ok)
	}
	if _, ok := p.String("progress"); ok {
		t.Error("String(progress) should not match a number")
	}
	if f, ok := p.Number("progress"); !ok || f != 12.5 {
		t.Errorf("Number(progress) = %v, %v", f, ok)
	}
	if _, ok := p.Number("n"); ok {
		t.Error("Number(n) should not match a string")
	}
	if _, ok := TextPayload("x").String("status"); ok {
		t.Error("String on text payload should not match")
	}
}

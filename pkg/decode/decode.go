// Package decode extracts the forecast list from a response body.
package decode

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultField is the top-level key holding the list.
const DefaultField = "data"

// Error is a malformed or unexpected-shape body. Offset is the byte
// position of a syntax error, or -1 when the document parsed but had the
// wrong shape.
type Error struct {
	Offset int64
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("decode: %s at offset %d", e.Reason, e.Offset)
	}
	return "decode: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Decode parses body as a JSON object and returns the string array held
// in field. An empty field name means DefaultField.
func Decode(body []byte, field string) ([]string, error) {
	if field == "" {
		field = DefaultField
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, wrap(err)
	}

	raw, ok := doc[field]
	if !ok {
		return nil, &Error{Offset: -1, Reason: fmt.Sprintf("field %q not found", field)}
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, &Error{Offset: -1, Reason: fmt.Sprintf("field %q is not an array of strings", field), Err: err}
	}
	if list == nil {
		// "data": null
		return nil, &Error{Offset: -1, Reason: fmt.Sprintf("field %q is null", field)}
	}
	return list, nil
}

func wrap(err error) *Error {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return &Error{Offset: syn.Offset, Reason: syn.Error(), Err: err}
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		return &Error{Offset: -1, Reason: "document is not an object", Err: err}
	}
	return &Error{Offset: -1, Reason: err.Error(), Err: err}
}

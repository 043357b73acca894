// Package extract pulls a named field out of a consumed JSON payload.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/drblury/routeflow/internal/runtime/jsoncodec"
)

// SnippetLimit caps how much of a bad payload is kept on a ParseError.
const SnippetLimit = 128

// Kind classifies a ParseError.
type Kind string

const (
	KindMalformed    Kind = "malformed"
	KindFieldMissing Kind = "fieldMissing"
)

var (
	errNotObject   = errors.New("payload is not a JSON object")
	errInvalidUTF8 = errors.New("payload is not valid UTF-8")
)

// ParseError reports a payload that could not yield a correlation value.
type ParseError struct {
	Kind    Kind
	Field   string
	Snippet string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Kind == KindFieldMissing {
		return fmt.Sprintf("field %q missing in payload %q", e.Field, e.Snippet)
	}
	return fmt.Sprintf("malformed payload %q: %v", e.Snippet, e.Cause)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Extract returns the textual value of field in the JSON object rawText. An
// absent field yields "" and no error.
func Extract(rawText, field string) (string, error) {
	value, _, err := Lookup(rawText, field)
	return value, err
}

// Lookup is Extract with a found flag, for callers that treat an absent field
// as an error. Strings come back verbatim, numbers as their literal text,
// booleans as true/false, null as "" and nested values as compact JSON.
func Lookup(rawText, field string) (string, bool, error) {
	// the decoder would replace invalid bytes with U+FFFD and alter the value
	if !utf8.ValidString(rawText) {
		return "", false, newMalformed(rawText, errInvalidUTF8)
	}

	var doc map[string]any
	if err := jsoncodec.UnmarshalPreservingNumbers([]byte(rawText), &doc); err != nil {
		return "", false, newMalformed(rawText, err)
	}
	if doc == nil {
		return "", false, newMalformed(rawText, errNotObject)
	}

	raw, ok := doc[field]
	if !ok {
		return "", false, nil
	}
	value, err := render(raw)
	if err != nil {
		return "", true, newMalformed(rawText, err)
	}
	return value, true, nil
}

// Missing builds the ParseError returned under a strict policy.
func Missing(rawText, field string) *ParseError {
	return &ParseError{Kind: KindFieldMissing, Field: field, Snippet: Snippet(rawText)}
}

func render(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		out, err := jsoncodec.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}

func newMalformed(rawText string, cause error) *ParseError {
	return &ParseError{Kind: KindMalformed, Snippet: Snippet(rawText), Cause: cause}
}

// Snippet truncates s to SnippetLimit bytes without splitting a rune.
func Snippet(s string) string {
	if len(s) <= SnippetLimit {
		return s
	}
	cut := SnippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// Package sanitize captures arbitrary caller values as bounded JSON
// snapshots suitable for storing inside trace records.
//
// Tracing must never block or break the primary call path, so capture is
// total: oversized values are replaced with a truncation marker carrying a
// preview, and values that cannot be serialized are replaced with a
// diagnostic placeholder. Capturing the same value twice yields identical
// bytes.
package sanitize

import (
	"encoding/json"
	"fmt"
)

const (
	// MaxSerializedLen is the serialized size above which a value is stored
	// as a truncation marker instead of verbatim.
	MaxSerializedLen = 5000
	// PreviewLen is the number of leading serialized characters preserved in
	// a truncation marker.
	PreviewLen = 1000
)

type (
	// Truncated is the marker stored in place of a value whose serialized
	// form exceeds MaxSerializedLen.
	Truncated struct {
		// Truncated is always true.
		Truncated bool `json:"truncated"`
		// OriginalLength is the serialized length of the original value.
		OriginalLength int `json:"original_length"`
		// Preview is the first PreviewLen characters of the serialized value
		// followed by "...".
		Preview string `json:"preview"`
	}

	// Unserializable is the marker stored in place of a value that could not
	// be JSON-serialized.
	Unserializable struct {
		// Error is the fixed diagnostic message "serialization failed".
		Error string `json:"error"`
		// Type is the Go type name of the offending value.
		Type string `json:"type"`
	}
)

// Capture serializes v and applies the size policy: values at or below
// MaxSerializedLen are stored verbatim, larger values become a Truncated
// marker, and serialization failures become an Unserializable marker.
// Capture never returns an error; sanitization failures are swallowed here
// so logging cannot fail the call being traced.
func Capture(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return mustMarshal(Unserializable{
			Error: "serialization failed",
			Type:  fmt.Sprintf("%T", v),
		})
	}
	if len(raw) <= MaxSerializedLen {
		return raw
	}
	preview := string(raw[:PreviewLen]) + "..."
	return mustMarshal(Truncated{
		Truncated:      true,
		OriginalLength: len(raw),
		Preview:        preview,
	})
}

// mustMarshal serializes marker structs, which contain only strings, ints
// and bools and therefore cannot fail to marshal.
func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{"error":"serialization failed"}`)
	}
	return raw
}

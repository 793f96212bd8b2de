package gate

import (
	jsoniter "github.com/json-iterator/go"
)

// canonical is the codec every signature in the system is computed against.
// Object keys are sorted and numbers survive the round trip verbatim, so two
// peers canonicalizing logically identical payloads always produce the same
// bytes. Nanosecond deltas are uint64 and must never pass through a float.
var canonical = jsoniter.Config{
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// Canonical returns the canonical serialization of v: marshal, re-parse into
// generic values, re-marshal with sorted keys.
func Canonical(v any) ([]byte, error) {
	data, err := canonical.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalRaw(data)
}

// CanonicalRaw canonicalizes raw JSON bytes. Invalid JSON returns an error.
func CanonicalRaw(raw []byte) ([]byte, error) {
	var tree any
	if err := canonical.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return canonical.Marshal(tree)
}

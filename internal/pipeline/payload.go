package pipeline

import (
	"encoding/json"
	"fmt"
)

// PayloadKind tags the shape of an extraction payload. The branch between
// shapes is explicit and exhaustive rather than duck-typed at validation
// time.
type PayloadKind int

// Payload shapes.
const (
	PayloadMalformed PayloadKind = iota
	PayloadSingle
	PayloadMulti
)

// Payload is the tagged-variant view of an extraction result: a single
// candidate mapping, a sequence of candidate mappings, or something
// unrecognizable.
type Payload struct {
	kind       PayloadKind
	candidates []map[string]any
	shape      string
}

// Kind reports which variant this payload holds.
func (p Payload) Kind() PayloadKind { return p.kind }

// Candidates returns the candidate mappings. Empty for malformed payloads.
func (p Payload) Candidates() []map[string]any { return p.candidates }

// Shape describes the offending shape of a malformed payload for rejection
// reasons.
func (p Payload) Shape() string { return p.shape }

// SinglePayload wraps one candidate mapping.
func SinglePayload(candidate map[string]any) Payload {
	return Payload{kind: PayloadSingle, candidates: []map[string]any{candidate}}
}

// MultiPayload wraps a sequence of candidate mappings.
func MultiPayload(candidates ...map[string]any) Payload {
	return Payload{kind: PayloadMulti, candidates: candidates}
}

// MalformedPayload records an unrecognized shape.
func MalformedPayload(shape string) Payload {
	return Payload{kind: PayloadMalformed, shape: shape}
}

// ClassifyValue inspects a decoded JSON value and returns the matching
// payload variant. Anything other than a mapping or a sequence of mappings
// is malformed, including sequences with non-mapping elements.
func ClassifyValue(v any) Payload {
	switch typed := v.(type) {
	case map[string]any:
		return SinglePayload(typed)
	case []any:
		candidates := make([]map[string]any, 0, len(typed))
		for _, elem := range typed {
			m, ok := elem.(map[string]any)
			if !ok {
				return MalformedPayload(fmt.Sprintf("sequence containing %s", describeValue(elem)))
			}
			candidates = append(candidates, m)
		}
		return MultiPayload(candidates...)
	default:
		return MalformedPayload(describeValue(v))
	}
}

// ClassifyJSON decodes raw extractor output and classifies it. Invalid JSON
// is malformed, never an error: bad extractor output is a data problem.
func ClassifyJSON(raw []byte) Payload {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return MalformedPayload("invalid JSON")
	}
	return ClassifyValue(v)
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case []any:
		return "sequence"
	case map[string]any:
		return "mapping"
	default:
		return fmt.Sprintf("%T", v)
	}
}

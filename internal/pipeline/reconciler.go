package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// Reconcile validates a batch of fetch outcomes against the schema and
// produces the storage-ready report. It is a pure function: outcomes may
// arrive in any order, every data-level problem lands in Rejected rather
// than aborting the batch, and the only error return is a misconfigured
// schema.
func Reconcile(outcomes []FetchOutcome, schema Schema) (Report, error) {
	if err := schema.Validate(); err != nil {
		return Report{}, fmt.Errorf("invalid schema: %w", err)
	}

	report := Report{}
	for _, outcome := range outcomes {
		reconcileOutcome(&report, outcome, schema)
	}
	report.Counts = Counts{
		Accepted: len(report.Accepted),
		Rejected: len(report.Rejected),
		Total:    len(report.Accepted) + len(report.Rejected),
	}
	return report, nil
}

func reconcileOutcome(report *Report, outcome FetchOutcome, schema Schema) {
	if !outcome.OK {
		report.Rejected = append(report.Rejected, Rejection{URL: outcome.URL, Reason: outcome.Err})
		return
	}

	switch outcome.Payload.Kind() {
	case PayloadSingle:
		reconcileCandidate(report, outcome.URL, outcome.Payload.Candidates()[0], naturalKey(outcome.URL, 0, false), schema)
	case PayloadMulti:
		for i, candidate := range outcome.Payload.Candidates() {
			reconcileCandidate(report, outcome.URL, candidate, naturalKey(outcome.URL, i, true), schema)
		}
	case PayloadMalformed:
		report.Rejected = append(report.Rejected, Rejection{
			URL:    outcome.URL,
			Reason: fmt.Sprintf("unrecognized payload shape: %s", outcome.Payload.Shape()),
		})
	}
}

func reconcileCandidate(report *Report, url string, candidate map[string]any, key string, schema Schema) {
	fields := make(map[string]any, len(schema.Fields))
	for _, field := range schema.Fields {
		value, present := candidate[field.Name]
		coerced, ok, reason := coerceField(field, value, present)
		if !ok {
			if field.Required {
				report.Rejected = append(report.Rejected, Rejection{URL: url, Reason: reason})
				return
			}
			// Optional fields degrade to absent on any coercion failure.
			continue
		}
		fields[field.Name] = coerced
	}
	// Unknown candidate keys are dropped here by construction: only declared
	// fields were copied.
	report.Accepted = append(report.Accepted, Record{
		NaturalKey: key,
		SourceURL:  url,
		Fields:     fields,
	})
}

// coerceField validates one candidate value against its field declaration.
// The returned reason is only meaningful when ok is false; for optional
// fields the caller discards it.
func coerceField(field Field, value any, present bool) (any, bool, string) {
	if !present {
		return nil, false, fmt.Sprintf("missing required field %q", field.Name)
	}
	switch field.Type {
	case FieldString:
		s, ok := value.(string)
		if !ok {
			return nil, false, fmt.Sprintf("invalid required field %q: expected string, got %s", field.Name, describeValue(value))
		}
		s = strings.TrimSpace(s)
		if s == "" {
			// Whitespace-only strings count as absent.
			return nil, false, fmt.Sprintf("missing required field %q", field.Name)
		}
		return s, true, ""
	case FieldNumber:
		switch typed := value.(type) {
		case float64:
			return typed, true, ""
		case string:
			n, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
			if err != nil {
				return nil, false, fmt.Sprintf("invalid required field %q: expected number, got string", field.Name)
			}
			return n, true, ""
		default:
			return nil, false, fmt.Sprintf("invalid required field %q: expected number, got %s", field.Name, describeValue(value))
		}
	default:
		// Unreachable: Schema.Validate rejects unknown types up front.
		return nil, false, fmt.Sprintf("invalid required field %q: unknown type", field.Name)
	}
}

// naturalKey derives the upsert key. Single-candidate payloads key on the
// bare URL so re-crawls of the same page replace in place; multi-candidate
// payloads append the positional index.
func naturalKey(url string, index int, multi bool) string {
	if !multi {
		return url
	}
	return fmt.Sprintf("%s#%d", url, index)
}

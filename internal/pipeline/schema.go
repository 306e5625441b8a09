package pipeline

import "fmt"

// FieldType enumerates the value types a schema field may declare.
type FieldType string

// Supported field types.
const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
)

// Field is one named column of the target record schema.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
}

// Schema is the caller-supplied ordered set of fields a Record must satisfy.
// Order matters: candidates are validated field by field in declaration
// order, so the first failing field is deterministic.
type Schema struct {
	Fields []Field
}

// Validate rejects misconfigured schemas. A bad schema is a programmer
// error, not a data problem, so it aborts the whole reconciliation call.
func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case FieldString, FieldNumber:
		default:
			return fmt.Errorf("schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// DefaultSchema is the page-summary shape the original crawl used: a required
// title and summary extracted per page.
func DefaultSchema() Schema {
	return Schema{Fields: []Field{
		{Name: "title", Type: FieldString, Required: true},
		{Name: "summary", Type: FieldString, Required: true},
	}}
}

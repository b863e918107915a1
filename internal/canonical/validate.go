package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator checks canonical invoices against the compiled invoice.v1 schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the invoice.v1 schema. A compile failure is a
// programming error in the schema itself, so callers should treat it as
// fatal at startup rather than per document.
func NewValidator() (*Validator, error) {
	b, err := json.Marshal(invoiceSchemaV1())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("invoice.v1.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("invoice.v1.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate reports whether the document conforms to invoice.v1, with one
// string per violation. The document is round-tripped through JSON first so
// callers may pass maps holding any marshalable values; validation then sees
// exactly what a JSON consumer would.
func (v *Validator) Validate(doc map[string]any) (bool, []string) {
	b, err := json.Marshal(doc)
	if err != nil {
		return false, []string{fmt.Sprintf("marshal canonical: %v", err)}
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return false, []string{fmt.Sprintf("unmarshal canonical: %v", err)}
	}
	err = v.schema.Validate(generic)
	if err == nil {
		return true, nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return false, flattenCauses(ve)
	}
	return false, []string{err.Error()}
}

// flattenCauses collects the leaf violations of a validation error tree as
// "location: message" strings, skipping the intermediate branch nodes that
// only restate which subschema failed.
func flattenCauses(ve *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("%s: %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

package rule

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

var (
	schemaOnce sync.Once
	schemaVal  cue.Value
	schemaErr  error
)

// compiledSchema compiles the embedded schema once. A compile failure is a
// programming error in schema.cue, not bad user input, so it is surfaced on
// every call rather than swallowed.
func compiledSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		schemaVal = ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		schemaErr = schemaVal.Err()
	})
	if schemaErr != nil {
		return cue.Value{}, fmt.Errorf("compile rule schema: %w", schemaErr)
	}
	return schemaVal, nil
}

// ValidateTriggerConditions checks a trigger's condition map against the
// CUE schema for its kind. Unknown kinds and schema violations both come
// back as *ValidationError.
func ValidateTriggerConditions(kind TriggerKind, conditions map[string]any) error {
	return validateAgainst("#Conditions", string(kind), "trigger.conditions", conditions)
}

// ValidateActionParams checks an action's parameter map against the CUE
// schema for its kind.
func ValidateActionParams(kind ActionKind, params map[string]any) error {
	return validateAgainst("#Params", string(kind), "action.params", params)
}

// validateAgainst unifies a free-form map with the per-kind schema at
// <root>.<kind> and requires the result to be fully concrete.
func validateAgainst(root, kind, field string, values map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	kindSchema := schema.LookupPath(cue.ParsePath(fmt.Sprintf("%s.%s", root, kind)))
	if !kindSchema.Exists() {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("no schema for kind %q", kind),
		}
	}

	if values == nil {
		values = map[string]any{}
	}
	encoded := schema.Context().Encode(values)
	if err := encoded.Err(); err != nil {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("encode values: %v", err),
		}
	}

	unified := kindSchema.Unify(encoded)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("kind %q: %v", kind, err),
		}
	}
	return nil
}

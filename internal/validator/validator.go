package validator

// =============================================================================
// VALIDATOR PHILOSOPHY: CRASH EARLY, CRASH LOUD
// =============================================================================
//
// The CUE validator is the contract guard at the two edges of hdlgen:
// user documents coming in (config files, external module declarations) and
// design facts going out to the Rego rule engine.
//
// WHY THIS EXISTS:
// Without validation, if a config key is misspelled or a fact field is renamed:
// - The setting is silently ignored, or the rule silently receives `undefined`
// - Rules don't fire
// - You think your design is clean
//
// With validation:
// - Immediate failure with a clear error
// - "field not allowed: indent_space" tells you exactly what's wrong
// - Fix the document or the schema, no guessing
//
// WHEN VALIDATION FAILS:
// 1. DON'T suppress the error or add a workaround
// 2. DON'T loosen the schema without understanding why
// 3. DO trace back: is this a user typo, a recorder bug, a rule bug?
// =============================================================================

import (
	"embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed schema.cue
var schemaFS embed.FS

//go:embed facts_schema.cue
var factsSchemaFS embed.FS

// Schema definition names.
const (
	ConfigDef       = "#Config"
	ExternModuleDef = "#ExternModule"
	FactTablesDef   = "#FactTables"
)

// Validator validates user documents against the embedded CUE schema.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// New creates a new Validator with the embedded CUE schema
func New() (*Validator, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx, schemaFS, "schema.cue")
	if err != nil {
		return nil, err
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

func compileSchema(ctx *cue.Context, fs embed.FS, name string) (cue.Value, error) {
	schemaBytes, err := fs.ReadFile(name)
	if err != nil {
		return cue.Value{}, fmt.Errorf("loading embedded schema: %w", err)
	}

	schema := ctx.CompileBytes(schemaBytes)
	if schema.Err() != nil {
		return cue.Value{}, fmt.Errorf("compiling schema %s: %w", name, schema.Err())
	}
	return schema, nil
}

// ValidateConfigJSON checks a configuration document, already converted to JSON.
func (v *Validator) ValidateConfigJSON(jsonBytes []byte) error {
	return validateJSON(v.ctx, v.schema, jsonBytes, ConfigDef)
}

// ValidateExternModule checks a decoded external module declaration.
func (v *Validator) ValidateExternModule(data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling data to JSON: %w", err)
	}
	return validateJSON(v.ctx, v.schema, jsonBytes, ExternModuleDef)
}

// ValidationErrors returns detailed information about all validation errors
// of data against the named definition.
func (v *Validator) ValidationErrors(data interface{}, def string) []string {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return []string{fmt.Sprintf("marshal error: %v", err)}
	}

	dataValue := v.ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return []string{fmt.Sprintf("compile error: %v", dataValue.Err())}
	}

	inputDef := v.schema.LookupPath(cue.ParsePath(def))
	if inputDef.Err() != nil {
		return []string{fmt.Sprintf("schema lookup error: %v", inputDef.Err())}
	}

	err = inputDef.Unify(dataValue).Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []string
	for _, e := range errors.Errors(err) {
		errs = append(errs, e.Error())
	}
	return errs
}

func validateJSON(ctx *cue.Context, schema cue.Value, jsonBytes []byte, def string) error {
	dataValue := ctx.CompileBytes(jsonBytes)
	if dataValue.Err() != nil {
		return fmt.Errorf("compiling JSON as CUE: %w", dataValue.Err())
	}

	inputDef := schema.LookupPath(cue.ParsePath(def))
	if inputDef.Err() != nil {
		return fmt.Errorf("looking up %s definition: %w", def, inputDef.Err())
	}

	// Unify the data with the schema (this is CUE's type checking)
	unified := inputDef.Unify(dataValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// FactsValidator validates relational design fact tables against the facts schema.
type FactsValidator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewFactsValidator creates a validator for relational fact tables.
func NewFactsValidator() (*FactsValidator, error) {
	ctx := cuecontext.New()
	schema, err := compileSchema(ctx, factsSchemaFS, "facts_schema.cue")
	if err != nil {
		return nil, err
	}
	return &FactsValidator{ctx: ctx, schema: schema}, nil
}

// Validate checks that the fact tables conform to the facts schema.
func (v *FactsValidator) Validate(data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling facts to JSON: %w", err)
	}
	if err := validateJSON(v.ctx, v.schema, jsonBytes, FactTablesDef); err != nil {
		return fmt.Errorf("facts %w", err)
	}
	return nil
}

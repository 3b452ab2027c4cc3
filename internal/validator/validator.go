// Package validator compiles and caches one JSON Schema per tool name and
// validates call arguments against it, flattening engine errors into the
// flat message shape the rest of the framework expects.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// Result is the outcome of a single Validate call.
type Result struct {
	Valid  bool
	Errors []string
}

// Validator compiles a jsonschema.Schema per tool name at registration and
// reuses the compiled form for every subsequent call. The compiler runs
// with its default settings, so unknown keywords are ignored. Validation
// only reads args: schema-declared "default" values are not inserted, and
// this layer never coerces argument types.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{schemas: make(map[string]*jsonschema.Schema)}
}

// Compile parses and compiles rawSchema (a JSON Schema document) for the
// given tool name, replacing any schema previously registered under that
// name.
func (v *Validator) Compile(toolName string, rawSchema json.RawMessage) error {
	if len(rawSchema) == 0 {
		v.mu.Lock()
		delete(v.schemas, toolName)
		v.mu.Unlock()
		return nil
	}

	var doc any
	if err := json.Unmarshal(rawSchema, &doc); err != nil {
		return fmt.Errorf("validator: %s: invalid schema JSON: %w", toolName, err)
	}

	c := jsonschema.NewCompiler()
	resourceURL := "mem://" + toolName + ".schema.json"
	if err := c.AddResource(resourceURL, doc); err != nil {
		return fmt.Errorf("validator: %s: %w", toolName, err)
	}
	schema, err := c.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("validator: %s: %w", toolName, err)
	}

	v.mu.Lock()
	v.schemas[toolName] = schema
	v.mu.Unlock()
	return nil
}

// Validate checks args (decoded JSON, e.g. map[string]any) against the
// compiled schema for toolName. A tool with no registered schema always
// validates.
func (v *Validator) Validate(toolName string, args any) Result {
	v.mu.RLock()
	schema, ok := v.schemas[toolName]
	v.mu.RUnlock()
	if !ok {
		return Result{Valid: true}
	}

	if err := schema.Validate(args); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return Result{Valid: false, Errors: []string{err.Error()}}
		}
		return Result{Valid: false, Errors: flatten(ve)}
	}
	return Result{Valid: true}
}

// ValidateOrThrow joins every flattened error with "; " into a single error.
func (v *Validator) ValidateOrThrow(toolName string, args any) error {
	res := v.Validate(toolName, args)
	if res.Valid {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(res.Errors, "; "))
}

// flatten walks a ValidationError tree and produces one human-readable
// message per leaf cause, per the error-flattening table:
//   - required        -> "Missing required property: X"
//   - type             -> "Property <path> must be <T>"
//   - enum             -> "must be one of: V1, V2, ..."
//   - minimum/maximum/minLength/maxLength/pattern/additionalProperties
//     -> analogous messages
//   - anything else    -> engine message, or a path-qualified fallback
func flatten(ve *jsonschema.ValidationError) []string {
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, flattenLeaf(e))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	if len(out) == 0 {
		out = append(out, "Validation failed")
	}
	return out
}

func flattenLeaf(e *jsonschema.ValidationError) string {
	path := instancePath(e)
	kw := e.ErrorKind

	switch k := kw.(type) {
	case *kind.Required:
		if len(k.Missing) > 0 {
			return fmt.Sprintf("Missing required property: %s", k.Missing[0])
		}
	case *kind.Type:
		return fmt.Sprintf("Property %s must be %s", path, strings.Join(k.Want, " or "))
	case *kind.Enum:
		vals := make([]string, len(k.Want))
		for i, w := range k.Want {
			vals[i] = fmt.Sprintf("%v", w)
		}
		return fmt.Sprintf("must be one of: %s", strings.Join(vals, ", "))
	case *kind.Minimum:
		return fmt.Sprintf("Property %s must be >= %v", path, k.Want)
	case *kind.Maximum:
		return fmt.Sprintf("Property %s must be <= %v", path, k.Want)
	case *kind.MinLength:
		return fmt.Sprintf("Property %s must have length >= %v", path, k.Want)
	case *kind.MaxLength:
		return fmt.Sprintf("Property %s must have length <= %v", path, k.Want)
	case *kind.Pattern:
		return fmt.Sprintf("Property %s must match pattern %s", path, k.Want)
	case *kind.AdditionalProperties:
		return fmt.Sprintf("Property %s has unexpected additional properties", path)
	}

	if msg := e.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("Validation failed at %s", path)
}

func instancePath(e *jsonschema.ValidationError) string {
	if e.InstanceLocation == nil {
		return "<root>"
	}
	p := strings.Join(e.InstanceLocation, "/")
	if p == "" {
		return "<root>"
	}
	return "/" + p
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var (
	ErrInvalidSpec   = errors.New("TOOL_INVALID_SPEC")
	ErrInvalidParams = errors.New("TOOL_INVALID_PARAMS")
)

var knownTypes = map[string]struct{}{
	"string":  {},
	"integer": {},
	"number":  {},
	"boolean": {},
	"object":  {},
	"array":   {},
}

// Param declares one tool parameter.
type Param struct {
	Type        string `json:"type" toml:"type" yaml:"type"`
	Required    bool   `json:"required,omitempty" toml:"required,omitempty" yaml:"required,omitempty"`
	Default     any    `json:"default,omitempty" toml:"default,omitempty" yaml:"default,omitempty"`
	Description string `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty"`
}

// Spec is the static declaration of a callable tool.
type Spec struct {
	Name        string           `json:"name" toml:"name" yaml:"name"`
	Description string           `json:"description,omitempty" toml:"description,omitempty" yaml:"description,omitempty"`
	Params      map[string]Param `json:"params,omitempty" toml:"params,omitempty" yaml:"params,omitempty"`
}

// Handler executes a tool with already validated parameters.
type Handler func(ctx context.Context, params map[string]any) (any, error)

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: tool name is required", ErrInvalidSpec)
	}
	for _, name := range s.ParamNames() {
		p := s.Params[name]
		if _, ok := knownTypes[p.Type]; !ok {
			return fmt.Errorf("%w: tool %s param %s has unknown type %q", ErrInvalidSpec, s.Name, name, p.Type)
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("%w: tool %s param %s is required and has a default", ErrInvalidSpec, s.Name, name)
		}
	}
	return nil
}

// ParamNames returns parameter names in stable order.
func (s Spec) ParamNames() []string {
	names := make([]string, 0, len(s.Params))
	for n := range s.Params {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// JSONSchema renders the parameter declaration as a JSON Schema object.
func (s Spec) JSONSchema() map[string]any {
	props := map[string]any{}
	required := []any{}
	for _, name := range s.ParamNames() {
		p := s.Params[name]
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Schema is a compiled parameter validator for one tool.
type Schema struct {
	spec     Spec
	compiled *jsonschema.Schema
}

// Compile validates the declaration and compiles its JSON Schema once.
func Compile(s Spec) (*Schema, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	doc, err := roundTrip(s.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	url := "mcpgate://tools/" + s.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSpec, s.Name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSpec, s.Name, err)
	}
	return &Schema{spec: s, compiled: compiled}, nil
}

func (s *Schema) Spec() Spec { return s.spec }

// Prepare applies defaults, validates, and returns a JSON-normalized copy of params.
func (s *Schema) Prepare(params map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(params)+len(s.spec.Params))
	for k, v := range params {
		merged[k] = v
	}
	for name, p := range s.spec.Params {
		if _, ok := merged[name]; !ok && p.Default != nil {
			merged[name] = p.Default
		}
	}
	blob, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := s.compiled.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParams, s.spec.Name, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(blob, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return out, nil
}

func roundTrip(v any) (any, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(blob))
}

package tools

import (
	"errors"
	"testing"
)

func TestSpecValidate(t *testing.T) {
	cases := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"ok", Spec{Name: "echo", Params: map[string]Param{"msg": req("string", "")}}, false},
		{"no params", Spec{Name: "ping"}, false},
		{"missing name", Spec{Params: map[string]Param{"msg": req("string", "")}}, true},
		{"unknown type", Spec{Name: "echo", Params: map[string]Param{"msg": {Type: "text"}}}, true},
		{"required with default", Spec{Name: "echo", Params: map[string]Param{"msg": {Type: "string", Required: true, Default: "x"}}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.wantErr && !errors.Is(err, ErrInvalidSpec) {
				t.Fatalf("expected invalid spec error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected valid spec, got %v", err)
			}
		})
	}
}

func TestJSONSchemaShape(t *testing.T) {
	s := Spec{Name: "roi", Params: map[string]Param{
		"investment": req("number", "amount"),
		"months":     param("integer", false, 12, ""),
	}}
	schema := s.JSONSchema()
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	required, _ := schema["required"].([]any)
	if len(required) != 1 || required[0] != "investment" {
		t.Fatalf("expected investment to be required, got %v", required)
	}
	props := schema["properties"].(map[string]any)
	months := props["months"].(map[string]any)
	if months["default"] != 12 {
		t.Fatalf("expected default 12, got %v", months["default"])
	}
}

func TestSchemaPrepare(t *testing.T) {
	schema, err := Compile(Spec{Name: "shot", Params: map[string]Param{
		"url":       req("string", ""),
		"width":     param("integer", false, 1920, ""),
		"full_page": param("boolean", false, false, ""),
	}})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	out, err := schema.Prepare(map[string]any{"url": "https://example.com"})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if out["width"] != float64(1920) {
		t.Fatalf("expected default width applied, got %v", out["width"])
	}
	if out["full_page"] != false {
		t.Fatalf("expected default full_page applied, got %v", out["full_page"])
	}

	out, err = schema.Prepare(map[string]any{"url": "https://example.com", "width": 800})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if out["width"] != float64(800) {
		t.Fatalf("expected explicit width kept, got %v", out["width"])
	}

	for name, params := range map[string]map[string]any{
		"missing required": {"width": 10},
		"wrong type":       {"url": 42},
		"fractional int":   {"url": "x", "width": 10.5},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := schema.Prepare(params); !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("expected invalid params, got %v", err)
			}
		})
	}
}

func TestCompileRejectsInvalidSpec(t *testing.T) {
	if _, err := Compile(Spec{Name: "bad", Params: map[string]Param{"x": {Type: "date"}}}); !errors.Is(err, ErrInvalidSpec) {
		t.Fatalf("expected invalid spec, got %v", err)
	}
}

func TestBuiltinTablesCompile(t *testing.T) {
	seen := map[string]string{}
	defs := append(Internal(), Custom()...)
	for _, d := range defs {
		if d.Key == "" || d.Kind == "" {
			t.Fatalf("definition missing key or kind: %+v", d)
		}
		for _, tool := range d.Tools {
			if tool.Handler == nil {
				t.Fatalf("tool %s has no handler", tool.Name)
			}
			if _, err := Compile(tool.Spec); err != nil {
				t.Fatalf("tool %s does not compile: %v", tool.Name, err)
			}
			if owner, ok := seen[tool.Name]; ok {
				t.Fatalf("tool %s declared by both %s and %s", tool.Name, owner, d.Key)
			}
			seen[tool.Name] = d.Key
		}
	}
	if len(seen) != 6+18+4 {
		t.Fatalf("expected 28 compiled tools, got %d", len(seen))
	}
}

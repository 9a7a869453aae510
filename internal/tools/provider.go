package tools

import (
	"fmt"
	"strconv"
)

// Tool pairs a declaration with its compiled-in handler.
type Tool struct {
	Spec
	Handler Handler
}

// Definition is a compiled provider from the registration table.
type Definition struct {
	Key         string
	Name        string
	Description string
	Kind        string
	EnvRequired []string
	Tools       []Tool
}

const (
	KindInternal = "internal"
	KindCustom   = "custom"
)

// ID is the stable identifier used for compiled providers.
func (d Definition) ID() string {
	return d.Kind + ":" + d.Key
}

// Specs returns the declarations of every tool in the definition.
func (d Definition) Specs() []Spec {
	out := make([]Spec, 0, len(d.Tools))
	for _, t := range d.Tools {
		out = append(out, t.Spec)
	}
	return out
}

// Internal returns the bridge providers shipped with the gateway.
func Internal() []Definition {
	return []Definition{websiteBridge(), crmBridge()}
}

// Custom returns the first-party tool providers shipped with the gateway.
func Custom() []Definition {
	return []Definition{businessTools()}
}

func param(typ string, required bool, def any, desc string) Param {
	return Param{Type: typ, Required: required, Default: def, Description: desc}
}

func req(typ, desc string) Param { return param(typ, true, nil, desc) }

func opt(typ, desc string) Param { return param(typ, false, nil, desc) }

func number(params map[string]any, key string) (float64, error) {
	switch v := params[key].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not a number", ErrInvalidParams, key)
		}
		return f, nil
	case nil:
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	default:
		return 0, fmt.Errorf("%w: %s has unsupported type %T", ErrInvalidParams, key, v)
	}
}

func text(params map[string]any, key string) string {
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}

package registry

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"mcpgate/internal/tools"
	"mcpgate/internal/trust"
)

// Tool is the public view of an indexed tool.
type Tool struct {
	Name            string                 `json:"name"`
	Description     string                 `json:"description"`
	ProviderID      string                 `json:"owning_provider_id"`
	ProviderName    string                 `json:"provider_name"`
	TrustLevel      trust.Level            `json:"trust_level"`
	ParameterSchema map[string]tools.Param `json:"parameter_schema"`
	Executable      bool                   `json:"executable"`
}

// Spec rebuilds the tool declaration, for transports that advertise schemas.
func (t Tool) Spec() tools.Spec {
	return tools.Spec{Name: t.Name, Description: t.Description, Params: t.ParameterSchema}
}

// Provider is the public view of an indexed provider.
type Provider struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	SourceLocation string       `json:"source_location"`
	TrustLevel     trust.Level  `json:"trust_level"`
	Status         trust.Status `json:"status"`
	Kind           string       `json:"kind"`
	EnvRequired    []string     `json:"env_required,omitempty"`
	EnvAvailable   bool         `json:"env_available"`
	ToolNames      []string     `json:"tool_names"`
}

// Warning records a tool dropped because an earlier provider registered the same name.
type Warning struct {
	Tool            string `json:"tool"`
	KeptProvider    string `json:"kept_provider"`
	DroppedProvider string `json:"dropped_provider"`
}

type boundTool struct {
	schema  *tools.Schema
	handler tools.Handler
}

type entry struct {
	tool    Tool
	schema  *tools.Schema
	handler tools.Handler
	env     []string
}

// snapshot is immutable once published.
type snapshot struct {
	generation uint64
	builtAt    time.Time
	tools      map[string]*entry
	toolList   []Tool
	providers  []Provider
	warnings   []Warning
}

type builder struct {
	logger *zap.Logger
	snap   *snapshot
}

func newBuilder(logger *zap.Logger, gen uint64) *builder {
	return &builder{
		logger: logger,
		snap: &snapshot{
			generation: gen,
			tools:      map[string]*entry{},
		},
	}
}

// add registers a provider. A tool name already taken keeps its first owner.
func (b *builder) add(p Provider, bound []boundTool) {
	p.ToolNames = []string{}
	for _, bt := range bound {
		spec := bt.schema.Spec()
		if kept, ok := b.snap.tools[spec.Name]; ok {
			w := Warning{Tool: spec.Name, KeptProvider: kept.tool.ProviderID, DroppedProvider: p.ID}
			b.snap.warnings = append(b.snap.warnings, w)
			b.logger.Warn("tool name collision, keeping first registration",
				zap.String("tool", w.Tool),
				zap.String("kept_provider", w.KeptProvider),
				zap.String("dropped_provider", w.DroppedProvider))
			continue
		}
		b.snap.tools[spec.Name] = &entry{
			tool: Tool{
				Name:            spec.Name,
				Description:     spec.Description,
				ProviderID:      p.ID,
				ProviderName:    p.Name,
				TrustLevel:      p.TrustLevel,
				ParameterSchema: spec.Params,
				Executable:      bt.handler != nil,
			},
			schema:  bt.schema,
			handler: bt.handler,
			env:     p.EnvRequired,
		}
		p.ToolNames = append(p.ToolNames, spec.Name)
	}
	sort.Strings(p.ToolNames)
	b.snap.providers = append(b.snap.providers, p)
}

func (b *builder) finish() *snapshot {
	s := b.snap
	s.builtAt = time.Now().UTC()
	s.toolList = make([]Tool, 0, len(s.tools))
	for _, e := range s.tools {
		s.toolList = append(s.toolList, e.tool)
	}
	sort.Slice(s.toolList, func(i, j int) bool { return s.toolList[i].Name < s.toolList[j].Name })
	sort.SliceStable(s.providers, func(i, j int) bool {
		if s.providers[i].Name != s.providers[j].Name {
			return s.providers[i].Name < s.providers[j].Name
		}
		return s.providers[i].ID < s.providers[j].ID
	})
	return s
}

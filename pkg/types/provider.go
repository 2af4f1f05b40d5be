package types

type ProviderType string

const (
	TypeExclusiveGPU ProviderType = "exclusive-gpu"
	TypeLocalCPU     ProviderType = "local-cpu"
	TypeRemoteAPI    ProviderType = "remote-api"
)

type ProviderStatus string

const (
	StatusActive     ProviderStatus = "active"
	StatusInactive   ProviderStatus = "inactive"
	StatusDeprecated ProviderStatus = "deprecated"
)

// exclusiveResourceTypes marks provider types bound to a resource that
// only one active provider may hold at a time.
var exclusiveResourceTypes = map[ProviderType]bool{
	TypeExclusiveGPU: true,
}

func (t ProviderType) Exclusive() bool {
	return exclusiveResourceTypes[t]
}

func ProviderTypes() []ProviderType {
	return []ProviderType{TypeExclusiveGPU, TypeLocalCPU, TypeRemoteAPI}
}

type Provider struct {
	ID             string         `json:"id" yaml:"id" toml:"id"`
	Type           ProviderType   `json:"type" yaml:"type" toml:"type"`
	BaseURL        string         `json:"base_url" yaml:"base_url" toml:"base_url"`
	Status         ProviderStatus `json:"status" yaml:"status" toml:"status"`
	HealthEndpoint string         `json:"health_endpoint,omitempty" yaml:"health_endpoint" toml:"health_endpoint"`
	Models         []ModelRef     `json:"models" yaml:"models" toml:"models"`
}

func (p Provider) Active() bool {
	return p.Status == StatusActive
}

func (p Provider) Model(name string) (ModelRef, bool) {
	for _, m := range p.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelRef{}, false
}

type ModelRef struct {
	Name          string   `json:"name" yaml:"name" toml:"name"`
	BackendModel  string   `json:"backend_model,omitempty" yaml:"backend_model" toml:"backend_model"`
	Capabilities  []string `json:"capabilities,omitempty" yaml:"capabilities" toml:"capabilities"`
	ContextLength int      `json:"context_length,omitempty" yaml:"context_length" toml:"context_length"`
}

func (m ModelRef) HasCapability(name string) bool {
	for _, c := range m.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// Backend returns the identity the provider's engine is addressed with.
func (m ModelRef) Backend() string {
	if m.BackendModel != "" {
		return m.BackendModel
	}
	return m.Name
}

type ProviderDoc struct {
	Providers []Provider `json:"providers" yaml:"providers" toml:"providers"`
}

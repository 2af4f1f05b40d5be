package types

type CompiledArtifact struct {
	SchemaVersion  string         `json:"schema_version"`
	GeneratedAt    string         `json:"generated_at"`
	Generator      Generator      `json:"generator"`
	SourceDigest   string         `json:"source_digest,omitempty"`
	ContentDigest  string         `json:"content_digest,omitempty"`
	ModelList      []ModelEntry   `json:"model_list"`
	RouterSettings RouterSettings `json:"router_settings"`
}

type Generator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ModelEntry struct {
	ModelName     string       `json:"model_name"`
	BackendModel  string       `json:"backend_model"`
	ProviderID    string       `json:"provider_id"`
	ProviderType  ProviderType `json:"provider_type"`
	BaseURL       string       `json:"base_url"`
	Capabilities  []string     `json:"capabilities,omitempty"`
	ContextLength int          `json:"context_length,omitempty"`
}

type RouterSettings struct {
	DefaultProvider string                    `json:"default_provider,omitempty"`
	DefaultStrategy string                    `json:"default_strategy"`
	Fallbacks       map[string][]string       `json:"fallbacks"`
	Aliases         map[string]string         `json:"aliases"`
	Strategy        map[string]string         `json:"strategy"`
	Weights         map[string]map[string]int `json:"weights,omitempty"`
}

type SchemaVersion struct {
	Version   string `json:"version"`
	Changelog string `json:"changelog"`
	Breaking  bool   `json:"breaking"`
	Migration string `json:"migration,omitempty"`
}

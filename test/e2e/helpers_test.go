//go:build e2e

package e2e

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/modelmux/routec/internal/compile"
	"github.com/modelmux/routec/pkg/types"
)

const e2eProvidersYAML = `providers:
  - id: ollama
    type: local-cpu
    base_url: http://127.0.0.1:11434
    status: active
    models:
      - name: llama-3
        capabilities: [chat]
        context_length: 8192
      - name: llama-3-mini
        capabilities: [chat]
        context_length: 4096
  - id: vllm
    type: exclusive-gpu
    base_url: http://10.0.0.7:8000
    status: active
    health_endpoint: /health
    models:
      - name: mixtral
        capabilities: [chat, code_generation]
        context_length: 32768
  - id: openai
    type: remote-api
    base_url: https://api.openai.com/v1
    status: active
    health_endpoint: /models
    models:
      - name: gpt-4
        backend_model: gpt-4-0613
        capabilities: [chat, code_generation]
        context_length: 128000
`

const e2eRoutingYAML = `default_provider: ollama
exact_matches:
  - model_name: gpt-4
    provider_id: openai
pattern_matches:
  - regex: "^llama-.*"
    provider_id: ollama
capability_preferences:
  - capability: code_generation
    ordered_model_list: [gpt-4, mixtral]
load_balance_groups:
  - model_name: chat-pool
    strategy: weighted
    members:
      - provider_id: ollama
        weight: 3
      - provider_id: openai
        weight: 1
fallback_chains:
  - model_name: gpt-4
    ordered_targets: [mixtral, llama-3]
  - model_name: mixtral
    ordered_targets: [llama-3]
`

const legacyArtifactJSON = `{
  "schema_version": "1.0.0",
  "generated_at": "2025-06-01T00:00:00Z",
  "generator": {"name": "routec", "version": "0.1.0"},
  "model_list": [
    {"model_name": "gpt-4", "backend": "gpt-4-0613", "provider_id": "openai", "provider_type": "remote-api", "base_url": "https://api.openai.com/v1"}
  ],
  "router_settings": {
    "fallbacks": {},
    "aliases": [],
    "strategy": {}
  }
}`

func writeFullRegistry(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "providers.yaml"), []byte(e2eProvidersYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "routing.yaml"), []byte(e2eRoutingYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

// appendModel extends the last provider's model list in place. The
// snippet must carry the six-space item indent used by the fixture.
func appendModel(t *testing.T, registryDir, snippet string) {
	t.Helper()
	path := filepath.Join(registryDir, "providers.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, append(raw, []byte(snippet)...), 0o644); err != nil {
		t.Fatal(err)
	}
}

func compileOptions(t *testing.T, registryDir string) compile.Options {
	t.Helper()
	return compile.Options{
		RegistryDir:  registryDir,
		ArtifactPath: filepath.Join(t.TempDir(), "gateway-config.json"),
		Generator:    types.Generator{Name: "routec", Version: "0.5.0"},
	}
}

func mustCompile(t *testing.T, opts compile.Options) *compile.Report {
	t.Helper()
	r := compile.Run(opts)
	if !r.Passed {
		t.Fatalf("compile failed: exit %d, violations: %v", r.ExitCode, r.Violations)
	}
	return r
}

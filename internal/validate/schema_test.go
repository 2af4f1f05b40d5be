package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelmux/routec/internal/registry"
	"github.com/modelmux/routec/pkg/types"
)

func loadRegistry(t *testing.T, providers, routing string) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "providers.yaml"), []byte(providers), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "routing.yaml"), []byte(routing), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := registry.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return reg
}

const validProviders = `providers:
  - id: ollama
    type: local-cpu
    base_url: http://127.0.0.1:11434
    status: active
    models:
      - name: llama-3
        capabilities: [chat]
        context_length: 8192
`

const validRouting = `default_provider: ollama
pattern_matches:
  - regex: "^llama-.*"
    provider_id: ollama
`

// --- Structural validation ---

func TestRunAcceptsValidRegistry(t *testing.T) {
	reg := loadRegistry(t, validProviders, validRouting)
	if err := Run(reg); err != nil {
		t.Fatalf("valid registry rejected: %v", err)
	}
}

func TestRunRejectsUnknownProviderField(t *testing.T) {
	providers := `providers:
  - id: ollama
    type: local-cpu
    base_url: http://127.0.0.1:11434
    status: active
    gpu_count: 4
    models: [{name: llama-3}]
`
	reg := loadRegistry(t, providers, validRouting)

	err := Run(reg)
	var sv *types.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("expected SchemaViolation, got %T: %v", err, err)
	}
	if sv.EntityID != reg.ProvidersPath {
		t.Errorf("violation should cite the providers document, got %q", sv.EntityID)
	}
}

func TestRunRejectsZeroContextLength(t *testing.T) {
	providers := `providers:
  - id: ollama
    type: local-cpu
    base_url: http://127.0.0.1:11434
    status: active
    models:
      - name: llama-3
        context_length: 0
`
	reg := loadRegistry(t, providers, validRouting)

	err := Run(reg)
	var sv *types.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("expected SchemaViolation, got %T: %v", err, err)
	}
	joined := strings.Join(sv.Findings, "\n")
	if !strings.Contains(joined, "context_length") {
		t.Errorf("findings should name context_length: %s", joined)
	}
}

func TestRunRejectsBadStatusEnum(t *testing.T) {
	providers := strings.Replace(validProviders, "status: active", "status: running", 1)
	reg := loadRegistry(t, providers, validRouting)

	if err := Run(reg); err == nil {
		t.Fatalf("status outside enum accepted")
	}
}

func TestRunRejectsInvalidRegex(t *testing.T) {
	routing := `pattern_matches:
  - regex: "^llama-["
    provider_id: ollama
`
	reg := loadRegistry(t, validProviders, routing)

	err := Run(reg)
	var sv *types.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("expected SchemaViolation, got %T: %v", err, err)
	}
	if sv.FieldPath != "pattern_matches[0].regex" {
		t.Errorf("field path = %q", sv.FieldPath)
	}
	if !strings.Contains(sv.Msg, "invalid regex") {
		t.Errorf("message = %q", sv.Msg)
	}
}

// --- Exclusive-resource arbitration ---

func TestRunRejectsTwoActiveExclusiveGPUProviders(t *testing.T) {
	providers := `providers:
  - id: ollama
    type: local-cpu
    base_url: http://127.0.0.1:11434
    status: active
    models: [{name: llama-3}]
  - id: vllm-a
    type: exclusive-gpu
    base_url: http://10.0.0.1:8000
    status: active
    models: [{name: mixtral}]
  - id: vllm-b
    type: exclusive-gpu
    base_url: http://10.0.0.2:8000
    status: active
    models: [{name: qwen}]
`
	reg := loadRegistry(t, providers, "default_provider: ollama\n")

	err := Run(reg)
	var sv *types.SchemaViolation
	if !errors.As(err, &sv) {
		t.Fatalf("expected SchemaViolation, got %T: %v", err, err)
	}
	if !strings.Contains(sv.Msg, "only one exclusive-gpu provider may be active") {
		t.Errorf("message = %q", sv.Msg)
	}
	for _, id := range []string{"vllm-a", "vllm-b"} {
		if !strings.Contains(sv.Msg, id) {
			t.Errorf("message should cite %s: %q", id, sv.Msg)
		}
		if !strings.Contains(sv.EntityID, id) {
			t.Errorf("entity id should cite %s: %q", id, sv.EntityID)
		}
	}
}

func TestRunAllowsInactiveSecondExclusiveProvider(t *testing.T) {
	providers := `providers:
  - id: vllm-a
    type: exclusive-gpu
    base_url: http://10.0.0.1:8000
    status: active
    models: [{name: mixtral}]
  - id: vllm-b
    type: exclusive-gpu
    base_url: http://10.0.0.2:8000
    status: inactive
    models: [{name: qwen}]
`
	reg := loadRegistry(t, providers, "default_provider: vllm-a\n")
	if err := Run(reg); err != nil {
		t.Fatalf("standby exclusive provider rejected: %v", err)
	}
}

package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelmux/routec/internal/hash"
	"github.com/modelmux/routec/pkg/types"
)

func validArtifact() *types.CompiledArtifact {
	return &types.CompiledArtifact{
		SchemaVersion: "2.0.0",
		GeneratedAt:   "2026-03-01T12:00:00Z",
		Generator:     types.Generator{Name: "routec", Version: "0.5.0"},
		ModelList: []types.ModelEntry{
			{ModelName: "gpt-4", BackendModel: "gpt-4-0613", ProviderID: "openai", ProviderType: types.TypeRemoteAPI, BaseURL: "https://api.openai.com/v1"},
			{ModelName: "llama-3", BackendModel: "llama-3", ProviderID: "ollama", ProviderType: types.TypeLocalCPU, BaseURL: "http://localhost:11434"},
		},
		RouterSettings: types.RouterSettings{
			DefaultStrategy: types.DefaultStrategy,
			Fallbacks:       map[string][]string{"gpt-4": {"llama-3"}},
			Aliases:         map[string]string{},
			Strategy:        map[string]string{},
		},
	}
}

// stampAndEncode fills the content digest and returns the canonical
// bytes, the same final steps the emitter performs.
func stampAndEncode(t *testing.T, art *types.CompiledArtifact) []byte {
	t.Helper()
	digest, err := ContentDigest(art)
	if err != nil {
		t.Fatal(err)
	}
	art.ContentDigest = digest
	raw, err := hash.CanonicalJSON(art)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

// --- Loading ---

func TestLoadRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "gateway-config.json")
	raw := stampAndEncode(t, validArtifact())
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	art, loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if art.SchemaVersion != "2.0.0" || len(art.ModelList) != 2 {
		t.Fatalf("decoded artifact = %+v", art)
	}
	if string(loaded) != string(raw) {
		t.Fatal("raw bytes must round-trip unchanged")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	var perr *types.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError, got %v", err)
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "broken.json")
	if err := os.WriteFile(path, []byte("{]"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, raw, err := Load(path)
	var perr *types.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("want ParseError, got %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("raw bytes should still be returned for diagnostics")
	}
}

func TestVersionOf(t *testing.T) {
	if got := VersionOf([]byte(`{"schema_version":"1.1.0"}`)); got != "1.1.0" {
		t.Fatalf("got %q", got)
	}
	if got := VersionOf([]byte(`{}`)); got != "" {
		t.Fatalf("absent stamp should be empty, got %q", got)
	}
	if got := VersionOf([]byte(`not json`)); got != "" {
		t.Fatalf("non-JSON should be empty, got %q", got)
	}
}

// --- Content digest ---

func TestContentDigestIgnoresVolatileFields(t *testing.T) {
	a := validArtifact()
	d1, err := ContentDigest(a)
	if err != nil {
		t.Fatal(err)
	}

	b := validArtifact()
	b.GeneratedAt = "2027-01-01T00:00:00Z"
	b.ContentDigest = "sha256:" + strings.Repeat("0", 64)
	d2, err := ContentDigest(b)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("volatile fields leaked into the digest: %s vs %s", d1, d2)
	}

	c := validArtifact()
	c.ModelList[0].BaseURL = "https://elsewhere.example.com"
	d3, err := ContentDigest(c)
	if err != nil {
		t.Fatal(err)
	}
	if d3 == d1 {
		t.Fatal("content change must change the digest")
	}
}

// --- Verification ---

func TestVerifyCleanArtifact(t *testing.T) {
	raw := stampAndEncode(t, validArtifact())
	for _, want := range []string{"2.0.0", ""} {
		findings, err := Verify(raw, want)
		if err != nil {
			t.Fatal(err)
		}
		if len(findings) != 0 {
			t.Fatalf("wantVersion=%q: unexpected findings %v", want, findings)
		}
	}
}

func TestVerifyStructuralFindingsComeFirst(t *testing.T) {
	raw := []byte(`{"schema_version":"2.0.0"}`)
	findings, err := Verify(raw, "2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) == 0 {
		t.Fatal("want schema findings for a gutted artifact")
	}
}

func TestVerifyDanglingReferences(t *testing.T) {
	a := validArtifact()
	a.RouterSettings.Fallbacks["ghost"] = []string{"llama-3"}
	a.RouterSettings.Aliases["chat"] = "gone"
	a.RouterSettings.Strategy["phantom"] = "round-robin"
	raw := stampAndEncode(t, a)

	findings, err := Verify(raw, "2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(findings, "\n")
	for _, want := range []string{
		`fallbacks references "ghost"`,
		`aliases[chat] references "gone"`,
		`strategy references "phantom"`,
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing finding %q in %v", want, findings)
		}
	}
}

func TestVerifyVersionMismatch(t *testing.T) {
	a := validArtifact()
	a.SchemaVersion = "2.1.0"
	raw := stampAndEncode(t, a)

	findings, err := Verify(raw, "2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 1 || !strings.Contains(findings[0], "schema_version is 2.1.0, expected 2.0.0") {
		t.Fatalf("findings = %v", findings)
	}

	findings, err = Verify(raw, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(findings) != 0 {
		t.Fatalf("empty wantVersion must skip the equality check, got %v", findings)
	}
}

func TestVerifyDigestMismatch(t *testing.T) {
	a := validArtifact()
	raw := stampAndEncode(t, a)
	tampered := strings.Replace(string(raw), "gpt-4-0613", "gpt-4-0125", 1)

	findings, err := Verify([]byte(tampered), "2.0.0")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range findings {
		if strings.Contains(f, "content_digest mismatch") {
			found = true
		}
	}
	if !found {
		t.Fatalf("want digest mismatch finding, got %v", findings)
	}
}

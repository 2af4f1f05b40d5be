package hash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Canonical JSON ---

func TestCanonicalJSONSortsKeys(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"b": 2, "a": 1, "c": []any{"x", "y"}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":1,"b":2,"c":["x","y"]}`
	if string(got) != want {
		t.Fatalf("canonical mismatch: got %s want %s", got, want)
	}
}

func TestCanonicalJSONStableAcrossRuns(t *testing.T) {
	v := map[string]any{
		"model_list": []any{map[string]any{"model_name": "llama-3", "context_length": 8192}},
		"fallbacks":  map[string]any{"gpt-4": []any{"claude-3", "llama-3"}},
	}
	first, err := CanonicalJSON(v)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		again, err := CanonicalJSON(v)
		if err != nil {
			t.Fatal(err)
		}
		if string(again) != string(first) {
			t.Fatalf("run %d differs: %s vs %s", i, again, first)
		}
	}
}

func TestDigestCanonicalIgnoresFieldOrder(t *testing.T) {
	type a struct {
		First  string `json:"first"`
		Second string `json:"second"`
	}
	type b struct {
		Second string `json:"second"`
		First  string `json:"first"`
	}
	d1, _, err := DigestCanonical(a{First: "x", Second: "y"})
	if err != nil {
		t.Fatal(err)
	}
	d2, _, err := DigestCanonical(b{First: "x", Second: "y"})
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("digests differ: %s vs %s", d1, d2)
	}
	if !strings.HasPrefix(d1, "sha256:") {
		t.Fatalf("unexpected digest format: %s", d1)
	}
}

func TestCanonicalJSONRejectsUnmarshalable(t *testing.T) {
	if _, err := CanonicalJSON(func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
}

// --- File and tree digests ---

func TestDigestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	digest, size, err := DigestFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if size != 7 {
		t.Fatalf("size = %d, want 7", size)
	}
	if !strings.HasPrefix(digest, "sha256:") {
		t.Fatalf("unexpected digest format: %s", digest)
	}
	if digest != DigestBytes([]byte(`{"a":1}`)) {
		t.Fatal("file digest should match bytes digest")
	}
}

func TestDigestFileMissing(t *testing.T) {
	if _, _, err := DigestFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDigestTreeDeterministic(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "providers.yaml"), []byte("providers: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "routing.yaml"), []byte("exact_matches: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	first, err := DigestTree(dir)
	if err != nil {
		t.Fatal(err)
	}
	again, err := DigestTree(dir)
	if err != nil {
		t.Fatal(err)
	}
	if first != again {
		t.Fatalf("tree digest not stable: %s vs %s", first, again)
	}

	if err := os.WriteFile(filepath.Join(dir, "providers.yaml"), []byte("providers: [x]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	changed, err := DigestTree(dir)
	if err != nil {
		t.Fatal(err)
	}
	if changed == first {
		t.Fatal("tree digest should change when a file changes")
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	if FileExists(path) {
		t.Fatal("missing file reported as existing")
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Fatal("existing file reported as missing")
	}
}

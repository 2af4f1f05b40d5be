package publish

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelmux/routec/internal/hash"
)

func okValidate([]byte) error { return nil }

func artifactPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "gateway-config.json")
}

func mustPublish(t *testing.T, path string, raw []byte, opts Options) *Result {
	t.Helper()
	opts.ArtifactPath = path
	if opts.Validate == nil {
		opts.Validate = okValidate
	}
	res, err := Publish(raw, opts)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

// --- Publishing ---

func TestPublishFreshArtifact(t *testing.T) {
	path := artifactPath(t)
	raw := []byte(`{"v":1}`)

	res := mustPublish(t, path, raw, Options{})
	if res.Replaced || res.BackupPath != "" {
		t.Fatalf("fresh publish must not replace or back up: %+v", res)
	}
	if res.Digest != hash.DigestBytes(raw) {
		t.Fatalf("digest = %s", res.Digest)
	}
	if readFile(t, path) != `{"v":1}` {
		t.Fatal("artifact content mismatch")
	}
	if _, err := os.Stat(BackupDir(path)); !os.IsNotExist(err) {
		t.Fatal("fresh publish must not create a backup dir")
	}
}

func TestPublishReplacementTakesBackup(t *testing.T) {
	path := artifactPath(t)
	mustPublish(t, path, []byte(`{"v":1}`), Options{})

	res := mustPublish(t, path, []byte(`{"v":2}`), Options{})
	if !res.Replaced {
		t.Fatal("second publish must report a replacement")
	}
	if res.BackupPath == "" {
		t.Fatal("replacement must back up the previous artifact")
	}
	if readFile(t, res.BackupPath) != `{"v":1}` {
		t.Fatal("backup must hold the previous content")
	}
	if readFile(t, path) != `{"v":2}` {
		t.Fatal("live artifact must hold the new content")
	}
}

func TestPublishValidationFailureKeepsPrevious(t *testing.T) {
	path := artifactPath(t)
	mustPublish(t, path, []byte(`{"v":1}`), Options{})

	_, err := Publish([]byte(`{"v":"broken"}`), Options{
		ArtifactPath: path,
		Validate:     func([]byte) error { return fmt.Errorf("digest mismatch") },
	})
	if err == nil || !strings.Contains(err.Error(), "previous artifact kept") {
		t.Fatalf("want validation failure, got %v", err)
	}
	if readFile(t, path) != `{"v":1}` {
		t.Fatal("failed publish must leave the previous artifact untouched")
	}

	leftovers, err := filepath.Glob(path + ".tmp.*")
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
	if _, err := os.Stat(BackupDir(path)); !os.IsNotExist(err) {
		t.Fatal("failed publish must not take a backup")
	}
}

func TestPublishRefusesWithoutValidator(t *testing.T) {
	_, err := Publish([]byte(`{}`), Options{ArtifactPath: artifactPath(t)})
	if err == nil || !strings.Contains(err.Error(), "without post-write validation") {
		t.Fatalf("got %v", err)
	}
}

func TestPublishRefusesEmptyPath(t *testing.T) {
	if _, err := Publish([]byte(`{}`), Options{Validate: okValidate}); err == nil {
		t.Fatal("want error for empty artifact path")
	}
}

func TestPublishNoBackup(t *testing.T) {
	path := artifactPath(t)
	mustPublish(t, path, []byte(`{"v":1}`), Options{})
	res := mustPublish(t, path, []byte(`{"v":2}`), Options{NoBackup: true})
	if !res.Replaced || res.BackupPath != "" {
		t.Fatalf("no-backup replacement: %+v", res)
	}
	if _, err := os.Stat(BackupDir(path)); !os.IsNotExist(err) {
		t.Fatal("no-backup publish must not create a backup dir")
	}
}

// --- Rotation ---

func TestRotationKeepsNewest(t *testing.T) {
	path := artifactPath(t)
	for i := 1; i <= 4; i++ {
		mustPublish(t, path, []byte(fmt.Sprintf(`{"v":%d}`, i)), Options{KeepBackups: 2})
	}

	names, err := ListBackups(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("rotation kept %d backups, want 2: %v", len(names), names)
	}
	if names[0] <= names[1] {
		t.Fatalf("backups must list newest first: %v", names)
	}
	newest := readFile(t, filepath.Join(BackupDir(path), names[0]))
	if newest != `{"v":3}` {
		t.Fatalf("newest backup = %s, want {\"v\":3}", newest)
	}
}

func TestListBackupsWithoutDir(t *testing.T) {
	names, err := ListBackups(artifactPath(t))
	if err != nil || names != nil {
		t.Fatalf("got (%v, %v)", names, err)
	}
}

// --- Restore ---

func TestRestoreNewestBackup(t *testing.T) {
	path := artifactPath(t)
	mustPublish(t, path, []byte(`{"v":1}`), Options{})
	mustPublish(t, path, []byte(`{"v":2}`), Options{})
	mustPublish(t, path, []byte(`{"v":3}`), Options{})

	res, err := Restore(path, "", okValidate)
	if err != nil {
		t.Fatal(err)
	}
	if readFile(t, path) != `{"v":2}` {
		t.Fatalf("live artifact = %s, want the newest backup content", readFile(t, path))
	}
	if !res.Replaced || res.BackupPath == "" {
		t.Fatalf("restore must back up the replaced artifact: %+v", res)
	}
}

func TestRestoreNamedBackup(t *testing.T) {
	path := artifactPath(t)
	mustPublish(t, path, []byte(`{"v":1}`), Options{})
	mustPublish(t, path, []byte(`{"v":2}`), Options{})
	mustPublish(t, path, []byte(`{"v":3}`), Options{})

	names, err := ListBackups(path)
	if err != nil {
		t.Fatal(err)
	}
	oldest := names[len(names)-1]
	if _, err := Restore(path, oldest, okValidate); err != nil {
		t.Fatal(err)
	}
	if readFile(t, path) != `{"v":1}` {
		t.Fatalf("live artifact = %s, want the oldest backup content", readFile(t, path))
	}
}

func TestRestoreUnknownName(t *testing.T) {
	path := artifactPath(t)
	mustPublish(t, path, []byte(`{"v":1}`), Options{})
	mustPublish(t, path, []byte(`{"v":2}`), Options{})

	_, err := Restore(path, "no-such-backup.json", okValidate)
	if err == nil || !strings.Contains(err.Error(), `no backup named "no-such-backup.json"`) {
		t.Fatalf("got %v", err)
	}
}

func TestRestoreWithoutBackups(t *testing.T) {
	path := artifactPath(t)
	mustPublish(t, path, []byte(`{"v":1}`), Options{})
	if _, err := Restore(path, "", okValidate); err == nil || !strings.Contains(err.Error(), "no backups") {
		t.Fatal("want no-backups error")
	}
}

// Package publish owns the only mutation in the system: replacing the
// live artifact. The discipline is temp-write, re-validate from disk,
// then rename. A failed validation removes the temp file and the
// previous artifact is never touched, so a half-good compile cannot
// take down a working gateway.
package publish

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/modelmux/routec/internal/hash"
)

const (
	// DefaultKeepBackups bounds the rotation when the caller does not.
	DefaultKeepBackups = 5

	backupDirName   = "backups"
	backupTimestamp = "20060102T150405.000000000Z"
)

type Options struct {
	ArtifactPath string
	// KeepBackups is the rotation bound; values < 1 mean DefaultKeepBackups.
	KeepBackups int
	NoBackup    bool
	// Validate re-checks the temp file's bytes after they hit disk.
	// Publishing without one is refused.
	Validate func(raw []byte) error
}

type Result struct {
	ArtifactPath string
	Digest       string
	BackupPath   string
	Replaced     bool
}

// Publish writes raw to a uuid-suffixed sibling temp file, re-reads and
// validates it, rotates a backup of the current artifact, and renames
// the temp file into place. The rename is the commit point.
func Publish(raw []byte, opts Options) (*Result, error) {
	if opts.ArtifactPath == "" {
		return nil, fmt.Errorf("publish: artifact path is empty")
	}
	if opts.Validate == nil {
		return nil, fmt.Errorf("publish: refusing to publish without post-write validation")
	}

	dir := filepath.Dir(opts.ArtifactPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("publish: %w", err)
	}

	tmp := opts.ArtifactPath + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return nil, fmt.Errorf("publish: write temp artifact: %w", err)
	}
	log.WithField("temp", tmp).Debug("temp artifact written")

	written, err := os.ReadFile(tmp)
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("publish: re-read temp artifact: %w", err)
	}
	if err := opts.Validate(written); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("publish: post-write validation failed, previous artifact kept: %w", err)
	}

	result := &Result{
		ArtifactPath: opts.ArtifactPath,
		Digest:       hash.DigestBytes(written),
	}

	if hash.FileExists(opts.ArtifactPath) {
		result.Replaced = true
		if !opts.NoBackup {
			backupPath, err := takeBackup(opts.ArtifactPath)
			if err != nil {
				os.Remove(tmp)
				return nil, fmt.Errorf("publish: %w", err)
			}
			result.BackupPath = backupPath
			if err := rotateBackups(opts.ArtifactPath, keep(opts.KeepBackups)); err != nil {
				os.Remove(tmp)
				return nil, fmt.Errorf("publish: %w", err)
			}
		}
	}

	if err := os.Rename(tmp, opts.ArtifactPath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("publish: replace artifact: %w", err)
	}
	log.WithFields(log.Fields{
		"artifact": opts.ArtifactPath,
		"digest":   result.Digest,
	}).Info("artifact published")
	return result, nil
}

// BackupDir returns the rotation directory for an artifact path.
func BackupDir(artifactPath string) string {
	return filepath.Join(filepath.Dir(artifactPath), backupDirName)
}

// ListBackups returns backup file names for the artifact, newest first.
// The timestamp embedded in each name is fixed-width UTC, so reverse
// lexicographic order is reverse chronological order.
func ListBackups(artifactPath string) ([]string, error) {
	entries, err := os.ReadDir(BackupDir(artifactPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list backups: %w", err)
	}
	prefix := backupPrefix(artifactPath)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Restore promotes a backup to the live artifact path using the same
// temp-write/validate/rename discipline as Publish. An empty name picks
// the newest backup. The replaced artifact is itself backed up first.
func Restore(artifactPath, backupName string, validate func(raw []byte) error) (*Result, error) {
	names, err := ListBackups(artifactPath)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("restore: no backups for %s", artifactPath)
	}
	if backupName == "" {
		backupName = names[0]
	} else if !containsName(names, backupName) {
		return nil, fmt.Errorf("restore: no backup named %q (have %s)", backupName, strings.Join(names, ", "))
	}

	raw, err := os.ReadFile(filepath.Join(BackupDir(artifactPath), backupName))
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	result, err := Publish(raw, Options{
		ArtifactPath: artifactPath,
		Validate:     validate,
	})
	if err != nil {
		return nil, err
	}
	log.WithField("backup", backupName).Info("backup restored")
	return result, nil
}

func keep(n int) int {
	if n < 1 {
		return DefaultKeepBackups
	}
	return n
}

func backupPrefix(artifactPath string) string {
	base := filepath.Base(artifactPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-"
}

func takeBackup(artifactPath string) (string, error) {
	dir := BackupDir(artifactPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	stamp := time.Now().UTC().Format(backupTimestamp)
	name := fmt.Sprintf("%s%s.json", backupPrefix(artifactPath), stamp)
	dst := filepath.Join(dir, name)

	src, err := os.Open(artifactPath)
	if err != nil {
		return "", fmt.Errorf("open artifact for backup: %w", err)
	}
	defer src.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", fmt.Errorf("copy backup: %w", err)
	}

	digest, _, err := hash.DigestFile(dst)
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{
		"backup": dst,
		"digest": digest,
	}).Info("previous artifact backed up")
	return dst, nil
}

func rotateBackups(artifactPath string, keepN int) error {
	names, err := ListBackups(artifactPath)
	if err != nil {
		return err
	}
	for _, name := range namesBeyond(names, keepN) {
		path := filepath.Join(BackupDir(artifactPath), name)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("rotate backups: %w", err)
		}
		log.WithField("backup", path).Debug("expired backup removed")
	}
	return nil
}

func namesBeyond(newestFirst []string, keepN int) []string {
	if len(newestFirst) <= keepN {
		return nil
	}
	return newestFirst[keepN:]
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func DigestBytes(raw []byte) string {
	h := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(h[:])
}

func DigestFile(path string) (digest string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash file %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), n, nil
}

// DigestTree digests every regular file under root into a sorted
// path/digest/size manifest and hashes that. Two registry directories
// with identical contents always produce the same digest, independent of
// walk order or platform path separators.
func DigestTree(root string) (string, error) {
	type entry struct {
		path   string
		digest string
		size   int64
	}
	entries := make([]entry, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fileDigest, size, err := DigestFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{path: filepath.ToSlash(rel), digest: fileDigest, size: size})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk tree %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].path < entries[j].path
	})

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s\x00%s\x00%d\n", e.path, e.digest, e.size)
	}
	h := sha256.Sum256([]byte(sb.String()))
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

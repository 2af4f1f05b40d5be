// Package artifact reads and verifies compiled gateway artifacts
// independently of how they were produced. The publisher runs Verify
// against the bytes it just wrote, and migrate runs it against whatever
// it finds on disk, so nothing here may assume a well-behaved producer.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/gjson"

	"github.com/modelmux/routec/internal/hash"
	"github.com/modelmux/routec/pkg/schema"
	"github.com/modelmux/routec/pkg/types"
)

// Load reads and decodes a compiled artifact from disk.
func Load(path string) (*types.CompiledArtifact, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &types.ParseError{Path: path, Msg: "read artifact", Err: err}
	}
	art, err := Decode(raw)
	if err != nil {
		return nil, raw, &types.ParseError{Path: path, Msg: err.Error(), Err: err}
	}
	return art, raw, nil
}

// Decode unmarshals artifact bytes without touching disk.
func Decode(raw []byte) (*types.CompiledArtifact, error) {
	var art types.CompiledArtifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return &art, nil
}

// VersionOf extracts the embedded schema version without a full decode.
// Returns "" when the field is absent or the bytes are not JSON.
func VersionOf(raw []byte) string {
	return gjson.GetBytes(raw, "schema_version").String()
}

// ContentDigest computes the digest embedded in published artifacts:
// sha256 over the canonical form with the volatile fields cleared.
func ContentDigest(art *types.CompiledArtifact) (string, error) {
	clone := *art
	clone.GeneratedAt = ""
	clone.ContentDigest = ""
	digest, _, err := hash.DigestCanonical(&clone)
	if err != nil {
		return "", fmt.Errorf("content digest: %w", err)
	}
	return digest, nil
}

// Verify checks artifact bytes the way a consumer would: structural
// schema, referential integrity of the router settings, a parseable
// version stamp (equal to wantVersion when given), and the embedded
// content digest. Returned findings are operator-facing messages; an
// empty slice means the artifact is sound.
func Verify(raw []byte, wantVersion string) ([]string, error) {
	findings, err := schema.ValidateBytes(schema.ArtifactSchema, raw)
	if err != nil {
		return nil, err
	}
	if len(findings) > 0 {
		return findings, nil
	}

	art, err := Decode(raw)
	if err != nil {
		return []string{err.Error()}, nil
	}

	findings = append(findings, verifyReferences(art)...)

	v, err := semver.NewVersion(art.SchemaVersion)
	if err != nil {
		findings = append(findings, fmt.Sprintf("schema_version %q does not parse: %v", art.SchemaVersion, err))
	} else if wantVersion != "" && !v.Equal(semver.MustParse(wantVersion)) {
		findings = append(findings, fmt.Sprintf("schema_version is %s, expected %s", art.SchemaVersion, wantVersion))
	}

	if art.ContentDigest != "" {
		want, err := ContentDigest(art)
		if err != nil {
			return nil, err
		}
		if want != art.ContentDigest {
			findings = append(findings, fmt.Sprintf("content_digest mismatch: stamped %s, computed %s", art.ContentDigest, want))
		}
	}
	return findings, nil
}

func verifyReferences(art *types.CompiledArtifact) []string {
	modelSet := make(map[string]bool, len(art.ModelList))
	for _, entry := range art.ModelList {
		modelSet[entry.ModelName] = true
	}

	var findings []string
	missing := func(where, ref string) {
		findings = append(findings, fmt.Sprintf("%s references %q which is not in model_list", where, ref))
	}

	for head, targets := range art.RouterSettings.Fallbacks {
		if !modelSet[head] {
			missing("fallbacks", head)
		}
		for _, target := range targets {
			if !modelSet[target] {
				missing(fmt.Sprintf("fallbacks[%s]", head), target)
			}
		}
	}
	for alias, target := range art.RouterSettings.Aliases {
		if !modelSet[target] {
			missing(fmt.Sprintf("aliases[%s]", alias), target)
		}
	}
	for name := range art.RouterSettings.Strategy {
		if !modelSet[name] {
			missing("strategy", name)
		}
	}
	for name := range art.RouterSettings.Weights {
		if !modelSet[name] {
			missing("weights", name)
		}
	}
	return findings
}

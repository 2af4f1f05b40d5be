package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelmux/routec/internal/artifact"
	"github.com/modelmux/routec/internal/fallback"
	"github.com/modelmux/routec/pkg/types"
)

// InspectSummary is the operator view of a published artifact.
type InspectSummary struct {
	ArtifactPath  string   `json:"artifact_path"`
	SchemaVersion string   `json:"schema_version"`
	GeneratedAt   string   `json:"generated_at"`
	Generator     string   `json:"generator"`
	ContentDigest string   `json:"content_digest"`
	DigestOK      bool     `json:"digest_ok"`
	SourceDigest  string   `json:"source_digest,omitempty"`
	ModelCount    int      `json:"model_count"`
	FallbackCount int      `json:"fallback_count"`
	AliasCount    int      `json:"alias_count"`
	Advisories    []string `json:"advisories"`
}

func BuildInspect(path string, art *types.CompiledArtifact, graph *fallback.Graph) InspectSummary {
	s := InspectSummary{
		ArtifactPath:  path,
		SchemaVersion: art.SchemaVersion,
		GeneratedAt:   art.GeneratedAt,
		Generator:     fmt.Sprintf("%s %s", art.Generator.Name, art.Generator.Version),
		ContentDigest: art.ContentDigest,
		SourceDigest:  art.SourceDigest,
		ModelCount:    len(art.ModelList),
		FallbackCount: len(art.RouterSettings.Fallbacks),
		AliasCount:    len(art.RouterSettings.Aliases),
	}
	if graph != nil {
		s.Advisories = graph.Advisories
	}
	if computed, err := artifact.ContentDigest(art); err == nil {
		s.DigestOK = computed == art.ContentDigest
	}
	return s
}

func InspectMarkdown(s InspectSummary) string {
	var b strings.Builder
	b.WriteString("# Artifact Summary\n\n")
	b.WriteString(fmt.Sprintf("- Path: `%s`\n", s.ArtifactPath))
	b.WriteString(fmt.Sprintf("- Schema Version: `%s`\n", s.SchemaVersion))
	b.WriteString(fmt.Sprintf("- Generated At: `%s`\n", s.GeneratedAt))
	b.WriteString(fmt.Sprintf("- Generator: `%s`\n", s.Generator))
	b.WriteString(fmt.Sprintf("- Content Digest: `%s` (verified: %t)\n", s.ContentDigest, s.DigestOK))
	if s.SourceDigest != "" {
		b.WriteString(fmt.Sprintf("- Source Digest: `%s`\n", s.SourceDigest))
	}
	b.WriteString(fmt.Sprintf("- Models: `%d`\n", s.ModelCount))
	b.WriteString(fmt.Sprintf("- Fallback Chains: `%d`\n", s.FallbackCount))
	b.WriteString(fmt.Sprintf("- Aliases: `%d`\n", s.AliasCount))

	if len(s.Advisories) > 0 {
		b.WriteString("\n## Fallback Advisories\n\n")
		for _, a := range s.Advisories {
			b.WriteString("- " + a + "\n")
		}
	}
	return b.String()
}

func InspectJSON(s InspectSummary) (string, error) {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

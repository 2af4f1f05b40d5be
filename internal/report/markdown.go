package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/modelmux/routec/internal/compile"
)

func BuildMarkdown(r *compile.Report) string {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	var b strings.Builder
	b.WriteString("# Gateway Config Compile Report\n\n")
	b.WriteString(fmt.Sprintf("- Status: **%s**\n", status))
	b.WriteString(fmt.Sprintf("- Exit Code: `%d`\n", r.ExitCode))
	b.WriteString(fmt.Sprintf("- Run ID: `%s`\n", r.RunID))
	b.WriteString(fmt.Sprintf("- Registry: `%s`\n", r.RegistryDir))
	if r.ArtifactPath != "" {
		b.WriteString(fmt.Sprintf("- Artifact: `%s`\n", r.ArtifactPath))
	}
	if r.SchemaVersion != "" {
		b.WriteString(fmt.Sprintf("- Schema Version: `%s`\n", r.SchemaVersion))
	}
	if r.ContentDigest != "" {
		b.WriteString(fmt.Sprintf("- Content Digest: `%s`\n", r.ContentDigest))
	}
	if r.SourceDigest != "" {
		b.WriteString(fmt.Sprintf("- Source Digest: `%s`\n", r.SourceDigest))
	}
	b.WriteString(fmt.Sprintf("- Models Emitted: `%d`\n\n", r.ModelCount))

	b.WriteString("## Stages\n\n")
	b.WriteString("| Stage | Passed | Message |\n")
	b.WriteString("|---|---:|---|\n")
	for _, s := range r.Stages {
		b.WriteString(fmt.Sprintf("| %s | %t | %s |\n", s.Stage, s.Passed, strings.ReplaceAll(s.Message, "|", "\\|")))
	}

	if len(r.Violations) > 0 {
		b.WriteString("\n## Violations\n\n")
		for _, v := range r.Violations {
			b.WriteString("- " + v + "\n")
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range r.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}

	if len(r.Advisories) > 0 {
		b.WriteString("\n## Fallback Advisories\n\n")
		for _, a := range r.Advisories {
			b.WriteString("- " + a + "\n")
		}
	}

	return b.String()
}

func WriteMarkdown(path string, r *compile.Report) error {
	return os.WriteFile(path, []byte(BuildMarkdown(r)), 0o644)
}

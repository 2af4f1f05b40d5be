package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/modelmux/routec/internal/registry"
	"github.com/modelmux/routec/pkg/schema"
	"github.com/modelmux/routec/pkg/types"
)

// Run enforces the structural contract of both documents plus the
// constraints the JSON schema cannot express. The first violated
// document aborts the run; findings inside one pass ride along on the
// returned violation.
func Run(reg *registry.Registry) error {
	if err := structural(reg.ProvidersPath, schema.ProviderDocSchema, reg.RawProviders); err != nil {
		return err
	}
	if err := structural(reg.RoutingPath, schema.RoutingDocSchema, reg.RawRouting); err != nil {
		return err
	}
	if err := patterns(&reg.Routing); err != nil {
		return err
	}
	if err := exclusivity(reg.Providers.Providers); err != nil {
		return err
	}
	return nil
}

func structural(path, schemaJSON string, raw map[string]any) error {
	findings, err := schema.Validate(schemaJSON, raw)
	if err != nil {
		return fmt.Errorf("schema check %s: %w", path, err)
	}
	if len(findings) == 0 {
		return nil
	}
	return &types.SchemaViolation{
		EntityID:  path,
		FieldPath: fieldOf(findings[0]),
		Msg:       findings[0],
		Findings:  findings,
	}
}

func patterns(routing *types.RoutingDoc) error {
	for i, pm := range routing.PatternMatches {
		if _, err := regexp.Compile(pm.Regex); err != nil {
			return &types.SchemaViolation{
				EntityID:  fmt.Sprintf("pattern_match[%s]", pm.Regex),
				FieldPath: fmt.Sprintf("pattern_matches[%d].regex", i),
				Msg:       fmt.Sprintf("invalid regex: %v", err),
			}
		}
	}
	return nil
}

// exclusivity rejects more than one active provider per
// exclusive-resource type, citing every offending provider id.
func exclusivity(providers []types.Provider) error {
	activeByType := make(map[types.ProviderType][]string)
	for _, p := range providers {
		if p.Type.Exclusive() && p.Active() {
			activeByType[p.Type] = append(activeByType[p.Type], p.ID)
		}
	}

	violated := make([]types.ProviderType, 0, len(activeByType))
	for t, ids := range activeByType {
		if len(ids) > 1 {
			violated = append(violated, t)
		}
	}
	if len(violated) == 0 {
		return nil
	}
	sort.Slice(violated, func(i, j int) bool { return violated[i] < violated[j] })

	findings := make([]string, 0, len(violated))
	for _, t := range violated {
		findings = append(findings, fmt.Sprintf(
			"only one %s provider may be active (active: %s)", t, strings.Join(activeByType[t], ", ")))
	}
	first := violated[0]
	return &types.SchemaViolation{
		EntityID:  strings.Join(activeByType[first], ", "),
		FieldPath: "status",
		Msg:       findings[0],
		Findings:  findings,
	}
}

func fieldOf(finding string) string {
	if i := strings.Index(finding, ":"); i > 0 {
		return strings.TrimSpace(finding[:i])
	}
	return ""
}

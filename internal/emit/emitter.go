// Package emit turns resolved routes into the gateway's compiled
// artifact. It is the last stage that can still refuse: every name the
// router settings reference must be backed by a model list entry, and
// that invariant is re-checked here even though earlier stages enforce
// it, because a dangling reference in the published file breaks the
// gateway at request time.
package emit

import (
	"fmt"
	"sort"
	"time"

	"github.com/modelmux/routec/internal/artifact"
	"github.com/modelmux/routec/internal/hash"
	"github.com/modelmux/routec/internal/resolver"
	"github.com/modelmux/routec/pkg/types"
)

// Stamp carries the provenance fields the caller controls.
type Stamp struct {
	SchemaVersion string
	SourceDigest  string
	Generator     types.Generator
	GeneratedAt   time.Time
}

// Build assembles the compiled artifact from the resolver's compiled
// name set and the routing document, then stamps provenance and the
// content digest. The returned bytes are the canonical serialization
// that should be published verbatim.
func Build(routing *types.RoutingDoc, res *resolver.Resolver, stamp Stamp) (*types.CompiledArtifact, []byte, error) {
	names := res.CompiledNames()
	modelSet := make(map[string]bool, len(names))

	art := &types.CompiledArtifact{
		SchemaVersion: stamp.SchemaVersion,
		GeneratedAt:   stamp.GeneratedAt.UTC().Format(time.RFC3339),
		Generator:     stamp.Generator,
		SourceDigest:  stamp.SourceDigest,
		ModelList:     make([]types.ModelEntry, 0, len(names)),
	}

	for _, name := range names {
		r, err := res.Resolve(name)
		if err != nil {
			return nil, nil, fmt.Errorf("emit %q: %w", name, err)
		}
		art.ModelList = append(art.ModelList, types.ModelEntry{
			ModelName:     name,
			BackendModel:  r.BackendModel,
			ProviderID:    r.ProviderID,
			ProviderType:  r.ProviderType,
			BaseURL:       r.BaseURL,
			Capabilities:  r.Capabilities,
			ContextLength: r.ContextLength,
		})
		modelSet[name] = true
	}
	sort.Slice(art.ModelList, func(i, j int) bool {
		return art.ModelList[i].ModelName < art.ModelList[j].ModelName
	})

	settings, err := buildSettings(routing, res, modelSet)
	if err != nil {
		return nil, nil, err
	}
	art.RouterSettings = settings

	if err := assertReferencesEmitted(art, modelSet); err != nil {
		return nil, nil, err
	}

	digest, err := artifact.ContentDigest(art)
	if err != nil {
		return nil, nil, fmt.Errorf("emit: %w", err)
	}
	art.ContentDigest = digest

	raw, err := hash.CanonicalJSON(art)
	if err != nil {
		return nil, nil, fmt.Errorf("emit: %w", err)
	}
	return art, raw, nil
}

func buildSettings(routing *types.RoutingDoc, res *resolver.Resolver, modelSet map[string]bool) (types.RouterSettings, error) {
	settings := types.RouterSettings{
		DefaultProvider: routing.DefaultProvider,
		DefaultStrategy: types.DefaultStrategy,
		Fallbacks:       make(map[string][]string, len(routing.FallbackChains)),
		Aliases:         make(map[string]string),
		Strategy:        make(map[string]string, len(routing.LoadBalanceGroups)),
	}

	for _, chain := range routing.FallbackChains {
		settings.Fallbacks[chain.ModelName] = append([]string(nil), chain.OrderedTargets...)
	}

	for _, group := range routing.LoadBalanceGroups {
		strategy := group.Strategy
		if strategy == "" {
			strategy = types.StrategyRoundRobin
		}
		settings.Strategy[group.ModelName] = strategy
		if strategy != types.StrategyWeighted {
			continue
		}
		if settings.Weights == nil {
			settings.Weights = make(map[string]map[string]int)
		}
		weights := make(map[string]int, len(group.Members))
		for _, m := range group.Members {
			w := m.Weight
			if w <= 0 {
				w = 1
			}
			weights[m.ProviderID] = w
		}
		settings.Weights[group.ModelName] = weights
	}

	// A capability alias points at the model its preference selected.
	// Capability names that already earned a model list entry (used as
	// a chain member, say) route as themselves and take no alias row.
	for _, pref := range routing.CapabilityPreferences {
		if modelSet[pref.Capability] {
			continue
		}
		r, err := res.Resolve(pref.Capability)
		if err != nil {
			return settings, fmt.Errorf("emit alias %q: %w", pref.Capability, err)
		}
		if r.AliasOf == "" {
			return settings, fmt.Errorf("emit alias %q: resolved without a target model", pref.Capability)
		}
		settings.Aliases[pref.Capability] = r.AliasOf
	}
	return settings, nil
}

// assertReferencesEmitted re-checks that router settings only mention
// names present in the model list.
func assertReferencesEmitted(art *types.CompiledArtifact, modelSet map[string]bool) error {
	var findings []types.ConsistencyFinding
	missing := func(ruleID, ref string) {
		findings = append(findings, types.ConsistencyFinding{
			Severity: types.SeverityCritical,
			Check:    "emit-reference",
			RuleID:   ruleID,
			Ref:      ref,
			Msg:      fmt.Sprintf("%q is referenced but absent from the emitted model list", ref),
		})
	}

	for head, targets := range art.RouterSettings.Fallbacks {
		if !modelSet[head] {
			missing(fmt.Sprintf("fallbacks[%s]", head), head)
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
			missing(fmt.Sprintf("strategy[%s]", name), name)
		}
	}
	for name := range art.RouterSettings.Weights {
		if !modelSet[name] {
			missing(fmt.Sprintf("weights[%s]", name), name)
		}
	}
	if len(findings) > 0 {
		sort.Slice(findings, func(i, j int) bool {
			if findings[i].RuleID == findings[j].RuleID {
				return findings[i].Ref < findings[j].Ref
			}
			return findings[i].RuleID < findings[j].RuleID
		})
		return &types.ConsistencyError{Findings: findings}
	}
	return nil
}

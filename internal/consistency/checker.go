package consistency

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/modelmux/routec/internal/resolver"
	"github.com/modelmux/routec/pkg/types"
)

const (
	CheckRuleProvider   = "rule-provider"
	CheckFallbackTarget = "fallback-target"
	CheckCapability     = "capability"
	CheckPatternShadow  = "pattern-shadow"
)

type Result struct {
	Criticals []types.ConsistencyFinding
	Warnings  []types.ConsistencyFinding
}

// Err converts the critical findings into the error that aborts
// compilation. Warnings never produce an error.
func (r *Result) Err() error {
	if len(r.Criticals) == 0 {
		return nil
	}
	return &types.ConsistencyError{Findings: r.Criticals}
}

// Run cross-references the routing rules against the provider registry.
// Checks run in a fixed order and accumulate findings; the caller
// decides what a critical finding aborts.
func Run(providers []types.Provider, routing *types.RoutingDoc, res *resolver.Resolver) *Result {
	out := &Result{}
	byID := make(map[string]types.Provider, len(providers))
	for _, p := range providers {
		byID[p.ID] = p
	}

	checkRuleProviders(byID, routing, out)
	checkFallbackTargets(routing, res, out)
	checkCapabilities(providers, routing, out)
	checkPatternShadows(providers, routing, out)
	return out
}

// checkRuleProviders verifies that every provider a rule names exists
// and is active. The configured default provider is held to the same
// bar.
func checkRuleProviders(byID map[string]types.Provider, routing *types.RoutingDoc, out *Result) {
	if routing.DefaultProvider != "" {
		if msg, ok := providerUsable(byID, routing.DefaultProvider); !ok {
			out.Criticals = append(out.Criticals, types.ConsistencyFinding{
				Severity: types.SeverityCritical,
				Check:    CheckRuleProvider,
				RuleID:   "default_provider",
				Ref:      routing.DefaultProvider,
				Msg:      msg,
			})
		}
	}
	for _, rule := range routing.Rules() {
		for _, ref := range rule.ProviderRefs() {
			if msg, ok := providerUsable(byID, ref); !ok {
				out.Criticals = append(out.Criticals, types.ConsistencyFinding{
					Severity: types.SeverityCritical,
					Check:    CheckRuleProvider,
					RuleID:   rule.ID(),
					Ref:      ref,
					Msg:      msg,
				})
			}
		}
	}
}

func providerUsable(byID map[string]types.Provider, id string) (string, bool) {
	p, ok := byID[id]
	if !ok {
		return fmt.Sprintf("references unknown provider %q", id), false
	}
	if !p.Active() {
		return fmt.Sprintf("references provider %q with status %s (must be active)", id, p.Status), false
	}
	return "", true
}

// checkFallbackTargets verifies that every chain member, heads included,
// resolves to a model/provider pair that will exist after compilation.
// A dangling member here is the defect class that silently breaks
// routing once the artifact is live, so it is critical, never advisory.
func checkFallbackTargets(routing *types.RoutingDoc, res *resolver.Resolver, out *Result) {
	seenHead := make(map[string]bool, len(routing.FallbackChains))
	for _, chain := range routing.FallbackChains {
		ruleID := fmt.Sprintf("fallback_chain[%s]", chain.ModelName)
		if seenHead[chain.ModelName] {
			out.Criticals = append(out.Criticals, types.ConsistencyFinding{
				Severity: types.SeverityCritical,
				Check:    CheckFallbackTarget,
				RuleID:   ruleID,
				Ref:      chain.ModelName,
				Msg:      fmt.Sprintf("duplicate fallback_chain for %q", chain.ModelName),
			})
			continue
		}
		seenHead[chain.ModelName] = true

		members := append([]string{chain.ModelName}, chain.OrderedTargets...)
		for i, member := range members {
			if _, err := res.Resolve(member); err != nil {
				role := "member"
				if i == 0 {
					role = "head"
				}
				out.Criticals = append(out.Criticals, types.ConsistencyFinding{
					Severity: types.SeverityCritical,
					Check:    CheckFallbackTarget,
					RuleID:   ruleID,
					Ref:      member,
					Msg:      fmt.Sprintf("chain %s %q does not resolve: %v", role, member, err),
				})
			}
		}
	}
}

// checkCapabilities verifies that every preferred model actually
// declares the capability it is preferred for, on some provider.
func checkCapabilities(providers []types.Provider, routing *types.RoutingDoc, out *Result) {
	for _, pref := range routing.CapabilityPreferences {
		ruleID := fmt.Sprintf("capability_preference[%s]", pref.Capability)
		for _, entry := range pref.OrderedModelList {
			declared, withCapability := capabilityDeclared(providers, entry, pref.Capability)
			switch {
			case !declared:
				out.Criticals = append(out.Criticals, types.ConsistencyFinding{
					Severity: types.SeverityCritical,
					Check:    CheckCapability,
					RuleID:   ruleID,
					Ref:      entry,
					Msg:      fmt.Sprintf("preferred model %q is not declared by any provider", entry),
				})
			case !withCapability:
				out.Criticals = append(out.Criticals, types.ConsistencyFinding{
					Severity: types.SeverityCritical,
					Check:    CheckCapability,
					RuleID:   ruleID,
					Ref:      entry,
					Msg:      fmt.Sprintf("model %q does not declare capability %q", entry, pref.Capability),
				})
			}
		}
	}
}

func capabilityDeclared(providers []types.Provider, model, capability string) (declared, withCapability bool) {
	for _, p := range providers {
		m, ok := p.Model(model)
		if !ok {
			continue
		}
		declared = true
		if m.HasCapability(capability) {
			return true, true
		}
	}
	return declared, false
}

// checkPatternShadows flags later patterns that can never win because an
// earlier pattern matches everything they match. Exact containment is
// undecidable for regular expressions, so the check probes the declared
// model inventory; it only ever warns.
func checkPatternShadows(providers []types.Provider, routing *types.RoutingDoc, out *Result) {
	if len(routing.PatternMatches) < 2 {
		return
	}
	compiled := make([]*regexp.Regexp, len(routing.PatternMatches))
	for i, pm := range routing.PatternMatches {
		re, err := regexp.Compile(pm.Regex)
		if err != nil {
			return
		}
		compiled[i] = re
	}

	probes := probeNames(providers, routing)
	firstWin := make(map[int]string)
	matched := make(map[int][]string)
	for _, name := range probes {
		for i, re := range compiled {
			if re.MatchString(name) {
				matched[i] = append(matched[i], name)
				if _, ok := firstWin[i]; !ok && isFirstMatch(compiled, i, name) {
					firstWin[i] = name
				}
			}
		}
	}

	for j := 1; j < len(compiled); j++ {
		if len(matched[j]) == 0 {
			continue
		}
		if _, wins := firstWin[j]; wins {
			continue
		}
		example := matched[j][0]
		winner := firstMatchIndex(compiled, example)
		out.Warnings = append(out.Warnings, types.ConsistencyFinding{
			Severity: types.SeverityWarning,
			Check:    CheckPatternShadow,
			RuleID:   fmt.Sprintf("pattern_match[%s]", routing.PatternMatches[j].Regex),
			Ref:      routing.PatternMatches[winner].Regex,
			Msg: fmt.Sprintf("pattern %q is fully shadowed by earlier pattern %q (e.g. %q)",
				routing.PatternMatches[j].Regex, routing.PatternMatches[winner].Regex, example),
		})
	}
}

// probeNames is the candidate inventory the shadow check evaluates
// patterns against: every declared model name plus rule-introduced
// names, sorted for deterministic findings.
func probeNames(providers []types.Provider, routing *types.RoutingDoc) []string {
	set := make(map[string]struct{})
	for _, p := range providers {
		for _, m := range p.Models {
			set[m.Name] = struct{}{}
		}
	}
	for _, em := range routing.ExactMatches {
		set[em.ModelName] = struct{}{}
	}
	for _, g := range routing.LoadBalanceGroups {
		set[g.ModelName] = struct{}{}
	}
	for _, c := range routing.FallbackChains {
		set[c.ModelName] = struct{}{}
		for _, t := range c.OrderedTargets {
			set[t] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func isFirstMatch(compiled []*regexp.Regexp, idx int, name string) bool {
	return firstMatchIndex(compiled, name) == idx
}

func firstMatchIndex(compiled []*regexp.Regexp, name string) int {
	for i, re := range compiled {
		if re.MatchString(name) {
			return i
		}
	}
	return -1
}

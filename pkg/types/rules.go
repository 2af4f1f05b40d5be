package types

import "fmt"

type RuleKind string

const (
	RuleExactMatch           RuleKind = "exact_match"
	RulePatternMatch         RuleKind = "pattern_match"
	RuleCapabilityPreference RuleKind = "capability_preference"
	RuleLoadBalanceGroup     RuleKind = "load_balance_group"
	RuleFallbackChain        RuleKind = "fallback_chain"
)

const (
	StrategyRoundRobin   = "round-robin"
	StrategyWeighted     = "weighted"
	StrategyLeastLatency = "least-latency"

	DefaultStrategy = "priority-order"
)

func GroupStrategies() []string {
	return []string{StrategyRoundRobin, StrategyWeighted, StrategyLeastLatency}
}

type ExactMatch struct {
	ModelName    string `json:"model_name" yaml:"model_name" toml:"model_name"`
	ProviderID   string `json:"provider_id" yaml:"provider_id" toml:"provider_id"`
	BackendModel string `json:"backend_model,omitempty" yaml:"backend_model" toml:"backend_model"`
}

type PatternMatch struct {
	Regex      string `json:"regex" yaml:"regex" toml:"regex"`
	ProviderID string `json:"provider_id" yaml:"provider_id" toml:"provider_id"`
}

type CapabilityPreference struct {
	Capability       string   `json:"capability" yaml:"capability" toml:"capability"`
	OrderedModelList []string `json:"ordered_model_list" yaml:"ordered_model_list" toml:"ordered_model_list"`
}

type GroupMember struct {
	ProviderID string `json:"provider_id" yaml:"provider_id" toml:"provider_id"`
	Weight     int    `json:"weight,omitempty" yaml:"weight" toml:"weight"`
}

type LoadBalanceGroup struct {
	ModelName string        `json:"model_name" yaml:"model_name" toml:"model_name"`
	Strategy  string        `json:"strategy" yaml:"strategy" toml:"strategy"`
	Members   []GroupMember `json:"members" yaml:"members" toml:"members"`
}

type FallbackChain struct {
	ModelName      string   `json:"model_name" yaml:"model_name" toml:"model_name"`
	OrderedTargets []string `json:"ordered_targets" yaml:"ordered_targets" toml:"ordered_targets"`
}

type RoutingDoc struct {
	DefaultProvider       string                 `json:"default_provider,omitempty" yaml:"default_provider" toml:"default_provider"`
	ExactMatches          []ExactMatch           `json:"exact_matches,omitempty" yaml:"exact_matches" toml:"exact_matches"`
	PatternMatches        []PatternMatch         `json:"pattern_matches,omitempty" yaml:"pattern_matches" toml:"pattern_matches"`
	CapabilityPreferences []CapabilityPreference `json:"capability_preferences,omitempty" yaml:"capability_preferences" toml:"capability_preferences"`
	LoadBalanceGroups     []LoadBalanceGroup     `json:"load_balance_groups,omitempty" yaml:"load_balance_groups" toml:"load_balance_groups"`
	FallbackChains        []FallbackChain        `json:"fallback_chains,omitempty" yaml:"fallback_chains" toml:"fallback_chains"`
}

// RoutingRule is the closed union over the five rule kinds. Exactly one
// of the pointer fields is non-nil, matching Kind.
type RoutingRule struct {
	Kind       RuleKind
	Exact      *ExactMatch
	Pattern    *PatternMatch
	Capability *CapabilityPreference
	Group      *LoadBalanceGroup
	Chain      *FallbackChain
}

func (r RoutingRule) ID() string {
	switch r.Kind {
	case RuleExactMatch:
		return fmt.Sprintf("exact_match[%s]", r.Exact.ModelName)
	case RulePatternMatch:
		return fmt.Sprintf("pattern_match[%s]", r.Pattern.Regex)
	case RuleCapabilityPreference:
		return fmt.Sprintf("capability_preference[%s]", r.Capability.Capability)
	case RuleLoadBalanceGroup:
		return fmt.Sprintf("load_balance_group[%s]", r.Group.ModelName)
	case RuleFallbackChain:
		return fmt.Sprintf("fallback_chain[%s]", r.Chain.ModelName)
	default:
		return "unknown_rule"
	}
}

// ProviderRefs lists the provider ids the rule names directly.
func (r RoutingRule) ProviderRefs() []string {
	switch r.Kind {
	case RuleExactMatch:
		return []string{r.Exact.ProviderID}
	case RulePatternMatch:
		return []string{r.Pattern.ProviderID}
	case RuleLoadBalanceGroup:
		refs := make([]string, 0, len(r.Group.Members))
		for _, m := range r.Group.Members {
			refs = append(refs, m.ProviderID)
		}
		return refs
	default:
		return nil
	}
}

// Rules flattens the document sections into declaration order, one
// RoutingRule per declared entry.
func (d *RoutingDoc) Rules() []RoutingRule {
	rules := make([]RoutingRule, 0,
		len(d.ExactMatches)+len(d.PatternMatches)+len(d.CapabilityPreferences)+
			len(d.LoadBalanceGroups)+len(d.FallbackChains))
	for i := range d.ExactMatches {
		rules = append(rules, RoutingRule{Kind: RuleExactMatch, Exact: &d.ExactMatches[i]})
	}
	for i := range d.PatternMatches {
		rules = append(rules, RoutingRule{Kind: RulePatternMatch, Pattern: &d.PatternMatches[i]})
	}
	for i := range d.CapabilityPreferences {
		rules = append(rules, RoutingRule{Kind: RuleCapabilityPreference, Capability: &d.CapabilityPreferences[i]})
	}
	for i := range d.LoadBalanceGroups {
		rules = append(rules, RoutingRule{Kind: RuleLoadBalanceGroup, Group: &d.LoadBalanceGroups[i]})
	}
	for i := range d.FallbackChains {
		rules = append(rules, RoutingRule{Kind: RuleFallbackChain, Chain: &d.FallbackChains[i]})
	}
	return rules
}

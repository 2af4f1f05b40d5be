package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/modelmux/routec/pkg/types"
)

// Resolution tiers, highest precedence first. Within one tier two
// applicable rules are a configuration error, except pattern matches
// where declaration order is the documented tie-break.
const (
	TierExact      = "exact_match"
	TierCapability = "capability_preference"
	TierPattern    = "pattern_match"
	TierDefault    = "implicit_default"
)

type Step struct {
	Tier    string `json:"tier"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail"`
}

type Resolution struct {
	ModelName     string             `json:"model_name"`
	ProviderID    string             `json:"provider_id"`
	ProviderType  types.ProviderType `json:"provider_type"`
	BaseURL       string             `json:"base_url"`
	BackendModel  string             `json:"backend_model"`
	Tier          string             `json:"tier"`
	AliasOf       string             `json:"alias_of,omitempty"`
	GroupStrategy string             `json:"group_strategy,omitempty"`
	GroupWeights  map[string]int     `json:"group_weights,omitempty"`
	Capabilities  []string           `json:"capabilities,omitempty"`
	ContextLength int                `json:"context_length,omitempty"`
	Steps         []Step             `json:"steps"`
}

type declaration struct {
	provider types.Provider
	model    types.ModelRef
}

type pattern struct {
	re   *regexp.Regexp
	rule *types.PatternMatch
	pos  int
}

type Resolver struct {
	providers       map[string]types.Provider
	exact           map[string][]*types.ExactMatch
	groups          map[string][]*types.LoadBalanceGroup
	caps            map[string][]*types.CapabilityPreference
	patterns        []pattern
	declared        map[string][]declaration
	chains          []types.FallbackChain
	defaultProvider string
}

func New(providers []types.Provider, routing *types.RoutingDoc) (*Resolver, error) {
	r := &Resolver{
		providers:       make(map[string]types.Provider, len(providers)),
		exact:           make(map[string][]*types.ExactMatch),
		groups:          make(map[string][]*types.LoadBalanceGroup),
		caps:            make(map[string][]*types.CapabilityPreference),
		declared:        make(map[string][]declaration),
		chains:          routing.FallbackChains,
		defaultProvider: routing.DefaultProvider,
	}

	for _, p := range providers {
		r.providers[p.ID] = p
		if !p.Active() {
			continue
		}
		for _, m := range p.Models {
			r.declared[m.Name] = append(r.declared[m.Name], declaration{provider: p, model: m})
		}
	}

	for i := range routing.ExactMatches {
		rule := &routing.ExactMatches[i]
		r.exact[rule.ModelName] = append(r.exact[rule.ModelName], rule)
	}
	for i := range routing.LoadBalanceGroups {
		rule := &routing.LoadBalanceGroups[i]
		r.groups[rule.ModelName] = append(r.groups[rule.ModelName], rule)
	}
	for i := range routing.CapabilityPreferences {
		rule := &routing.CapabilityPreferences[i]
		r.caps[rule.Capability] = append(r.caps[rule.Capability], rule)
	}
	for i := range routing.PatternMatches {
		rule := &routing.PatternMatches[i]
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", rule.Regex, err)
		}
		r.patterns = append(r.patterns, pattern{re: re, rule: rule, pos: i + 1})
	}
	return r, nil
}

// CompiledNames is the universe of model names a compile resolves: every
// model declared by an active provider plus every name a rule or chain
// introduces. Capability names are not in it; they surface as aliases.
func (r *Resolver) CompiledNames() []string {
	set := make(map[string]struct{})
	for name := range r.declared {
		set[name] = struct{}{}
	}
	for name := range r.exact {
		set[name] = struct{}{}
	}
	for name := range r.groups {
		set[name] = struct{}{}
	}
	for _, c := range r.chains {
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

// ResolveAll resolves the full compiled-name universe, aggregating the
// failures instead of stopping at the first.
func (r *Resolver) ResolveAll() (map[string]*Resolution, []types.ConsistencyFinding) {
	out := make(map[string]*Resolution)
	findings := make([]types.ConsistencyFinding, 0)
	for _, name := range r.CompiledNames() {
		res, err := r.Resolve(name)
		if err != nil {
			var cerr *types.ConsistencyError
			if errors.As(err, &cerr) {
				findings = append(findings, cerr.Findings...)
				continue
			}
			findings = append(findings, types.ConsistencyFinding{
				Severity: types.SeverityCritical,
				Check:    "resolve",
				RuleID:   name,
				Msg:      err.Error(),
			})
			continue
		}
		out[name] = res
	}
	return out, findings
}

// Resolve walks the precedence tiers for one requested name. On error
// the returned Resolution still carries the trace walked so far.
func (r *Resolver) Resolve(name string) (*Resolution, error) {
	res := &Resolution{ModelName: name}

	if done, err := r.tierExact(name, res); done || err != nil {
		return res, err
	}
	if done, err := r.tierCapability(name, res); done || err != nil {
		return res, err
	}
	if done, err := r.tierPattern(name, res); done || err != nil {
		return res, err
	}
	if err := r.tierDefault(name, res); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Resolver) tierExact(name string, res *Resolution) (bool, error) {
	exact := r.exact[name]
	groups := r.groups[name]

	if len(exact)+len(groups) > 1 {
		claims := make([]string, 0, len(exact)+len(groups))
		for range exact {
			claims = append(claims, fmt.Sprintf("exact_match[%s]", name))
		}
		for range groups {
			claims = append(claims, fmt.Sprintf("load_balance_group[%s]", name))
		}
		res.Steps = append(res.Steps, Step{Tier: TierExact, Outcome: "fail",
			Detail: fmt.Sprintf("%d rules claim %q", len(claims), name)})
		return false, critical(TierExact, name,
			fmt.Sprintf("ambiguous routing for %q: %s all claim it", name, strings.Join(claims, ", ")))
	}

	if len(exact) == 1 {
		rule := exact[0]
		p, err := r.activeProvider(rule.ProviderID)
		if err != nil {
			res.Steps = append(res.Steps, Step{Tier: TierExact, Outcome: "fail", Detail: err.Error()})
			return false, critical(TierExact, fmt.Sprintf("exact_match[%s]", name), err.Error())
		}
		backend := rule.BackendModel
		if d, ok := r.declarationOn(p.ID, name); ok {
			if backend == "" {
				backend = d.model.Backend()
			}
			res.Capabilities = d.model.Capabilities
			res.ContextLength = d.model.ContextLength
		}
		if backend == "" {
			backend = name
		}
		r.fill(res, p, backend, TierExact)
		res.Steps = append(res.Steps, Step{Tier: TierExact, Outcome: "hit",
			Detail: fmt.Sprintf("exact_match[%s] routes to provider %q", name, p.ID)})
		return true, nil
	}

	if len(groups) == 1 {
		g := groups[0]
		primary := g.Members[0]
		p, err := r.activeProvider(primary.ProviderID)
		if err != nil {
			res.Steps = append(res.Steps, Step{Tier: TierExact, Outcome: "fail", Detail: err.Error()})
			return false, critical(TierExact, fmt.Sprintf("load_balance_group[%s]", name), err.Error())
		}
		backend := name
		if d, ok := r.declarationOn(p.ID, name); ok {
			backend = d.model.Backend()
			res.Capabilities = d.model.Capabilities
			res.ContextLength = d.model.ContextLength
		}
		r.fill(res, p, backend, TierExact)
		res.GroupStrategy = g.Strategy
		res.GroupWeights = make(map[string]int, len(g.Members))
		for _, m := range g.Members {
			w := m.Weight
			if w == 0 {
				w = 1
			}
			res.GroupWeights[m.ProviderID] = w
		}
		res.Steps = append(res.Steps, Step{Tier: TierExact, Outcome: "hit",
			Detail: fmt.Sprintf("load_balance_group[%s] (%s) leads with provider %q", name, g.Strategy, p.ID)})
		return true, nil
	}

	res.Steps = append(res.Steps, Step{Tier: TierExact, Outcome: "miss",
		Detail: fmt.Sprintf("no exact_match or load_balance_group for %q", name)})
	return false, nil
}

func (r *Resolver) tierCapability(name string, res *Resolution) (bool, error) {
	prefs := r.caps[name]
	if len(prefs) == 0 {
		res.Steps = append(res.Steps, Step{Tier: TierCapability, Outcome: "skip",
			Detail: fmt.Sprintf("%q is not a declared capability", name)})
		return false, nil
	}
	if len(prefs) > 1 {
		res.Steps = append(res.Steps, Step{Tier: TierCapability, Outcome: "fail",
			Detail: fmt.Sprintf("%d capability_preference rules declare %q", len(prefs), name)})
		return false, critical(TierCapability, fmt.Sprintf("capability_preference[%s]", name),
			fmt.Sprintf("ambiguous routing for capability %q: declared by %d capability_preference rules", name, len(prefs)))
	}

	pref := prefs[0]
	for _, entry := range pref.OrderedModelList {
		for _, d := range r.declared[entry] {
			if !d.model.HasCapability(name) {
				continue
			}
			r.fill(res, d.provider, d.model.Backend(), TierCapability)
			res.AliasOf = entry
			res.Capabilities = d.model.Capabilities
			res.ContextLength = d.model.ContextLength
			res.Steps = append(res.Steps, Step{Tier: TierCapability, Outcome: "hit",
				Detail: fmt.Sprintf("capability %q prefers %q on active provider %q", name, entry, d.provider.ID)})
			return true, nil
		}
	}
	res.Steps = append(res.Steps, Step{Tier: TierCapability, Outcome: "miss",
		Detail: fmt.Sprintf("no entry of capability %q is declared by an active provider", name)})
	return false, nil
}

func (r *Resolver) tierPattern(name string, res *Resolution) (bool, error) {
	for _, pat := range r.patterns {
		if !pat.re.MatchString(name) {
			continue
		}
		p, err := r.activeProvider(pat.rule.ProviderID)
		if err != nil {
			res.Steps = append(res.Steps, Step{Tier: TierPattern, Outcome: "fail", Detail: err.Error()})
			return false, critical(TierPattern, fmt.Sprintf("pattern_match[%s]", pat.rule.Regex), err.Error())
		}
		backend := name
		if d, ok := r.declarationOn(p.ID, name); ok {
			backend = d.model.Backend()
			res.Capabilities = d.model.Capabilities
			res.ContextLength = d.model.ContextLength
		}
		r.fill(res, p, backend, TierPattern)
		res.Steps = append(res.Steps, Step{Tier: TierPattern, Outcome: "hit",
			Detail: fmt.Sprintf("first matching pattern %q (rule %d) routes to provider %q", pat.rule.Regex, pat.pos, p.ID)})
		return true, nil
	}
	res.Steps = append(res.Steps, Step{Tier: TierPattern, Outcome: "miss",
		Detail: fmt.Sprintf("no pattern matches %q", name)})
	return false, nil
}

func (r *Resolver) tierDefault(name string, res *Resolution) error {
	decls := r.declared[name]
	switch {
	case len(decls) == 1:
		d := decls[0]
		r.fill(res, d.provider, d.model.Backend(), TierDefault)
		res.Capabilities = d.model.Capabilities
		res.ContextLength = d.model.ContextLength
		res.Steps = append(res.Steps, Step{Tier: TierDefault, Outcome: "hit",
			Detail: fmt.Sprintf("declared by single active provider %q", d.provider.ID)})
		return nil
	case len(decls) > 1:
		ids := make([]string, 0, len(decls))
		for _, d := range decls {
			ids = append(ids, d.provider.ID)
		}
		res.Steps = append(res.Steps, Step{Tier: TierDefault, Outcome: "fail",
			Detail: fmt.Sprintf("declared by providers %s", strings.Join(ids, ", "))})
		return critical(TierDefault, name, fmt.Sprintf(
			"ambiguous routing for %q: declared by active providers %s; add an exact_match or load_balance_group",
			name, strings.Join(ids, ", ")))
	case r.defaultProvider != "":
		p, err := r.activeProvider(r.defaultProvider)
		if err != nil {
			res.Steps = append(res.Steps, Step{Tier: TierDefault, Outcome: "fail", Detail: err.Error()})
			return critical(TierDefault, name, fmt.Sprintf("default provider: %v", err))
		}
		r.fill(res, p, name, TierDefault)
		res.Steps = append(res.Steps, Step{Tier: TierDefault, Outcome: "hit",
			Detail: fmt.Sprintf("configured default provider %q", p.ID)})
		return nil
	default:
		res.Steps = append(res.Steps, Step{Tier: TierDefault, Outcome: "fail",
			Detail: "no declaring provider and no default provider configured"})
		return critical(TierDefault, name, fmt.Sprintf("no route for %q: not declared by any active provider and no default provider configured", name))
	}
}

func (r *Resolver) fill(res *Resolution, p types.Provider, backend, tier string) {
	res.ProviderID = p.ID
	res.ProviderType = p.Type
	res.BaseURL = p.BaseURL
	res.BackendModel = backend
	res.Tier = tier
}

func (r *Resolver) activeProvider(id string) (types.Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return types.Provider{}, fmt.Errorf("references unknown provider %q", id)
	}
	if !p.Active() {
		return types.Provider{}, fmt.Errorf("references provider %q with status %s (must be active)", id, p.Status)
	}
	return p, nil
}

func (r *Resolver) declarationOn(providerID, model string) (declaration, bool) {
	for _, d := range r.declared[model] {
		if d.provider.ID == providerID {
			return d, true
		}
	}
	return declaration{}, false
}

// ProviderTypeOf reports the resolved provider type for a model name,
// used by the fallback graph's diversity scoring.
func (r *Resolver) ProviderTypeOf(name string) (types.ProviderType, bool) {
	res, err := r.Resolve(name)
	if err != nil {
		return "", false
	}
	return res.ProviderType, true
}

func critical(check, ruleID, msg string) error {
	return &types.ConsistencyError{Findings: []types.ConsistencyFinding{{
		Severity: types.SeverityCritical,
		Check:    check,
		RuleID:   ruleID,
		Msg:      msg,
	}}}
}

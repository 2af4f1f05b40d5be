package fallback

import (
	"fmt"
	"sort"

	"github.com/modelmux/routec/pkg/types"
)

type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Priority int    `json:"priority"`
}

type ChainSummary struct {
	Head           string   `json:"head"`
	Path           []string `json:"path"`
	DiversityScore int      `json:"diversity_score"`
	ProviderTypes  []string `json:"provider_types"`
}

type Graph struct {
	Nodes      []string       `json:"nodes"`
	Edges      []Edge         `json:"edges"`
	Chains     []ChainSummary `json:"chains"`
	Advisories []string       `json:"advisories"`
}

// TypeLookup reports the provider type a model name resolves to.
type TypeLookup func(name string) (types.ProviderType, bool)

// Build constructs the directed fallback graph. Each declared chain
// [head, t1, t2, ...] contributes the consecutive edges head->t1,
// t1->t2, with the declared position kept as edge priority. A cycle
// aborts the build with the full cycle path; no partial graph is
// returned. Diversity advisories never block.
func Build(chains []types.FallbackChain, typeOf TypeLookup) (*Graph, error) {
	adj := make(map[string][]Edge)
	nodes := make(map[string]struct{})
	heads := make([]string, 0, len(chains))

	for _, chain := range chains {
		path := chainPath(chain)
		heads = append(heads, chain.ModelName)
		for _, n := range path {
			nodes[n] = struct{}{}
		}
		for i := 0; i+1 < len(path); i++ {
			edge := Edge{From: path[i], To: path[i+1], Priority: i + 1}
			if !hasEdge(adj[edge.From], edge.To) {
				adj[edge.From] = append(adj[edge.From], edge)
			}
		}
	}
	for from := range adj {
		sort.SliceStable(adj[from], func(i, j int) bool {
			return adj[from][i].Priority < adj[from][j].Priority
		})
	}

	if err := detectCycles(heads, adj); err != nil {
		return nil, err
	}

	g := &Graph{
		Nodes:  make([]string, 0, len(nodes)),
		Edges:  make([]Edge, 0),
		Chains: make([]ChainSummary, 0, len(chains)),
	}
	for n := range nodes {
		g.Nodes = append(g.Nodes, n)
	}
	sort.Strings(g.Nodes)
	for _, edges := range adj {
		g.Edges = append(g.Edges, edges...)
	}
	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].From == g.Edges[j].From {
			return g.Edges[i].Priority < g.Edges[j].Priority
		}
		return g.Edges[i].From < g.Edges[j].From
	})

	for _, chain := range chains {
		g.Chains = append(g.Chains, scoreChain(chain, typeOf))
	}
	sort.Slice(g.Chains, func(i, j int) bool { return g.Chains[i].Head < g.Chains[j].Head })

	g.Advisories = advisories(g.Chains)
	return g, nil
}

// ChainsFromSettings reconstructs chain declarations from a published
// artifact's fallbacks map, heads in sorted order since the map carries
// no declaration order.
func ChainsFromSettings(fallbacks map[string][]string) []types.FallbackChain {
	heads := make([]string, 0, len(fallbacks))
	for head := range fallbacks {
		heads = append(heads, head)
	}
	sort.Strings(heads)
	chains := make([]types.FallbackChain, 0, len(heads))
	for _, head := range heads {
		chains = append(chains, types.FallbackChain{
			ModelName:      head,
			OrderedTargets: append([]string(nil), fallbacks[head]...),
		})
	}
	return chains
}

func chainPath(chain types.FallbackChain) []string {
	path := make([]string, 0, len(chain.OrderedTargets)+1)
	path = append(path, chain.ModelName)
	path = append(path, chain.OrderedTargets...)
	return path
}

func hasEdge(edges []Edge, to string) bool {
	for _, e := range edges {
		if e.To == to {
			return true
		}
	}
	return false
}

// detectCycles runs depth-first from every chain head in declaration
// order, carrying the recursion stack explicitly. A gray node reached
// again while still on the stack is a cycle; the returned path runs from
// the first occurrence back to the repeat.
func detectCycles(heads []string, adj map[string][]Edge) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	stack := make([]string, 0)

	var visit func(string) error
	visit = func(n string) error {
		color[n] = gray
		stack = append(stack, n)
		for _, e := range adj[n] {
			switch color[e.To] {
			case gray:
				start := 0
				for i, s := range stack {
					if s == e.To {
						start = i
						break
					}
				}
				cycle := append([]string(nil), stack[start:]...)
				cycle = append(cycle, e.To)
				return &types.CycleError{Path: cycle}
			case white:
				if err := visit(e.To); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	for _, head := range heads {
		if color[head] == white {
			if err := visit(head); err != nil {
				return err
			}
		}
	}
	return nil
}

func scoreChain(chain types.FallbackChain, typeOf TypeLookup) ChainSummary {
	path := chainPath(chain)
	seen := make(map[types.ProviderType]struct{})
	for _, member := range path {
		if t, ok := typeOf(member); ok {
			seen[t] = struct{}{}
		}
	}
	providerTypes := make([]string, 0, len(seen))
	for t := range seen {
		providerTypes = append(providerTypes, string(t))
	}
	sort.Strings(providerTypes)
	return ChainSummary{
		Head:           chain.ModelName,
		Path:           path,
		DiversityScore: len(seen),
		ProviderTypes:  providerTypes,
	}
}

func advisories(chains []ChainSummary) []string {
	out := make([]string, 0)
	for _, c := range chains {
		if len(c.Path) < 2 {
			continue
		}
		switch {
		case c.DiversityScore <= 1:
			single := "unresolved"
			if len(c.ProviderTypes) == 1 {
				single = c.ProviderTypes[0]
			}
			out = append(out, fmt.Sprintf(
				"fallback chain %q never leaves provider type %s (single point of failure)", c.Head, single))
		case !containsType(c.ProviderTypes, string(types.TypeRemoteAPI)):
			out = append(out, fmt.Sprintf(
				"fallback chain %q terminates without reaching a remote provider", c.Head))
		}
	}
	sort.Strings(out)
	return out
}

func containsType(haystack []string, want string) bool {
	for _, t := range haystack {
		if t == want {
			return true
		}
	}
	return false
}

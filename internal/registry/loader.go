package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/modelmux/routec/pkg/types"
)

const (
	providersBase = "providers"
	routingBase   = "routing"
)

var docExtensions = []string{".yaml", ".yml", ".toml"}

// Registry holds both decodings of the input documents: the typed
// entities the pipeline works on and the raw maps the schema validator
// checks, so constraints like unknown fields or a literal zero
// context_length are not lost to Go zero values.
type Registry struct {
	Dir           string
	ProvidersPath string
	RoutingPath   string
	Providers     types.ProviderDoc
	Routing       types.RoutingDoc
	RawProviders  map[string]any
	RawRouting    map[string]any
}

// Load reads the provider and routing documents from dir. Pure read; the
// only failure mode is *types.ParseError.
func Load(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &types.ParseError{Path: dir, Msg: "registry directory not readable", Err: err}
	}
	if !info.IsDir() {
		return nil, &types.ParseError{Path: dir, Msg: "registry path is not a directory"}
	}

	providersPath, err := findDoc(dir, providersBase)
	if err != nil {
		return nil, err
	}
	routingPath, err := findDoc(dir, routingBase)
	if err != nil {
		return nil, err
	}

	reg := &Registry{Dir: dir, ProvidersPath: providersPath, RoutingPath: routingPath}
	if err := decodeDoc(providersPath, &reg.Providers, &reg.RawProviders); err != nil {
		return nil, err
	}
	if err := decodeDoc(routingPath, &reg.Routing, &reg.RawRouting); err != nil {
		return nil, err
	}
	if err := rejectDuplicates(providersPath, reg.Providers.Providers); err != nil {
		return nil, err
	}
	return reg, nil
}

// findDoc locates base.{yaml,yml,toml} under dir. Exactly one spelling
// may exist.
func findDoc(dir, base string) (string, error) {
	found := make([]string, 0, 1)
	for _, ext := range docExtensions {
		p := filepath.Join(dir, base+ext)
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	switch len(found) {
	case 0:
		return "", &types.ParseError{
			Path: dir,
			Msg:  fmt.Sprintf("missing %s document (looked for %s.yaml, %s.yml, %s.toml)", base, base, base, base),
		}
	case 1:
		return found[0], nil
	default:
		return "", &types.ParseError{
			Path: dir,
			Msg:  fmt.Sprintf("conflicting %s documents: %s and %s", base, filepath.Base(found[0]), filepath.Base(found[1])),
		}
	}
}

// decodeDoc decodes path twice, into the typed collection and into a raw
// map, dispatching on extension.
func decodeDoc(path string, typed any, raw *map[string]any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &types.ParseError{Path: path, Msg: "read document", Err: err}
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, typed); err != nil {
			return &types.ParseError{Path: path, Line: yamlLine(err), Msg: err.Error(), Err: err}
		}
		if err := yaml.Unmarshal(data, raw); err != nil {
			return &types.ParseError{Path: path, Line: yamlLine(err), Msg: err.Error(), Err: err}
		}
	case ".toml":
		if err := toml.Unmarshal(data, typed); err != nil {
			return &types.ParseError{Path: path, Line: tomlLine(err), Msg: err.Error(), Err: err}
		}
		if err := toml.Unmarshal(data, raw); err != nil {
			return &types.ParseError{Path: path, Line: tomlLine(err), Msg: err.Error(), Err: err}
		}
	default:
		return &types.ParseError{Path: path, Msg: fmt.Sprintf("unsupported document extension %q", filepath.Ext(path))}
	}
	return nil
}

func rejectDuplicates(path string, providers []types.Provider) error {
	seenProvider := make(map[string]int, len(providers))
	for i, p := range providers {
		if first, ok := seenProvider[p.ID]; ok {
			return &types.ParseError{
				Path: path,
				Msg:  fmt.Sprintf("duplicate provider id %q (entries %d and %d)", p.ID, first, i),
			}
		}
		seenProvider[p.ID] = i

		seenModel := make(map[string]int, len(p.Models))
		for j, m := range p.Models {
			if first, ok := seenModel[m.Name]; ok {
				return &types.ParseError{
					Path: path,
					Msg:  fmt.Sprintf("provider %q declares model %q twice (entries %d and %d)", p.ID, m.Name, first, j),
				}
			}
			seenModel[m.Name] = j
		}
	}
	return nil
}

var yamlLineRe = regexp.MustCompile(`line (\d+)`)

func yamlLine(err error) int {
	m := yamlLineRe.FindStringSubmatch(err.Error())
	if len(m) != 2 {
		return 0
	}
	n, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return 0
	}
	return n
}

func tomlLine(err error) int {
	var perr toml.ParseError
	if errors.As(err, &perr) {
		return perr.Position.Line
	}
	return 0
}

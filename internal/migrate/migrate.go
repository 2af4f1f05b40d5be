// Package migrate moves artifacts produced under older schema versions
// forward to the version this compiler emits. Steps operate on the raw
// JSON bytes so an old artifact never has to round-trip through types
// that no longer describe it.
package migrate

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/tidwall/sjson"

	"github.com/modelmux/routec/internal/artifact"
	"github.com/modelmux/routec/internal/hash"
	"github.com/modelmux/routec/pkg/types"
)

// CurrentVersion is the artifact schema version this compiler emits.
const CurrentVersion = "2.0.0"

// Step migrates raw artifact bytes from one schema version to the next.
// Fn must be pure and idempotent.
type Step struct {
	From string
	To   string
	Note string
	Fn   func(raw []byte) ([]byte, error)
}

var steps = []Step{
	{
		From: "1.0.0",
		To:   "1.1.0",
		Note: "introduce router_settings.default_strategy (priority-order when absent)",
		Fn:   stepDefaultStrategy,
	},
	{
		From: "1.1.0",
		To:   "2.0.0",
		Note: "rename model_list[].backend to backend_model; aliases list form to map",
		Fn:   stepBackendModelAliases,
	},
}

// Versions is the schema version catalog, oldest first.
func Versions() []types.SchemaVersion {
	return []types.SchemaVersion{
		{
			Version:   "1.0.0",
			Changelog: "initial compiled artifact schema",
		},
		{
			Version:   "1.1.0",
			Changelog: "router_settings.default_strategy added",
			Migration: "1.0.0",
		},
		{
			Version:   "2.0.0",
			Changelog: "backend_model field name; aliases as object map",
			Breaking:  true,
			Migration: "1.1.0",
		},
	}
}

// PlanFor returns the ordered steps that bring version up to
// CurrentVersion. An empty plan means the artifact is already current.
// A version that is newer than the compiler, unparseable, or without a
// registered path yields VersionMismatchError.
func PlanFor(version string) ([]Step, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, &types.VersionMismatchError{
			ArtifactVersion: version,
			CompilerVersion: CurrentVersion,
			Reason:          fmt.Sprintf("artifact version does not parse: %v", err),
		}
	}
	cur := semver.MustParse(CurrentVersion)
	if v.Equal(cur) {
		return nil, nil
	}
	if v.GreaterThan(cur) {
		return nil, &types.VersionMismatchError{
			ArtifactVersion: version,
			CompilerVersion: CurrentVersion,
			Reason:          "artifact was produced by a newer compiler",
		}
	}

	plan := make([]Step, 0, len(steps))
	at := v.String()
	for at != CurrentVersion {
		step, ok := stepFrom(at)
		if !ok {
			return nil, &types.VersionMismatchError{
				ArtifactVersion: version,
				CompilerVersion: CurrentVersion,
				Reason:          fmt.Sprintf("no migration step from %s", at),
			}
		}
		plan = append(plan, step)
		at = step.To
		if len(plan) > len(steps) {
			return nil, &types.VersionMismatchError{
				ArtifactVersion: version,
				CompilerVersion: CurrentVersion,
				Reason:          "migration steps do not converge",
			}
		}
	}
	return plan, nil
}

func stepFrom(version string) (Step, bool) {
	for _, s := range steps {
		if s.From == version {
			return s, true
		}
	}
	return Step{}, false
}

// Apply runs the plan over raw, stamping schema_version after each step,
// then re-encodes the result canonically with a fresh content_digest.
// generated_at is preserved; migration is not a recompile.
func Apply(raw []byte, plan []Step) ([]byte, error) {
	var err error
	for _, step := range plan {
		raw, err = step.Fn(raw)
		if err != nil {
			return nil, fmt.Errorf("migrate %s -> %s: %w", step.From, step.To, err)
		}
		raw, err = sjson.SetBytes(raw, "schema_version", step.To)
		if err != nil {
			return nil, fmt.Errorf("migrate %s -> %s: stamp version: %w", step.From, step.To, err)
		}
	}

	art, err := artifact.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	digest, err := artifact.ContentDigest(art)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	art.ContentDigest = digest
	out, err := hash.CanonicalJSON(art)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return out, nil
}

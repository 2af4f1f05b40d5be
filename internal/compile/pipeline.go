// Package compile drives the pipeline: load, schema validation,
// consistency checks, route resolution, fallback graph, emission, and
// the atomic publish. Stages run strictly in that order and the first
// failing stage ends the run; the report records every stage outcome
// plus the non-blocking warnings and advisories that survived.
package compile

import (
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/modelmux/routec/internal/artifact"
	"github.com/modelmux/routec/internal/consistency"
	"github.com/modelmux/routec/internal/emit"
	"github.com/modelmux/routec/internal/fallback"
	"github.com/modelmux/routec/internal/hash"
	"github.com/modelmux/routec/internal/migrate"
	"github.com/modelmux/routec/internal/publish"
	"github.com/modelmux/routec/internal/registry"
	"github.com/modelmux/routec/internal/resolver"
	"github.com/modelmux/routec/internal/validate"
	"github.com/modelmux/routec/pkg/types"
)

type Options struct {
	RegistryDir  string
	ArtifactPath string
	KeepBackups  int
	NoBackup     bool
	// Force overrides the guard against clobbering an artifact stamped
	// by a newer compiler.
	Force     bool
	Generator types.Generator
}

// Run executes the full pipeline and publishes on success.
func Run(opts Options) *Report {
	report := newReport(opts)

	if err := versionGuard(opts.ArtifactPath, opts.Force); err != nil {
		report.addFailure("version-guard", err)
		return report
	}
	report.addPass("version-guard", "output path safe to replace")

	reg, res, ok := check(report, opts)
	if !ok {
		return report
	}

	graph, err := fallback.Build(reg.Routing.FallbackChains, res.ProviderTypeOf)
	if err != nil {
		report.addFailure("fallback-graph", err)
		return report
	}
	report.addPass("fallback-graph", fmt.Sprintf("%d nodes, %d edges", len(graph.Nodes), len(graph.Edges)))
	report.Advisories = append(report.Advisories, graph.Advisories...)
	for _, adv := range graph.Advisories {
		log.Warn(adv)
	}

	sourceDigest, err := hash.DigestTree(opts.RegistryDir)
	if err != nil {
		report.addFailure("emit", fmt.Errorf("digest registry: %w", err))
		return report
	}
	art, raw, err := emit.Build(&reg.Routing, res, emit.Stamp{
		SchemaVersion: migrate.CurrentVersion,
		SourceDigest:  sourceDigest,
		Generator:     opts.Generator,
		GeneratedAt:   time.Now(),
	})
	if err != nil {
		report.addFailure("emit", err)
		return report
	}
	report.SchemaVersion = art.SchemaVersion
	report.ContentDigest = art.ContentDigest
	report.SourceDigest = art.SourceDigest
	report.ModelCount = len(art.ModelList)
	report.addPass("emit", fmt.Sprintf("%d model entries, %s", len(art.ModelList), art.ContentDigest))

	pub, err := publish.Publish(raw, publish.Options{
		ArtifactPath: opts.ArtifactPath,
		KeepBackups:  opts.KeepBackups,
		NoBackup:     opts.NoBackup,
		Validate:     ArtifactValidator(migrate.CurrentVersion),
	})
	if err != nil {
		report.addFailure("publish", err)
		return report
	}
	report.BackupPath = pub.BackupPath
	report.addPass("publish", opts.ArtifactPath)
	return report
}

// Validate runs the read-only stages: load, schema, consistency, and
// route resolution. Nothing is written.
func Validate(opts Options) *Report {
	report := newReport(opts)
	check(report, opts)
	return report
}

func newReport(opts Options) *Report {
	return &Report{
		RunID:        uuid.NewString(),
		Passed:       true,
		ExitCode:     ExitOK,
		RegistryDir:  opts.RegistryDir,
		ArtifactPath: opts.ArtifactPath,
	}
}

func check(report *Report, opts Options) (*registry.Registry, *resolver.Resolver, bool) {
	reg, err := registry.Load(opts.RegistryDir)
	if err != nil {
		report.addFailure("load", err)
		return nil, nil, false
	}
	report.addPass("load", fmt.Sprintf("%d providers, %d routing rules",
		len(reg.Providers.Providers), len(reg.Routing.Rules())))

	if err := validate.Run(reg); err != nil {
		report.addFailure("schema", err)
		return nil, nil, false
	}
	report.addPass("schema", "documents conform")

	res, err := resolver.New(reg.Providers.Providers, &reg.Routing)
	if err != nil {
		report.addFailure("consistency", err)
		return nil, nil, false
	}
	cons := consistency.Run(reg.Providers.Providers, &reg.Routing, res)
	for _, w := range cons.Warnings {
		report.Warnings = append(report.Warnings, w.String())
		log.Warn(w.String())
	}
	if err := cons.Err(); err != nil {
		report.addFailure("consistency", err)
		return nil, nil, false
	}
	report.addPass("consistency", fmt.Sprintf("0 critical findings, %d warnings", len(cons.Warnings)))

	routes, findings := res.ResolveAll()
	if len(findings) > 0 {
		report.addFailure("resolve", &types.ConsistencyError{Findings: findings})
		return nil, nil, false
	}
	report.addPass("resolve", fmt.Sprintf("%d names routed", len(routes)))
	return reg, res, true
}

// ArtifactValidator is the post-write check the publisher runs: schema,
// referential integrity, version stamp, content digest.
func ArtifactValidator(version string) func(raw []byte) error {
	return func(raw []byte) error {
		findings, err := artifact.Verify(raw, version)
		if err != nil {
			return err
		}
		if len(findings) > 0 {
			return &types.SchemaViolation{
				EntityID: "artifact",
				Msg:      findings[0],
				Findings: findings,
			}
		}
		return nil
	}
}

// versionGuard refuses to overwrite an artifact stamped by a newer
// compiler. An unreadable stamp is only a warning; compile still wins.
func versionGuard(artifactPath string, force bool) error {
	if artifactPath == "" || !hash.FileExists(artifactPath) {
		return nil
	}
	raw, err := os.ReadFile(artifactPath)
	if err != nil {
		log.WithError(err).Warn("existing artifact unreadable, will replace")
		return nil
	}
	stamped := artifact.VersionOf(raw)
	if stamped == "" {
		log.Warn("existing artifact has no schema_version stamp, will replace")
		return nil
	}
	v, err := semver.NewVersion(stamped)
	if err != nil {
		log.WithField("schema_version", stamped).Warn("existing artifact version does not parse, will replace")
		return nil
	}
	if v.GreaterThan(semver.MustParse(migrate.CurrentVersion)) && !force {
		return &types.VersionMismatchError{
			ArtifactVersion: stamped,
			CompilerVersion: migrate.CurrentVersion,
			Reason:          "existing artifact was produced by a newer compiler (use --force to replace)",
		}
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/modelmux/routec/internal/artifact"
	"github.com/modelmux/routec/internal/compile"
	"github.com/modelmux/routec/internal/fallback"
	"github.com/modelmux/routec/internal/logging"
	"github.com/modelmux/routec/internal/migrate"
	"github.com/modelmux/routec/internal/publish"
	"github.com/modelmux/routec/internal/registry"
	"github.com/modelmux/routec/internal/report"
	"github.com/modelmux/routec/internal/resolver"
	"github.com/modelmux/routec/internal/validate"
	"github.com/modelmux/routec/internal/watch"
	"github.com/modelmux/routec/pkg/types"
)

const cliVersion = "0.5.0"

const (
	defaultRegistryDir  = "./registry"
	defaultArtifactPath = "./gateway-config.json"
)

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	if fileExists(".env") {
		if err := godotenv.Load(); err != nil {
			log.WithError(err).Warn("failed to load .env file")
		}
	}
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var verbose, quiet bool
	var logFile string

	root := &cobra.Command{
		Use:     "routec",
		Short:   "Compile provider registries into gateway routing artifacts",
		Version: cliVersion,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if logFile == "" {
				logFile = os.Getenv("ROUTEC_LOG_FILE")
			}
			logging.Setup(verbose, quiet, logFile)
		},
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&quiet, "quiet", false, "log errors only")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "rotating log file path (env ROUTEC_LOG_FILE)")

	root.AddCommand(newInitCommand())
	root.AddCommand(newCompileCommand())
	root.AddCommand(newValidateCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newExplainRouteCommand())
	root.AddCommand(newInspectCommand())
	root.AddCommand(newRestoreCommand())
	return root
}

func newInitCommand() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a starter provider registry",
		RunE: func(_ *cobra.Command, _ []string) error {
			d := registryDirOr(dir)
			if err := os.MkdirAll(d, 0o755); err != nil {
				return err
			}
			providersPath := filepath.Join(d, "providers.yaml")
			if !fileExists(providersPath) {
				if err := os.WriteFile(providersPath, []byte(starterProvidersYAML), 0o644); err != nil {
					return err
				}
			}
			routingPath := filepath.Join(d, "routing.yaml")
			if !fileExists(routingPath) {
				if err := os.WriteFile(routingPath, []byte(starterRoutingYAML), 0o644); err != nil {
					return err
				}
			}
			fmt.Printf("initialized registry at %s\n", d)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "registry directory (env ROUTEC_REGISTRY_DIR, default ./registry)")
	return cmd
}

func newCompileCommand() *cobra.Command {
	var registryDir, outPath, reportFormat, reportPath string
	var keep int
	var noBackup, force, watchMode bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the registry into the gateway artifact",
		RunE: func(_ *cobra.Command, _ []string) error {
			opts := compile.Options{
				RegistryDir:  registryDirOr(registryDir),
				ArtifactPath: artifactPathOr(outPath),
				KeepBackups:  keep,
				NoBackup:     noBackup,
				Force:        force,
				Generator:    types.Generator{Name: "routec", Version: cliVersion},
			}

			r := compile.Run(opts)
			if err := writeReport(r, reportFormat, reportPath); err != nil {
				return err
			}
			if watchMode {
				return runWatch(opts, reportFormat, reportPath, r)
			}
			if !r.Passed {
				return cliError{code: r.ExitCode, err: fmt.Errorf("compile failed: %s", firstViolation(r))}
			}
			fmt.Println(opts.ArtifactPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&registryDir, "registry", "", "registry directory (env ROUTEC_REGISTRY_DIR, default ./registry)")
	cmd.Flags().StringVar(&outPath, "out", "", "artifact output path (env ROUTEC_ARTIFACT, default ./gateway-config.json)")
	cmd.Flags().IntVar(&keep, "keep", publish.DefaultKeepBackups, "backups to retain")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip backing up the replaced artifact")
	cmd.Flags().BoolVar(&force, "force", false, "replace an artifact stamped by a newer compiler")
	cmd.Flags().BoolVar(&watchMode, "watch", false, "recompile on registry changes")
	cmd.Flags().StringVar(&reportFormat, "report", "none", "compile report format (md|json|none)")
	cmd.Flags().StringVar(&reportPath, "report-out", "", "compile report output path")
	return cmd
}

func runWatch(opts compile.Options, reportFormat, reportPath string, first *compile.Report) error {
	if !first.Passed {
		log.Errorf("compile failed: %s", firstViolation(first))
	}
	closer, err := watch.Start(opts.RegistryDir, watch.DefaultDebounce, func() {
		r := compile.Run(opts)
		if err := writeReport(r, reportFormat, reportPath); err != nil {
			log.WithError(err).Error("write compile report")
		}
		if !r.Passed {
			log.Errorf("compile failed: %s", firstViolation(r))
			return
		}
		log.WithField("artifact", opts.ArtifactPath).Info("recompiled")
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	return nil
}

func newValidateCommand() *cobra.Command {
	var registryDir string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the registry without writing anything",
		RunE: func(_ *cobra.Command, _ []string) error {
			r := compile.Validate(compile.Options{RegistryDir: registryDirOr(registryDir)})
			for _, w := range r.Warnings {
				fmt.Println(w)
			}
			if !r.Passed {
				for _, v := range r.Violations {
					fmt.Println(v)
				}
				return cliError{code: r.ExitCode, err: fmt.Errorf("validation failed")}
			}
			fmt.Println("registry valid")
			return nil
		},
	}
	cmd.Flags().StringVar(&registryDir, "registry", "", "registry directory (env ROUTEC_REGISTRY_DIR, default ./registry)")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	var check, apply, dryRun bool
	var artifactPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Check or apply artifact schema migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			modes := 0
			for _, m := range []bool{check, apply, dryRun} {
				if m {
					modes++
				}
			}
			if modes != 1 {
				return fmt.Errorf("exactly one of --check, --apply, --dry-run is required")
			}

			path := artifactPathOr(artifactPath)
			raw, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			ver := artifact.VersionOf(raw)
			if ver == "" {
				return fmt.Errorf("artifact %s has no schema_version stamp", path)
			}
			plan, err := migrate.PlanFor(ver)
			if err != nil {
				return cliError{code: compile.ExitCodeFor(err), err: err}
			}

			if len(plan) == 0 {
				fmt.Printf("artifact %s is current (%s)\n", path, migrate.CurrentVersion)
				return nil
			}
			for _, step := range plan {
				fmt.Printf("%s -> %s  %s\n", step.From, step.To, step.Note)
			}

			switch {
			case check:
				return cliError{
					code: compile.ExitVersion,
					err:  fmt.Errorf("migration required: %s -> %s", ver, migrate.CurrentVersion),
				}
			case dryRun:
				fmt.Printf("dry run: %d step(s), nothing written\n", len(plan))
				return nil
			default:
				out, err := migrate.Apply(raw, plan)
				if err != nil {
					return cliError{code: compile.ExitCodeFor(err), err: err}
				}
				if _, err := publish.Publish(out, publish.Options{
					ArtifactPath: path,
					Validate:     compile.ArtifactValidator(migrate.CurrentVersion),
				}); err != nil {
					return cliError{code: compile.ExitCodeFor(err), err: err}
				}
				fmt.Println(path)
				return nil
			}
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "exit 3 when a migration is required")
	cmd.Flags().BoolVar(&apply, "apply", false, "migrate and republish the artifact")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the migration plan without writing")
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact path (env ROUTEC_ARTIFACT, default ./gateway-config.json)")
	return cmd
}

func newExplainRouteCommand() *cobra.Command {
	var registryDir string
	cmd := &cobra.Command{
		Use:   "explain-route <model-name>",
		Short: "Show how a model name resolves through the routing tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			reg, err := registry.Load(registryDirOr(registryDir))
			if err != nil {
				return cliError{code: compile.ExitCodeFor(err), err: err}
			}
			if err := validate.Run(reg); err != nil {
				return cliError{code: compile.ExitCodeFor(err), err: err}
			}
			res, err := resolver.New(reg.Providers.Providers, &reg.Routing)
			if err != nil {
				return cliError{code: compile.ExitCodeFor(err), err: err}
			}

			resolution, rerr := res.Resolve(name)
			for _, step := range resolution.Steps {
				fmt.Printf("%-22s %-5s %s\n", step.Tier, step.Outcome, step.Detail)
			}
			if rerr != nil {
				return cliError{code: compile.ExitCodeFor(rerr), err: rerr}
			}

			fmt.Println()
			fmt.Printf("model:    %s\n", resolution.ModelName)
			fmt.Printf("provider: %s (%s)\n", resolution.ProviderID, resolution.ProviderType)
			fmt.Printf("backend:  %s\n", resolution.BackendModel)
			fmt.Printf("base_url: %s\n", resolution.BaseURL)
			fmt.Printf("tier:     %s\n", resolution.Tier)
			if resolution.AliasOf != "" {
				fmt.Printf("alias_of: %s\n", resolution.AliasOf)
			}
			for _, chain := range reg.Routing.FallbackChains {
				if chain.ModelName == name {
					fmt.Printf("fallbacks: %v\n", chain.OrderedTargets)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&registryDir, "registry", "", "registry directory (env ROUTEC_REGISTRY_DIR, default ./registry)")
	return cmd
}

func newInspectCommand() *cobra.Command {
	var artifactPath, format string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a published artifact",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := artifactPathOr(artifactPath)
			art, _, err := artifact.Load(path)
			if err != nil {
				return cliError{code: compile.ExitCodeFor(err), err: err}
			}

			typeByName := make(map[string]types.ProviderType, len(art.ModelList))
			for _, entry := range art.ModelList {
				typeByName[entry.ModelName] = entry.ProviderType
			}
			graph, err := fallback.Build(
				fallback.ChainsFromSettings(art.RouterSettings.Fallbacks),
				func(name string) (types.ProviderType, bool) {
					t, ok := typeByName[name]
					return t, ok
				},
			)
			if err != nil {
				return cliError{code: compile.ExitCodeFor(err), err: err}
			}

			s := report.BuildInspect(path, art, graph)
			switch format {
			case "md":
				fmt.Print(report.InspectMarkdown(s))
			case "json":
				out, err := report.InspectJSON(s)
				if err != nil {
					return err
				}
				fmt.Println(out)
			default:
				return fmt.Errorf("unsupported format %s", format)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact path (env ROUTEC_ARTIFACT, default ./gateway-config.json)")
	cmd.Flags().StringVar(&format, "format", "md", "output format (md|json)")
	return cmd
}

func newRestoreCommand() *cobra.Command {
	var artifactPath, backupName string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Promote a backup to the live artifact path",
		RunE: func(_ *cobra.Command, _ []string) error {
			path := artifactPathOr(artifactPath)
			// The version stamp is not pinned on restore, so an artifact
			// from a newer compatible compiler can come back. Structure is
			// still held to the current schema.
			res, err := publish.Restore(path, backupName, compile.ArtifactValidator(""))
			if err != nil {
				return cliError{code: compile.ExitCodeFor(err), err: err}
			}
			fmt.Println(res.ArtifactPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&artifactPath, "artifact", "", "artifact path (env ROUTEC_ARTIFACT, default ./gateway-config.json)")
	cmd.Flags().StringVar(&backupName, "backup", "", "backup file name (newest when omitted)")
	return cmd
}

func writeReport(r *compile.Report, format, path string) error {
	switch format {
	case "", "none":
		return nil
	case "json":
		if path == "" {
			path = "compile-report.json"
		}
		if err := report.WriteJSON(path, r); err != nil {
			return err
		}
		fmt.Println(path)
	case "md":
		if path == "" {
			path = "compile-report.md"
		}
		if err := report.WriteMarkdown(path, r); err != nil {
			return err
		}
		fmt.Println(path)
	default:
		return fmt.Errorf("unsupported report format %s", format)
	}
	return nil
}

func firstViolation(r *compile.Report) string {
	if len(r.Violations) > 0 {
		return r.Violations[0]
	}
	return "unknown failure"
}

func registryDirOr(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("ROUTEC_REGISTRY_DIR"); v != "" {
		return v
	}
	return defaultRegistryDir
}

func artifactPathOr(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("ROUTEC_ARTIFACT"); v != "" {
		return v
	}
	return defaultArtifactPath
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const starterProvidersYAML = `providers:
  - id: ollama
    type: local-cpu
    base_url: http://127.0.0.1:11434
    status: active
    models:
      - name: llama-3
        capabilities: [chat]
        context_length: 8192
  - id: openai
    type: remote-api
    base_url: https://api.openai.com/v1
    status: active
    health_endpoint: /models
    models:
      - name: gpt-4
        capabilities: [chat, code_generation]
        context_length: 128000
`

const starterRoutingYAML = `default_provider: ollama
exact_matches:
  - model_name: gpt-4
    provider_id: openai
pattern_matches:
  - regex: "^llama-.*"
    provider_id: ollama
capability_preferences:
  - capability: code_generation
    ordered_model_list: [gpt-4]
fallback_chains:
  - model_name: gpt-4
    ordered_targets: [llama-3]
`

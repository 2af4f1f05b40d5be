package compile

import (
	"errors"

	"github.com/modelmux/routec/pkg/types"
)

const (
	ExitOK         = 0
	ExitValidation = 1
	ExitCycle      = 2
	ExitVersion    = 3
)

type StageResult struct {
	Stage   string `json:"stage"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

type Report struct {
	RunID         string        `json:"run_id"`
	Passed        bool          `json:"passed"`
	ExitCode      int           `json:"exit_code"`
	RegistryDir   string        `json:"registry_dir"`
	ArtifactPath  string        `json:"artifact_path,omitempty"`
	SchemaVersion string        `json:"schema_version,omitempty"`
	ContentDigest string        `json:"content_digest,omitempty"`
	SourceDigest  string        `json:"source_digest,omitempty"`
	BackupPath    string        `json:"backup_path,omitempty"`
	ModelCount    int           `json:"model_count"`
	Stages        []StageResult `json:"stages"`
	Violations    []string      `json:"violations"`
	Warnings      []string      `json:"warnings"`
	Advisories    []string      `json:"advisories"`
}

// ExitCodeFor maps the typed pipeline errors onto the documented exit
// codes. Anything untyped is a validation-class failure.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		cycleErr   *types.CycleError
		versionErr *types.VersionMismatchError
	)
	switch {
	case errors.As(err, &cycleErr):
		return ExitCycle
	case errors.As(err, &versionErr):
		return ExitVersion
	}
	return ExitValidation
}

func (r *Report) addPass(stage, message string) {
	r.Stages = append(r.Stages, StageResult{Stage: stage, Passed: true, Message: message})
}

func (r *Report) addFailure(stage string, err error) {
	r.Passed = false
	code := ExitCodeFor(err)
	if r.ExitCode == ExitOK || code > r.ExitCode {
		r.ExitCode = code
	}
	r.Stages = append(r.Stages, StageResult{Stage: stage, Passed: false, Message: err.Error()})
	r.Violations = append(r.Violations, stage+": "+err.Error())
}

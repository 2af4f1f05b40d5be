package types

import (
	"fmt"
	"strings"
)

const (
	SeverityCritical = "CRITICAL"
	SeverityWarning  = "WARNING"
)

// ParseError reports malformed registry input. It aborts the pipeline
// before any validation runs.
type ParseError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s:%d: %s", e.Path, e.Line, e.Msg)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaViolation reports a structural or cross-entity contract breach,
// annotated with the offending entity and field path. Findings collected
// in the same pass ride along for operator output.
type SchemaViolation struct {
	EntityID  string
	FieldPath string
	Msg       string
	Findings  []string
}

func (e *SchemaViolation) Error() string {
	if e.FieldPath != "" {
		return fmt.Sprintf("schema violation at %s, field %s: %s", e.EntityID, e.FieldPath, e.Msg)
	}
	return fmt.Sprintf("schema violation at %s: %s", e.EntityID, e.Msg)
}

type ConsistencyFinding struct {
	Severity string
	Check    string
	RuleID   string
	Ref      string
	Msg      string
}

func (f ConsistencyFinding) String() string {
	return fmt.Sprintf("[%s] %s: %s: %s", f.Severity, f.Check, f.RuleID, f.Msg)
}

// ConsistencyError carries the CRITICAL findings that aborted compilation.
type ConsistencyError struct {
	Findings []ConsistencyFinding
}

func (e *ConsistencyError) Error() string {
	if len(e.Findings) == 0 {
		return "consistency check failed"
	}
	first := e.Findings[0]
	if len(e.Findings) == 1 {
		return first.String()
	}
	return fmt.Sprintf("%s (and %d more)", first.String(), len(e.Findings)-1)
}

// CycleError is raised when a fallback chain revisits a node still on the
// traversal stack. Path holds the full cycle, head repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("fallback cycle detected: %s", strings.Join(e.Path, " -> "))
}

type VersionMismatchError struct {
	ArtifactVersion string
	CompilerVersion string
	Reason          string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("schema version mismatch: artifact %s, compiler %s: %s",
		e.ArtifactVersion, e.CompilerVersion, e.Reason)
}

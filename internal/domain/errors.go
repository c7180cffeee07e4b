package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the pipeline's failure taxonomy. Callers match
// them with errors.Is; wrapping preserves the underlying detail.
var (
	ErrNoCandidateFound    = errors.New("no candidate run found")
	ErrAmbiguousCategory   = errors.New("run taxonomy does not map to exactly one category")
	ErrDownloadFailed      = errors.New("download failed")
	ErrInsufficientSpace   = errors.New("insufficient scratch space")
	ErrAnalysisFailed      = errors.New("analysis failed")
	ErrUnparseableOutput   = errors.New("unparseable tool output")
	ErrDuplicateRun        = errors.New("run already recorded")
	ErrDatabaseWriteFailed = errors.New("database write failed")
	ErrMetadataUnavailable = errors.New("metadata service unavailable")
)

// AnalysisCause distinguishes why the external analysis tool failed so
// operators can tell stuck jobs from tool bugs.
type AnalysisCause string

const (
	CauseCrash       AnalysisCause = "crash"
	CauseTimeout     AnalysisCause = "timeout"
	CauseNonzeroExit AnalysisCause = "nonzero-exit"
)

// AnalysisError wraps a failed external tool invocation with its cause
// and captured diagnostic output.
type AnalysisError struct {
	Tool   string
	Cause  AnalysisCause
	Output string
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrAnalysisFailed, e.Tool, e.Cause)
}

// Is makes AnalysisError match ErrAnalysisFailed under errors.Is.
func (e *AnalysisError) Is(target error) bool {
	return target == ErrAnalysisFailed
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// StageError records which pipeline stage an error escaped from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage extracts the stage from an error chain, or returns
// StageSelecting if no StageError is present.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageSelecting
}

package domain

// Stage represents one step of the pipeline state machine. Stages run
// strictly in order; a failure in any stage is terminal.
type Stage string

const (
	StageSelecting Stage = "selecting"
	StageAcquiring Stage = "acquiring"
	StageAnalyzing Stage = "analyzing"
	StageParsing   Stage = "parsing"
	StageRecording Stage = "recording"
	StageDone      Stage = "done"
)

// Outcome represents the terminal result of one pipeline attempt.
type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
)

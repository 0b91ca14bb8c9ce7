package domain

import "context"

// RunRequest describes one pipeline invocation
// ConversationHandle is empty on the initial round and carries the stored
// handle on follow-ups so the classifier keeps its prior context
type RunRequest struct {
	UserID             string
	Text               string
	ConversationHandle string
}

// Runner drives one pipeline run to completion, pushing events to emit in order
// Implementations must not retry internally; a failed call returns its error
type Runner interface {
	Run(ctx context.Context, req RunRequest, emit func(PipelineEvent)) error
}

// Recorder is the audit sink for reasoning text and pipeline anomalies
// Implementations must never fail the run; errors are swallowed and logged
type Recorder interface {
	Reasoning(ctx context.Context, runID string, chunks []string)
	Anomaly(ctx context.Context, runID, kind, detail string)
}

// Outcome is the detected result of one pipeline run
type OutcomeKind uint8

const (
	// OutcomeUnresolved means no recognized tool invocation was observed
	OutcomeUnresolved OutcomeKind = iota

	// OutcomeClassified means the filing tool ran at or above the threshold
	OutcomeClassified

	// OutcomePending means the filing tool ran below the threshold
	OutcomePending

	// OutcomeMisunderstood means the clarification tool asked the user a question
	OutcomeMisunderstood

	// OutcomeJunk means the junk tool discarded the input
	OutcomeJunk

	// OutcomeError means the run itself failed (timeout or pipeline fault)
	OutcomeError
)

// String names the outcome for logs
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeClassified:
		return "classified"
	case OutcomePending:
		return "pending"
	case OutcomeMisunderstood:
		return "misunderstood"
	case OutcomeJunk:
		return "junk"
	case OutcomeError:
		return "error"
	default:
		return "unresolved"
	}
}

// Outcome carries the detected result plus the record ids the filing produced
// CaptureID is empty when nothing was persisted (pure Unresolved)
type Outcome struct {
	Kind       OutcomeKind
	CaptureID  string
	BucketID   string
	Bucket     Bucket
	Confidence float64
	Question   string
	Handle     string
	ErrText    string
}

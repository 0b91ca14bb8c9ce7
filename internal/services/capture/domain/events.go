package domain

import "encoding/json"

// PipelineEventKind discriminates the pipeline event union
type PipelineEventKind uint8

const (
	// EventStepStarted marks a pipeline stage becoming active
	EventStepStarted PipelineEventKind = iota

	// EventStepFinished marks a pipeline stage completing
	EventStepFinished

	// EventText carries a free text chunk produced by a stage
	EventText

	// EventToolCall carries a completed named tool invocation with raw arguments
	EventToolCall
)

// PipelineEvent is the tagged union emitted by the pipeline runner
// Exactly one dispatch point (the stream translator) switches on Kind
type PipelineEvent struct {
	Kind  PipelineEventKind
	Stage string

	// Text is set for EventText
	Text string

	// Tool and Args are set for EventToolCall
	// Args may be structured JSON or a string-encoded form; consumers parse defensively
	Tool string
	Args json.RawMessage

	// Handle is the pipeline conversation id, set on events that observed one
	Handle string
}

// Pipeline stage names surfaced to the client via STEP_START/STEP_END
const (
	StageRouting        = "routing"
	StageClassification = "classification"
)

// Client event types: the closed 7-event protocol
const (
	TypeStepStart     = "STEP_START"
	TypeStepEnd       = "STEP_END"
	TypeClassified    = "CLASSIFIED"
	TypeMisunderstood = "MISUNDERSTOOD"
	TypeUnresolved    = "UNRESOLVED"
	TypeComplete      = "COMPLETE"
	TypeError         = "ERROR"
)

// ClientEvent is one canonical SSE message
// Step events carry StepName; outcome events carry Value; COMPLETE carries
// ThreadID and RunID at the top level; ERROR carries Message
type ClientEvent struct {
	Type     string `json:"type"`
	StepName string `json:"stepName,omitempty"`
	Value    any    `json:"value,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	RunID    string `json:"runId,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ClassifiedValue is the CLASSIFIED payload
type ClassifiedValue struct {
	InboxItemID string  `json:"inboxItemId"`
	Bucket      string  `json:"bucket"`
	Confidence  float64 `json:"confidence"`
}

// MisunderstoodValue is the MISUNDERSTOOD payload
type MisunderstoodValue struct {
	ThreadID     string `json:"threadId"`
	InboxItemID  string `json:"inboxItemId"`
	QuestionText string `json:"questionText"`
}

// UnresolvedValue is the UNRESOLVED payload
type UnresolvedValue struct {
	InboxItemID string `json:"inboxItemId"`
}

// StepStart builds a STEP_START event
func StepStart(step string) ClientEvent { return ClientEvent{Type: TypeStepStart, StepName: step} }

// StepEnd builds a STEP_END event
func StepEnd(step string) ClientEvent { return ClientEvent{Type: TypeStepEnd, StepName: step} }

// Classified builds a CLASSIFIED event
func Classified(inboxItemID string, bucket Bucket, confidence float64) ClientEvent {
	return ClientEvent{Type: TypeClassified, Value: ClassifiedValue{
		InboxItemID: inboxItemID,
		Bucket:      string(bucket),
		Confidence:  confidence,
	}}
}

// Misunderstood builds a MISUNDERSTOOD event
func Misunderstood(threadID, inboxItemID, questionText string) ClientEvent {
	return ClientEvent{Type: TypeMisunderstood, Value: MisunderstoodValue{
		ThreadID:     threadID,
		InboxItemID:  inboxItemID,
		QuestionText: questionText,
	}}
}

// Unresolved builds an UNRESOLVED event
func Unresolved(inboxItemID string) ClientEvent {
	return ClientEvent{Type: TypeUnresolved, Value: UnresolvedValue{InboxItemID: inboxItemID}}
}

// Complete builds the COMPLETE event, always the last on a stream
func Complete(threadID, runID string) ClientEvent {
	return ClientEvent{Type: TypeComplete, ThreadID: threadID, RunID: runID}
}

// ErrorEvent builds the ERROR event
func ErrorEvent(message string) ClientEvent {
	return ClientEvent{Type: TypeError, Message: message}
}

// Package stream turns the pipeline's raw event sequence into the closed
// client protocol: STEP_START/STEP_END pairs, one terminal outcome, COMPLETE
package stream

import (
	"secondbrain/internal/platform/logger"
	"secondbrain/internal/services/capture/domain"
)

// Sink receives canonical client events in order
// A sink error means the client stopped listening; translation keeps going
// because pipeline side effects must land regardless
type Sink func(domain.ClientEvent) error

// Translator consumes pipeline events and writes the canonical stream
// It is single-goroutine: the runner's emit callback is the only caller
type Translator struct {
	send Sink
	log  logger.Logger

	current   string   // stage with an open STEP_START, "" when none
	reasoning []string // classification free text, buffered for audit only
	dead      bool     // sink failed, stop writing but keep consuming
	finished  bool
}

// New builds a translator over the given sink
func New(sink Sink) *Translator {
	return &Translator{send: sink, log: *logger.Named("stream")}
}

// OnEvent dispatches one pipeline event
// This is the single switch point over the event union
func (t *Translator) OnEvent(ev domain.PipelineEvent) {
	switch ev.Kind {
	case domain.EventStepStarted:
		// a stage starting while another is open implies the previous
		// stage ended without a lifecycle event; close it first
		if t.current != "" && t.current != ev.Stage {
			t.emit(domain.StepEnd(t.current))
		}
		t.current = ev.Stage
		t.emit(domain.StepStart(ev.Stage))

	case domain.EventStepFinished:
		t.emit(domain.StepEnd(ev.Stage))
		if t.current == ev.Stage {
			t.current = ""
		}

	case domain.EventText:
		// routing text only echoes the user's input; drop it
		// classification text is the model's reasoning; buffer for audit,
		// never stream it verbatim
		if ev.Stage == domain.StageClassification && ev.Text != "" {
			t.reasoning = append(t.reasoning, ev.Text)
		}

	case domain.EventToolCall:
		// outcome detection owns tool calls; nothing to stream here
	}
}

// Reasoning returns the buffered classification text chunks
func (t *Translator) Reasoning() []string { return t.reasoning }

// Finish closes any open step, emits the terminal event, then COMPLETE
// Calling it again is a no-op; the stream stays well formed
func (t *Translator) Finish(terminal domain.ClientEvent, threadID, runID string) {
	if t.finished {
		return
	}
	t.finished = true
	t.closeOpenStep()
	t.emit(terminal)
	t.emit(domain.Complete(threadID, runID))
}

// Fail emits ERROR then COMPLETE; used when the pipeline call itself raises
func (t *Translator) Fail(message, threadID, runID string) {
	t.Finish(domain.ErrorEvent(message), threadID, runID)
}

func (t *Translator) closeOpenStep() {
	if t.current != "" {
		t.emit(domain.StepEnd(t.current))
		t.current = ""
	}
}

func (t *Translator) emit(ev domain.ClientEvent) {
	if t.dead {
		return
	}
	if err := t.send(ev); err != nil {
		// client went away; side effects continue server-side
		t.log.Warn().Err(err).Str("type", ev.Type).Msg("client sink failed, continuing detached")
		t.dead = true
	}
}

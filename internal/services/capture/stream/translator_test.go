package stream_test

import (
	"errors"
	"testing"

	"secondbrain/internal/services/capture/domain"
	"secondbrain/internal/services/capture/stream"
)

func collect(events *[]domain.ClientEvent) stream.Sink {
	return func(ev domain.ClientEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func types(events []domain.ClientEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func assertWellFormed(t *testing.T, events []domain.ClientEvent) {
	t.Helper()
	if len(events) == 0 {
		t.Fatalf("empty stream")
	}
	if events[len(events)-1].Type != domain.TypeComplete {
		t.Fatalf("last event is %s, want COMPLETE", events[len(events)-1].Type)
	}
	open := map[string]int{}
	terminals := 0
	for i, ev := range events {
		switch ev.Type {
		case domain.TypeStepStart:
			open[ev.StepName]++
		case domain.TypeStepEnd:
			open[ev.StepName]--
			if open[ev.StepName] < 0 {
				t.Fatalf("STEP_END for %q without a start at index %d", ev.StepName, i)
			}
		case domain.TypeClassified, domain.TypeMisunderstood, domain.TypeUnresolved, domain.TypeError:
			terminals++
		}
	}
	for step, n := range open {
		if n != 0 {
			t.Fatalf("step %q left open (%d)", step, n)
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", terminals)
	}
}

func TestHappyPathPairsSteps(t *testing.T) {
	var got []domain.ClientEvent
	tr := stream.New(collect(&got))

	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageRouting})
	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepFinished, Stage: domain.StageRouting})
	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageClassification})
	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepFinished, Stage: domain.StageClassification})
	tr.Finish(domain.Classified("abc", domain.BucketAdmin, 0.95), "thread-1", "run-1")

	want := []string{"STEP_START", "STEP_END", "STEP_START", "STEP_END", "CLASSIFIED", "COMPLETE"}
	if len(got) != len(want) {
		t.Fatalf("got %v", types(got))
	}
	for i, w := range want {
		if got[i].Type != w {
			t.Fatalf("event %d: got %s want %s (%v)", i, got[i].Type, w, types(got))
		}
	}
	assertWellFormed(t, got)
}

func TestAbruptEndSynthesizesStepEnd(t *testing.T) {
	var got []domain.ClientEvent
	tr := stream.New(collect(&got))

	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageClassification})
	// stream dies without a finished event
	tr.Finish(domain.Unresolved(""), "t", "r")

	want := []string{"STEP_START", "STEP_END", "UNRESOLVED", "COMPLETE"}
	if g := types(got); len(g) != len(want) {
		t.Fatalf("got %v want %v", g, want)
	}
	for i, w := range want {
		if got[i].Type != w {
			t.Fatalf("event %d: got %s want %s", i, got[i].Type, w)
		}
	}
	assertWellFormed(t, got)
}

func TestNewStageClosesPreviousStage(t *testing.T) {
	var got []domain.ClientEvent
	tr := stream.New(collect(&got))

	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageRouting})
	// classification starts without routing ever reporting finished
	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageClassification})
	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepFinished, Stage: domain.StageClassification})
	tr.Finish(domain.Unresolved("x"), "t", "r")

	assertWellFormed(t, got)
	if got[1].Type != domain.TypeStepEnd || got[1].StepName != domain.StageRouting {
		t.Fatalf("expected synthesized routing STEP_END, got %v", types(got))
	}
}

func TestRoutingTextIsDropped(t *testing.T) {
	var got []domain.ClientEvent
	tr := stream.New(collect(&got))

	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventText, Stage: domain.StageRouting, Text: "buy milk"})
	tr.Finish(domain.Unresolved(""), "t", "r")

	for _, ev := range got {
		if ev.Type != domain.TypeUnresolved && ev.Type != domain.TypeComplete {
			t.Fatalf("routing text leaked into stream: %v", types(got))
		}
	}
	if len(tr.Reasoning()) != 0 {
		t.Fatalf("routing text must not be buffered as reasoning")
	}
}

func TestClassificationTextBufferedNotStreamed(t *testing.T) {
	var got []domain.ClientEvent
	tr := stream.New(collect(&got))

	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventText, Stage: domain.StageClassification, Text: "leaning Admin because"})
	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventText, Stage: domain.StageClassification, Text: " it is an errand"})
	tr.Finish(domain.Classified("abc", domain.BucketAdmin, 0.9), "t", "r")

	if len(got) != 2 { // CLASSIFIED + COMPLETE only
		t.Fatalf("reasoning leaked into stream: %v", types(got))
	}
	chunks := tr.Reasoning()
	if len(chunks) != 2 || chunks[0] != "leaning Admin because" {
		t.Fatalf("reasoning not buffered: %v", chunks)
	}
}

func TestFailEmitsErrorThenComplete(t *testing.T) {
	var got []domain.ClientEvent
	tr := stream.New(collect(&got))

	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageRouting})
	tr.Fail("pipeline timed out", "t", "r")

	want := []string{"STEP_START", "STEP_END", "ERROR", "COMPLETE"}
	for i, w := range want {
		if got[i].Type != w {
			t.Fatalf("event %d: got %s want %s", i, got[i].Type, w)
		}
	}
	if got[2].Message != "pipeline timed out" {
		t.Fatalf("error message lost: %+v", got[2])
	}
}

func TestFinishIsIdempotent(t *testing.T) {
	var got []domain.ClientEvent
	tr := stream.New(collect(&got))

	tr.Finish(domain.Unresolved(""), "t", "r")
	tr.Finish(domain.Classified("abc", domain.BucketIdeas, 0.8), "t", "r")

	if len(got) != 2 {
		t.Fatalf("second Finish must be a no-op: %v", types(got))
	}
	assertWellFormed(t, got)
}

func TestSinkFailureDoesNotPanicOrRetry(t *testing.T) {
	calls := 0
	tr := stream.New(func(domain.ClientEvent) error {
		calls++
		return errors.New("client gone")
	})

	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepStarted, Stage: domain.StageRouting})
	tr.OnEvent(domain.PipelineEvent{Kind: domain.EventStepFinished, Stage: domain.StageRouting})
	tr.Finish(domain.Unresolved(""), "t", "r")

	if calls != 1 {
		t.Fatalf("sink should be abandoned after first failure, got %d calls", calls)
	}
}

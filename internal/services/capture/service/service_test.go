package service_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/platform/store"
	"secondbrain/internal/platform/testkit"
	"secondbrain/internal/services/capture/domain"
	"secondbrain/internal/services/capture/filing"
	"secondbrain/internal/services/capture/reconcile"
	"secondbrain/internal/services/capture/service"
)

const user = "will"

// fakeRunner plays back one scripted event sequence per invocation
type fakeRunner struct {
	scripts [][]domain.PipelineEvent
	errs    []error
	reqs    []domain.RunRequest
}

func (f *fakeRunner) Run(_ context.Context, req domain.RunRequest, emit func(domain.PipelineEvent)) error {
	call := len(f.reqs)
	f.reqs = append(f.reqs, req)
	if call < len(f.scripts) {
		for _, ev := range f.scripts[call] {
			emit(ev)
		}
	}
	if call < len(f.errs) {
		return f.errs[call]
	}
	return nil
}

type fakeRecorder struct {
	reasoning [][]string
	anomalies []string
}

func (f *fakeRecorder) Reasoning(_ context.Context, _ string, chunks []string) {
	f.reasoning = append(f.reasoning, chunks)
}

func (f *fakeRecorder) Anomaly(_ context.Context, _ string, kind, _ string) {
	f.anomalies = append(f.anomalies, kind)
}

type fixture struct {
	docs     *testkit.MemDocs
	runner   *fakeRunner
	recorder *fakeRecorder
	svc      *service.Service
}

func newFixture(runner *fakeRunner, cfg service.Config) *fixture {
	docs := testkit.NewMemDocs()
	rec := &fakeRecorder{}
	gateway := filing.New(docs, cfg.Threshold, nil)
	engine := reconcile.New(docs, nil)
	return &fixture{
		docs:     docs,
		runner:   runner,
		recorder: rec,
		svc:      service.New(runner, docs, gateway, engine, rec, cfg, nil),
	}
}

func collect(events *[]domain.ClientEvent) func(domain.ClientEvent) error {
	return func(ev domain.ClientEvent) error {
		*events = append(*events, ev)
		return nil
	}
}

func classifyScript(bucket string, confidence float64, handle string) []domain.PipelineEvent {
	args, _ := json.Marshal(map[string]any{"bucket": bucket, "confidence": confidence, "title": "Note"})
	return []domain.PipelineEvent{
		{Kind: domain.EventStepStarted, Stage: domain.StageRouting, Handle: handle},
		{Kind: domain.EventStepFinished, Stage: domain.StageRouting, Handle: handle},
		{Kind: domain.EventStepStarted, Stage: domain.StageClassification, Handle: handle},
		{Kind: domain.EventText, Stage: domain.StageClassification, Text: "weighing options", Handle: handle},
		{Kind: domain.EventToolCall, Stage: domain.StageClassification, Tool: "classify_and_file", Args: args, Handle: handle},
		{Kind: domain.EventStepFinished, Stage: domain.StageClassification, Handle: handle},
	}
}

func clarifyScript(question, handle string) []domain.PipelineEvent {
	args, _ := json.Marshal(map[string]any{"question_text": question})
	return []domain.PipelineEvent{
		{Kind: domain.EventStepStarted, Stage: domain.StageClassification, Handle: handle},
		{Kind: domain.EventToolCall, Stage: domain.StageClassification, Tool: "request_clarification", Args: args, Handle: handle},
		{Kind: domain.EventStepFinished, Stage: domain.StageClassification, Handle: handle},
	}
}

func terminalOf(t *testing.T, events []domain.ClientEvent) domain.ClientEvent {
	t.Helper()
	if len(events) < 2 {
		t.Fatalf("short stream: %+v", events)
	}
	last := events[len(events)-1]
	if last.Type != domain.TypeComplete {
		t.Fatalf("stream must end with COMPLETE, got %s", last.Type)
	}
	if !strings.HasPrefix(last.ThreadID, "thread-") || !strings.HasPrefix(last.RunID, "run-") {
		t.Fatalf("COMPLETE ids malformed: %+v", last)
	}
	return events[len(events)-2]
}

func inboxDocs(t *testing.T, docs *testkit.MemDocs) []domain.Capture {
	t.Helper()
	var out []domain.Capture
	for _, raw := range docs.Dump(store.ContainerInbox, user) {
		var c domain.Capture
		if err := json.Unmarshal(raw, &c); err != nil {
			t.Fatalf("decode inbox doc: %v", err)
		}
		out = append(out, c)
	}
	return out
}

func TestCaptureConfidentNoteIsClassified(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		classifyScript("Admin", 0.95, "conv-1"),
	}}, service.Config{Threshold: 0.6})

	var events []domain.ClientEvent
	if err := f.svc.Capture(context.Background(), user, "renew car registration", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	term := terminalOf(t, events)
	if term.Type != domain.TypeClassified {
		t.Fatalf("terminal %s", term.Type)
	}
	val := term.Value.(domain.ClassifiedValue)
	if val.Bucket != "Admin" || val.Confidence != 0.95 || val.InboxItemID == "" {
		t.Fatalf("classified payload wrong: %+v", val)
	}

	caps := inboxDocs(t, f.docs)
	if len(caps) != 1 || caps[0].Status != domain.StatusClassified {
		t.Fatalf("capture not persisted as classified: %+v", caps)
	}
	if got := f.docs.Dump(store.ContainerAdmin, user); len(got) != 1 {
		t.Fatalf("bucket record missing")
	}
	if len(f.recorder.reasoning) != 1 {
		t.Fatalf("classification reasoning must reach the audit sink")
	}
	for _, ev := range events {
		if ev.Type != domain.TypeStepStart && ev.Type != domain.TypeStepEnd &&
			ev.Type != domain.TypeClassified && ev.Type != domain.TypeComplete {
			t.Fatalf("unexpected event on stream: %+v", ev)
		}
	}
}

func TestCaptureLowConfidenceStillFiledAsPending(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		classifyScript("Ideas", 0.55, "conv-1"),
	}}, service.Config{Threshold: 0.6})

	var events []domain.ClientEvent
	if err := f.svc.Capture(context.Background(), user, "maybe an app for plant watering", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	term := terminalOf(t, events)
	if term.Type != domain.TypeClassified {
		t.Fatalf("low confidence still streams CLASSIFIED, got %s", term.Type)
	}
	caps := inboxDocs(t, f.docs)
	if len(caps) != 1 || caps[0].Status != domain.StatusPending {
		t.Fatalf("expected pending capture: %+v", caps)
	}
	if got := f.docs.Dump(store.ContainerIdeas, user); len(got) != 1 {
		t.Fatalf("pending captures are still filed to their bucket")
	}
}

func TestCaptureThenFollowUpKeepsOriginalID(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		clarifyScript("Which person do you mean?", "conv-1"),
		classifyScript("People", 0.85, "conv-1"),
	}}, service.Config{Threshold: 0.6, MaxRounds: 2})
	ctx := context.Background()

	var first []domain.ClientEvent
	if err := f.svc.Capture(ctx, user, "the thing with the guy", collect(&first)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	term := terminalOf(t, first)
	if term.Type != domain.TypeMisunderstood {
		t.Fatalf("terminal %s", term.Type)
	}
	mv := term.Value.(domain.MisunderstoodValue)
	if mv.QuestionText != "Which person do you mean?" || mv.InboxItemID == "" {
		t.Fatalf("misunderstood payload wrong: %+v", mv)
	}
	if mv.ThreadID == "" {
		t.Fatalf("misunderstood payload must carry the thread id")
	}

	var second []domain.ClientEvent
	if err := f.svc.FollowUp(ctx, user, mv.InboxItemID, "it was Sam from the gym", collect(&second)); err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	term = terminalOf(t, second)
	if term.Type != domain.TypeClassified {
		t.Fatalf("terminal %s", term.Type)
	}
	cv := term.Value.(domain.ClassifiedValue)
	if cv.InboxItemID != mv.InboxItemID {
		t.Fatalf("follow-up must reference the original capture id")
	}

	caps := inboxDocs(t, f.docs)
	if len(caps) != 1 {
		t.Fatalf("expected exactly one inbox document, found %d", len(caps))
	}
	if caps[0].Status != domain.StatusClassified || caps[0].Round != 1 {
		t.Fatalf("original capture not updated in place: %+v", caps[0])
	}

	if len(f.runner.reqs) != 2 {
		t.Fatalf("expected two pipeline runs")
	}
	follow := f.runner.reqs[1]
	if follow.ConversationHandle != "conv-1" {
		t.Fatalf("conversation handle not threaded: %+v", follow)
	}
	if !strings.Contains(follow.Text, "the thing with the guy") ||
		!strings.Contains(follow.Text, "User clarification: it was Sam from the gym") {
		t.Fatalf("combined text wrong: %q", follow.Text)
	}
}

func TestFollowUpRoundsExhaustedForcesUnresolved(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		clarifyScript("Which thing?", "conv-1"),
		clarifyScript("Still unclear, which thing?", "conv-1"),
		clarifyScript("I still cannot tell", "conv-1"),
	}}, service.Config{Threshold: 0.6, MaxRounds: 2})
	ctx := context.Background()

	var events []domain.ClientEvent
	if err := f.svc.Capture(ctx, user, "handle the thing", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	id := terminalOf(t, events).Value.(domain.MisunderstoodValue).InboxItemID

	// round 1: still below the cap, loops again
	events = nil
	if err := f.svc.FollowUp(ctx, user, id, "the house thing", collect(&events)); err != nil {
		t.Fatalf("follow-up 1: %v", err)
	}
	if term := terminalOf(t, events); term.Type != domain.TypeMisunderstood {
		t.Fatalf("round 1 should loop, got %s", term.Type)
	}

	// round 2: cap hit, clarification overridden
	events = nil
	if err := f.svc.FollowUp(ctx, user, id, "you know, the thing", collect(&events)); err != nil {
		t.Fatalf("follow-up 2: %v", err)
	}
	term := terminalOf(t, events)
	if term.Type != domain.TypeUnresolved {
		t.Fatalf("round cap must force UNRESOLVED, got %s", term.Type)
	}
	if term.Value.(domain.UnresolvedValue).InboxItemID != id {
		t.Fatalf("forced unresolved must reference the original capture")
	}

	caps := inboxDocs(t, f.docs)
	if len(caps) != 1 || caps[0].Status != domain.StatusUnresolved {
		t.Fatalf("capture not forced unresolved: %+v", caps)
	}

	// terminal state rejects any further follow-up
	err := f.svc.FollowUp(ctx, user, id, "one more try", collect(&events))
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestCaptureNoToolEndsUnresolvedWithoutPersisting(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		{
			{Kind: domain.EventStepStarted, Stage: domain.StageClassification},
			{Kind: domain.EventText, Stage: domain.StageClassification, Text: "I am not sure"},
			{Kind: domain.EventStepFinished, Stage: domain.StageClassification},
		},
	}}, service.Config{Threshold: 0.6})

	var events []domain.ClientEvent
	if err := f.svc.Capture(context.Background(), user, "???", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	term := terminalOf(t, events)
	if term.Type != domain.TypeUnresolved {
		t.Fatalf("terminal %s", term.Type)
	}
	if term.Value.(domain.UnresolvedValue).InboxItemID != "" {
		t.Fatalf("no persistence means no id on the event")
	}
	if got := f.docs.Dump(store.ContainerInbox, user); len(got) != 0 {
		t.Fatalf("nothing should be persisted, found %d docs", len(got))
	}
}

func TestCaptureInvalidBucketEndsUnresolvedNotError(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		classifyScript("Nonsense", 0.9, "conv-1"),
	}}, service.Config{Threshold: 0.6})

	var events []domain.ClientEvent
	if err := f.svc.Capture(context.Background(), user, "file this somewhere", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}

	term := terminalOf(t, events)
	if term.Type != domain.TypeUnresolved {
		t.Fatalf("filing failure must end as UNRESOLVED, got %s", term.Type)
	}
	if term.Value.(domain.UnresolvedValue).InboxItemID != "" {
		t.Fatalf("nothing persisted means no id on the event")
	}
	for _, ev := range events {
		if ev.Type == domain.TypeError {
			t.Fatalf("ERROR is reserved for pipeline failures: %+v", ev)
		}
	}
	if got := f.docs.Dump(store.ContainerInbox, user); len(got) != 0 {
		t.Fatalf("rejected filing must not persist, found %d docs", len(got))
	}
}

func TestFollowUpFilingFailureLeavesOriginalRetryable(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		clarifyScript("Which one?", "conv-1"),
		classifyScript("Nonsense", 0.9, "conv-1"),
	}}, service.Config{Threshold: 0.6, MaxRounds: 2})
	ctx := context.Background()

	var events []domain.ClientEvent
	if err := f.svc.Capture(ctx, user, "sort the thing", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	id := terminalOf(t, events).Value.(domain.MisunderstoodValue).InboxItemID

	events = nil
	if err := f.svc.FollowUp(ctx, user, id, "the other thing", collect(&events)); err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	term := terminalOf(t, events)
	if term.Type != domain.TypeUnresolved {
		t.Fatalf("filing failure must end as UNRESOLVED, got %s", term.Type)
	}
	if term.Value.(domain.UnresolvedValue).InboxItemID != id {
		t.Fatalf("event must reference the original capture")
	}

	caps := inboxDocs(t, f.docs)
	if len(caps) != 1 || caps[0].Status != domain.StatusMisunderstood || caps[0].Round != 1 {
		t.Fatalf("original must stay parked with the round consumed: %+v", caps)
	}
	if err := f.svc.FollowUp(ctx, user, id, "try again", collect(&events)); err != nil {
		t.Fatalf("a round must remain after a filing failure below the cap: %v", err)
	}
}

func TestFollowUpNoToolAtCapForcesUnresolved(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		clarifyScript("Which thing?", "conv-1"),
		{
			{Kind: domain.EventStepStarted, Stage: domain.StageClassification},
			{Kind: domain.EventText, Stage: domain.StageClassification, Text: "still lost"},
			{Kind: domain.EventStepFinished, Stage: domain.StageClassification},
		},
	}}, service.Config{Threshold: 0.6, MaxRounds: 1})
	ctx := context.Background()

	var events []domain.ClientEvent
	if err := f.svc.Capture(ctx, user, "deal with it", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	id := terminalOf(t, events).Value.(domain.MisunderstoodValue).InboxItemID

	events = nil
	if err := f.svc.FollowUp(ctx, user, id, "you know which", collect(&events)); err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	term := terminalOf(t, events)
	if term.Type != domain.TypeUnresolved {
		t.Fatalf("spent cap must go terminal, got %s", term.Type)
	}
	if term.Value.(domain.UnresolvedValue).InboxItemID != id {
		t.Fatalf("forced unresolved must reference the original capture")
	}

	caps := inboxDocs(t, f.docs)
	if len(caps) != 1 || caps[0].Status != domain.StatusUnresolved {
		t.Fatalf("capture must not stay misunderstood past the cap: %+v", caps)
	}
	err := f.svc.FollowUp(ctx, user, id, "once more", collect(&events))
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestLegacyJunkFollowUpRecordsOrphanAnomaly(t *testing.T) {
	junkArgs, _ := json.Marshal(map[string]any{"raw_text": "asdfgh"})
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		clarifyScript("What is this?", "conv-1"),
		{
			{Kind: domain.EventStepStarted, Stage: domain.StageClassification},
			{Kind: domain.EventToolCall, Stage: domain.StageClassification, Tool: "mark_as_junk", Args: junkArgs},
			{Kind: domain.EventStepFinished, Stage: domain.StageClassification},
		},
	}}, service.Config{Threshold: 0.6, MaxRounds: 2, LegacyReconcile: true})
	ctx := context.Background()

	var events []domain.ClientEvent
	if err := f.svc.Capture(ctx, user, "asdfgh", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	id := terminalOf(t, events).Value.(domain.MisunderstoodValue).InboxItemID

	events = nil
	if err := f.svc.FollowUp(ctx, user, id, "no really, asdfgh", collect(&events)); err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	term := terminalOf(t, events)
	if term.Type != domain.TypeUnresolved {
		t.Fatalf("terminal %s", term.Type)
	}
	if term.Value.(domain.UnresolvedValue).InboxItemID != id {
		t.Fatalf("event must reference the original capture")
	}

	found := false
	for _, kind := range f.recorder.anomalies {
		if kind == "unreconciled_orphan" {
			found = true
		}
	}
	if !found {
		t.Fatalf("leftover junk capture must be recorded: %v", f.recorder.anomalies)
	}
	if caps := inboxDocs(t, f.docs); len(caps) != 2 {
		t.Fatalf("expected original plus unmerged junk capture, got %d", len(caps))
	}
}

func TestCaptureJunkSurfacesAsUnresolvedButIsKept(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"raw_text": "asdfgh"})
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		{
			{Kind: domain.EventStepStarted, Stage: domain.StageClassification},
			{Kind: domain.EventToolCall, Stage: domain.StageClassification, Tool: "mark_as_junk", Args: args},
			{Kind: domain.EventStepFinished, Stage: domain.StageClassification},
		},
	}}, service.Config{Threshold: 0.6})

	var events []domain.ClientEvent
	if err := f.svc.Capture(context.Background(), user, "asdfgh", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	term := terminalOf(t, events)
	if term.Type != domain.TypeUnresolved {
		t.Fatalf("terminal %s", term.Type)
	}
	caps := inboxDocs(t, f.docs)
	if len(caps) != 1 || caps[0].Status != domain.StatusUnclassified {
		t.Fatalf("junk must be kept unclassified: %+v", caps)
	}
	if term.Value.(domain.UnresolvedValue).InboxItemID != caps[0].ID {
		t.Fatalf("unresolved event must reference the kept capture")
	}
}

func TestCaptureRunFailureStreamsErrorThenComplete(t *testing.T) {
	f := newFixture(&fakeRunner{
		scripts: [][]domain.PipelineEvent{{
			{Kind: domain.EventStepStarted, Stage: domain.StageRouting},
		}},
		errs: []error{context.DeadlineExceeded},
	}, service.Config{Threshold: 0.6})

	var events []domain.ClientEvent
	if err := f.svc.Capture(context.Background(), user, "x", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	term := terminalOf(t, events)
	if term.Type != domain.TypeError {
		t.Fatalf("terminal %s", term.Type)
	}
	if !strings.Contains(term.Message, "timed out") {
		t.Fatalf("timeout message lost: %q", term.Message)
	}
}

func TestFollowUpUnknownCaptureRejected(t *testing.T) {
	f := newFixture(&fakeRunner{}, service.Config{Threshold: 0.6})
	var events []domain.ClientEvent
	err := f.svc.FollowUp(context.Background(), user, "missing", "text", collect(&events))
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("rejected follow-ups must not stream")
	}
}

func TestLegacyReconcileMergesOrphanOntoOriginal(t *testing.T) {
	f := newFixture(&fakeRunner{scripts: [][]domain.PipelineEvent{
		clarifyScript("Which person?", "conv-1"),
		classifyScript("People", 0.85, "conv-1"),
	}}, service.Config{Threshold: 0.6, MaxRounds: 2, LegacyReconcile: true})
	ctx := context.Background()

	var events []domain.ClientEvent
	if err := f.svc.Capture(ctx, user, "call them", collect(&events)); err != nil {
		t.Fatalf("capture: %v", err)
	}
	id := terminalOf(t, events).Value.(domain.MisunderstoodValue).InboxItemID

	events = nil
	if err := f.svc.FollowUp(ctx, user, id, "Sam", collect(&events)); err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	term := terminalOf(t, events)
	if term.Type != domain.TypeClassified {
		t.Fatalf("terminal %s", term.Type)
	}
	if term.Value.(domain.ClassifiedValue).InboxItemID != id {
		t.Fatalf("legacy merge must still reference the original id")
	}

	caps := inboxDocs(t, f.docs)
	if len(caps) != 1 || caps[0].ID != id {
		t.Fatalf("orphan not merged away: %+v", caps)
	}
	if caps[0].Status != domain.StatusClassified {
		t.Fatalf("merged status wrong: %s", caps[0].Status)
	}

	people, _ := f.docs.Container(store.ContainerPeople)
	raw, err := people.Read(ctx, user, caps[0].FiledRecordID)
	if err != nil {
		t.Fatalf("bucket record missing: %v", err)
	}
	var rec domain.BucketRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.InboxRecordID != id {
		t.Fatalf("bucket record not repointed at original: %s", rec.InboxRecordID)
	}
}

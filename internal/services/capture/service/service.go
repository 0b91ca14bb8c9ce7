// Package service orchestrates one capture run end to end: pipeline,
// stream translation, outcome detection, filing, and reconciliation
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/platform/logger"
	"secondbrain/internal/platform/store"
	"secondbrain/internal/services/capture/domain"
	"secondbrain/internal/services/capture/filing"
	"secondbrain/internal/services/capture/outcome"
	"secondbrain/internal/services/capture/reconcile"
	"secondbrain/internal/services/capture/retry"
	"secondbrain/internal/services/capture/stream"
)

// DefaultRunTimeout bounds one pipeline run
const DefaultRunTimeout = 60 * time.Second

// Config tunes the orchestration
type Config struct {
	Threshold  float64
	MaxRounds  int
	RunTimeout time.Duration

	// LegacyReconcile switches follow-up persistence from in-place updates
	// to the orphan-and-merge scheme kept for parity with older deployments
	LegacyReconcile bool
}

// Service runs captures and follow-ups against a sink of client events
// Filing commits the moment the first recognized tool call lands, so a
// dropped client connection never suppresses the write
type Service struct {
	runner   domain.Runner
	gateway  *filing.Gateway
	machine  retry.Machine
	engine   *reconcile.Engine
	recorder domain.Recorder
	docs     store.Docs
	cfg      Config
	log      *logger.Logger
}

// New wires a service
func New(
	runner domain.Runner,
	docs store.Docs,
	gateway *filing.Gateway,
	engine *reconcile.Engine,
	recorder domain.Recorder,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if log == nil {
		log = logger.Named("capture")
	}
	return &Service{
		runner:   runner,
		gateway:  gateway,
		machine:  retry.New(cfg.MaxRounds),
		engine:   engine,
		recorder: recorder,
		docs:     docs,
		cfg:      cfg,
		log:      log,
	}
}

// Capture classifies a fresh note, streaming progress to sink
// The stream always terminates with exactly one outcome event then COMPLETE,
// even on pipeline failure
func (s *Service) Capture(ctx context.Context, userID, text string, sink stream.Sink) error {
	threadID := "thread-" + uuid.NewString()
	runID := "run-" + uuid.NewString()
	ctx = logger.WithRequest(ctx, threadID, runID)

	res := s.run(ctx, runID, domain.RunRequest{UserID: userID, Text: text}, filingPlan{
		userID:  userID,
		rawText: text,
	}, sink)

	s.finishInitial(res, threadID, runID)
	return nil
}

// runResult is everything one pipeline run produced
type runResult struct {
	tr        *stream.Translator
	det       outcome.Detection
	detected  bool
	fileRes   filing.FileResult
	fileErr   error
	filed     bool
	runErr    error
	elapsedOK bool
}

// filingPlan is how the detector's first hit gets persisted
type filingPlan struct {
	userID          string
	rawText         string
	round           int
	updateCaptureID string
}

// run drives one pipeline invocation with translation, detection, and
// eager filing wired to the same event callback
func (s *Service) run(ctx context.Context, runID string, req domain.RunRequest, plan filingPlan, sink stream.Sink) *runResult {
	res := &runResult{tr: stream.New(sink)}

	// side effects must survive client disconnects and the run timeout
	effectCtx := context.WithoutCancel(ctx)

	det := outcome.New(
		func(d outcome.Detection) {
			res.det = d
			res.detected = true
			res.fileRes, res.fileErr = s.file(effectCtx, plan, d)
			res.filed = res.fileErr == nil
		},
		func(kind, detail string) {
			s.recorder.Anomaly(effectCtx, runID, kind, detail)
		},
	)

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	res.runErr = s.runner.Run(runCtx, req, func(ev domain.PipelineEvent) {
		res.tr.OnEvent(ev)
		det.OnEvent(ev)
	})

	if chunks := res.tr.Reasoning(); len(chunks) > 0 {
		s.recorder.Reasoning(effectCtx, runID, chunks)
	}
	if !res.detected {
		res.det.Handle = det.Handle()
	}
	return res
}

// file maps a detection onto the gateway
func (s *Service) file(ctx context.Context, plan filingPlan, d outcome.Detection) (filing.FileResult, error) {
	req := filing.FileRequest{
		UserID:          plan.userID,
		RawText:         plan.rawText,
		Source:          "capture",
		Handle:          d.Handle,
		Round:           plan.round,
		UpdateCaptureID: plan.updateCaptureID,
	}
	switch d.Tool {
	case outcome.ToolFile:
		req.Intent = filing.IntentClassify
		req.Bucket = d.Args.Bucket
		req.Confidence = d.Args.Confidence
		req.AllScores = d.Args.Scores()
		req.Title = d.Args.Title
	case outcome.ToolClarify:
		req.Intent = filing.IntentClarify
		req.Question = d.Args.QuestionText
	case outcome.ToolJunk:
		req.Intent = filing.IntentJunk
		req.Title = d.Args.Title
	default:
		return filing.FileResult{}, perr.InvalidArgf("no filing intent for tool %q", d.Tool)
	}
	return s.gateway.File(ctx, req)
}

// finishInitial emits the terminal event for a first-round capture
func (s *Service) finishInitial(res *runResult, threadID, runID string) {
	if res.runErr != nil {
		res.tr.Fail(runErrMessage(res.runErr), threadID, runID)
		return
	}
	if !res.detected {
		// the classifier never committed to a tool; nothing was persisted
		res.tr.Finish(domain.Unresolved(""), threadID, runID)
		return
	}
	if res.fileErr != nil {
		// filing failures are local to this run; the stream still closes
		// with an outcome, and ERROR stays reserved for pipeline failures
		s.log.Error().Err(res.fileErr).Msg("filing failed")
		res.tr.Finish(domain.Unresolved(""), threadID, runID)
		return
	}

	cap := res.fileRes.Capture
	switch res.fileRes.Outcome {
	case domain.OutcomeClassified, domain.OutcomePending:
		meta := cap.ClassificationMeta
		res.tr.Finish(domain.Classified(cap.ID, meta.Bucket, meta.Confidence), threadID, runID)
	case domain.OutcomeMisunderstood:
		res.tr.Finish(domain.Misunderstood(threadID, cap.ID, cap.ClarificationText), threadID, runID)
	default:
		// junk is kept on record but surfaces as unresolved to the client
		res.tr.Finish(domain.Unresolved(cap.ID), threadID, runID)
	}
}

// FollowUp re-runs classification for a misunderstood capture with the
// user's clarification folded into the text
// The emitted events always reference the original capture id
func (s *Service) FollowUp(ctx context.Context, userID, inboxItemID, followUpText string, sink stream.Sink) error {
	original, err := s.readCapture(ctx, userID, inboxItemID)
	if err != nil {
		return err
	}
	if err := s.machine.Accepts(&original); err != nil {
		return err
	}

	threadID := "thread-" + uuid.NewString()
	runID := "run-" + uuid.NewString()
	ctx = logger.WithRequest(ctx, threadID, runID)

	round := s.machine.NextRound(&original)
	original.Round = round
	original.UpdatedAt = time.Now().UTC()
	if err := s.writeCapture(ctx, userID, original); err != nil {
		return err
	}

	combined := fmt.Sprintf("%s\n\n---\nUser clarification: %s", original.RawText, followUpText)
	plan := filingPlan{userID: userID, rawText: combined, round: round}
	if !s.cfg.LegacyReconcile {
		plan.updateCaptureID = original.ID
	}

	res := s.run(ctx, runID, domain.RunRequest{
		UserID:             userID,
		Text:               combined,
		ConversationHandle: original.ConversationHandle,
	}, plan, sink)

	s.finishFollowUp(context.WithoutCancel(ctx), res, userID, original.ID, round, threadID, runID)
	return nil
}

// finishFollowUp evaluates the retry machine, reconciles persistence, and
// emits the terminal event
func (s *Service) finishFollowUp(ctx context.Context, res *runResult, userID, origID string, round int, threadID, runID string) {
	if res.runErr != nil {
		res.tr.Fail(runErrMessage(res.runErr), threadID, runID)
		return
	}
	if res.detected && res.fileErr != nil {
		// local failure; fall through so the round still counts against the
		// cap and the stream closes with an outcome
		s.log.Error().Err(res.fileErr).Msg("follow-up filing failed")
	}

	orphanID := ""
	if s.cfg.LegacyReconcile && res.filed {
		orphanID = res.fileRes.Capture.ID
	}

	kind := domain.OutcomeUnresolved
	if res.detected && res.filed {
		kind = res.fileRes.Outcome
	}
	decision := s.machine.Evaluate(round, kind)

	switch {
	case decision.Forced:
		// the round cap overrides another clarification request
		s.reconcileOrLog(s.engine.ForceUnresolved(ctx, userID, origID, orphanID))
		res.tr.Finish(domain.Unresolved(origID), threadID, runID)

	case decision.Kind == domain.OutcomeClassified || decision.Kind == domain.OutcomePending:
		if s.cfg.LegacyReconcile {
			s.reconcileOrLog(s.engine.MergeFiled(ctx, userID, origID, orphanID))
		}
		meta := res.fileRes.Capture.ClassificationMeta
		res.tr.Finish(domain.Classified(origID, meta.Bucket, meta.Confidence), threadID, runID)

	case decision.Kind == domain.OutcomeMisunderstood:
		if s.cfg.LegacyReconcile {
			s.reconcileOrLog(s.engine.MergeQuestion(ctx, userID, origID, orphanID))
		}
		res.tr.Finish(domain.Misunderstood(threadID, origID, res.fileRes.Capture.ClarificationText), threadID, runID)

	case decision.Kind == domain.OutcomeJunk:
		if orphanID != "" && orphanID != origID {
			// legacy mode never merges a junk follow-up; surface the
			// leftover capture instead of losing track of it
			s.recorder.Anomaly(ctx, runID, "unreconciled_orphan",
				fmt.Sprintf("junk follow-up left capture %s unmerged", orphanID))
		}
		res.tr.Finish(domain.Unresolved(origID), threadID, runID)

	default:
		// no recognized outcome landed this round; the original stays
		// parked for another attempt unless the cap is already spent
		if round >= s.machine.MaxRounds {
			s.reconcileOrLog(s.engine.ForceUnresolved(ctx, userID, origID, orphanID))
		}
		res.tr.Finish(domain.Unresolved(origID), threadID, runID)
	}
}

func (s *Service) readCapture(ctx context.Context, userID, id string) (domain.Capture, error) {
	inbox, err := s.docs.Container(store.ContainerInbox)
	if err != nil {
		return domain.Capture{}, err
	}
	raw, err := inbox.Read(ctx, userID, id)
	if err != nil {
		return domain.Capture{}, err
	}
	var c domain.Capture
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Capture{}, perr.Wrapf(err, perr.ErrorCodeStorage, "decode capture %s", id)
	}
	return c, nil
}

func (s *Service) writeCapture(ctx context.Context, userID string, c domain.Capture) error {
	inbox, err := s.docs.Container(store.ContainerInbox)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "encode capture %s", c.ID)
	}
	return inbox.Upsert(ctx, userID, c.ID, doc)
}

func (s *Service) reconcileOrLog(err error) {
	if err != nil {
		s.log.Warn().Err(err).Msg("reconciliation failed")
	}
}

func runErrMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "classification run timed out"
	}
	return "classification run failed"
}

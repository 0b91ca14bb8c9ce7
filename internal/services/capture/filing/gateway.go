// Package filing persists classification outcomes as inbox and bucket documents
package filing

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/platform/logger"
	"secondbrain/internal/platform/store"
	"secondbrain/internal/services/capture/domain"
)

// DefaultThreshold separates classified from pending captures
const DefaultThreshold = 0.6

// Intent names what the pipeline decided to do with the capture
type Intent uint8

const (
	// IntentClassify files the capture into a bucket
	IntentClassify Intent = iota

	// IntentClarify parks the capture as misunderstood with a question
	IntentClarify

	// IntentJunk keeps the capture for the record without filing it
	IntentJunk
)

// FileRequest is one filing operation
// UpdateCaptureID, when set, updates that existing capture in place instead
// of creating a new inbox document
type FileRequest struct {
	UserID  string
	RawText string
	Source  string
	Intent  Intent

	// classify fields
	Bucket     string
	Confidence float64
	AllScores  map[string]float64
	Title      string

	// clarify fields
	Question string

	Handle          string
	Round           int
	UpdateCaptureID string
}

// FileResult reports what was persisted
type FileResult struct {
	Capture      domain.Capture
	BucketRecord *domain.BucketRecord
	Outcome      domain.OutcomeKind
}

// Gateway is the single write path for captures and bucket records
// Both documents carry each other's id so either side can be walked back
type Gateway struct {
	docs      store.Docs
	threshold float64
	log       *logger.Logger
}

// New builds a gateway; threshold <= 0 uses the default
func New(docs store.Docs, threshold float64, log *logger.Logger) *Gateway {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = logger.Named("filing")
	}
	return &Gateway{docs: docs, threshold: threshold, log: log}
}

// Threshold returns the classified/pending boundary in effect
func (g *Gateway) Threshold() float64 { return g.threshold }

func clamp(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// File validates and persists one outcome
// Validation failures return before anything is written
func (g *Gateway) File(ctx context.Context, req FileRequest) (FileResult, error) {
	switch req.Intent {
	case IntentClassify:
		return g.fileClassify(ctx, req)
	case IntentClarify:
		return g.fileClarify(ctx, req)
	case IntentJunk:
		return g.fileJunk(ctx, req)
	}
	return FileResult{}, perr.InvalidArgf("unknown filing intent %d", req.Intent)
}

func (g *Gateway) fileClassify(ctx context.Context, req FileRequest) (FileResult, error) {
	bucket, ok := domain.ParseBucket(req.Bucket)
	if !ok {
		return FileResult{}, perr.WithField(
			perr.Validationf("bucket %q is not one of People, Projects, Ideas, Admin", req.Bucket),
			"bucket")
	}

	now := time.Now().UTC()
	conf := clamp(req.Confidence)
	meta := &domain.ClassificationMeta{
		Bucket:     bucket,
		Confidence: conf,
		AllScores:  req.AllScores,
		DecidedBy:  "classifier",
		DecidedAt:  now,
	}

	status := domain.StatusClassified
	if conf < g.threshold {
		status = domain.StatusPending
	}

	cap, err := g.loadOrStartCapture(ctx, req, now)
	if err != nil {
		return FileResult{}, err
	}
	recordID := uuid.NewString()

	cap.Status = status
	cap.ClassificationMeta = meta
	cap.FiledRecordID = recordID
	if req.Title != "" {
		cap.Title = req.Title
	}
	cap.ConversationHandle = req.Handle
	cap.Round = req.Round
	cap.UpdatedAt = now

	rec := domain.BucketRecord{
		ID:                 recordID,
		RawText:            cap.RawText,
		InboxRecordID:      cap.ID,
		ClassificationMeta: meta,
		CreatedAt:          now,
	}
	// people records are keyed by a name, the rest by a title
	if bucket == domain.BucketPeople {
		rec.Name = req.Title
	} else {
		rec.Title = req.Title
	}

	if err := g.putCapture(ctx, req.UserID, cap); err != nil {
		return FileResult{}, err
	}
	if err := g.putBucketRecord(ctx, req.UserID, bucket, rec); err != nil {
		return FileResult{}, err
	}

	outcome := domain.OutcomeClassified
	if status == domain.StatusPending {
		outcome = domain.OutcomePending
	}
	g.log.Info().
		Str("capture_id", cap.ID).
		Str("bucket", string(bucket)).
		Float64("confidence", conf).
		Str("status", string(status)).
		Msg("capture filed")
	return FileResult{Capture: cap, BucketRecord: &rec, Outcome: outcome}, nil
}

func (g *Gateway) fileClarify(ctx context.Context, req FileRequest) (FileResult, error) {
	now := time.Now().UTC()
	cap, err := g.loadOrStartCapture(ctx, req, now)
	if err != nil {
		return FileResult{}, err
	}

	cap.Status = domain.StatusMisunderstood
	cap.ClarificationText = req.Question
	cap.ConversationHandle = req.Handle
	cap.Round = req.Round
	cap.UpdatedAt = now

	if err := g.putCapture(ctx, req.UserID, cap); err != nil {
		return FileResult{}, err
	}
	g.log.Info().Str("capture_id", cap.ID).Int("round", cap.Round).Msg("capture parked for clarification")
	return FileResult{Capture: cap, Outcome: domain.OutcomeMisunderstood}, nil
}

func (g *Gateway) fileJunk(ctx context.Context, req FileRequest) (FileResult, error) {
	now := time.Now().UTC()
	cap, err := g.loadOrStartCapture(ctx, req, now)
	if err != nil {
		return FileResult{}, err
	}

	cap.Status = domain.StatusUnclassified
	if req.Title != "" {
		cap.Title = req.Title
	}
	cap.ConversationHandle = req.Handle
	cap.Round = req.Round
	cap.UpdatedAt = now

	if err := g.putCapture(ctx, req.UserID, cap); err != nil {
		return FileResult{}, err
	}
	g.log.Info().Str("capture_id", cap.ID).Msg("capture kept as junk")
	return FileResult{Capture: cap, Outcome: domain.OutcomeJunk}, nil
}

// loadOrStartCapture returns the existing capture named by UpdateCaptureID or
// a fresh one for the raw text
func (g *Gateway) loadOrStartCapture(ctx context.Context, req FileRequest, now time.Time) (domain.Capture, error) {
	if req.UpdateCaptureID == "" {
		return domain.Capture{
			ID:        uuid.NewString(),
			RawText:   req.RawText,
			Source:    req.Source,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}

	inbox, err := g.docs.Container(store.ContainerInbox)
	if err != nil {
		return domain.Capture{}, err
	}
	raw, err := inbox.Read(ctx, req.UserID, req.UpdateCaptureID)
	if err != nil {
		return domain.Capture{}, err
	}
	var cap domain.Capture
	if err := json.Unmarshal(raw, &cap); err != nil {
		return domain.Capture{}, perr.Wrapf(err, perr.ErrorCodeStorage, "decode capture %s", req.UpdateCaptureID)
	}
	return cap, nil
}

func (g *Gateway) putCapture(ctx context.Context, userID string, cap domain.Capture) error {
	inbox, err := g.docs.Container(store.ContainerInbox)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(cap)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "encode capture %s", cap.ID)
	}
	return inbox.Upsert(ctx, userID, cap.ID, doc)
}

func (g *Gateway) putBucketRecord(ctx context.Context, userID string, bucket domain.Bucket, rec domain.BucketRecord) error {
	c, err := g.docs.Container(bucket.Container())
	if err != nil {
		return err
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "encode bucket record %s", rec.ID)
	}
	return c.Create(ctx, userID, rec.ID, doc)
}

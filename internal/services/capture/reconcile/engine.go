// Package reconcile repairs orphan inbox documents left by follow-up runs
// that filed a fresh capture instead of updating the original in place
package reconcile

import (
	"context"
	"encoding/json"

	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/platform/logger"
	"secondbrain/internal/platform/store"
	"secondbrain/internal/services/capture/domain"
)

// Engine merges orphan captures back onto their originals
// Every method is best effort: failures are logged and returned, but callers
// must never surface them on a client stream
type Engine struct {
	docs store.Docs
	log  *logger.Logger
}

// New builds an engine
func New(docs store.Docs, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Named("reconcile")
	}
	return &Engine{docs: docs, log: log}
}

// MergeFiled folds a filed orphan onto the original capture
// The original takes the orphan's classification, filed record id, title, and
// status; the orphan is deleted and its bucket record repointed at the
// original. orphanID may be empty, in which case the newest inbox document
// other than the original is assumed to be the orphan
func (e *Engine) MergeFiled(ctx context.Context, userID, originalID, orphanID string) error {
	original, err := e.readCapture(ctx, userID, originalID)
	if err != nil {
		return e.fail(err, originalID, "merge: original missing")
	}
	orphan, err := e.findOrphan(ctx, userID, originalID, orphanID)
	if err != nil {
		return e.fail(err, originalID, "merge: orphan missing")
	}

	original.Status = orphan.Status
	original.ClassificationMeta = orphan.ClassificationMeta
	original.FiledRecordID = orphan.FiledRecordID
	if orphan.Title != "" {
		original.Title = orphan.Title
	}
	original.Round = orphan.Round
	original.UpdatedAt = orphan.UpdatedAt

	if err := e.writeCapture(ctx, userID, original); err != nil {
		return e.fail(err, originalID, "merge: write original")
	}
	if orphan.ID != originalID {
		if err := e.deleteCapture(ctx, userID, orphan.ID); err != nil {
			e.fail(err, originalID, "merge: delete orphan")
		}
	}
	if err := e.repointBucketRecord(ctx, userID, original); err != nil {
		return e.fail(err, originalID, "merge: repoint bucket record")
	}

	e.log.Info().
		Str("original_id", originalID).
		Str("orphan_id", orphan.ID).
		Msg("orphan capture merged onto original")
	return nil
}

// MergeQuestion folds a repeat-clarification orphan onto the original
// The original keeps its id and stays misunderstood; it takes the orphan's
// question, conversation handle, and round. The orphan is deleted
func (e *Engine) MergeQuestion(ctx context.Context, userID, originalID, orphanID string) error {
	original, err := e.readCapture(ctx, userID, originalID)
	if err != nil {
		return e.fail(err, originalID, "question merge: original missing")
	}
	orphan, err := e.findOrphan(ctx, userID, originalID, orphanID)
	if err != nil {
		return e.fail(err, originalID, "question merge: orphan missing")
	}

	original.Status = domain.StatusMisunderstood
	original.ClarificationText = orphan.ClarificationText
	original.ConversationHandle = orphan.ConversationHandle
	original.Round = orphan.Round
	original.UpdatedAt = orphan.UpdatedAt

	if err := e.writeCapture(ctx, userID, original); err != nil {
		return e.fail(err, originalID, "question merge: write original")
	}
	if orphan.ID != originalID {
		if err := e.deleteCapture(ctx, userID, orphan.ID); err != nil {
			e.fail(err, originalID, "question merge: delete orphan")
		}
	}
	return nil
}

// ForceUnresolved marks the original capture unresolved and removes the
// orphan, if one exists. Used when the round cap overrides a repeat question
func (e *Engine) ForceUnresolved(ctx context.Context, userID, originalID, orphanID string) error {
	original, err := e.readCapture(ctx, userID, originalID)
	if err != nil {
		return e.fail(err, originalID, "force unresolved: original missing")
	}

	original.Status = domain.StatusUnresolved
	if err := e.writeCapture(ctx, userID, original); err != nil {
		return e.fail(err, originalID, "force unresolved: write original")
	}
	if orphanID != "" && orphanID != originalID {
		if err := e.deleteCapture(ctx, userID, orphanID); err != nil {
			e.fail(err, originalID, "force unresolved: delete orphan")
		}
	}
	e.log.Info().Str("original_id", originalID).Msg("capture forced to unresolved")
	return nil
}

// findOrphan loads the orphan by id, or falls back to the newest inbox
// document other than the original when the id is unknown
func (e *Engine) findOrphan(ctx context.Context, userID, originalID, orphanID string) (domain.Capture, error) {
	if orphanID != "" {
		return e.readCapture(ctx, userID, orphanID)
	}
	inbox, err := e.docs.Container(store.ContainerInbox)
	if err != nil {
		return domain.Capture{}, err
	}
	raw, err := inbox.NewestExcluding(ctx, userID, originalID)
	if err != nil {
		return domain.Capture{}, err
	}
	var c domain.Capture
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Capture{}, perr.Wrapf(err, perr.ErrorCodeStorage, "decode orphan capture")
	}
	return c, nil
}

func (e *Engine) repointBucketRecord(ctx context.Context, userID string, cap domain.Capture) error {
	if cap.FiledRecordID == "" || cap.ClassificationMeta == nil {
		return nil
	}
	c, err := e.docs.Container(cap.ClassificationMeta.Bucket.Container())
	if err != nil {
		return err
	}
	raw, err := c.Read(ctx, userID, cap.FiledRecordID)
	if err != nil {
		return err
	}
	var rec domain.BucketRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "decode bucket record %s", cap.FiledRecordID)
	}
	if rec.InboxRecordID == cap.ID {
		return nil
	}
	rec.InboxRecordID = cap.ID
	doc, err := json.Marshal(rec)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "encode bucket record %s", rec.ID)
	}
	return c.Upsert(ctx, userID, rec.ID, doc)
}

func (e *Engine) readCapture(ctx context.Context, userID, id string) (domain.Capture, error) {
	inbox, err := e.docs.Container(store.ContainerInbox)
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

func (e *Engine) writeCapture(ctx context.Context, userID string, cap domain.Capture) error {
	inbox, err := e.docs.Container(store.ContainerInbox)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(cap)
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeStorage, "encode capture %s", cap.ID)
	}
	return inbox.Upsert(ctx, userID, cap.ID, doc)
}

func (e *Engine) deleteCapture(ctx context.Context, userID, id string) error {
	inbox, err := e.docs.Container(store.ContainerInbox)
	if err != nil {
		return err
	}
	return inbox.Delete(ctx, userID, id)
}

func (e *Engine) fail(err error, originalID, msg string) error {
	e.log.Warn().Err(err).Str("original_id", originalID).Msg(msg)
	return err
}

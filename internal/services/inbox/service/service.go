// Package service implements inbox reads and cascading deletes
package service

import (
	"context"
	"encoding/json"

	perr "secondbrain/internal/platform/errors"
	"secondbrain/internal/platform/logger"
	capdomain "secondbrain/internal/services/capture/domain"
	"secondbrain/internal/services/inbox/repo"
)

// DefaultLimit caps unspecified list sizes
const DefaultLimit = 50

// Service reads and removes captures
type Service struct {
	repo repo.Inbox
	log  *logger.Logger
}

// New builds a service over a bound inbox repo
func New(r repo.Inbox, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Named("inbox")
	}
	return &Service{repo: r, log: log}
}

// List returns the newest captures for a user
func (s *Service) List(ctx context.Context, userID string, limit int) ([]capdomain.Capture, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	raws, err := s.repo.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]capdomain.Capture, 0, len(raws))
	for _, raw := range raws {
		var c capdomain.Capture
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeStorage, "decode capture")
		}
		out = append(out, c)
	}
	return out, nil
}

// Get returns one capture
func (s *Service) Get(ctx context.Context, userID, id string) (capdomain.Capture, error) {
	raw, err := s.repo.Read(ctx, userID, id)
	if err != nil {
		return capdomain.Capture{}, err
	}
	var c capdomain.Capture
	if err := json.Unmarshal(raw, &c); err != nil {
		return capdomain.Capture{}, perr.Wrapf(err, perr.ErrorCodeStorage, "decode capture %s", id)
	}
	return c, nil
}

// Delete removes a capture and, when it was filed, its bucket record
// A missing bucket record is tolerated so the cascade can be retried; a
// missing capture is still a not found
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if c.FiledRecordID != "" && c.ClassificationMeta != nil {
		err := s.repo.DeleteBucketRecord(ctx, userID, c.ClassificationMeta.Bucket, c.FiledRecordID)
		if err != nil {
			if !perr.IsCode(err, perr.ErrorCodeNotFound) {
				return err
			}
			s.log.Warn().
				Str("capture_id", id).
				Str("record_id", c.FiledRecordID).
				Msg("bucket record already gone")
		}
	}

	return s.repo.Delete(ctx, userID, id)
}

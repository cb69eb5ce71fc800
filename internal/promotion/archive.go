package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ArchiveKey is the object key of a CR text; kind is "stage" or "prod".
func ArchiveKey(eventID int64, kind string) string {
	return fmt.Sprintf("patch-events/%d/%s-cr.txt", eventID, kind)
}

type ArchiveStats struct {
	Events   int
	Uploaded int
	Failed   int
}

// ArchiveAll re-uploads every stored CR summary, batchSize events at a time.
// maxEvents caps the run; zero means no cap. Upload failures are counted and
// logged, listing failures abort.
func (s *Service) ArchiveAll(ctx context.Context, batchSize, maxEvents int) (ArchiveStats, error) {
	var st ArchiveStats
	if s.archive == nil {
		return st, errors.New("archive is not configured")
	}
	if batchSize <= 0 {
		batchSize = 25
	}

	var afterID int64
	for {
		if maxEvents > 0 && st.Events >= maxEvents {
			break
		}
		limit := batchSize
		if maxEvents > 0 && st.Events+limit > maxEvents {
			limit = maxEvents - st.Events
		}

		listCtx, listCancel := context.WithTimeout(ctx, 20*time.Second)
		candidates, err := s.store.ListArchiveCandidates(listCtx, afterID, limit)
		listCancel()
		if err != nil {
			return st, fmt.Errorf("list archive candidates: %w", err)
		}
		if len(candidates) == 0 {
			break
		}

		for _, ev := range candidates {
			afterID = ev.ID
			st.Events++
			for kind, text := range map[string]*string{"stage": ev.StageCRSummary, "prod": ev.ProdCRSummary} {
				if text == nil {
					continue
				}
				key := ArchiveKey(ev.ID, kind)
				upCtx, upCancel := context.WithTimeout(ctx, time.Minute)
				err := s.archive.UploadText(upCtx, key, *text)
				upCancel()
				if err != nil {
					st.Failed++
					s.log.Warn("archive upload failed", zap.Int64("event_id", ev.ID), zap.String("key", key), zap.Error(err))
					continue
				}
				st.Uploaded++
			}
		}
	}

	s.log.Info("archive complete",
		zap.Int("events", st.Events),
		zap.Int("uploaded", st.Uploaded),
		zap.Int("failed", st.Failed))
	return st, nil
}

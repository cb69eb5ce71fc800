package promotion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourorg/patch-tracker/internal/evidence"
	"github.com/yourorg/patch-tracker/internal/lifecycle"
	"github.com/yourorg/patch-tracker/internal/logging"
	"github.com/yourorg/patch-tracker/internal/model"
	"github.com/yourorg/patch-tracker/internal/repo"
	"github.com/yourorg/patch-tracker/internal/report"
	"github.com/yourorg/patch-tracker/internal/synthetic"
)

// Archiver receives a copy of every generated CR text.
type Archiver interface {
	UploadText(ctx context.Context, key, text string) error
}

type Options struct {
	BeforeCount   int
	AfterMinRatio float64
	AfterMaxRatio float64
	Now           func() time.Time
}

// Outcome is the disposition of a successful operation.
type Outcome struct {
	EventID     int64  `json:"event_id" yaml:"event_id"`
	OperationID string `json:"operation_id" yaml:"operation_id"`
	Message     string `json:"message" yaml:"message"`
}

type Service struct {
	store   repo.Store
	gen     *synthetic.Generator
	machine *lifecycle.Machine
	archive Archiver
	log     *zap.Logger
	opts    Options
}

// New wires a Service. It returns nil without a store. A nil generator is
// clock seeded, a nil machine has no hooks, and a nil archiver disables
// archiving.
func New(store repo.Store, gen *synthetic.Generator, machine *lifecycle.Machine, archive Archiver, logger *zap.Logger, opts Options) *Service {
	if store == nil {
		return nil
	}
	if gen == nil {
		gen = synthetic.New(nil)
	}
	if machine == nil {
		machine = lifecycle.NewMachine()
	}
	logger = logging.OrNop(logger)
	if opts.BeforeCount <= 0 {
		opts.BeforeCount = synthetic.DefaultBeforeCount
	}
	if opts.AfterMinRatio == 0 && opts.AfterMaxRatio == 0 {
		opts.AfterMinRatio = synthetic.DefaultMinRemainingRatio
		opts.AfterMaxRatio = synthetic.DefaultMaxRemainingRatio
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:   store,
		gen:     gen,
		machine: machine,
		archive: archive,
		log:     logger,
		opts:    opts,
	}
}

// step is the body of one operation. It returns the success message.
type step func(ctx context.Context, tx repo.Tx, event *model.PatchEvent, opID string) (string, error)

func (s *Service) run(ctx context.Context, op string, eventID int64, fn step) (Outcome, error) {
	opID := uuid.NewString()
	log := s.log.With(zap.String("op", op), zap.Int64("event_id", eventID), zap.String("operation_id", opID))

	var msg string
	err := s.store.WithinEvent(ctx, eventID, func(ctx context.Context, tx repo.Tx) error {
		event, err := tx.GetPatchEvent(ctx, eventID)
		if err != nil {
			return err
		}
		msg, err = fn(ctx, tx, &event, opID)
		return err
	})
	if err != nil {
		if isRecoverable(err) {
			log.Info("operation refused", zap.Error(err))
		} else {
			log.Error("operation failed", zap.Error(err))
		}
		return Outcome{}, err
	}
	log.Info(msg)
	return Outcome{EventID: eventID, OperationID: opID, Message: msg}, nil
}

func isRecoverable(err error) bool {
	return errors.Is(err, ErrPreconditionNotMet) ||
		errors.Is(err, lifecycle.ErrInvalidTransition) ||
		errors.Is(err, repo.ErrNotFound)
}

// GenerateBeforeSnapshot replaces the BEFORE snapshot of the event.
func (s *Service) GenerateBeforeSnapshot(ctx context.Context, eventID int64) (Outcome, error) {
	return s.run(ctx, "generate_before", eventID, func(ctx context.Context, tx repo.Tx, event *model.PatchEvent, _ string) (string, error) {
		if _, err := s.gen.GenerateBefore(ctx, tx, *event, s.opts.BeforeCount); err != nil {
			return "", err
		}
		return "Synthetic BEFORE snapshot generated with vulnerabilities.", nil
	})
}

// GenerateAfterSnapshot replaces the AFTER snapshot of the event. Without a
// BEFORE snapshot it falls back to unrelated records instead of failing;
// callers wanting the stricter behavior check HasBeforeSnapshot first.
func (s *Service) GenerateAfterSnapshot(ctx context.Context, eventID int64) (Outcome, error) {
	return s.run(ctx, "generate_after", eventID, func(ctx context.Context, tx repo.Tx, event *model.PatchEvent, _ string) (string, error) {
		if _, err := s.gen.GenerateAfter(ctx, tx, *event, s.opts.AfterMinRatio, s.opts.AfterMaxRatio); err != nil {
			return "", err
		}
		return "Synthetic AFTER snapshot generated with vulnerabilities.", nil
	})
}

// HasBeforeSnapshot reports whether the event has a BEFORE snapshot.
func (s *Service) HasBeforeSnapshot(ctx context.Context, eventID int64) (bool, error) {
	var found bool
	err := s.store.WithinEvent(ctx, eventID, func(ctx context.Context, tx repo.Tx) error {
		snaps, err := tx.SnapshotsByTag(ctx, eventID, model.SnapshotBefore)
		found = len(snaps) > 0
		return err
	})
	return found, err
}

func (s *Service) ComputeEvidence(ctx context.Context, eventID int64) (Outcome, error) {
	return s.run(ctx, "compute_evidence", eventID, func(ctx context.Context, tx repo.Tx, event *model.PatchEvent, _ string) (string, error) {
		result, err := diff(ctx, tx, event.ID)
		if err != nil {
			return "", err
		}
		if !result.Split.Complete() {
			return "", precondition(ReasonMissingSnapshots,
				"Cannot compute fixed vulnerabilities: synthetic BEFORE and AFTER snapshots are required.")
		}
		event.DevEvidenceAvailable = true
		if err := tx.UpdatePatchEvent(ctx, *event); err != nil {
			return "", fmt.Errorf("update patch event: %w", err)
		}
		return "DEV evidence computed from synthetic snapshots.", nil
	})
}

func (s *Service) GenerateStageCR(ctx context.Context, eventID int64) (Outcome, error) {
	var text string
	out, err := s.run(ctx, "generate_stage_cr", eventID, func(ctx context.Context, tx repo.Tx, event *model.PatchEvent, _ string) (string, error) {
		if !event.DevEvidenceAvailable {
			return "", precondition(ReasonEvidenceNotReady,
				"DEV evidence must be computed before generating a STAGE CR summary.")
		}
		result, err := diff(ctx, tx, event.ID)
		if err != nil {
			return "", err
		}
		if !result.Split.Complete() {
			return "", precondition(ReasonEvidenceNotReady,
				"Synthetic BEFORE and AFTER snapshots are required to build a STAGE CR summary.")
		}
		text = report.StageCR(*event, result.Fixed, result.Counts)
		event.StageCRSummary = &text
		if err := tx.UpdatePatchEvent(ctx, *event); err != nil {
			return "", fmt.Errorf("update patch event: %w", err)
		}
		return "STAGE CR summary generated from synthetic DEV evidence.", nil
	})
	if err == nil {
		s.archiveText(ctx, ArchiveKey(eventID, "stage"), text)
	}
	return out, err
}

func (s *Service) GenerateProdCR(ctx context.Context, eventID int64) (Outcome, error) {
	var text string
	out, err := s.run(ctx, "generate_prod_cr", eventID, func(ctx context.Context, tx repo.Tx, event *model.PatchEvent, _ string) (string, error) {
		if !lifecycle.AtOrAfter(event.CurrentStateCode, model.StateStagePatched) {
			return "", precondition(ReasonStateNotReady,
				"Patch event must be at least in STAGE_PATCHED state before generating a PROD CR summary.")
		}
		result, err := diff(ctx, tx, event.ID)
		if err != nil {
			return "", err
		}
		if !result.Split.Complete() {
			return "", precondition(ReasonMissingSnapshots,
				"Synthetic BEFORE and AFTER snapshots are required to build a PROD CR summary.")
		}
		text = report.ProdCR(*event, result.Fixed, result.Counts)
		event.ProdCRSummary = &text
		if err := tx.UpdatePatchEvent(ctx, *event); err != nil {
			return "", fmt.Errorf("update patch event: %w", err)
		}
		return "PROD CR summary generated from synthetic evidence.", nil
	})
	if err == nil {
		s.archiveText(ctx, ArchiveKey(eventID, "prod"), text)
	}
	return out, err
}

// TransitionState moves the event to target and records the move.
func (s *Service) TransitionState(ctx context.Context, eventID int64, target model.StateCode) (Outcome, error) {
	target = model.StateCode(strings.TrimSpace(string(target)))
	return s.run(ctx, "transition", eventID, func(ctx context.Context, tx repo.Tx, event *model.PatchEvent, opID string) (string, error) {
		from := event.CurrentStateCode
		if err := s.machine.Transition(event, target); err != nil {
			return "", err
		}
		if err := tx.UpdatePatchEvent(ctx, *event); err != nil {
			return "", fmt.Errorf("update patch event: %w", err)
		}
		err := tx.AppendTransition(ctx, model.StateTransition{
			PatchEventID: event.ID,
			From:         from,
			To:           target,
			OperationID:  opID,
			OccurredAt:   s.opts.Now().UTC(),
		})
		if err != nil {
			return "", fmt.Errorf("append transition: %w", err)
		}
		return fmt.Sprintf("State updated to %s.", target), nil
	})
}

// DeletePatchEvent removes the event and everything it owns, children first.
func (s *Service) DeletePatchEvent(ctx context.Context, eventID int64) (Outcome, error) {
	return s.run(ctx, "delete", eventID, func(ctx context.Context, tx repo.Tx, event *model.PatchEvent, _ string) (string, error) {
		snaps, err := tx.ListSnapshots(ctx, event.ID)
		if err != nil {
			return "", fmt.Errorf("list snapshots: %w", err)
		}
		for _, snap := range snaps {
			if err := tx.DeleteVulnerabilities(ctx, snap.ID); err != nil {
				return "", fmt.Errorf("delete vulnerabilities of snapshot %d: %w", snap.ID, err)
			}
			if err := tx.DeleteSnapshot(ctx, snap.ID); err != nil {
				return "", fmt.Errorf("delete snapshot %d: %w", snap.ID, err)
			}
		}
		if err := tx.DeleteTransitions(ctx, event.ID); err != nil {
			return "", fmt.Errorf("delete transitions: %w", err)
		}
		if err := tx.DeletePatchEvent(ctx, event.ID); err != nil {
			return "", fmt.Errorf("delete patch event: %w", err)
		}
		return fmt.Sprintf("Patch event %d deleted.", event.ID), nil
	})
}

func diff(ctx context.Context, tx repo.Tx, eventID int64) (evidence.Result, error) {
	snaps, err := tx.ListSnapshots(ctx, eventID)
	if err != nil {
		return evidence.Result{}, fmt.Errorf("list snapshots: %w", err)
	}
	return evidence.Diff(snaps), nil
}

func (s *Service) archiveText(ctx context.Context, key, text string) {
	if s.archive == nil || text == "" {
		return
	}
	if err := s.archive.UploadText(ctx, key, text); err != nil {
		s.log.Warn("archive cr summary", zap.String("key", key), zap.Error(err))
	}
}

package promotion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/patch-tracker/internal/lifecycle"
	"github.com/yourorg/patch-tracker/internal/model"
	"github.com/yourorg/patch-tracker/internal/repo"
)

// DefaultServices seeds an empty catalog.
var DefaultServices = []string{
	"Nessus Manager",
	"Trend Micro",
	"Tenable Security Center",
	"ServiceNow MID Server",
}

// SeedServices inserts DefaultServices when no service exists yet and
// returns the catalog.
func (s *Service) SeedServices(ctx context.Context) ([]model.Service, error) {
	existing, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}
	for _, name := range DefaultServices {
		if _, err := s.store.CreateService(ctx, name); err != nil {
			return nil, fmt.Errorf("create service %q: %w", name, err)
		}
	}
	s.log.Info("seeded services", zap.Int("count", len(DefaultServices)))
	return s.store.ListServices(ctx)
}

func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	return s.store.ListServices(ctx)
}

type NewPatchEvent struct {
	ServiceID   int64
	Environment model.Environment
	AMIID       string
	PatchDate   time.Time
	Notes       string
}

// CreatePatchEvent registers a patch event in the initial lifecycle state.
func (s *Service) CreatePatchEvent(ctx context.Context, in NewPatchEvent) (model.PatchEvent, error) {
	if _, err := s.store.GetService(ctx, in.ServiceID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.PatchEvent{}, &InputError{Message: "Invalid service selected"}
		}
		return model.PatchEvent{}, fmt.Errorf("get service: %w", err)
	}
	env, ok := model.ParseEnvironment(string(in.Environment))
	if !ok {
		return model.PatchEvent{}, &InputError{Message: fmt.Sprintf("Invalid environment %q", in.Environment)}
	}
	ami := strings.TrimSpace(in.AMIID)
	if ami == "" {
		return model.PatchEvent{}, &InputError{Message: "AMI ID is required"}
	}
	if in.PatchDate.IsZero() {
		return model.PatchEvent{}, &InputError{Message: "Patch date is required"}
	}

	event, err := s.store.CreatePatchEvent(ctx, model.PatchEvent{
		ServiceID:            in.ServiceID,
		Environment:          env,
		AMIID:                ami,
		PatchDate:            in.PatchDate,
		Notes:                strings.TrimSpace(in.Notes),
		DevEvidenceAvailable: false,
		CurrentStateCode:     lifecycle.Initial,
	})
	if err != nil {
		return model.PatchEvent{}, fmt.Errorf("create patch event: %w", err)
	}
	s.log.Info("patch event created",
		zap.Int64("event_id", event.ID),
		zap.String("service", event.ServiceName),
		zap.String("environment", string(event.Environment)))
	return event, nil
}

// EventDetail is everything shown for a single patch event.
type EventDetail struct {
	Event              model.PatchEvent        `json:"event" yaml:"event"`
	BeforeCount        int                     `json:"before_count" yaml:"before_count"`
	AfterCount         int                     `json:"after_count" yaml:"after_count"`
	Fixed              []model.Vulnerability   `json:"fixed,omitempty" yaml:"fixed,omitempty"`
	FixedSummary       *model.Summary          `json:"fixed_summary,omitempty" yaml:"fixed_summary,omitempty"`
	AllowedTransitions []model.StateCode       `json:"allowed_transitions" yaml:"allowed_transitions"`
	ProdCRAllowed      bool                    `json:"prod_cr_allowed" yaml:"prod_cr_allowed"`
	Transitions        []model.StateTransition `json:"transitions" yaml:"transitions"`
}

// Detail loads the event view. The fixed list is only filled in once DEV
// evidence has been computed and both snapshots hold records.
func (s *Service) Detail(ctx context.Context, eventID int64) (EventDetail, error) {
	var out EventDetail
	err := s.store.WithinEvent(ctx, eventID, func(ctx context.Context, tx repo.Tx) error {
		event, err := tx.GetPatchEvent(ctx, eventID)
		if err != nil {
			return err
		}
		result, err := diff(ctx, tx, eventID)
		if err != nil {
			return err
		}
		history, err := tx.ListTransitions(ctx, eventID)
		if err != nil {
			return fmt.Errorf("list transitions: %w", err)
		}

		out = EventDetail{
			Event:              event,
			BeforeCount:        len(result.Split.Before),
			AfterCount:         len(result.Split.After),
			AllowedTransitions: lifecycle.AllowedTransitions(event),
			ProdCRAllowed:      lifecycle.AtOrAfter(event.CurrentStateCode, model.StateStagePatched),
			Transitions:        history,
		}
		if event.DevEvidenceAvailable && result.Split.Complete() {
			summary := result.Counts.Summary()
			out.Fixed = result.Fixed
			out.FixedSummary = &summary
		}
		return nil
	})
	if err != nil {
		return EventDetail{}, err
	}
	return out, nil
}

// DashboardFilter holds raw filter input. Values that do not parse are
// ignored rather than rejected.
type DashboardFilter struct {
	ServiceID   string
	Environment string
	State       string
}

func (f DashboardFilter) toRepo() repo.PatchEventFilter {
	var out repo.PatchEventFilter
	if id, err := strconv.ParseInt(strings.TrimSpace(f.ServiceID), 10, 64); err == nil && id > 0 {
		out.ServiceID = id
	}
	if env, ok := model.ParseEnvironment(f.Environment); ok {
		out.Environment = env
	}
	if code := model.StateCode(strings.TrimSpace(f.State)); lifecycle.Valid(code) {
		out.State = code
	}
	return out
}

type Stats struct {
	Total         int                       `json:"total" yaml:"total"`
	ByEnvironment map[model.Environment]int `json:"by_environment" yaml:"by_environment"`
	// ByPhase groups by the state code prefix: DEV, STAGE or PROD.
	ByPhase map[string]int `json:"by_phase" yaml:"by_phase"`
	Closed  int            `json:"closed" yaml:"closed"`
}

type Dashboard struct {
	Events []model.PatchEvent `json:"events" yaml:"events"`
	Stats  Stats              `json:"stats" yaml:"stats"`
}

// Dashboard lists events newest patch date first, with stats over the
// filtered list.
func (s *Service) Dashboard(ctx context.Context, filter DashboardFilter) (Dashboard, error) {
	events, err := s.store.ListPatchEvents(ctx, filter.toRepo())
	if err != nil {
		return Dashboard{}, fmt.Errorf("list patch events: %w", err)
	}
	return Dashboard{Events: events, Stats: computeStats(events)}, nil
}

func computeStats(events []model.PatchEvent) Stats {
	st := Stats{
		Total:         len(events),
		ByEnvironment: make(map[model.Environment]int, len(model.Environments)),
		ByPhase:       map[string]int{"DEV": 0, "STAGE": 0, "PROD": 0},
	}
	for _, env := range model.Environments {
		st.ByEnvironment[env] = 0
	}
	for _, ev := range events {
		if ev.Environment.Valid() {
			st.ByEnvironment[ev.Environment]++
		}
		for phase := range st.ByPhase {
			if strings.HasPrefix(string(ev.CurrentStateCode), phase) {
				st.ByPhase[phase]++
			}
		}
		if ev.CurrentStateCode == model.StateClosed {
			st.Closed++
		}
	}
	return st
}

package repo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/patch-tracker/internal/model"
)

// MemoryStore is an in-process Store. WithinEvent holds a single lock for the
// whole callback and restores a copy of the state when the callback fails, so
// the callback must not call back into the MemoryStore itself.
type MemoryStore struct {
	mu    sync.Mutex
	now   func() time.Time
	state memState
}

type memState struct {
	nextID      int64
	services    map[int64]model.Service
	events      map[int64]model.PatchEvent
	snapshots   map[int64]model.ScanSnapshot
	vulns       map[int64][]model.Vulnerability
	transitions []model.StateTransition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now: func() time.Time { return time.Now().UTC() },
		state: memState{
			services:  map[int64]model.Service{},
			events:    map[int64]model.PatchEvent{},
			snapshots: map[int64]model.ScanSnapshot{},
			vulns:     map[int64][]model.Vulnerability{},
		},
	}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s memState) clone() memState {
	out := memState{
		nextID:      s.nextID,
		services:    make(map[int64]model.Service, len(s.services)),
		events:      make(map[int64]model.PatchEvent, len(s.events)),
		snapshots:   make(map[int64]model.ScanSnapshot, len(s.snapshots)),
		vulns:       make(map[int64][]model.Vulnerability, len(s.vulns)),
		transitions: append([]model.StateTransition(nil), s.transitions...),
	}
	for k, v := range s.services {
		out.services[k] = v
	}
	for k, v := range s.events {
		out.events[k] = cloneEvent(v)
	}
	for k, v := range s.snapshots {
		out.snapshots[k] = v
	}
	for k, v := range s.vulns {
		out.vulns[k] = append([]model.Vulnerability(nil), v...)
	}
	return out
}

func cloneEvent(e model.PatchEvent) model.PatchEvent {
	if e.StageCRSummary != nil {
		v := *e.StageCRSummary
		e.StageCRSummary = &v
	}
	if e.ProdCRSummary != nil {
		v := *e.ProdCRSummary
		e.ProdCRSummary = &v
	}
	return e
}

func (s *MemoryStore) WithinEvent(ctx context.Context, eventID int64, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.events[eventID]; !ok {
		return ErrNotFound
	}
	saved := s.state.clone()
	if err := fn(ctx, &memTx{store: s}); err != nil {
		s.state = saved
		return err
	}
	return nil
}

func (s *MemoryStore) CreateService(ctx context.Context, name string) (model.Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Service{}, fmt.Errorf("service name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.state.services {
		if svc.Name == name {
			return model.Service{}, fmt.Errorf("service %q already exists", name)
		}
	}
	svc := model.Service{ID: s.state.id(), Name: name}
	s.state.services[svc.ID] = svc
	return svc, nil
}

func (s *MemoryStore) GetService(ctx context.Context, id int64) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.state.services[id]
	if !ok {
		return model.Service{}, ErrNotFound
	}
	return svc, nil
}

func (s *MemoryStore) ListServices(ctx context.Context) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Service, 0, len(s.state.services))
	for _, svc := range s.state.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreatePatchEvent(ctx context.Context, event model.PatchEvent) (model.PatchEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.state.services[event.ServiceID]
	if !ok {
		return model.PatchEvent{}, ErrNotFound
	}
	now := s.now()
	event.ID = s.state.id()
	event.ServiceName = svc.Name
	event.CreatedAt = now
	event.UpdatedAt = now
	s.state.events[event.ID] = cloneEvent(event)
	return event, nil
}

func (s *MemoryStore) ListPatchEvents(ctx context.Context, filter PatchEventFilter) ([]model.PatchEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PatchEvent, 0)
	for _, ev := range s.state.events {
		if filter.ServiceID != 0 && ev.ServiceID != filter.ServiceID {
			continue
		}
		if filter.Environment != "" && ev.Environment != filter.Environment {
			continue
		}
		if filter.State != "" && ev.CurrentStateCode != filter.State {
			continue
		}
		out = append(out, cloneEvent(ev))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PatchDate.Equal(out[j].PatchDate) {
			return out[i].PatchDate.After(out[j].PatchDate)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListArchiveCandidates(ctx context.Context, afterID int64, limit int) ([]model.PatchEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PatchEvent, 0)
	for _, ev := range s.state.events {
		if ev.ID <= afterID || (ev.StageCRSummary == nil && ev.ProdCRSummary == nil) {
			continue
		}
		out = append(out, cloneEvent(ev))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTx struct {
	store *MemoryStore
}

func (t *memTx) GetPatchEvent(ctx context.Context, id int64) (model.PatchEvent, error) {
	ev, ok := t.store.state.events[id]
	if !ok {
		return model.PatchEvent{}, ErrNotFound
	}
	return cloneEvent(ev), nil
}

func (t *memTx) UpdatePatchEvent(ctx context.Context, event model.PatchEvent) error {
	prev, ok := t.store.state.events[event.ID]
	if !ok {
		return ErrNotFound
	}
	event.ServiceID = prev.ServiceID
	event.ServiceName = prev.ServiceName
	event.CreatedAt = prev.CreatedAt
	event.UpdatedAt = t.store.now()
	t.store.state.events[event.ID] = cloneEvent(event)
	return nil
}

func (t *memTx) DeletePatchEvent(ctx context.Context, id int64) error {
	if _, ok := t.store.state.events[id]; !ok {
		return ErrNotFound
	}
	for _, snap := range t.store.state.snapshots {
		if snap.PatchEventID == id {
			return fmt.Errorf("delete patch event %d: %w", id, ErrHasChildren)
		}
	}
	for _, tr := range t.store.state.transitions {
		if tr.PatchEventID == id {
			return fmt.Errorf("delete patch event %d: %w", id, ErrHasChildren)
		}
	}
	delete(t.store.state.events, id)
	return nil
}

func (t *memTx) ListSnapshots(ctx context.Context, eventID int64) ([]model.ScanSnapshot, error) {
	return t.snapshots(eventID, ""), nil
}

func (t *memTx) SnapshotsByTag(ctx context.Context, eventID int64, tag model.SnapshotTag) ([]model.ScanSnapshot, error) {
	return t.snapshots(eventID, tag), nil
}

func (t *memTx) snapshots(eventID int64, tag model.SnapshotTag) []model.ScanSnapshot {
	out := make([]model.ScanSnapshot, 0)
	for _, snap := range t.store.state.snapshots {
		if snap.PatchEventID != eventID || (tag != "" && snap.Tag != tag) {
			continue
		}
		snap.Vulnerabilities = append([]model.Vulnerability{}, t.store.state.vulns[snap.ID]...)
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) CreateSnapshot(ctx context.Context, eventID int64, tag model.SnapshotTag) (model.ScanSnapshot, error) {
	if _, ok := t.store.state.events[eventID]; !ok {
		return model.ScanSnapshot{}, ErrNotFound
	}
	snap := model.ScanSnapshot{
		ID:           t.store.state.id(),
		PatchEventID: eventID,
		Tag:          tag,
		CreatedAt:    t.store.now(),
	}
	t.store.state.snapshots[snap.ID] = snap
	snap.Vulnerabilities = []model.Vulnerability{}
	return snap, nil
}

func (t *memTx) DeleteSnapshot(ctx context.Context, snapshotID int64) error {
	if _, ok := t.store.state.snapshots[snapshotID]; !ok {
		return ErrNotFound
	}
	if len(t.store.state.vulns[snapshotID]) > 0 {
		return fmt.Errorf("delete snapshot %d: %w", snapshotID, ErrHasChildren)
	}
	delete(t.store.state.snapshots, snapshotID)
	delete(t.store.state.vulns, snapshotID)
	return nil
}

func (t *memTx) AppendVulnerabilities(ctx context.Context, snapshotID int64, vulns []model.Vulnerability) error {
	if _, ok := t.store.state.snapshots[snapshotID]; !ok {
		return ErrNotFound
	}
	for _, v := range vulns {
		v.ID = t.store.state.id()
		v.SnapshotID = snapshotID
		t.store.state.vulns[snapshotID] = append(t.store.state.vulns[snapshotID], v)
	}
	return nil
}

func (t *memTx) DeleteVulnerabilities(ctx context.Context, snapshotID int64) error {
	delete(t.store.state.vulns, snapshotID)
	return nil
}

func (t *memTx) AppendTransition(ctx context.Context, transition model.StateTransition) error {
	if _, ok := t.store.state.events[transition.PatchEventID]; !ok {
		return ErrNotFound
	}
	transition.ID = t.store.state.id()
	if transition.OccurredAt.IsZero() {
		transition.OccurredAt = t.store.now()
	}
	t.store.state.transitions = append(t.store.state.transitions, transition)
	return nil
}

func (t *memTx) ListTransitions(ctx context.Context, eventID int64) ([]model.StateTransition, error) {
	out := make([]model.StateTransition, 0)
	for _, tr := range t.store.state.transitions {
		if tr.PatchEventID == eventID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (t *memTx) DeleteTransitions(ctx context.Context, eventID int64) error {
	kept := t.store.state.transitions[:0]
	for _, tr := range t.store.state.transitions {
		if tr.PatchEventID != eventID {
			kept = append(kept, tr)
		}
	}
	t.store.state.transitions = kept
	return nil
}

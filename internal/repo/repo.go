// Package repo defines the persistence contract used by the promotion core.
//
// Ownership is explicit: a patch event owns its snapshots and a snapshot owns
// its vulnerabilities. Implementations must refuse to delete an owner that
// still has children, so every cascade is spelled out by the caller.
package repo

import (
	"context"
	"errors"

	"github.com/yourorg/patch-tracker/internal/model"
)

var ErrNotFound = errors.New("not found")

// ErrHasChildren is returned when deleting an owner whose children remain.
var ErrHasChildren = errors.New("record still owns child records")

type PatchEventFilter struct {
	ServiceID   int64
	Environment model.Environment
	State       model.StateCode
	Limit       int
}

// Tx is a unit of work scoped to one patch event. Work is committed when the
// WithinEvent callback returns nil and rolled back otherwise.
type Tx interface {
	GetPatchEvent(ctx context.Context, id int64) (model.PatchEvent, error)
	UpdatePatchEvent(ctx context.Context, event model.PatchEvent) error
	DeletePatchEvent(ctx context.Context, id int64) error

	// ListSnapshots returns every snapshot of the event with its
	// vulnerabilities, ordered by snapshot id.
	ListSnapshots(ctx context.Context, eventID int64) ([]model.ScanSnapshot, error)
	SnapshotsByTag(ctx context.Context, eventID int64, tag model.SnapshotTag) ([]model.ScanSnapshot, error)
	CreateSnapshot(ctx context.Context, eventID int64, tag model.SnapshotTag) (model.ScanSnapshot, error)
	DeleteSnapshot(ctx context.Context, snapshotID int64) error

	AppendVulnerabilities(ctx context.Context, snapshotID int64, vulns []model.Vulnerability) error
	DeleteVulnerabilities(ctx context.Context, snapshotID int64) error

	AppendTransition(ctx context.Context, transition model.StateTransition) error
	ListTransitions(ctx context.Context, eventID int64) ([]model.StateTransition, error)
	DeleteTransitions(ctx context.Context, eventID int64) error
}

// Store is the persistence collaborator. WithinEvent provides the exclusive
// per-event scope every mutating operation runs under; it returns ErrNotFound
// when the event does not exist.
type Store interface {
	WithinEvent(ctx context.Context, eventID int64, fn func(ctx context.Context, tx Tx) error) error

	CreateService(ctx context.Context, name string) (model.Service, error)
	GetService(ctx context.Context, id int64) (model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)

	CreatePatchEvent(ctx context.Context, event model.PatchEvent) (model.PatchEvent, error)
	ListPatchEvents(ctx context.Context, filter PatchEventFilter) ([]model.PatchEvent, error)
	// ListArchiveCandidates pages through events holding at least one CR
	// summary, ordered by id, starting after afterID.
	ListArchiveCandidates(ctx context.Context, afterID int64, limit int) ([]model.PatchEvent, error)
}

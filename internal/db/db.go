package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/yourorg/patch-tracker/internal/logging"
	"github.com/yourorg/patch-tracker/internal/model"
	"github.com/yourorg/patch-tracker/internal/repo"
)

const batchSize = 100

type Store struct{ Pool *pgxpool.Pool }

var _ repo.Store = (*Store)(nil)

func Open(ctx context.Context, url string) (*Store, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: p}, nil
}

// Connect opens the pool and retries the first ping with exponential
// backoff until timeout elapses.
func Connect(ctx context.Context, url string, timeout time.Duration, logger *zap.Logger) (*Store, error) {
	logger = logging.OrNop(logger)
	s, err := Open(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = timeout

	err = backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return s.Ping(pingCtx)
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		logger.Warn("database not ready, retrying", zap.Duration("wait", wait), zap.Error(err))
	})
	if err != nil {
		s.Pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) Close() {
	s.Pool.Close()
}

// IsInsufficientPrivilege matches the error raised when the role may not
// create tables.
func IsInsufficientPrivilege(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42501"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

// WithinEvent locks the patch event row for the duration of fn.
func (s *Store) WithinEvent(ctx context.Context, eventID int64, fn func(ctx context.Context, tx repo.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	if err := tx.QueryRow(ctx, `SELECT id FROM patch_events WHERE id=$1 FOR UPDATE`, eventID).Scan(&id); err != nil {
		return notFound(err)
	}
	if err := fn(ctx, &eventTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CreateService(ctx context.Context, name string) (model.Service, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Service{}, errors.New("service name is required")
	}
	svc := model.Service{Name: name}
	err := s.Pool.QueryRow(ctx, `INSERT INTO services (name) VALUES ($1) RETURNING id`, name).Scan(&svc.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Service{}, fmt.Errorf("service %q already exists", name)
		}
		return model.Service{}, err
	}
	return svc, nil
}

func (s *Store) GetService(ctx context.Context, id int64) (model.Service, error) {
	svc := model.Service{ID: id}
	if err := s.Pool.QueryRow(ctx, `SELECT name FROM services WHERE id=$1`, id).Scan(&svc.Name); err != nil {
		return model.Service{}, notFound(err)
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := s.Pool.Query(ctx, `SELECT id, name FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Service, 0)
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.Name); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *Store) CreatePatchEvent(ctx context.Context, event model.PatchEvent) (model.PatchEvent, error) {
	err := s.Pool.QueryRow(ctx, `
WITH svc AS (SELECT id, name FROM services WHERE id=$1)
INSERT INTO patch_events (
  service_id, environment, ami_id, patch_date, notes,
  dev_evidence_available, current_state_code
)
SELECT svc.id, $2, $3, $4::date, $5, $6, $7 FROM svc
RETURNING id, created_at, updated_at, (SELECT name FROM svc)`,
		event.ServiceID,
		string(event.Environment),
		event.AMIID,
		event.PatchDate,
		nullableString(event.Notes),
		event.DevEvidenceAvailable,
		string(event.CurrentStateCode),
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt, &event.ServiceName)
	if err != nil {
		return model.PatchEvent{}, notFound(err)
	}
	return event, nil
}

const eventColumns = `
  e.id, e.service_id, s.name, e.environment, e.ami_id, e.patch_date,
  COALESCE(e.notes, ''), e.dev_evidence_available, e.current_state_code,
  e.stage_cr_summary, e.prod_cr_summary, e.created_at, e.updated_at
FROM patch_events e
JOIN services s ON s.id = e.service_id`

func scanEvent(row pgx.Row) (model.PatchEvent, error) {
	var (
		ev         model.PatchEvent
		env, state string
	)
	err := row.Scan(
		&ev.ID, &ev.ServiceID, &ev.ServiceName, &env, &ev.AMIID, &ev.PatchDate,
		&ev.Notes, &ev.DevEvidenceAvailable, &state,
		&ev.StageCRSummary, &ev.ProdCRSummary, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return model.PatchEvent{}, err
	}
	ev.Environment = model.Environment(env)
	ev.CurrentStateCode = model.StateCode(state)
	return ev, nil
}

func collectEvents(rows pgx.Rows) ([]model.PatchEvent, error) {
	defer rows.Close()
	out := make([]model.PatchEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// eventQuery builds the dashboard listing for filter.
func eventQuery(filter repo.PatchEventFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.ServiceID != 0 {
		args = append(args, filter.ServiceID)
		where = append(where, fmt.Sprintf("e.service_id = $%d", len(args)))
	}
	if filter.Environment != "" {
		args = append(args, string(filter.Environment))
		where = append(where, fmt.Sprintf("e.environment = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		where = append(where, fmt.Sprintf("e.current_state_code = $%d", len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT")
	sb.WriteString(eventColumns)
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString("\nORDER BY e.patch_date DESC, e.id DESC")
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sb.WriteString(fmt.Sprintf("\nLIMIT $%d", len(args)))
	}
	return sb.String(), args
}

func (s *Store) ListPatchEvents(ctx context.Context, filter repo.PatchEventFilter) ([]model.PatchEvent, error) {
	q, args := eventQuery(filter)
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func (s *Store) ListArchiveCandidates(ctx context.Context, afterID int64, limit int) ([]model.PatchEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `SELECT`+eventColumns+`
WHERE e.id > $1
  AND (e.stage_cr_summary IS NOT NULL OR e.prod_cr_summary IS NOT NULL)
ORDER BY e.id
LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

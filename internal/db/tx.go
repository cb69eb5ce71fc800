package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/yourorg/patch-tracker/internal/model"
	"github.com/yourorg/patch-tracker/internal/repo"
)

// eventTx is the repo.Tx handed out by WithinEvent. Foreign keys carry no
// ON DELETE CASCADE, so deleting an owner with children fails with
// repo.ErrHasChildren.
type eventTx struct{ tx pgx.Tx }

func (t *eventTx) GetPatchEvent(ctx context.Context, id int64) (model.PatchEvent, error) {
	ev, err := scanEvent(t.tx.QueryRow(ctx, `SELECT`+eventColumns+` WHERE e.id=$1`, id))
	if err != nil {
		return model.PatchEvent{}, notFound(err)
	}
	return ev, nil
}

func (t *eventTx) UpdatePatchEvent(ctx context.Context, event model.PatchEvent) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE patch_events
		SET environment=$2, ami_id=$3, patch_date=$4::date, notes=$5,
		    dev_evidence_available=$6, current_state_code=$7,
		    stage_cr_summary=$8, prod_cr_summary=$9, updated_at=now()
		WHERE id=$1
	`,
		event.ID,
		string(event.Environment),
		event.AMIID,
		event.PatchDate,
		nullableString(event.Notes),
		event.DevEvidenceAvailable,
		string(event.CurrentStateCode),
		event.StageCRSummary,
		event.ProdCRSummary,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (t *eventTx) DeletePatchEvent(ctx context.Context, id int64) error {
	return t.delete(ctx, `DELETE FROM patch_events WHERE id=$1`, id)
}

func (t *eventTx) delete(ctx context.Context, sql string, id int64) error {
	tag, err := t.tx.Exec(ctx, sql, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repo.ErrHasChildren
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (t *eventTx) ListSnapshots(ctx context.Context, eventID int64) ([]model.ScanSnapshot, error) {
	return t.snapshots(ctx, `
		SELECT id, patch_event_id, snapshot_type, created_at
		FROM scan_snapshots
		WHERE patch_event_id=$1
		ORDER BY id`, eventID)
}

func (t *eventTx) SnapshotsByTag(ctx context.Context, eventID int64, tag model.SnapshotTag) ([]model.ScanSnapshot, error) {
	return t.snapshots(ctx, `
		SELECT id, patch_event_id, snapshot_type, created_at
		FROM scan_snapshots
		WHERE patch_event_id=$1 AND snapshot_type=$2
		ORDER BY id`, eventID, string(tag))
}

// snapshots loads the snapshot rows, then their vulnerabilities in one query.
func (t *eventTx) snapshots(ctx context.Context, sql string, args ...any) ([]model.ScanSnapshot, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out := make([]model.ScanSnapshot, 0)
	index := map[int64]int{}
	for rows.Next() {
		var (
			snap model.ScanSnapshot
			tag  string
		)
		if err := rows.Scan(&snap.ID, &snap.PatchEventID, &tag, &snap.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		snap.Tag = model.SnapshotTag(tag)
		snap.Vulnerabilities = []model.Vulnerability{}
		index[snap.ID] = len(out)
		out = append(out, snap)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(out))
	for _, snap := range out {
		ids = append(ids, snap.ID)
	}
	vrows, err := t.tx.Query(ctx, `
		SELECT id, scan_snapshot_id, synthetic_id, COALESCE(cve, ''), COALESCE(plugin_id, ''),
		       severity, host, COALESCE(description, '')
		FROM vulnerabilities
		WHERE scan_snapshot_id = ANY($1)
		ORDER BY scan_snapshot_id, id`, ids)
	if err != nil {
		return nil, fmt.Errorf("load vulnerabilities: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var (
			v   model.Vulnerability
			sev string
		)
		if err := vrows.Scan(&v.ID, &v.SnapshotID, &v.SyntheticID, &v.CVE, &v.PluginID, &sev, &v.Host, &v.Description); err != nil {
			return nil, err
		}
		v.Severity = model.Severity(sev)
		i := index[v.SnapshotID]
		out[i].Vulnerabilities = append(out[i].Vulnerabilities, v)
	}
	return out, vrows.Err()
}

func (t *eventTx) CreateSnapshot(ctx context.Context, eventID int64, tag model.SnapshotTag) (model.ScanSnapshot, error) {
	snap := model.ScanSnapshot{PatchEventID: eventID, Tag: tag, Vulnerabilities: []model.Vulnerability{}}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO scan_snapshots (patch_event_id, snapshot_type)
		VALUES ($1, $2)
		RETURNING id, created_at`, eventID, string(tag)).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.ScanSnapshot{}, repo.ErrNotFound
		}
		return model.ScanSnapshot{}, err
	}
	return snap, nil
}

func (t *eventTx) DeleteSnapshot(ctx context.Context, snapshotID int64) error {
	return t.delete(ctx, `DELETE FROM scan_snapshots WHERE id=$1`, snapshotID)
}

// AppendVulnerabilities inserts rows in multi-value batches of batchSize.
func (t *eventTx) AppendVulnerabilities(ctx context.Context, snapshotID int64, vulns []model.Vulnerability) error {
	for start := 0; start < len(vulns); start += batchSize {
		end := min(start+batchSize, len(vulns))
		chunk := vulns[start:end]

		const colCount = 7
		var sb strings.Builder
		sb.WriteString(`
INSERT INTO vulnerabilities (
  scan_snapshot_id, synthetic_id, cve, plugin_id, severity, host, description
) VALUES `)
		args := make([]any, 0, len(chunk)*colCount)
		for i, v := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			base := i*colCount + 1
			sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
				base, base+1, base+2, base+3, base+4, base+5, base+6))
			args = append(args,
				snapshotID,
				v.SyntheticID,
				nullableString(v.CVE),
				nullableString(v.PluginID),
				string(v.Severity),
				v.Host,
				nullableString(v.Description),
			)
		}
		if _, err := t.tx.Exec(ctx, sb.String(), args...); err != nil {
			if isForeignKeyViolation(err) {
				return repo.ErrNotFound
			}
			return err
		}
	}
	return nil
}

func (t *eventTx) DeleteVulnerabilities(ctx context.Context, snapshotID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM vulnerabilities WHERE scan_snapshot_id=$1`, snapshotID)
	return err
}

func (t *eventTx) AppendTransition(ctx context.Context, tr model.StateTransition) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO patch_state_transitions (patch_event_id, from_state, to_state, operation_id, occurred_at)
		VALUES ($1, $2, $3, $4::uuid, $5)`,
		tr.PatchEventID, string(tr.From), string(tr.To), tr.OperationID, tr.OccurredAt)
	return err
}

func (t *eventTx) ListTransitions(ctx context.Context, eventID int64) ([]model.StateTransition, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, patch_event_id, from_state, to_state, operation_id::text, occurred_at
		FROM patch_state_transitions
		WHERE patch_event_id=$1
		ORDER BY occurred_at, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.StateTransition, 0)
	for rows.Next() {
		var (
			tr       model.StateTransition
			from, to string
		)
		if err := rows.Scan(&tr.ID, &tr.PatchEventID, &from, &to, &tr.OperationID, &tr.OccurredAt); err != nil {
			return nil, err
		}
		tr.From = model.StateCode(from)
		tr.To = model.StateCode(to)
		out = append(out, tr)
	}
	return out, rows.Err()
}

func (t *eventTx) DeleteTransitions(ctx context.Context, eventID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM patch_state_transitions WHERE patch_event_id=$1`, eventID)
	return err
}

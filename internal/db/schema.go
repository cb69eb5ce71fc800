package db

import "context"

// EnsureSchema creates the tables if missing. Foreign keys deliberately
// carry no ON DELETE CASCADE.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS services (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS patch_events (
  id BIGSERIAL PRIMARY KEY,
  service_id BIGINT NOT NULL REFERENCES services(id),
  environment TEXT NOT NULL CHECK (environment IN ('DEV','STAGE','PROD')),
  ami_id TEXT NOT NULL,
  patch_date DATE NOT NULL,
  notes TEXT,
  dev_evidence_available BOOLEAN NOT NULL DEFAULT FALSE,
  current_state_code TEXT NOT NULL DEFAULT 'DEV_EVIDENCE_CAPTURED',
  stage_cr_summary TEXT,
  prod_cr_summary TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_patch_events_patch_date ON patch_events (patch_date DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_patch_events_service ON patch_events (service_id);
CREATE INDEX IF NOT EXISTS idx_patch_events_state ON patch_events (current_state_code);

CREATE TABLE IF NOT EXISTS scan_snapshots (
  id BIGSERIAL PRIMARY KEY,
  patch_event_id BIGINT NOT NULL REFERENCES patch_events(id),
  snapshot_type TEXT NOT NULL CHECK (snapshot_type IN ('BEFORE','AFTER')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scan_snapshots_event_type ON scan_snapshots (patch_event_id, snapshot_type);

CREATE TABLE IF NOT EXISTS vulnerabilities (
  id BIGSERIAL PRIMARY KEY,
  scan_snapshot_id BIGINT NOT NULL REFERENCES scan_snapshots(id),
  synthetic_id TEXT NOT NULL,
  cve TEXT,
  plugin_id TEXT,
  severity TEXT NOT NULL CHECK (severity IN ('CRITICAL','HIGH','MEDIUM','LOW')),
  host TEXT NOT NULL,
  description TEXT
);

CREATE INDEX IF NOT EXISTS idx_vulnerabilities_snapshot ON vulnerabilities (scan_snapshot_id);

CREATE TABLE IF NOT EXISTS patch_state_transitions (
  id BIGSERIAL PRIMARY KEY,
  patch_event_id BIGINT NOT NULL REFERENCES patch_events(id),
  from_state TEXT NOT NULL,
  to_state TEXT NOT NULL,
  operation_id UUID NOT NULL,
  occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_patch_state_transitions_event ON patch_state_transitions (patch_event_id, occurred_at);
`)
	return err
}

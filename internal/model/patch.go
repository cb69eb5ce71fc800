package model

import (
	"strings"
	"time"
)

type Environment string

const (
	EnvironmentDev   Environment = "DEV"
	EnvironmentStage Environment = "STAGE"
	EnvironmentProd  Environment = "PROD"
)

var Environments = []Environment{EnvironmentDev, EnvironmentStage, EnvironmentProd}

func (e Environment) Valid() bool {
	switch e {
	case EnvironmentDev, EnvironmentStage, EnvironmentProd:
		return true
	}
	return false
}

// ParseEnvironment accepts any casing; ok is false for unknown values.
func ParseEnvironment(v string) (Environment, bool) {
	e := Environment(strings.ToUpper(strings.TrimSpace(v)))
	return e, e.Valid()
}

// SnapshotTag labels a scan snapshot. Values are persisted verbatim.
type SnapshotTag string

const (
	SnapshotBefore SnapshotTag = "BEFORE"
	SnapshotAfter  SnapshotTag = "AFTER"
)

// StateCode is a lifecycle state of a patch event. Values are persisted and
// compared by exact string value.
type StateCode string

const (
	StateDevEvidenceCaptured StateCode = "DEV_EVIDENCE_CAPTURED"
	StateDevVerified         StateCode = "DEV_VERIFIED"
	StateStageCRReady        StateCode = "STAGE_CR_READY"
	StateStagePatched        StateCode = "STAGE_PATCHED"
	StateProdCRReady         StateCode = "PROD_CR_READY"
	StateProdPatched         StateCode = "PROD_PATCHED"
	StateClosed              StateCode = "CLOSED"
)

type Service struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type PatchEvent struct {
	ID                   int64       `json:"id" yaml:"id"`
	ServiceID            int64       `json:"service_id" yaml:"service_id"`
	ServiceName          string      `json:"service_name" yaml:"service_name"`
	Environment          Environment `json:"environment" yaml:"environment"`
	AMIID                string      `json:"ami_id" yaml:"ami_id"`
	PatchDate            time.Time   `json:"patch_date" yaml:"patch_date"`
	Notes                string      `json:"notes,omitempty" yaml:"notes,omitempty"`
	DevEvidenceAvailable bool        `json:"dev_evidence_available" yaml:"dev_evidence_available"`
	CurrentStateCode     StateCode   `json:"current_state_code" yaml:"current_state_code"`
	StageCRSummary       *string     `json:"stage_cr_summary,omitempty" yaml:"stage_cr_summary,omitempty"`
	ProdCRSummary        *string     `json:"prod_cr_summary,omitempty" yaml:"prod_cr_summary,omitempty"`
	CreatedAt            time.Time   `json:"created_at" yaml:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at" yaml:"updated_at"`
}

// ScanSnapshot is a point-in-time capture owned by one patch event. It owns
// its vulnerabilities.
type ScanSnapshot struct {
	ID              int64           `json:"id" yaml:"id"`
	PatchEventID    int64           `json:"patch_event_id" yaml:"patch_event_id"`
	Tag             SnapshotTag     `json:"snapshot_type" yaml:"snapshot_type"`
	CreatedAt       time.Time       `json:"created_at" yaml:"created_at"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities" yaml:"vulnerabilities"`
}

// Vulnerability is one synthetic finding. SyntheticID is the identity used to
// match records across BEFORE and AFTER; CVE and PluginID are flavor text.
type Vulnerability struct {
	ID          int64    `json:"id" yaml:"id"`
	SnapshotID  int64    `json:"scan_snapshot_id" yaml:"scan_snapshot_id"`
	SyntheticID string   `json:"synthetic_id" yaml:"synthetic_id"`
	CVE         string   `json:"cve,omitempty" yaml:"cve,omitempty"`
	PluginID    string   `json:"plugin_id,omitempty" yaml:"plugin_id,omitempty"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Host        string   `json:"host" yaml:"host"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// StateTransition is one audited lifecycle move.
type StateTransition struct {
	ID           int64     `json:"id" yaml:"id"`
	PatchEventID int64     `json:"patch_event_id" yaml:"patch_event_id"`
	From         StateCode `json:"from" yaml:"from"`
	To           StateCode `json:"to" yaml:"to"`
	OperationID  string    `json:"operation_id" yaml:"operation_id"`
	OccurredAt   time.Time `json:"occurred_at" yaml:"occurred_at"`
}

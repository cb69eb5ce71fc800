package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/patch-tracker/internal/model"
)

func vuln(id string, sev model.Severity) model.Vulnerability {
	return model.Vulnerability{SyntheticID: id, Severity: sev, Host: "dev-synthetic-01"}
}

func syntheticIDs(vulns []model.Vulnerability) []string {
	out := make([]string, 0, len(vulns))
	for _, v := range vulns {
		out = append(out, v.SyntheticID)
	}
	return out
}

func TestComputeFixed(t *testing.T) {
	before := []model.Vulnerability{
		vuln("VULN-0001-0001", model.SeverityLow),
		vuln("VULN-0001-0002", model.SeverityHigh),
		vuln("VULN-0001-0003", model.SeverityCritical),
		vuln("VULN-0001-0004", model.SeverityMedium),
	}
	after := []model.Vulnerability{
		vuln("VULN-0001-0003", model.SeverityCritical),
		vuln("VULN-0009-0001", model.SeverityLow),
	}

	tests := []struct {
		name          string
		before, after []model.Vulnerability
		want          []string
	}{
		{"keeps before order", before, after, []string{"VULN-0001-0001", "VULN-0001-0002", "VULN-0001-0004"}},
		{"reversed is not symmetric", after, before, []string{"VULN-0009-0001"}},
		{"empty after fixes everything", before, nil, syntheticIDs(before)},
		{"empty before fixes nothing", nil, after, []string{}},
		{"identical sides", before, before, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, syntheticIDs(ComputeFixed(tc.before, tc.after)))
		})
	}
}

func TestComputeFixedMatchesOnSyntheticIDOnly(t *testing.T) {
	before := []model.Vulnerability{{SyntheticID: "VULN-0001-0001", CVE: "CVE-2091-01234"}}
	after := []model.Vulnerability{{SyntheticID: "VULN-0002-0001", CVE: "CVE-2091-01234"}}
	assert.Len(t, ComputeFixed(before, after), 1)
}

func TestCountBySeverity(t *testing.T) {
	tests := []struct {
		name    string
		records []model.Vulnerability
		want    model.SeverityCounts
	}{
		{
			name:    "empty has all keys",
			records: nil,
			want: model.SeverityCounts{
				model.SeverityCritical: 0, model.SeverityHigh: 0, model.SeverityMedium: 0, model.SeverityLow: 0,
			},
		},
		{
			name: "mixed",
			records: []model.Vulnerability{
				vuln("a", model.SeverityLow), vuln("b", model.SeverityLow), vuln("c", model.SeverityHigh),
			},
			want: model.SeverityCounts{
				model.SeverityCritical: 0, model.SeverityHigh: 1, model.SeverityMedium: 0, model.SeverityLow: 2,
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CountBySeverity(tc.records)
			assert.Equal(t, tc.want, got)
			assert.Len(t, got, 4)
			assert.Equal(t, len(tc.records), got.Total())
		})
	}
}

func TestSplitByTag(t *testing.T) {
	snaps := []model.ScanSnapshot{
		{ID: 1, Tag: model.SnapshotBefore, Vulnerabilities: []model.Vulnerability{vuln("a", model.SeverityLow), vuln("b", model.SeverityLow)}},
		{ID: 2, Tag: "DURING", Vulnerabilities: []model.Vulnerability{vuln("x", model.SeverityHigh)}},
		{ID: 3, Tag: model.SnapshotAfter, Vulnerabilities: []model.Vulnerability{vuln("a", model.SeverityLow)}},
	}
	split := SplitByTag(snaps)
	assert.Equal(t, []string{"a", "b"}, syntheticIDs(split.Before))
	assert.Equal(t, []string{"a"}, syntheticIDs(split.After))
	assert.True(t, split.Complete())

	empty := SplitByTag(nil)
	assert.NotNil(t, empty.Before)
	assert.NotNil(t, empty.After)
	assert.False(t, empty.Complete())
}

func TestDiff(t *testing.T) {
	res := Diff([]model.ScanSnapshot{
		{Tag: model.SnapshotBefore, Vulnerabilities: []model.Vulnerability{
			vuln("a", model.SeverityCritical), vuln("b", model.SeverityLow), vuln("c", model.SeverityLow),
		}},
		{Tag: model.SnapshotAfter, Vulnerabilities: []model.Vulnerability{vuln("c", model.SeverityLow)}},
	})
	assert.Equal(t, []string{"a", "b"}, syntheticIDs(res.Fixed))
	assert.Equal(t, model.Summary{Total: 2, Critical: 1, Low: 1}, res.Counts.Summary())
}

// Package evidence reduces BEFORE/AFTER snapshots to the set of remediated
// vulnerabilities. Fixed status is always derived here and never stored.
package evidence

import "github.com/yourorg/patch-tracker/internal/model"

// Split holds the vulnerabilities of a patch event grouped by snapshot tag.
type Split struct {
	Before []model.Vulnerability
	After  []model.Vulnerability
}

// Complete reports whether both sides hold at least one record.
func (s Split) Complete() bool {
	return len(s.Before) > 0 && len(s.After) > 0
}

// SplitByTag flattens snapshots into the BEFORE and AFTER buckets. Snapshots
// with any other tag are ignored.
func SplitByTag(snapshots []model.ScanSnapshot) Split {
	out := Split{
		Before: []model.Vulnerability{},
		After:  []model.Vulnerability{},
	}
	for _, snap := range snapshots {
		switch snap.Tag {
		case model.SnapshotBefore:
			out.Before = append(out.Before, snap.Vulnerabilities...)
		case model.SnapshotAfter:
			out.After = append(out.After, snap.Vulnerabilities...)
		}
	}
	return out
}

// ComputeFixed returns the BEFORE records whose synthetic id is absent from
// AFTER, in BEFORE order. O(len(before) + len(after)).
func ComputeFixed(before, after []model.Vulnerability) []model.Vulnerability {
	remaining := make(map[string]struct{}, len(after))
	for _, v := range after {
		remaining[v.SyntheticID] = struct{}{}
	}
	fixed := make([]model.Vulnerability, 0, len(before))
	for _, v := range before {
		if _, ok := remaining[v.SyntheticID]; ok {
			continue
		}
		fixed = append(fixed, v)
	}
	return fixed
}

// CountBySeverity tallies records per severity. All four severities are
// present in the result.
func CountBySeverity(records []model.Vulnerability) model.SeverityCounts {
	counts := make(model.SeverityCounts, len(model.Severities))
	for _, sev := range model.Severities {
		counts[sev] = 0
	}
	for _, v := range records {
		counts[v.Severity]++
	}
	return counts
}

// Result is the full reduction of one patch event's snapshots.
type Result struct {
	Split  Split
	Fixed  []model.Vulnerability
	Counts model.SeverityCounts
}

func Diff(snapshots []model.ScanSnapshot) Result {
	split := SplitByTag(snapshots)
	fixed := ComputeFixed(split.Before, split.After)
	return Result{
		Split:  split,
		Fixed:  fixed,
		Counts: CountBySeverity(fixed),
	}
}

// Package synthetic produces the BEFORE/AFTER vulnerability snapshots that
// stand in for real scanner output.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/yourorg/patch-tracker/internal/model"
)

const (
	DefaultBeforeCount       = 20
	FallbackAfterCount       = 10
	DefaultMinRemainingRatio = 0.3
	DefaultMaxRemainingRatio = 0.7

	Description = "Synthetic vulnerability used for demonstration only."
)

// Weighted toward lower severities: 1 critical, 2 high, 2 medium, 3 low.
var severityBag = []model.Severity{
	model.SeverityCritical,
	model.SeverityHigh,
	model.SeverityHigh,
	model.SeverityMedium,
	model.SeverityMedium,
	model.SeverityLow,
	model.SeverityLow,
	model.SeverityLow,
}

// Writer is the part of the unit of work the generator needs.
type Writer interface {
	SnapshotsByTag(ctx context.Context, eventID int64, tag model.SnapshotTag) ([]model.ScanSnapshot, error)
	CreateSnapshot(ctx context.Context, eventID int64, tag model.SnapshotTag) (model.ScanSnapshot, error)
	DeleteSnapshot(ctx context.Context, snapshotID int64) error
	AppendVulnerabilities(ctx context.Context, snapshotID int64, vulns []model.Vulnerability) error
	DeleteVulnerabilities(ctx context.Context, snapshotID int64) error
}

type Generator struct {
	rng *rand.Rand
}

// New returns a generator drawing from rng. A nil rng is seeded from the clock.
func New(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	return &Generator{rng: rng}
}

// NewSeeded returns a reproducible generator.
func NewSeeded(seed uint64) *Generator {
	return New(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// GenerateBefore replaces the event's BEFORE snapshot with count fresh
// records. Non-positive counts use DefaultBeforeCount. The returned snapshot
// carries the generated records; their row ids are left to the store.
func (g *Generator) GenerateBefore(ctx context.Context, w Writer, event model.PatchEvent, count int) (model.ScanSnapshot, error) {
	if count <= 0 {
		count = DefaultBeforeCount
	}
	snap, err := g.replace(ctx, w, event.ID, model.SnapshotBefore)
	if err != nil {
		return model.ScanSnapshot{}, err
	}
	return g.fill(ctx, w, snap, event.Environment, count)
}

// GenerateAfter replaces the event's AFTER snapshot with a random subset of
// the BEFORE records, copied verbatim. BEFORE records left out are the fixed
// ones. Without BEFORE records it falls back to FallbackAfterCount fresh
// records that share no identity with any other snapshot.
func (g *Generator) GenerateAfter(ctx context.Context, w Writer, event model.PatchEvent, minRatio, maxRatio float64) (model.ScanSnapshot, error) {
	snap, err := g.replace(ctx, w, event.ID, model.SnapshotAfter)
	if err != nil {
		return model.ScanSnapshot{}, err
	}

	befores, err := w.SnapshotsByTag(ctx, event.ID, model.SnapshotBefore)
	if err != nil {
		return model.ScanSnapshot{}, fmt.Errorf("load before snapshot: %w", err)
	}
	if len(befores) == 0 || len(befores[0].Vulnerabilities) == 0 {
		return g.fill(ctx, w, snap, event.Environment, FallbackAfterCount)
	}

	source := befores[0].Vulnerabilities
	lo, hi := remainingBounds(len(source), minRatio, maxRatio)
	remaining := lo + g.rng.IntN(hi-lo+1)

	kept := make([]model.Vulnerability, 0, remaining)
	for _, i := range g.rng.Perm(len(source))[:remaining] {
		v := source[i]
		kept = append(kept, model.Vulnerability{
			SnapshotID:  snap.ID,
			SyntheticID: v.SyntheticID,
			CVE:         v.CVE,
			PluginID:    v.PluginID,
			Severity:    v.Severity,
			Host:        v.Host,
			Description: v.Description,
		})
	}
	if err := w.AppendVulnerabilities(ctx, snap.ID, kept); err != nil {
		return model.ScanSnapshot{}, fmt.Errorf("append after vulnerabilities: %w", err)
	}
	snap.Vulnerabilities = kept
	return snap, nil
}

// replace discards every snapshot of tag, children first, then creates a new one.
func (g *Generator) replace(ctx context.Context, w Writer, eventID int64, tag model.SnapshotTag) (model.ScanSnapshot, error) {
	existing, err := w.SnapshotsByTag(ctx, eventID, tag)
	if err != nil {
		return model.ScanSnapshot{}, fmt.Errorf("load %s snapshots: %w", tag, err)
	}
	for _, old := range existing {
		if err := w.DeleteVulnerabilities(ctx, old.ID); err != nil {
			return model.ScanSnapshot{}, fmt.Errorf("delete vulnerabilities of snapshot %d: %w", old.ID, err)
		}
		if err := w.DeleteSnapshot(ctx, old.ID); err != nil {
			return model.ScanSnapshot{}, fmt.Errorf("delete snapshot %d: %w", old.ID, err)
		}
	}
	snap, err := w.CreateSnapshot(ctx, eventID, tag)
	if err != nil {
		return model.ScanSnapshot{}, fmt.Errorf("create %s snapshot: %w", tag, err)
	}
	return snap, nil
}

func (g *Generator) fill(ctx context.Context, w Writer, snap model.ScanSnapshot, env model.Environment, count int) (model.ScanSnapshot, error) {
	vulns := make([]model.Vulnerability, 0, count)
	for i := 1; i <= count; i++ {
		vulns = append(vulns, g.build(snap.ID, env, i))
	}
	if err := w.AppendVulnerabilities(ctx, snap.ID, vulns); err != nil {
		return model.ScanSnapshot{}, fmt.Errorf("append %s vulnerabilities: %w", snap.Tag, err)
	}
	snap.Vulnerabilities = vulns
	return snap, nil
}

func (g *Generator) build(snapshotID int64, env model.Environment, ordinal int) model.Vulnerability {
	return model.Vulnerability{
		SnapshotID:  snapshotID,
		SyntheticID: SyntheticID(snapshotID, ordinal),
		CVE:         fmt.Sprintf("CVE-%d-%05d", g.between(2090, 2099), g.between(1000, 99999)),
		PluginID:    fmt.Sprintf("PLUG-%d", g.between(10000, 99999)),
		Severity:    severityBag[g.rng.IntN(len(severityBag))],
		Host:        fmt.Sprintf("%s-synthetic-%02d", strings.ToLower(string(env)), g.between(1, 9)),
		Description: Description,
	}
}

// SyntheticID is unique within a snapshot by ordinal and across snapshots by
// snapshot id.
func SyntheticID(snapshotID int64, ordinal int) string {
	return fmt.Sprintf("VULN-%04d-%04d", snapshotID, ordinal)
}

func (g *Generator) between(lo, hi int) int {
	return lo + g.rng.IntN(hi-lo+1)
}

// remainingBounds returns the inclusive range of records an AFTER snapshot
// keeps out of total. Bounds are clamped so 1 <= lo <= hi <= total.
func remainingBounds(total int, minRatio, maxRatio float64) (int, int) {
	lo := max(1, int(math.Floor(float64(total)*clampRatio(minRatio))))
	lo = min(lo, total)
	hi := max(lo, int(math.Floor(float64(total)*clampRatio(maxRatio))))
	hi = min(hi, total)
	return lo, hi
}

func clampRatio(r float64) float64 {
	switch {
	case math.IsNaN(r) || r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

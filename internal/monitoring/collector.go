// Package monitoring summarizes recent runs and alerts when failure or data
// quality rates cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/beerprice/internal/model"
	"github.com/sells-group/beerprice/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal      int     `json:"runs_total"`
	RunsComplete   int     `json:"runs_complete"`
	RunsFailed     int     `json:"runs_failed"`
	RunsInProgress int     `json:"runs_in_progress"`
	FailRate       float64 `json:"fail_rate"`
	AvgDurationSec float64 `json:"avg_duration_secs"`

	// Listing metrics over completed runs.
	ListingsTotal     int     `json:"listings_total"`
	ListingsEnriched  int     `json:"listings_enriched"`
	InvalidPrice      int     `json:"invalid_price"`
	MissingVolume     int     `json:"missing_volume"`
	Faulty            int     `json:"faulty"`
	InvalidPriceRate  float64 `json:"invalid_price_rate"`
	MissingVolumeRate float64 `json:"missing_volume_rate"`
	Categories        int     `json:"categories"`
	CategoriesFound   int     `json:"categories_found"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	store RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalDur time.Duration

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsInProgress++
		}
		if r.Stats != nil {
			snap.ListingsTotal += r.Stats.Total
			snap.ListingsEnriched += r.Stats.Enriched
			snap.InvalidPrice += r.Stats.InvalidPrice
			snap.MissingVolume += r.Stats.MissingVolume
			snap.Faulty += r.Stats.Faulty
			snap.Categories += r.Stats.Categories
			snap.CategoriesFound += r.Stats.CategoriesHit
		}
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsComplete > 0 {
		snap.AvgDurationSec = totalDur.Seconds() / float64(snap.RunsComplete)
	}
	if snap.ListingsTotal > 0 {
		snap.InvalidPriceRate = float64(snap.InvalidPrice) / float64(snap.ListingsTotal)
	}
	// MissingVolume only counts listings with a usable price.
	if priced := snap.ListingsTotal - snap.InvalidPrice - snap.Faulty; priced > 0 {
		snap.MissingVolumeRate = float64(snap.MissingVolume) / float64(priced)
	}

	return snap, nil
}

package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/config"
)

// Checker periodically summarizes recent normalization runs and alerts on
// failure and listing quality rates.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.runs"))
	log.Info("watching run quality",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Float64("invalid_price_threshold", c.cfg.InvalidPriceThreshold),
		zap.Float64("missing_volume_threshold", c.cfg.MissingVolumeThreshold),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("run quality watch stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check summarizes the lookback window and sends any alerts it triggers.
// It returns the number of alerts triggered.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.runs"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: summarize runs", zap.Error(err))
		return 0
	}

	quality := []zap.Field{
		zap.Int("runs", snap.RunsTotal),
		zap.Int("runs_failed", snap.RunsFailed),
		zap.Int("listings", snap.ListingsTotal),
		zap.Float64("invalid_price_rate", snap.InvalidPriceRate),
		zap.Float64("missing_volume_rate", snap.MissingVolumeRate),
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: run quality within thresholds", quality...)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Warn("monitoring: run quality alerts raised",
		append(quality,
			zap.Int("alerts_triggered", len(alerts)),
			zap.Int("alerts_sent", sent),
		)...,
	)
	return len(alerts)
}

package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/beerprice/internal/config"
	"github.com/sells-group/beerprice/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate    AlertType = "run_failure_rate"
	AlertInvalidPriceRate  AlertType = "invalid_price_rate"
	AlertMissingVolumeRate AlertType = "missing_volume_rate"
)

// minFinishedRuns is the sample size below which the failure rate is noise.
const minFinishedRuns = 5

// minListings is the sample size below which listing rates are noise.
const minListings = 50

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("alert webhook")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RunsComplete + snap.RunsFailed
	if a.cfg.FailureRateThreshold > 0 && finished >= minFinishedRuns && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRunFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RunsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.ListingsTotal < minListings {
		return alerts
	}

	if a.cfg.InvalidPriceThreshold > 0 && snap.InvalidPriceRate > a.cfg.InvalidPriceThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertInvalidPriceRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of listings had no usable price in last %dh (threshold %.1f%%); check the scrapers",
				snap.InvalidPriceRate*100, snap.LookbackHours, a.cfg.InvalidPriceThreshold*100,
			),
			Details: map[string]any{
				"invalid_price": snap.InvalidPrice,
				"listings":      snap.ListingsTotal,
				"threshold":     a.cfg.InvalidPriceThreshold,
			},
			Timestamp: now,
		})
	}

	if a.cfg.MissingVolumeThreshold > 0 && snap.MissingVolumeRate > a.cfg.MissingVolumeThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertMissingVolumeRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of priced listings had no recognized volume in last %dh (threshold %.1f%%); check the vocabulary",
				snap.MissingVolumeRate*100, snap.LookbackHours, a.cfg.MissingVolumeThreshold*100,
			),
			Details: map[string]any{
				"missing_volume": snap.MissingVolume,
				"listings":       snap.ListingsTotal,
				"threshold":      a.cfg.MissingVolumeThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.sendWebhook(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return resilience.StatusError(resp.StatusCode, a.cfg.WebhookURL)
	}
	return nil
}

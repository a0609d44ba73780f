package alert

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/internal/store"
)

// SweepReport counts attempt outcomes for one sweep.
type SweepReport struct {
	Due      int             `json:"due"`
	Outcomes map[Outcome]int `json:"outcomes"`
}

// Sweeper periodically retries alerts whose next attempt is due.
type Sweeper struct {
	manager  *Manager
	store    store.AlertStore
	interval time.Duration
	batch    int
	limiter  *rate.Limiter
}

// NewSweeper creates a sweeper that paces sends at cfg.SendsPerSecond.
func NewSweeper(m *Manager, cfg config.DeliveryConfig) *Sweeper {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	batch := cfg.SweepBatchSize
	if batch <= 0 {
		batch = 50
	}
	limit := rate.Inf
	if cfg.SendsPerSecond > 0 {
		limit = rate.Limit(cfg.SendsPerSecond)
	}
	return &Sweeper{
		manager:  m,
		store:    m.store,
		interval: interval,
		batch:    batch,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	slog.Info("alert sweeper started", "interval", s.interval.String(), "batch", s.batch)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("alert sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("alert sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce attempts every due alert in one batch.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Outcomes: map[Outcome]int{}}

	due, err := s.store.ListDueAlerts(ctx, s.manager.now().UTC(), s.batch)
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	for _, a := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}
		o, err := s.manager.AttemptDelivery(ctx, a.ID)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			slog.Error("alert delivery attempt errored", "alert_id", a.ID, "error", err)
			continue
		}
		report.Outcomes[o]++
	}

	if report.Due > 0 {
		slog.Info("alert sweep finished", "due", report.Due, "sent", report.Outcomes[OutcomeSent],
			"failed", report.Outcomes[OutcomeFailed], "dead", report.Outcomes[OutcomeDead])
	}
	return report, nil
}

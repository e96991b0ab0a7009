package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/metrics"
	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
)

const (
	DefaultQuotaSweepSchedule   = "5 0 * * *"
	DefaultLedgerExportSchedule = "30 1 * * *"
	DefaultSweepBatchSize       = 200
)

// QuotaStore is the part of the wallet store the quota sweep uses.
type QuotaStore interface {
	ListStaleUserIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
	RefreshTimedCredits(ctx context.Context, userID string, now time.Time) (bool, error)
}

// DayExporter uploads one UTC day of ledger entries.
type DayExporter interface {
	ExportDay(ctx context.Context, day time.Time) (int, error)
}

type Config struct {
	QuotaSweepSchedule   string
	LedgerExportSchedule string
	SweepBatchSize       int
}

// ConfigFromEnv reads QUOTA_SWEEP_SCHEDULE and LEDGER_EXPORT_SCHEDULE.
// An empty schedule disables the job.
func ConfigFromEnv() Config {
	return Config{
		QuotaSweepSchedule:   env.GetEnv("QUOTA_SWEEP_SCHEDULE", DefaultQuotaSweepSchedule),
		LedgerExportSchedule: env.GetEnv("LEDGER_EXPORT_SCHEDULE", DefaultLedgerExportSchedule),
		SweepBatchSize:       env.GetEnvInt("QUOTA_SWEEP_BATCH", DefaultSweepBatchSize),
	}
}

// Manager runs the periodic wallet maintenance jobs
type Manager struct {
	quota    QuotaStore
	exporter DayExporter
	metrics  *metrics.Metrics
	cfg      Config
	now      func() time.Time

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

type Option func(*Manager)

// WithLedgerExporter enables the daily ledger export job.
func WithLedgerExporter(exporter DayExporter) Option {
	return func(m *Manager) { m.exporter = exporter }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(quota QuotaStore, cfg Config, opts ...Option) *Manager {
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = DefaultSweepBatchSize
	}
	m := &Manager{quota: quota, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start schedules the configured jobs. Schedules are evaluated in UTC so the
// sweep lines up with the quota day boundary.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	if m.cfg.QuotaSweepSchedule != "" {
		if _, err := c.AddFunc(m.cfg.QuotaSweepSchedule, func() {
			if _, err := m.RunQuotaSweepOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Quota sweep error: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("quota sweep schedule %q: %w", m.cfg.QuotaSweepSchedule, err)
		}
		log.Infof("[JobQueue Manager] Quota sweep scheduled (%s UTC)", m.cfg.QuotaSweepSchedule)
	}

	if m.exporter != nil && m.cfg.LedgerExportSchedule != "" {
		if _, err := c.AddFunc(m.cfg.LedgerExportSchedule, func() {
			if _, err := m.RunLedgerExportOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Ledger export error: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("ledger export schedule %q: %w", m.cfg.LedgerExportSchedule, err)
		}
		log.Infof("[JobQueue Manager] Ledger export scheduled (%s UTC)", m.cfg.LedgerExportSchedule)
	}

	c.Start()
	m.cron = c
	m.running = true
	log.Info("[JobQueue Manager] Started successfully")
	return nil
}

// Stop stops scheduling and waits for running jobs to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background jobs...")
	<-m.cron.Stop().Done()
	m.cron = nil
	m.running = false
	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// RunQuotaSweepOnce resets timed credits of every wallet not yet refreshed
// today and returns how many were reset. Wallets that fail are logged and
// left for the next request or sweep.
func (m *Manager) RunQuotaSweepOnce(ctx context.Context) (int, error) {
	now := m.now()
	refreshed := 0
	var errs []error
	for {
		ids, err := m.quota.ListStaleUserIDs(ctx, now, m.cfg.SweepBatchSize)
		if err != nil {
			return refreshed, err
		}
		if len(ids) == 0 {
			break
		}

		progress := 0
		for _, id := range ids {
			ok, err := m.quota.RefreshTimedCredits(ctx, id, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("user %s: %w", id, err))
				continue
			}
			progress++
			if ok {
				refreshed++
				m.metrics.IncQuotaRefresh("sweep")
			}
		}
		if progress == 0 || len(ids) < m.cfg.SweepBatchSize {
			break
		}
	}

	log.Infof("[JobQueue Manager] Quota sweep reset %d wallets", refreshed)
	return refreshed, errors.Join(errs...)
}

// RunLedgerExportOnce exports the previous UTC day.
func (m *Manager) RunLedgerExportOnce(ctx context.Context) (int, error) {
	if m.exporter == nil {
		return 0, errors.New("ledger export is not configured")
	}
	return m.exporter.ExportDay(ctx, m.now().UTC().AddDate(0, 0, -1))
}

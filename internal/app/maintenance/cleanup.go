package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/rajkayal/hubauth/internal/auth/otp"
	"github.com/rajkayal/hubauth/internal/services"
	"github.com/rajkayal/hubauth/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultOTPSpec            = "@every 5m"
	defaultAuditSpec          = "@daily"
)

// Cleaner coordinates background maintenance: purging expired one-time
// code records and pruning stale audit logs. Expired codes are also
// deleted lazily on access; the sweep keeps abandoned ones from piling up.
type Cleaner struct {
	store     *otp.Store
	audit     *services.AuditService
	window    time.Duration
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	otpSchedule   string
	auditSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithOTPSchedule overrides the cron schedule for the code sweep.
func WithOTPSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.otpSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron schedule for audit retention.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil
// dependency skips the corresponding job.
func NewCleaner(store *otp.Store, expiryWindow time.Duration, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		store:         store,
		audit:         audit,
		window:        expiryWindow,
		now:           time.Now,
		retention:     defaultAuditRetentionDays,
		otpSchedule:   defaultOTPSpec,
		auditSchedule: defaultAuditSpec,
		log:           logger.WithModule("maintenance"),
	}

	if cleaner.window <= 0 {
		cleaner.window = otp.DefaultExpiryWindow
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the jobs with the scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.store == nil && c.audit == nil {
		return nil
	}

	if c.store != nil {
		if _, err := c.cron.AddFunc(c.otpSchedule, func() {
			if _, err := c.store.PurgeExpired(context.Background(), c.window); err != nil {
				c.log.Warn("code sweep failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			cutoff := c.now().AddDate(0, 0, -c.retention)
			if _, err := c.audit.PurgeOlderThan(context.Background(), cutoff); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.store != nil {
		if _, err := c.store.PurgeExpired(ctx, c.window); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		cutoff := c.now().AddDate(0, 0, -c.retention)
		if _, err := c.audit.PurgeOlderThan(ctx, cutoff); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

package background

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"console-service/internal/cache"
	"console-service/internal/config"
	"console-service/internal/services"
)

// Runner schedules the maintenance jobs: the agent offline sweep, the
// purge of soft-deleted tenants past retention, and cache statistics.
type Runner struct {
	tenantSvc *services.TenantService
	agentSvc  *services.AgentService
	cache     *cache.HierarchyCache
	retention config.RetentionConfig
	logger    *logrus.Logger
	cron      *cron.Cron
}

// NewRunner creates a new background runner. The cache may be nil.
func NewRunner(tenantSvc *services.TenantService, agentSvc *services.AgentService, hierarchyCache *cache.HierarchyCache, retention config.RetentionConfig, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{
		tenantSvc: tenantSvc,
		agentSvc:  agentSvc,
		cache:     hierarchyCache,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers and starts the scheduled jobs
func (r *Runner) Start() error {
	// Agent sweep every minute; the offline threshold lives in the service
	if _, err := r.cron.AddFunc("* * * * *", r.sweepAgents); err != nil {
		return err
	}
	// Retention purge daily at 03:00
	if _, err := r.cron.AddFunc("0 3 * * *", r.purgeTenants); err != nil {
		return err
	}
	if r.cache != nil {
		if _, err := r.cron.AddFunc("*/10 * * * *", r.logCacheStats); err != nil {
			return err
		}
	}

	r.cron.Start()
	r.logger.Info("Background job runner started")
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	select {
	case <-ctx.Done():
		r.logger.Info("Background job runner stopped")
	case <-time.After(30 * time.Second):
		r.logger.Warn("Background job runner stop timeout")
	}
}

// RunOnce executes the sweep and purge immediately (for manual trigger)
func (r *Runner) RunOnce(ctx context.Context) {
	if r.agentSvc != nil {
		if _, err := r.agentSvc.SweepOffline(ctx); err != nil {
			r.logger.WithError(err).Error("Agent sweep failed")
		}
	}
	r.purge(ctx)
}

func (r *Runner) sweepAgents() {
	if r.agentSvc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := r.agentSvc.SweepOffline(ctx); err != nil {
		r.logger.WithError(err).Error("Agent sweep failed")
	}
}

func (r *Runner) purgeTenants() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	r.purge(ctx)
}

func (r *Runner) purge(ctx context.Context) {
	if r.retention.PurgeAfterDays <= 0 {
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -r.retention.PurgeAfterDays)
	purged, err := r.tenantSvc.PurgeDeleted(ctx, cutoff)
	if err != nil {
		r.logger.WithError(err).Error("Tenant purge failed")
		return
	}
	if purged > 0 {
		r.logger.WithField("count", purged).Info("Purged soft-deleted tenants past retention")
	}
}

func (r *Runner) logCacheStats() {
	r.logger.WithField("stats", r.cache.String()).Debug("Hierarchy cache statistics")
}

package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"helpdesk-service/internal/services"
)

// CleanupJob periodically deactivates expired temporal role assignments and
// expired emergency access grants. Expiry is already enforced at read time;
// the sweep keeps the tables and audit trail current.
type CleanupJob struct {
	temporal  *services.TemporalAccessService
	emergency *services.EmergencyAccessService
	logger    *logrus.Logger
	interval  time.Duration
	stopCh    chan struct{}
}

// NewCleanupJob creates a new cleanup job
func NewCleanupJob(
	temporal *services.TemporalAccessService,
	emergency *services.EmergencyAccessService,
	logger *logrus.Logger,
) *CleanupJob {
	return &CleanupJob{
		temporal:  temporal,
		emergency: emergency,
		logger:    logger,
		interval:  5 * time.Minute,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the cleanup job
func (j *CleanupJob) Start(ctx context.Context) {
	j.logger.Info("Cleanup job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	j.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			j.runCleanup(ctx)
		case <-j.stopCh:
			j.logger.Info("Cleanup job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Cleanup job context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *CleanupJob) Stop() {
	close(j.stopCh)
}

func (j *CleanupJob) runCleanup(ctx context.Context) {
	j.logger.Debug("Running access cleanup sweep...")

	expired, err := j.temporal.CleanupExpiredPermissions(ctx)
	if err != nil {
		j.logger.Errorf("Failed to clean up expired role assignments: %v", err)
	} else if expired > 0 {
		j.logger.Infof("Deactivated %d expired role assignments", expired)
	}

	emergencies, err := j.emergency.CleanupExpiredEmergencyAccess(ctx)
	if err != nil {
		j.logger.Errorf("Failed to clean up expired emergency access: %v", err)
	} else if emergencies > 0 {
		j.logger.Infof("Deactivated %d expired emergency grants", emergencies)
	}

	expiring, err := j.temporal.GetExpiringRoles(ctx, 24*time.Hour)
	if err != nil {
		j.logger.Errorf("Failed to find expiring role assignments: %v", err)
	} else if len(expiring) > 0 {
		j.logger.Infof("%d role assignments expire within 24h", len(expiring))
	}
}

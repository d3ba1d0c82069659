package di

import (
	"fmt"

	"github.com/aristath/warden/internal/clientdata"
	"github.com/aristath/warden/internal/config"
	"github.com/aristath/warden/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates the scheduler and registers background jobs.
// Returns JobInstances for manual triggering.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	container.Scheduler = scheduler.New(log)
	instances := &JobInstances{}

	cacheCleanup := clientdata.NewCleanupJob(container.CacheRepo, container.CacheDB, log)
	if err := container.Scheduler.AddJob(cfg.CacheCleanupSchedule, cacheCleanup); err != nil {
		return nil, fmt.Errorf("failed to register %s job: %w", cacheCleanup.Name(), err)
	}
	instances.CacheCleanup = cacheCleanup

	return instances, nil
}

// RunStartupJobs runs jobs that should not wait for their first schedule.
// The cache may hold rows that expired while the process was down.
func RunStartupJobs(container *Container, jobs *JobInstances, log zerolog.Logger) {
	if container == nil || container.Scheduler == nil || jobs == nil || jobs.CacheCleanup == nil {
		return
	}

	if err := container.Scheduler.RunNow(jobs.CacheCleanup); err != nil {
		log.Warn().Err(err).Str("job", jobs.CacheCleanup.Name()).Msg("Startup job failed")
	}
}

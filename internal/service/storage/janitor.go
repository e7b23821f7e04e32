package storage

import (
	"fmt"
	"time"

	"detectserver/internal/logger"

	"github.com/go-co-op/gocron/v2"
)

// Janitor periodically removes abandoned upload staging directories.
type Janitor struct {
	store     *MediaStore
	retention time.Duration
	interval  time.Duration
	scheduler gocron.Scheduler
	logger    *logger.Logger
}

func NewJanitor(store *MediaStore, retention, interval time.Duration, logger *logger.Logger) (*Janitor, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Janitor{
		store:     store,
		retention: retention,
		interval:  interval,
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// Start registers the cleanup job and starts the scheduler.
func (j *Janitor) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(j.sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule staging cleanup: %w", err)
	}
	j.scheduler.Start()
	j.logger.Info("Staging cleanup every %s, retention %s", j.interval, j.retention)
	return nil
}

func (j *Janitor) sweep() {
	if _, err := j.store.CleanupStaging(j.retention); err != nil {
		j.logger.Warning("Staging cleanup incomplete: %v", err)
	}
}

func (j *Janitor) Shutdown() error {
	return j.scheduler.Shutdown()
}

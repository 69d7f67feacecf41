package calsync

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs each source on its own cron entry so one slow feed cannot
// delay the others. Sources without their own schedule use the global one.
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *slog.Logger
}

func NewScheduler(service *Service, defaultSchedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:    cron.New(),
		service: service,
		logger:  logger,
	}

	for _, src := range service.Sources() {
		src := src
		schedule := src.Schedule
		if schedule == "" {
			schedule = defaultSchedule
		}
		_, err := s.cron.AddFunc(schedule, func() {
			if err := service.RunSource(context.Background(), src); err != nil {
				logger.Error("scheduled sync failed", "source_id", src.ID, "err", err)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sync scheduler started", "sources", len(s.service.Sources()))
}

// Stop halts scheduling and waits for in-flight source runs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sync scheduler stopped")
}

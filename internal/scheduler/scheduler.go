// Package scheduler runs the periodic compliance sweep. Every uploaded file
// already triggers a check; the sweep exists so due-date escalations and
// freshness expiry surface even on days with no uploads.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Evaluator is the slice of the processing orchestrator the sweep needs.
type Evaluator interface {
	EvaluateStandards(ctx context.Context) error
}

// Service schedules the recurring compliance evaluation.
type Service struct {
	evaluator Evaluator
	cron      *cron.Cron
	logger    *logrus.Logger
}

// NewService creates a scheduler around the evaluator.
func NewService(evaluator Evaluator, logger *logrus.Logger) *Service {
	return &Service{
		evaluator: evaluator,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the sweep under the given cron expression and starts the
// scheduler.
func (s *Service) Start(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid compliance cron %q: %w", spec, err)
	}

	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if err := s.evaluator.EvaluateStandards(ctx); err != nil {
			s.logger.WithError(err).Error("scheduled compliance sweep failed")
			return
		}
		s.logger.Info("scheduled compliance sweep completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule compliance sweep: %w", err)
	}

	s.cron.Start()
	s.logger.WithField("cron", spec).Info("compliance scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("compliance scheduler stopped")
}

// Package notify turns pipeline events into persisted notifications.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/repository"
)

// Service is the notification sink consumed by the orchestrator's event
// surface.
type Service struct {
	repo   repository.NotificationRepository
	logger *logrus.Logger
}

// NewService creates a notification sink over repo.
func NewService(repo repository.NotificationRepository, logger *logrus.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ComplianceChanged records a notification summarizing the new compliance
// status of one standard.
func (s *Service) ComplianceChanged(ctx context.Context, result domain.ComplianceCheckResult) {
	priority := domain.PriorityLow
	switch result.Status {
	case domain.ComplianceCritical:
		priority = domain.PriorityHigh
	case domain.ComplianceWarning:
		priority = domain.PriorityMedium
	}

	checkID := result.ID
	notification := domain.Notification{
		ID:       uuid.New(),
		Type:     domain.NotificationComplianceChanged,
		Priority: priority,
		Severity: string(result.Status),
		Message: fmt.Sprintf("%s compliance is now %s (%d%%, %d missing KPIs)",
			result.StandardID, result.Status, result.ComplianceRate, len(result.Missing)),
		CheckResultID: &checkID,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		s.logger.WithField("standard", result.StandardID).Errorf("failed to persist compliance notification: %v", err)
	}
}

// ProcessingError records a notification flagging a failed file for
// operator attention.
func (s *Service) ProcessingError(ctx context.Context, fileID uuid.UUID, fileName string, processingErr error) {
	notification := domain.Notification{
		ID:        uuid.New(),
		Type:      domain.NotificationProcessingError,
		Priority:  domain.PriorityHigh,
		Severity:  "error",
		Message:   fmt.Sprintf("processing of %s (%s) failed: %v", fileName, fileID, processingErr),
		CreatedAt: time.Now(),
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		s.logger.WithField("file", fileID).Errorf("failed to persist error notification: %v", err)
	}
}

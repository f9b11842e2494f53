package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a user-facing event.
type NotificationType string

const (
	NotificationComplianceChanged NotificationType = "compliance_changed"
	NotificationProcessingError   NotificationType = "processing_error"
)

// NotificationPriority orders notifications for operator attention.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is a user-facing event derived from a compliance check or a
// processing outcome. Only the Read flag is ever mutated after creation.
type Notification struct {
	ID            uuid.UUID            `json:"id"`
	Type          NotificationType     `json:"type"`
	Priority      NotificationPriority `json:"priority"`
	Severity      string               `json:"severity"`
	Message       string               `json:"message"`
	Read          bool                 `json:"read"`
	CheckResultID *uuid.UUID           `json:"checkResultId,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
}

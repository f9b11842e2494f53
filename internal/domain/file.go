package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProcessingStatus is the closed lifecycle state of an uploaded file.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusError      ProcessingStatus = "ERROR"
)

// legalTransitions encodes the allowed status graph. COMPLETED may return to
// PROCESSING for an explicit reprocess; ERROR is strictly terminal apart from
// deletion.
var legalTransitions = map[ProcessingStatus][]ProcessingStatus{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusError},
	StatusCompleted:  {StatusProcessing},
	StatusError:      {},
}

// Terminal reports whether the status admits no further processing.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransition reports whether moving to next is legal from s.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// FileProcessingRecord tracks one uploaded file through its lifecycle.
type FileProcessingRecord struct {
	ID               uuid.UUID        `json:"id"`
	UploadID         string           `json:"uploadId"`
	FileName         string           `json:"fileName"`
	Status           ProcessingStatus `json:"status"`
	UploadedAt       time.Time        `json:"uploadedAt"`
	ProcessedAt      *time.Time       `json:"processedAt,omitempty"`
	Duration         time.Duration    `json:"duration"`
	ErrorDetail      *string          `json:"errorDetail,omitempty"`
	DetectedKpiCount int              `json:"detectedKpiCount"`
	RecordCount      int              `json:"recordCount"`
}

// Transition moves the record to next, rejecting illegal moves such as
// ERROR -> PROCESSING.
func (f *FileProcessingRecord) Transition(next ProcessingStatus) error {
	if !f.Status.CanTransition(next) {
		return fmt.Errorf("illegal status transition %s -> %s for file %s", f.Status, next, f.ID)
	}
	f.Status = next
	return nil
}

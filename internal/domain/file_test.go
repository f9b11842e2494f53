package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from  ProcessingStatus
		to    ProcessingStatus
		legal bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusError, true},
		{StatusCompleted, StatusProcessing, true}, // reprocess
		{StatusError, StatusProcessing, false},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusError, false},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusCompleted, false},
	}

	for _, tc := range cases {
		record := FileProcessingRecord{ID: uuid.New(), Status: tc.from}
		err := record.Transition(tc.to)
		if tc.legal && err != nil {
			t.Errorf("%s -> %s should be legal, got %v", tc.from, tc.to, err)
		}
		if !tc.legal && err == nil {
			t.Errorf("%s -> %s should be rejected", tc.from, tc.to)
		}
		if !tc.legal && record.Status != tc.from {
			t.Errorf("rejected transition mutated status to %s", record.Status)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	if StatusPending.Terminal() || StatusProcessing.Terminal() {
		t.Fatal("PENDING and PROCESSING are not terminal")
	}
	if !StatusCompleted.Terminal() || !StatusError.Terminal() {
		t.Fatal("COMPLETED and ERROR are terminal")
	}
}

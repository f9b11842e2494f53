package ledger

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/esgboard/kpiledger/internal/domain"
)

// MemoryStore is an in-process Store used in tests and in dev mode when no
// database is configured. Reads return deep copies under a read lock, so a
// snapshot never observes a torn write.
type MemoryStore struct {
	mu            sync.RWMutex
	records       map[string]domain.CumulativeKpiRecord
	contributions map[uuid.UUID][]Contribution
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:       make(map[string]domain.CumulativeKpiRecord),
		contributions: make(map[uuid.UUID][]Contribution),
	}
}

func copyRecord(record domain.CumulativeKpiRecord) domain.CumulativeKpiRecord {
	record.ContributingFiles = append([]string(nil), record.ContributingFiles...)
	return record
}

func (m *MemoryStore) GetRecords(_ context.Context, kpiIDs []string) (map[string]domain.CumulativeKpiRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	found := make(map[string]domain.CumulativeKpiRecord, len(kpiIDs))
	for _, kpiID := range kpiIDs {
		if record, ok := m.records[kpiID]; ok {
			found[kpiID] = copyRecord(record)
		}
	}
	return found, nil
}

func (m *MemoryStore) ListRecords(_ context.Context) ([]domain.CumulativeKpiRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]domain.CumulativeKpiRecord, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, copyRecord(record))
	}
	return records, nil
}

func (m *MemoryStore) ListContributions(_ context.Context, fileID uuid.UUID) ([]Contribution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Contribution(nil), m.contributions[fileID]...), nil
}

func (m *MemoryStore) ApplyAtomic(_ context.Context, records []domain.CumulativeKpiRecord, contributions []Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range records {
		m.records[record.KpiID] = copyRecord(record)
	}
	for _, contribution := range contributions {
		m.contributions[contribution.FileID] = append(m.contributions[contribution.FileID], contribution)
	}
	return nil
}

func (m *MemoryStore) ReverseAtomic(_ context.Context, fileID uuid.UUID, records []domain.CumulativeKpiRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range records {
		m.records[record.KpiID] = copyRecord(record)
	}
	delete(m.contributions, fileID)
	return nil
}

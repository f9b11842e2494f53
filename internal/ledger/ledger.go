// Package ledger owns the authoritative running total per standard KPI.
// Totals are mutated only through Apply and Reverse, which are atomic per
// file and idempotent: the same file can never be applied twice, and a
// reversal restores every affected total exactly.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/esgboard/kpiledger/internal/domain"
)

var (
	// ErrAlreadyApplied guards apply idempotence; hitting it in normal flow
	// is a programming error and is always surfaced.
	ErrAlreadyApplied = errors.New("file contribution already applied")
	// ErrNotApplied guards reversal of a file that never contributed.
	ErrNotApplied = errors.New("file contribution not applied")
)

// ApplyError wraps a failed atomic apply after rollback.
type ApplyError struct {
	FileID uuid.UUID
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("ledger apply failed for file %s: %v", e.FileID, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// Contribution records one file's exact delta against one KPI, with the
// before and after totals for audit.
type Contribution struct {
	FileID    uuid.UUID       `json:"fileId"`
	KpiID     string          `json:"kpiId"`
	Delta     decimal.Decimal `json:"delta"`
	Unit      string          `json:"unit"`
	Before    decimal.Decimal `json:"before"`
	After     decimal.Decimal `json:"after"`
	AppliedAt time.Time       `json:"appliedAt"`
}

// Delta summarizes one apply or reverse operation.
type Delta struct {
	FileID        uuid.UUID      `json:"fileId"`
	Contributions []Contribution `json:"contributions"`
}

// Store persists cumulative records and contributions. Write methods must be
// all-or-nothing: either every record and contribution in the call lands, or
// none do.
type Store interface {
	GetRecords(ctx context.Context, kpiIDs []string) (map[string]domain.CumulativeKpiRecord, error)
	ListRecords(ctx context.Context) ([]domain.CumulativeKpiRecord, error)
	ListContributions(ctx context.Context, fileID uuid.UUID) ([]Contribution, error)
	ApplyAtomic(ctx context.Context, records []domain.CumulativeKpiRecord, contributions []Contribution) error
	ReverseAtomic(ctx context.Context, fileID uuid.UUID, records []domain.CumulativeKpiRecord) error
}

// Service is the cumulative ledger. Apply and reverse on a given KPI are
// mutually exclusive; operations on disjoint KPI sets proceed in parallel.
type Service struct {
	store  Store
	logger *logrus.Logger
	clock  func() time.Time

	mu       sync.Mutex
	kpiLocks map[string]*sync.Mutex
}

// NewService creates a ledger over the given store.
func NewService(store Store, logger *logrus.Logger) *Service {
	return &Service{
		store:    store,
		logger:   logger,
		clock:    time.Now,
		kpiLocks: make(map[string]*sync.Mutex),
	}
}

// lockKpis acquires the per-KPI mutexes for kpiIDs in sorted order so
// overlapping applies can never deadlock. The returned function releases
// them in reverse order.
func (s *Service) lockKpis(kpiIDs []string) func() {
	// Dedupe before sorting: locking the same mutex twice would self-deadlock.
	seen := make(map[string]bool, len(kpiIDs))
	sorted := make([]string, 0, len(kpiIDs))
	for _, kpiID := range kpiIDs {
		if seen[kpiID] {
			continue
		}
		seen[kpiID] = true
		sorted = append(sorted, kpiID)
	}
	sort.Strings(sorted)

	locks := make([]*sync.Mutex, 0, len(sorted))
	s.mu.Lock()
	for _, kpiID := range sorted {
		lock, ok := s.kpiLocks[kpiID]
		if !ok {
			lock = &sync.Mutex{}
			s.kpiLocks[kpiID] = lock
		}
		locks = append(locks, lock)
	}
	s.mu.Unlock()

	for _, lock := range locks {
		lock.Lock()
	}
	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

// Apply merges one file's mapping results into the running totals as a
// single all-or-nothing operation. It fails with ErrAlreadyApplied when the
// file already contributed to any targeted KPI.
func (s *Service) Apply(ctx context.Context, fileID uuid.UUID, results []domain.MappingResult) (Delta, error) {
	delta := Delta{FileID: fileID}
	if len(results) == 0 {
		return delta, nil
	}

	// Two columns can resolve to the same KPI (alias headers). The ledger
	// keeps one contribution per (file, KPI), so fold duplicates into a
	// single delta before touching any record.
	results = mergeByKpi(results)

	kpiIDs := make([]string, 0, len(results))
	for _, result := range results {
		kpiIDs = append(kpiIDs, result.KpiID)
	}
	unlock := s.lockKpis(kpiIDs)
	defer unlock()

	existing, err := s.store.GetRecords(ctx, kpiIDs)
	if err != nil {
		return delta, &ApplyError{FileID: fileID, Err: err}
	}

	prior, err := s.store.ListContributions(ctx, fileID)
	if err != nil {
		return delta, &ApplyError{FileID: fileID, Err: err}
	}
	if len(prior) > 0 {
		return delta, fmt.Errorf("%w: file %s", ErrAlreadyApplied, fileID)
	}

	now := s.clock()
	updated := make([]domain.CumulativeKpiRecord, 0, len(results))
	contributions := make([]Contribution, 0, len(results))

	for _, result := range results {
		record, ok := existing[result.KpiID]
		if !ok {
			record = domain.CumulativeKpiRecord{
				KpiID:      result.KpiID,
				TotalValue: decimal.Zero,
				Unit:       result.Unit,
			}
		}
		if record.HasContributor(fileID.String()) {
			return delta, fmt.Errorf("%w: file %s already contributes to %s", ErrAlreadyApplied, fileID, result.KpiID)
		}

		before := record.TotalValue
		record.TotalValue = before.Add(result.ContributedValue)
		record.ContributingFiles = append(record.ContributingFiles, fileID.String())
		record.UpdatedAt = now

		updated = append(updated, record)
		contributions = append(contributions, Contribution{
			FileID:    fileID,
			KpiID:     result.KpiID,
			Delta:     result.ContributedValue,
			Unit:      result.Unit,
			Before:    before,
			After:     record.TotalValue,
			AppliedAt: now,
		})
	}

	if err := s.store.ApplyAtomic(ctx, updated, contributions); err != nil {
		return delta, &ApplyError{FileID: fileID, Err: err}
	}

	delta.Contributions = contributions
	s.logger.WithFields(logrus.Fields{
		"file": fileID,
		"kpis": len(contributions),
	}).Info("ledger apply committed")
	return delta, nil
}

// Reverse subtracts every contribution recorded for fileID and removes the
// file from the contributor lists. It fails with ErrNotApplied when the file
// never contributed.
func (s *Service) Reverse(ctx context.Context, fileID uuid.UUID) (Delta, error) {
	delta := Delta{FileID: fileID}

	prior, err := s.store.ListContributions(ctx, fileID)
	if err != nil {
		return delta, fmt.Errorf("failed to load contributions for %s: %w", fileID, err)
	}
	if len(prior) == 0 {
		return delta, fmt.Errorf("%w: file %s", ErrNotApplied, fileID)
	}

	kpiIDs := make([]string, 0, len(prior))
	for _, contribution := range prior {
		kpiIDs = append(kpiIDs, contribution.KpiID)
	}
	unlock := s.lockKpis(kpiIDs)
	defer unlock()

	existing, err := s.store.GetRecords(ctx, kpiIDs)
	if err != nil {
		return delta, fmt.Errorf("failed to load records for reversal of %s: %w", fileID, err)
	}

	now := s.clock()
	updated := make([]domain.CumulativeKpiRecord, 0, len(prior))
	reversed := make([]Contribution, 0, len(prior))

	for _, contribution := range prior {
		record, ok := existing[contribution.KpiID]
		if !ok || !record.HasContributor(fileID.String()) {
			return delta, fmt.Errorf("%w: kpi %s has no contribution from %s", ErrNotApplied, contribution.KpiID, fileID)
		}

		before := record.TotalValue
		record.TotalValue = before.Sub(contribution.Delta)
		record.ContributingFiles = removeContributor(record.ContributingFiles, fileID.String())
		record.UpdatedAt = now
		existing[contribution.KpiID] = record

		updated = append(updated, record)
		reversed = append(reversed, Contribution{
			FileID:    fileID,
			KpiID:     contribution.KpiID,
			Delta:     contribution.Delta.Neg(),
			Unit:      contribution.Unit,
			Before:    before,
			After:     record.TotalValue,
			AppliedAt: now,
		})
	}

	if err := s.store.ReverseAtomic(ctx, fileID, updated); err != nil {
		return delta, fmt.Errorf("failed to reverse file %s: %w", fileID, err)
	}

	delta.Contributions = reversed
	s.logger.WithFields(logrus.Fields{
		"file": fileID,
		"kpis": len(reversed),
	}).Info("ledger reversal committed")
	return delta, nil
}

// Applied reports whether fileID currently contributes to the ledger.
func (s *Service) Applied(ctx context.Context, fileID uuid.UUID) (bool, error) {
	prior, err := s.store.ListContributions(ctx, fileID)
	if err != nil {
		return false, err
	}
	return len(prior) > 0, nil
}

// Snapshot returns a point-in-time view of every cumulative record.
func (s *Service) Snapshot(ctx context.Context) ([]domain.CumulativeKpiRecord, error) {
	return s.store.ListRecords(ctx)
}

// mergeByKpi folds duplicate KPI entries into one result per KPI, summing
// the contributed values and preserving first-seen order.
func mergeByKpi(results []domain.MappingResult) []domain.MappingResult {
	merged := make([]domain.MappingResult, 0, len(results))
	index := make(map[string]int, len(results))
	for _, result := range results {
		if i, ok := index[result.KpiID]; ok {
			merged[i].ContributedValue = merged[i].ContributedValue.Add(result.ContributedValue)
			merged[i].RecordCount += result.RecordCount
			continue
		}
		index[result.KpiID] = len(merged)
		merged = append(merged, result)
	}
	return merged
}

func removeContributor(files []string, fileID string) []string {
	filtered := make([]string, 0, len(files))
	for _, id := range files {
		if id != fileID {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/esgboard/kpiledger/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func result(kpiID string, value string) domain.MappingResult {
	return domain.MappingResult{
		ID:               uuid.New(),
		KpiID:            kpiID,
		ContributedValue: decimal.RequireFromString(value),
		RecordCount:      1,
		Unit:             "kg",
	}
}

func totalOf(t *testing.T, service *Service, kpiID string) decimal.Decimal {
	t.Helper()
	snapshot, err := service.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	for _, record := range snapshot {
		if record.KpiID == kpiID {
			return record.TotalValue
		}
	}
	return decimal.Zero
}

func TestApplyAccumulates(t *testing.T) {
	service := NewService(NewMemoryStore(), testLogger())
	ctx := context.Background()

	fileA := uuid.New()
	fileB := uuid.New()

	if _, err := service.Apply(ctx, fileA, []domain.MappingResult{result("CO2_SCOPE1", "150")}); err != nil {
		t.Fatalf("apply A failed: %v", err)
	}
	if _, err := service.Apply(ctx, fileB, []domain.MappingResult{result("CO2_SCOPE1", "50")}); err != nil {
		t.Fatalf("apply B failed: %v", err)
	}

	if got := totalOf(t, service, "CO2_SCOPE1"); !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("expected total 200, got %s", got)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	service := NewService(NewMemoryStore(), testLogger())
	ctx := context.Background()
	fileID := uuid.New()
	results := []domain.MappingResult{result("CO2_SCOPE1", "150")}

	if _, err := service.Apply(ctx, fileID, results); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}

	_, err := service.Apply(ctx, fileID, results)
	if !errors.Is(err, ErrAlreadyApplied) {
		t.Fatalf("expected ErrAlreadyApplied, got %v", err)
	}

	if got := totalOf(t, service, "CO2_SCOPE1"); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("double apply mutated the ledger: %s", got)
	}
}

func TestReverseRestoresExactly(t *testing.T) {
	service := NewService(NewMemoryStore(), testLogger())
	ctx := context.Background()

	base := uuid.New()
	if _, err := service.Apply(ctx, base, []domain.MappingResult{
		result("CO2_SCOPE1", "100.5"),
		result("ENERGY_USAGE", "42.125"),
	}); err != nil {
		t.Fatalf("base apply failed: %v", err)
	}

	beforeScope1 := totalOf(t, service, "CO2_SCOPE1")
	beforeEnergy := totalOf(t, service, "ENERGY_USAGE")

	fileID := uuid.New()
	if _, err := service.Apply(ctx, fileID, []domain.MappingResult{
		result("CO2_SCOPE1", "33.333"),
		result("ENERGY_USAGE", "0.007"),
	}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	delta, err := service.Reverse(ctx, fileID)
	if err != nil {
		t.Fatalf("reverse failed: %v", err)
	}
	if len(delta.Contributions) != 2 {
		t.Fatalf("expected 2 reversed contributions, got %d", len(delta.Contributions))
	}

	if got := totalOf(t, service, "CO2_SCOPE1"); !got.Equal(beforeScope1) {
		t.Fatalf("CO2_SCOPE1 not restored: got %s, want %s", got, beforeScope1)
	}
	if got := totalOf(t, service, "ENERGY_USAGE"); !got.Equal(beforeEnergy) {
		t.Fatalf("ENERGY_USAGE not restored: got %s, want %s", got, beforeEnergy)
	}

	snapshot, _ := service.Snapshot(ctx)
	for _, record := range snapshot {
		if record.HasContributor(fileID.String()) {
			t.Fatalf("reversed file still listed as contributor on %s", record.KpiID)
		}
	}
}

func TestApplyMergesAliasColumns(t *testing.T) {
	service := NewService(NewMemoryStore(), testLogger())
	ctx := context.Background()
	fileID := uuid.New()

	// Two source columns resolved to the same KPI: the ledger must fold
	// them into a single contribution for the file.
	delta, err := service.Apply(ctx, fileID, []domain.MappingResult{
		result("CO2_SCOPE1", "100"),
		result("CO2_SCOPE1", "50"),
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if len(delta.Contributions) != 1 {
		t.Fatalf("expected 1 merged contribution, got %d", len(delta.Contributions))
	}
	if !delta.Contributions[0].Delta.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected merged delta 150, got %s", delta.Contributions[0].Delta)
	}
	if got := totalOf(t, service, "CO2_SCOPE1"); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected total 150, got %s", got)
	}

	contributions, err := service.store.ListContributions(ctx, fileID)
	if err != nil {
		t.Fatalf("list contributions failed: %v", err)
	}
	if len(contributions) != 1 {
		t.Fatalf("expected a single stored contribution, got %d", len(contributions))
	}
	if !contributions[0].Delta.Equal(totalOf(t, service, "CO2_SCOPE1")) {
		t.Fatalf("total %s diverges from stored contribution %s",
			totalOf(t, service, "CO2_SCOPE1"), contributions[0].Delta)
	}

	if _, err := service.Reverse(ctx, fileID); err != nil {
		t.Fatalf("reverse failed: %v", err)
	}
	if got := totalOf(t, service, "CO2_SCOPE1"); !got.IsZero() {
		t.Fatalf("reverse did not restore zero: %s", got)
	}
}

func TestReverseUnknownFileFails(t *testing.T) {
	service := NewService(NewMemoryStore(), testLogger())

	_, err := service.Reverse(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotApplied) {
		t.Fatalf("expected ErrNotApplied, got %v", err)
	}
}

// failingStore rejects atomic writes to simulate a storage fault.
type failingStore struct {
	*MemoryStore
	failApply bool
}

func (f *failingStore) ApplyAtomic(ctx context.Context, records []domain.CumulativeKpiRecord, contributions []Contribution) error {
	if f.failApply {
		return fmt.Errorf("storage fault")
	}
	return f.MemoryStore.ApplyAtomic(ctx, records, contributions)
}

func TestApplyFaultLeavesLedgerUntouched(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	service := NewService(store, testLogger())
	ctx := context.Background()

	seed := uuid.New()
	if _, err := service.Apply(ctx, seed, []domain.MappingResult{result("CO2_SCOPE1", "100")}); err != nil {
		t.Fatalf("seed apply failed: %v", err)
	}

	store.failApply = true
	fileID := uuid.New()
	_, err := service.Apply(ctx, fileID, []domain.MappingResult{
		result("CO2_SCOPE1", "10"),
		result("ENERGY_USAGE", "20"),
	})

	var applyErr *ApplyError
	if !errors.As(err, &applyErr) {
		t.Fatalf("expected ApplyError, got %v", err)
	}

	if got := totalOf(t, service, "CO2_SCOPE1"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("failed apply leaked into CO2_SCOPE1: %s", got)
	}
	if got := totalOf(t, service, "ENERGY_USAGE"); !got.IsZero() {
		t.Fatalf("failed apply leaked into ENERGY_USAGE: %s", got)
	}
	if applied, _ := service.Applied(ctx, fileID); applied {
		t.Fatal("failed apply must not register the file as applied")
	}
}

func TestInvariantTotalsMatchContributions(t *testing.T) {
	service := NewService(NewMemoryStore(), testLogger())
	ctx := context.Background()

	files := make([]uuid.UUID, 6)
	for i := range files {
		files[i] = uuid.New()
		if _, err := service.Apply(ctx, files[i], []domain.MappingResult{
			result("CO2_SCOPE1", fmt.Sprintf("%d.25", i+1)),
			result("WATER_USAGE", fmt.Sprintf("%d", (i+1)*10)),
		}); err != nil {
			t.Fatalf("apply %d failed: %v", i, err)
		}
	}

	// Remove every other file.
	for i := 0; i < len(files); i += 2 {
		if _, err := service.Reverse(ctx, files[i]); err != nil {
			t.Fatalf("reverse %d failed: %v", i, err)
		}
	}

	snapshot, err := service.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	for _, record := range snapshot {
		expected := decimal.Zero
		for _, contributor := range record.ContributingFiles {
			fileID, parseErr := uuid.Parse(contributor)
			if parseErr != nil {
				t.Fatalf("bad contributor id %q: %v", contributor, parseErr)
			}
			contributions, listErr := service.store.ListContributions(ctx, fileID)
			if listErr != nil {
				t.Fatalf("list contributions failed: %v", listErr)
			}
			for _, contribution := range contributions {
				if contribution.KpiID == record.KpiID {
					expected = expected.Add(contribution.Delta)
				}
			}
		}
		if !record.TotalValue.Equal(expected) {
			t.Errorf("invariant broken for %s: total %s, active contributions sum %s",
				record.KpiID, record.TotalValue, expected)
		}
	}
}

func TestConcurrentAppliesDisjointKpis(t *testing.T) {
	service := NewService(NewMemoryStore(), testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	const workers = 8
	const perWorker = 20

	for w := 0; w < workers; w++ {
		kpiID := fmt.Sprintf("KPI_%d", w%4)
		wg.Add(1)
		go func(kpiID string) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := service.Apply(ctx, uuid.New(), []domain.MappingResult{result(kpiID, "1")}); err != nil {
					t.Errorf("concurrent apply failed: %v", err)
					return
				}
			}
		}(kpiID)
	}
	wg.Wait()

	total := decimal.Zero
	snapshot, _ := service.Snapshot(ctx)
	for _, record := range snapshot {
		total = total.Add(record.TotalValue)
	}
	if !total.Equal(decimal.NewFromInt(workers * perWorker)) {
		t.Fatalf("expected grand total %d, got %s", workers*perWorker, total)
	}
}

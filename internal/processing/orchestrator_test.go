package processing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/esgboard/kpiledger/internal/compliance"
	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/ledger"
	"github.com/esgboard/kpiledger/internal/mapping"
	"github.com/esgboard/kpiledger/internal/repository"
	"github.com/esgboard/kpiledger/internal/taxonomy"
)

type stubFileRepo struct {
	mu       sync.Mutex
	records  map[uuid.UUID]domain.FileProcessingRecord
	payloads map[uuid.UUID][]byte
}

func newStubFileRepo() *stubFileRepo {
	return &stubFileRepo{
		records:  make(map[uuid.UUID]domain.FileProcessingRecord),
		payloads: make(map[uuid.UUID][]byte),
	}
}

func (s *stubFileRepo) Create(_ context.Context, record domain.FileProcessingRecord, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	s.payloads[record.ID] = payload
	return nil
}

func (s *stubFileRepo) GetByID(_ context.Context, id uuid.UUID) (domain.FileProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return domain.FileProcessingRecord{}, errors.New("not found")
	}
	return record, nil
}

func (s *stubFileRepo) GetPayload(_ context.Context, id uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.payloads[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return payload, nil
}

func (s *stubFileRepo) Update(_ context.Context, record domain.FileProcessingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *stubFileRepo) List(_ context.Context, page int, limit int) ([]domain.FileProcessingRecord, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]domain.FileProcessingRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].UploadedAt.After(records[j].UploadedAt) })
	return records, len(records), nil
}

func (s *stubFileRepo) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	delete(s.payloads, id)
	return nil
}

type stubMappingRepo struct {
	mu       sync.Mutex
	results  map[uuid.UUID][]domain.MappingResult
	unmapped map[uuid.UUID][]domain.UnmappedColumn
}

func newStubMappingRepo() *stubMappingRepo {
	return &stubMappingRepo{
		results:  make(map[uuid.UUID][]domain.MappingResult),
		unmapped: make(map[uuid.UUID][]domain.UnmappedColumn),
	}
}

func (s *stubMappingRepo) ReplaceForFile(_ context.Context, fileID uuid.UUID, results []domain.MappingResult, unmapped []domain.UnmappedColumn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[fileID] = results
	s.unmapped[fileID] = unmapped
	return nil
}

func (s *stubMappingRepo) ListByFile(_ context.Context, fileID uuid.UUID) ([]domain.MappingResult, []domain.UnmappedColumn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[fileID], s.unmapped[fileID], nil
}

func (s *stubMappingRepo) DeleteForFile(_ context.Context, fileID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, fileID)
	delete(s.unmapped, fileID)
	return nil
}

type stubComplianceRepo struct {
	mu      sync.Mutex
	history []domain.ComplianceCheckResult
}

func (s *stubComplianceRepo) Record(_ context.Context, result domain.ComplianceCheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, result)
	return nil
}

func (s *stubComplianceRepo) List(_ context.Context, standardID string, limit int) ([]domain.ComplianceCheckResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ComplianceCheckResult
	for i := len(s.history) - 1; i >= 0; i-- {
		if standardID == "" || s.history[i].StandardID == standardID {
			out = append(out, s.history[i])
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *stubComplianceRepo) Latest(_ context.Context, standardID string) (domain.ComplianceCheckResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].StandardID == standardID {
			return s.history[i], true, nil
		}
	}
	return domain.ComplianceCheckResult{}, false, nil
}

type recordedEvents struct {
	mu               sync.Mutex
	complianceEvents []domain.ComplianceCheckResult
	errorEvents      []uuid.UUID
}

func (r *recordedEvents) ComplianceChanged(_ context.Context, result domain.ComplianceCheckResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.complianceEvents = append(r.complianceEvents, result)
}

func (r *recordedEvents) ProcessingError(_ context.Context, fileID uuid.UUID, _ string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorEvents = append(r.errorEvents, fileID)
}

type harness struct {
	orchestrator *Orchestrator
	files        *stubFileRepo
	mappings     *stubMappingRepo
	checks       *stubComplianceRepo
	events       *recordedEvents
	ledger       *ledger.Service
}

func newHarness(t *testing.T) *harness {
	return buildHarness(t, nil)
}

// buildHarness lets a test wrap the file repository, e.g. to hold a
// processing run at the payload load step.
func buildHarness(t *testing.T, wrap func(repository.FileRepository) repository.FileRepository) *harness {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	registry := taxonomy.NewRegistry(taxonomy.DefaultDefinitions())
	files := newStubFileRepo()
	mappings := newStubMappingRepo()
	checks := &stubComplianceRepo{}
	events := &recordedEvents{}
	ledgerService := ledger.NewService(ledger.NewMemoryStore(), logger)

	var fileRepo repository.FileRepository = files
	if wrap != nil {
		fileRepo = wrap(files)
	}

	orchestrator := NewOrchestrator(Config{
		Files:     fileRepo,
		Mappings:  mappings,
		Checks:    checks,
		Engine:    mapping.NewEngine(registry, logger),
		Ledger:    ledgerService,
		Evaluator: compliance.NewEvaluator(registry),
		Standards: []domain.ComplianceStandard{
			{
				ID:   "TEST_STD",
				Name: "Test Standard",
				Required: []domain.RequiredKpi{
					{KpiID: "CO2_SCOPE1"},
					{KpiID: "CO2_SCOPE2"},
					{KpiID: "ENERGY_USAGE"},
				},
				Enabled: true,
			},
		},
		Events: events,
		Logger: logger,
	})

	return &harness{
		orchestrator: orchestrator,
		files:        files,
		mappings:     mappings,
		checks:       checks,
		events:       events,
		ledger:       ledgerService,
	}
}

func (h *harness) ingestAndWait(t *testing.T, payload string, fileName string) uuid.UUID {
	t.Helper()
	fileID, err := h.orchestrator.IngestFile(context.Background(), []byte(payload), fileName)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	h.orchestrator.Wait()
	return fileID
}

func (h *harness) total(t *testing.T, kpiID string) decimal.Decimal {
	t.Helper()
	snapshot, err := h.ledger.Snapshot(context.Background())
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

const scope1CSV = "SCOPE1_EMISSIONS,date\n100,2024-01-01\n50,2024-02-01\n"

func TestUploadMapsAndApplies(t *testing.T) {
	h := newHarness(t)
	fileID := h.ingestAndWait(t, scope1CSV, "emissions.csv")

	record, err := h.files.GetByID(context.Background(), fileID)
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if record.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (detail %v)", record.Status, record.ErrorDetail)
	}
	if record.DetectedKpiCount != 1 {
		t.Fatalf("expected 1 detected KPI, got %d", record.DetectedKpiCount)
	}
	if record.RecordCount != 2 {
		t.Fatalf("expected 2 rows, got %d", record.RecordCount)
	}

	results, _, err := h.mappings.ListByFile(context.Background(), fileID)
	if err != nil {
		t.Fatalf("mapping lookup failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 mapping result, got %d", len(results))
	}
	if results[0].KpiID != "CO2_SCOPE1" {
		t.Fatalf("expected CO2_SCOPE1, got %s", results[0].KpiID)
	}
	if results[0].Confidence != 1.0 {
		t.Fatalf("exact alias must map with confidence 1.0, got %f", results[0].Confidence)
	}
	if !results[0].ContributedValue.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected contributed value 150, got %s", results[0].ContributedValue)
	}

	if got := h.total(t, "CO2_SCOPE1"); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected ledger total 150, got %s", got)
	}
}

func TestDeleteRestoresLedger(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.ingestAndWait(t, scope1CSV, "baseline.csv")
	before := h.total(t, "CO2_SCOPE1")

	fileID := h.ingestAndWait(t, "SCOPE1_EMISSIONS\n37.5\n", "extra.csv")
	if got := h.total(t, "CO2_SCOPE1"); !got.Equal(before.Add(decimal.RequireFromString("37.5"))) {
		t.Fatalf("pre-delete total wrong: %s", got)
	}

	if err := h.orchestrator.DeleteFile(ctx, fileID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if got := h.total(t, "CO2_SCOPE1"); !got.Equal(before) {
		t.Fatalf("ledger not restored after delete: got %s, want %s", got, before)
	}
	if _, err := h.files.GetByID(ctx, fileID); err == nil {
		t.Fatal("file record should be gone after delete")
	}
	if applied, _ := h.ledger.Applied(ctx, fileID); applied {
		t.Fatal("deleted file still applied to ledger")
	}
}

func TestPartialComplianceAfterUpload(t *testing.T) {
	h := newHarness(t)
	h.ingestAndWait(t, scope1CSV, "emissions.csv")

	latest, ok, err := h.checks.Latest(context.Background(), "TEST_STD")
	if err != nil || !ok {
		t.Fatalf("expected a recorded check, ok=%v err=%v", ok, err)
	}
	if latest.ComplianceRate != 33 {
		t.Fatalf("expected rate 33, got %d", latest.ComplianceRate)
	}
	if len(latest.Missing) != 2 {
		t.Fatalf("expected 2 missing KPIs, got %d", len(latest.Missing))
	}
	if len(h.events.complianceEvents) == 0 {
		t.Fatal("first check should emit a compliance event")
	}
}

func TestUnmappedColumnsCompleteWithZeroKpis(t *testing.T) {
	h := newHarness(t)
	fileID := h.ingestAndWait(t, "random_column_xyz\n1\n2\n", "noise.csv")

	record, _ := h.files.GetByID(context.Background(), fileID)
	if record.Status != domain.StatusCompleted {
		t.Fatalf("zero-mapping file must still complete, got %s", record.Status)
	}
	if record.DetectedKpiCount != 0 {
		t.Fatalf("expected 0 detected KPIs, got %d", record.DetectedKpiCount)
	}

	results, unmapped, _ := h.mappings.ListByFile(context.Background(), fileID)
	if len(results) != 0 {
		t.Fatalf("expected no mapping results, got %d", len(results))
	}
	if len(unmapped) != 1 {
		t.Fatalf("expected 1 unmapped column, got %d", len(unmapped))
	}

	snapshot, _ := h.ledger.Snapshot(context.Background())
	if len(snapshot) != 0 {
		t.Fatalf("ledger must stay untouched, got %d records", len(snapshot))
	}
}

func TestMalformedFileTransitionsToError(t *testing.T) {
	h := newHarness(t)
	fileID := h.ingestAndWait(t, "a,b\n\"unterminated\n", "broken.csv")

	record, _ := h.files.GetByID(context.Background(), fileID)
	if record.Status != domain.StatusError {
		t.Fatalf("expected ERROR, got %s", record.Status)
	}
	if record.ErrorDetail == nil {
		t.Fatal("expected error detail to be recorded")
	}
	if len(h.events.errorEvents) != 1 || h.events.errorEvents[0] != fileID {
		t.Fatalf("expected one error event for %s, got %v", fileID, h.events.errorEvents)
	}

	snapshot, _ := h.ledger.Snapshot(context.Background())
	if len(snapshot) != 0 {
		t.Fatal("failed file must not reach the ledger")
	}
}

func TestHeaderOnlyFileCompletes(t *testing.T) {
	h := newHarness(t)
	fileID := h.ingestAndWait(t, "SCOPE1_EMISSIONS,date\n", "empty.csv")

	record, _ := h.files.GetByID(context.Background(), fileID)
	if record.Status != domain.StatusCompleted {
		t.Fatalf("header-only file must complete, got %s (detail %v)", record.Status, record.ErrorDetail)
	}
	if record.RecordCount != 0 || record.DetectedKpiCount != 0 {
		t.Fatalf("unexpected counts: rows=%d kpis=%d", record.RecordCount, record.DetectedKpiCount)
	}
}

func TestReprocessDoesNotDoubleCount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fileID := h.ingestAndWait(t, scope1CSV, "emissions.csv")

	if err := h.orchestrator.Reprocess(ctx, fileID); err != nil {
		t.Fatalf("reprocess failed: %v", err)
	}

	if got := h.total(t, "CO2_SCOPE1"); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("reprocess double-counted: got %s, want 150", got)
	}
	record, _ := h.files.GetByID(ctx, fileID)
	if record.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED after reprocess, got %s", record.Status)
	}
}

func TestAliasColumnsFoldIntoOneContribution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// SCOPE1_EMISSIONS and DIRECT_EMISSIONS are both aliases of CO2_SCOPE1,
	// so one file can carry two columns for the same KPI.
	fileID := h.ingestAndWait(t, "SCOPE1_EMISSIONS,DIRECT_EMISSIONS\n100,50\n", "aliases.csv")

	record, err := h.files.GetByID(ctx, fileID)
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if record.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s (detail %v)", record.Status, record.ErrorDetail)
	}

	results, _, err := h.mappings.ListByFile(ctx, fileID)
	if err != nil {
		t.Fatalf("mapping lookup failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected one mapping result per column, got %d", len(results))
	}
	for _, r := range results {
		if r.KpiID != "CO2_SCOPE1" {
			t.Fatalf("expected CO2_SCOPE1 for %s, got %s", r.SourceColumn, r.KpiID)
		}
	}

	if got := h.total(t, "CO2_SCOPE1"); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected ledger total 150, got %s", got)
	}

	if err := h.orchestrator.DeleteFile(ctx, fileID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if got := h.total(t, "CO2_SCOPE1"); !got.IsZero() {
		t.Fatalf("delete did not restore zero: %s", got)
	}
}

// gatedFileRepo holds GetPayload until the gate closes so a test can act
// while a run is in flight.
type gatedFileRepo struct {
	repository.FileRepository
	gate chan struct{}
}

func (g *gatedFileRepo) GetPayload(ctx context.Context, id uuid.UUID) ([]byte, error) {
	<-g.gate
	return g.FileRepository.GetPayload(ctx, id)
}

func TestCancelBeforeApplyLeavesLedgerUntouched(t *testing.T) {
	gate := make(chan struct{})
	h := buildHarness(t, func(inner repository.FileRepository) repository.FileRepository {
		return &gatedFileRepo{FileRepository: inner, gate: gate}
	})
	ctx := context.Background()

	fileID, err := h.orchestrator.IngestFile(ctx, []byte(scope1CSV), "slow.csv")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	if !h.orchestrator.Cancel(fileID) {
		t.Fatal("expected an in-flight run to cancel")
	}
	close(gate)
	h.orchestrator.Wait()

	record, err := h.files.GetByID(ctx, fileID)
	if err != nil {
		t.Fatalf("record lookup failed: %v", err)
	}
	if record.Status != domain.StatusError {
		t.Fatalf("canceled run must end in ERROR, got %s", record.Status)
	}
	if record.ErrorDetail == nil || !strings.Contains(*record.ErrorDetail, "canceled") {
		t.Fatalf("expected cancellation detail, got %v", record.ErrorDetail)
	}

	snapshot, _ := h.ledger.Snapshot(ctx)
	if len(snapshot) != 0 {
		t.Fatalf("canceled run must not reach the ledger, got %d records", len(snapshot))
	}
	if applied, _ := h.ledger.Applied(ctx, fileID); applied {
		t.Fatal("canceled file must not register as applied")
	}
}

func TestCancelWithoutInFlightRun(t *testing.T) {
	h := newHarness(t)
	fileID := h.ingestAndWait(t, scope1CSV, "done.csv")

	if h.orchestrator.Cancel(fileID) {
		t.Fatal("cancel after completion must report no in-flight run")
	}
	if got := h.total(t, "CO2_SCOPE1"); !got.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("late cancel must not disturb the ledger, got %s", got)
	}
}

func TestReprocessFromErrorRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	fileID := h.ingestAndWait(t, "a,b\n\"unterminated\n", "broken.csv")

	if err := h.orchestrator.Reprocess(ctx, fileID); err == nil {
		t.Fatal("reprocessing an ERROR file must be rejected")
	}
}

func TestDeleteNonTerminalRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record := domain.FileProcessingRecord{ID: uuid.New(), Status: domain.StatusProcessing, FileName: "inflight.csv"}
	_ = h.files.Create(ctx, record, []byte("x"))

	if err := h.orchestrator.DeleteFile(ctx, record.ID); err == nil {
		t.Fatal("deleting an in-flight file must be rejected")
	}
}

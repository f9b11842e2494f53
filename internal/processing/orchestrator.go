// Package processing sequences mapping, ledger apply and compliance
// re-evaluation for one uploaded file and tracks its lifecycle.
package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/esgboard/kpiledger/internal/compliance"
	"github.com/esgboard/kpiledger/internal/domain"
	"github.com/esgboard/kpiledger/internal/ledger"
	"github.com/esgboard/kpiledger/internal/mapping"
	"github.com/esgboard/kpiledger/internal/repository"
)

// ErrFileNotFound is returned for operations on unknown file ids.
var ErrFileNotFound = errors.New("file not found")

// Events is the outbound event surface consumed by the notification sink.
type Events interface {
	ComplianceChanged(ctx context.Context, result domain.ComplianceCheckResult)
	ProcessingError(ctx context.Context, fileID uuid.UUID, fileName string, err error)
}

// Orchestrator drives the PENDING -> PROCESSING -> {COMPLETED | ERROR} state
// machine per uploaded file.
type Orchestrator struct {
	files     repository.FileRepository
	mappings  repository.MappingResultRepository
	checks    repository.ComplianceRepository
	engine    *mapping.Engine
	ledger    *ledger.Service
	evaluator *compliance.Evaluator
	standards []domain.ComplianceStandard
	events    Events
	logger    *logrus.Logger

	sem chan struct{}
	wg  sync.WaitGroup

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// Config bundles the orchestrator's collaborators.
type Config struct {
	Files          repository.FileRepository
	Mappings       repository.MappingResultRepository
	Checks         repository.ComplianceRepository
	Engine         *mapping.Engine
	Ledger         *ledger.Service
	Evaluator      *compliance.Evaluator
	Standards      []domain.ComplianceStandard
	Events         Events
	Logger         *logrus.Logger
	MaxConcurrency int
}

// NewOrchestrator wires the processing pipeline.
func NewOrchestrator(cfg Config) *Orchestrator {
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Orchestrator{
		files:     cfg.Files,
		mappings:  cfg.Mappings,
		checks:    cfg.Checks,
		engine:    cfg.Engine,
		ledger:    cfg.Ledger,
		evaluator: cfg.Evaluator,
		standards: cfg.Standards,
		events:    cfg.Events,
		logger:    cfg.Logger,
		sem:       make(chan struct{}, concurrency),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// IngestFile registers an upload as PENDING and schedules asynchronous
// processing. It returns as soon as the record is persisted.
func (o *Orchestrator) IngestFile(ctx context.Context, payload []byte, fileName string) (uuid.UUID, error) {
	record := domain.FileProcessingRecord{
		ID:         uuid.New(),
		UploadID:   uuid.NewString(),
		FileName:   fileName,
		Status:     domain.StatusPending,
		UploadedAt: time.Now(),
	}

	if err := o.files.Create(ctx, record, payload); err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist upload: %w", err)
	}

	procCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[record.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.cancels, record.ID)
			o.mu.Unlock()
			cancel()
		}()

		o.sem <- struct{}{}
		defer func() { <-o.sem }()

		o.Process(procCtx, record.ID)
	}()

	return record.ID, nil
}

// Process runs the full pipeline for one file. Any failure transitions the
// file to ERROR with the ledger either fully applied and reversed again, or
// never touched.
func (o *Orchestrator) Process(ctx context.Context, fileID uuid.UUID) {
	start := time.Now()

	record, err := o.files.GetByID(ctx, fileID)
	if err != nil {
		o.logger.WithField("file", fileID).Errorf("cannot load file record: %v", err)
		return
	}

	if err := o.transition(ctx, &record, domain.StatusProcessing); err != nil {
		o.logger.WithField("file", fileID).Errorf("cannot start processing: %v", err)
		return
	}

	outcome, err := o.runPipeline(ctx, &record)
	if err != nil {
		o.fail(ctx, &record, start, err)
		return
	}

	record.DetectedKpiCount = len(outcome.Results)
	record.RecordCount = outcome.TotalRows
	now := time.Now()
	record.ProcessedAt = &now
	record.Duration = now.Sub(start)
	record.ErrorDetail = nil

	if err := o.transition(ctx, &record, domain.StatusCompleted); err != nil {
		o.logger.WithField("file", fileID).Errorf("cannot complete file: %v", err)
		return
	}

	o.logger.WithFields(logrus.Fields{
		"file":     fileID,
		"kpis":     record.DetectedKpiCount,
		"rows":     record.RecordCount,
		"duration": record.Duration,
	}).Info("file processing completed")
}

// runPipeline executes mapping, ledger apply and compliance re-evaluation.
// The ledger apply happens only after the full mapping outcome is computed,
// so cancellation before that point never leaves ledger state behind. If a
// step after a successful apply fails, the apply is reversed before the
// error is surfaced.
func (o *Orchestrator) runPipeline(ctx context.Context, record *domain.FileProcessingRecord) (mapping.Outcome, error) {
	payload, err := o.files.GetPayload(ctx, record.ID)
	if err != nil {
		return mapping.Outcome{}, fmt.Errorf("failed to load payload: %w", err)
	}

	outcome, err := o.engine.MapFile(record.ID, record.FileName, payload)
	if err != nil {
		return outcome, err
	}

	if err := ctx.Err(); err != nil {
		// Canceled before apply: safe, nothing reached the ledger.
		return outcome, fmt.Errorf("processing canceled: %w", err)
	}

	applied := false
	if len(outcome.Results) > 0 {
		if _, err := o.ledger.Apply(ctx, record.ID, outcome.Results); err != nil {
			return outcome, err
		}
		applied = true
	}

	if err := o.finishRun(ctx, record, outcome); err != nil {
		if applied {
			if _, revErr := o.ledger.Reverse(ctx, record.ID); revErr != nil {
				o.logger.WithField("file", record.ID).Errorf("rollback after failed run also failed: %v", revErr)
			}
		}
		return outcome, err
	}

	return outcome, nil
}

// finishRun persists the mapping run and re-evaluates every enabled
// standard, emitting a notification when a standard's status changed.
func (o *Orchestrator) finishRun(ctx context.Context, record *domain.FileProcessingRecord, outcome mapping.Outcome) error {
	if err := o.mappings.ReplaceForFile(ctx, record.ID, outcome.Results, outcome.Unmapped); err != nil {
		return fmt.Errorf("failed to persist mapping results: %w", err)
	}
	return o.EvaluateStandards(ctx)
}

// EvaluateStandards runs a compliance check for every enabled standard
// against the current ledger snapshot, persists each result, and emits a
// ComplianceChanged event when a standard's overall status differs from its
// previous check.
func (o *Orchestrator) EvaluateStandards(ctx context.Context) error {
	snapshot, err := o.ledger.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot ledger: %w", err)
	}

	for _, standard := range o.standards {
		if !standard.Enabled {
			continue
		}

		previous, hasPrevious, err := o.checks.Latest(ctx, standard.ID)
		if err != nil {
			return fmt.Errorf("failed to load previous check for %s: %w", standard.ID, err)
		}

		result := o.evaluator.Evaluate(standard, snapshot)
		if err := o.checks.Record(ctx, result); err != nil {
			return fmt.Errorf("failed to record check for %s: %w", standard.ID, err)
		}

		if !hasPrevious || previous.Status != result.Status {
			o.events.ComplianceChanged(ctx, result)
		}
	}
	return nil
}

// DeleteFile removes a file from a terminal state, reversing its ledger
// contribution when one was applied.
func (o *Orchestrator) DeleteFile(ctx context.Context, fileID uuid.UUID) error {
	record, err := o.files.GetByID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if !record.Status.Terminal() {
		return fmt.Errorf("file %s is still %s; only terminal files can be deleted", fileID, record.Status)
	}

	applied, err := o.ledger.Applied(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to check ledger state: %w", err)
	}
	if applied {
		if _, err := o.ledger.Reverse(ctx, fileID); err != nil {
			return fmt.Errorf("failed to reverse contribution of %s: %w", fileID, err)
		}
	}

	if err := o.mappings.DeleteForFile(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete mapping results: %w", err)
	}
	if err := o.files.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("failed to delete file record: %w", err)
	}

	if applied {
		if err := o.EvaluateStandards(ctx); err != nil {
			o.logger.Errorf("compliance re-check after deleting %s failed: %v", fileID, err)
		}
	}

	o.logger.WithField("file", fileID).Info("file deleted")
	return nil
}

// Reprocess re-runs a COMPLETED file's mapping after reversing its prior
// contribution, preserving idempotence under intentional re-ingestion.
func (o *Orchestrator) Reprocess(ctx context.Context, fileID uuid.UUID) error {
	record, err := o.files.GetByID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	if !record.Status.CanTransition(domain.StatusProcessing) {
		return fmt.Errorf("file %s cannot be reprocessed from %s", fileID, record.Status)
	}

	applied, err := o.ledger.Applied(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to check ledger state: %w", err)
	}
	if applied {
		if _, err := o.ledger.Reverse(ctx, fileID); err != nil {
			return fmt.Errorf("failed to reverse prior contribution: %w", err)
		}
	}

	o.Process(ctx, fileID)
	return nil
}

// Cancel aborts in-flight processing for fileID and reports whether an
// in-flight run was found. Cancellation only takes effect before the ledger
// apply step.
func (o *Orchestrator) Cancel(fileID uuid.UUID) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[fileID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until all in-flight processing goroutines finish.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) transition(ctx context.Context, record *domain.FileProcessingRecord, next domain.ProcessingStatus) error {
	if err := record.Transition(next); err != nil {
		return err
	}
	if err := o.files.Update(ctx, *record); err != nil {
		return fmt.Errorf("failed to persist status %s: %w", next, err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, record *domain.FileProcessingRecord, start time.Time, cause error) {
	detail := cause.Error()
	record.ErrorDetail = &detail
	now := time.Now()
	record.ProcessedAt = &now
	record.Duration = now.Sub(start)

	if err := o.transition(ctx, record, domain.StatusError); err != nil {
		o.logger.WithField("file", record.ID).Errorf("cannot record failure: %v", err)
	}

	o.events.ProcessingError(ctx, record.ID, record.FileName, cause)
	o.logger.WithFields(logrus.Fields{
		"file":  record.ID,
		"error": detail,
	}).Warn("file processing failed")
}

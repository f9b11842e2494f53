package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/esgboard/kpiledger/internal/catalog"
	"github.com/esgboard/kpiledger/internal/compliance"
	"github.com/esgboard/kpiledger/internal/config"
	"github.com/esgboard/kpiledger/internal/db"
	"github.com/esgboard/kpiledger/internal/export"
	"github.com/esgboard/kpiledger/internal/ledger"
	"github.com/esgboard/kpiledger/internal/mapping"
	"github.com/esgboard/kpiledger/internal/middleware"
	"github.com/esgboard/kpiledger/internal/notify"
	"github.com/esgboard/kpiledger/internal/processing"
	"github.com/esgboard/kpiledger/internal/repository"
	"github.com/esgboard/kpiledger/internal/scheduler"
	"github.com/esgboard/kpiledger/internal/taxonomy"
	"github.com/esgboard/kpiledger/pkg/validator"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appConfig, dbConfig, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := config.NewLogger(appConfig.LogLevel)

	conn, err := db.NewConnection(ctx, dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(dbConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	kpiDefRepo := repository.NewKpiDefinitionRepository(conn.Pool)
	fileRepo := repository.NewFileRepository(conn.Pool)
	mappingRepo := repository.NewMappingResultRepository(conn)
	complianceRepo := repository.NewComplianceRepository(conn.Pool)
	notificationRepo := repository.NewNotificationRepository(conn.Pool)

	// Seed taxonomy and standards; seeding is idempotent so restarts are safe.
	defs := taxonomy.DefaultDefinitions()
	if appConfig.KpiSeedPath != "" {
		if defs, err = taxonomy.LoadDefinitions(appConfig.KpiSeedPath); err != nil {
			log.Fatalf("Failed to load KPI definitions: %v", err)
		}
	}
	standards := compliance.DefaultStandards(time.Now())
	if appConfig.StandardsPath != "" {
		if standards, err = compliance.LoadStandards(appConfig.StandardsPath); err != nil {
			log.Fatalf("Failed to load compliance standards: %v", err)
		}
	}

	seedValidator := validator.NewSeedValidator()
	if err := seedValidator.ValidateDefinitions(defs); err != nil {
		log.Fatalf("Invalid KPI definitions: %v", err)
	}
	if err := seedValidator.ValidateStandards(standards, defs); err != nil {
		log.Fatalf("Invalid compliance standards: %v", err)
	}

	for _, def := range defs {
		if err := kpiDefRepo.Upsert(ctx, def); err != nil {
			log.Fatalf("Failed to seed KPI definition %s: %v", def.ID, err)
		}
	}
	registry := taxonomy.NewRegistry(defs)

	// Core services
	var ledgerStore ledger.Store = repository.NewLedgerStore(conn)
	if appConfig.UseMemoryLedger {
		ledgerStore = ledger.NewMemoryStore()
		logger.Warn("using in-memory ledger store; totals will not survive restarts")
	}
	ledgerService := ledger.NewService(ledgerStore, logger)
	engine := mapping.NewEngine(registry, logger)
	evaluator := compliance.NewEvaluator(registry)
	events := notify.NewService(notificationRepo, logger)

	orchestrator := processing.NewOrchestrator(processing.Config{
		Files:          fileRepo,
		Mappings:       mappingRepo,
		Checks:         complianceRepo,
		Engine:         engine,
		Ledger:         ledgerService,
		Evaluator:      evaluator,
		Standards:      standards,
		Events:         events,
		Logger:         logger,
		MaxConcurrency: appConfig.MaxConcurrency,
	})

	catalogService := catalog.NewService(
		ledgerService,
		registry,
		evaluator,
		standards,
		fileRepo,
		mappingRepo,
		complianceRepo,
		notificationRepo,
	)

	exporter := export.NewService(catalogService, logger)

	sweep := scheduler.NewService(orchestrator, logger)
	if err := sweep.Start(appConfig.ComplianceCron); err != nil {
		log.Fatalf("Failed to start compliance scheduler: %v", err)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   appConfig.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	mux := http.NewServeMux()
	mux.Handle("/api/uploads", processing.NewHTTPHandler(orchestrator))
	mux.Handle("/api/uploads/", processing.NewHTTPHandler(orchestrator))
	mux.Handle("/api/export/report", export.NewHTTPHandler(exporter))
	mux.Handle("/api/", catalog.NewHTTPHandler(catalogService))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", appConfig.Port),
		Handler:      corsHandler.Handler(middleware.LoggingMiddleware(logger, mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sweep.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Let in-flight file processing finish so no upload is stranded in
	// PROCESSING.
	orchestrator.Wait()
	logger.Info("server exited")
}

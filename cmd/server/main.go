package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/finchly/expenseflow/internal/audit"
	"github.com/finchly/expenseflow/internal/config"
	"github.com/finchly/expenseflow/internal/export"
	httpapi "github.com/finchly/expenseflow/internal/interfaces/http"
	"github.com/finchly/expenseflow/internal/policy"
	"github.com/finchly/expenseflow/internal/repository"
	"github.com/finchly/expenseflow/internal/service"
	"github.com/finchly/expenseflow/internal/worker"
	"github.com/finchly/expenseflow/pkg/database"
	"github.com/finchly/expenseflow/pkg/utils"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ExpenseFlow",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	reportRepo := repository.NewReportRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	employeeRepo := repository.NewEmployeeRepository(db.DB, logger)
	policyRepo := repository.NewPolicyRepository(db.DB, logger)
	batchRepo := repository.NewBatchRepository(db.DB, logger)
	auditRepo := repository.NewAuditRepository(db.DB, logger)

	recorder := audit.NewRecorder(auditRepo, logger)

	engine := policy.NewEngine(policy.Rules{
		ReceiptRequiredAboveCents: cfg.Receipts.RequiredAboveCents,
		MaxReceiptBytes:           cfg.Receipts.MaxBytes,
		MaxReceiptsPerItem:        cfg.Receipts.MaxFilesPerItem,
		AllowedReceiptMimeTypes:   cfg.Receipts.AllowedMimeTypes,
	})

	// Services
	expenseService := service.NewExpenseService(db, reportRepo, approvalRepo, policyRepo, recorder, engine, logger)
	approvalService := service.NewApprovalService(db, reportRepo, approvalRepo, employeeRepo, recorder, logger)
	financeService := service.NewFinanceService(db, reportRepo, batchRepo, employeeRepo, recorder, logger)

	// Export pipeline
	ledgerClient := export.NewNetsuiteClient(export.NetsuiteConfig{
		BaseURL:        cfg.Netsuite.BaseURL,
		Account:        cfg.Netsuite.Account,
		TokenID:        cfg.Netsuite.TokenID,
		TokenSecret:    cfg.Netsuite.TokenSecret,
		RequestTimeout: cfg.Netsuite.RequestTimeout,
	}, logger)

	strategy := &export.RetryStrategy{
		MaxAttempts: cfg.Exporter.MaxAttempts,
		BaseBackoff: cfg.Exporter.BaseBackoff,
		MaxBackoff:  cfg.Exporter.MaxBackoff,
		Jitter:      true,
	}
	workbooks := export.NewWorkbookWriter(cfg.Exporter.RemediationDir, logger)
	orchestrator := export.NewOrchestrator(db, batchRepo, recorder, ledgerClient, strategy, workbooks, cfg.Exporter.ClaimLease, logger)
	exportWorker := export.NewWorker(orchestrator, cfg.Exporter.PollInterval, logger)
	financeService.AttachKicker(exportWorker)

	workers := worker.NewManager(logger)
	workers.Register(exportWorker)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}
	defer workers.StopAll()

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, expenseService, approvalService, financeService, logger)

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

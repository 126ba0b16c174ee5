package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/schemaops/migrond/api"
	"github.com/schemaops/migrond/application"
	"github.com/schemaops/migrond/cleanup"
	"github.com/schemaops/migrond/config"
	"github.com/schemaops/migrond/database"
	"github.com/schemaops/migrond/execution"
	"github.com/schemaops/migrond/health"
	"github.com/schemaops/migrond/log"
	"github.com/schemaops/migrond/migration"
	"github.com/schemaops/migrond/rollback"
	"github.com/schemaops/migrond/scheduler"
)

func main() {
	ctx := context.Background()

	err := run(ctx)
	if err != nil {
		if errors.Is(err, application.ErrUnknownCommand) {
			os.Exit(2)
		}
		log.ErrorContext(ctx, "migrond exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if len(os.Args) < 2 {
		// No command given; this prints usage without touching config.
		return application.New().Run(ctx)
	}

	flags := flag.NewFlagSet("migrond", flag.ContinueOnError)
	configPath := flags.String("config", os.Getenv("MIGROND_CONFIG"), "path to the YAML configuration file")
	// os.Args[1] is the command (run/migrate); flags follow it.
	if len(os.Args) > 2 {
		if err := flags.Parse(os.Args[2:]); err != nil {
			return err
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log.SetDefault(log.New(os.Stdout, cfg.LogFormat, slog.LevelInfo, nil))

	db, err := database.New(cfg.Database.URL)
	if err != nil {
		return err
	}
	conn := db.Connection()
	conn.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.Database.ConnMaxLifetimeDuration())

	migrationRepo := migration.NewRepository(conn)
	executionRepo := execution.NewRepository(conn)
	rollbackRepo := rollback.NewRepository(conn)
	alertRepo := health.NewRepository(conn)
	runner := database.NewSQLRunner(conn)

	migrationSvc := migration.NewService(migrationRepo)
	healthSvc := health.NewService(db, executionRepo, migrationRepo, alertRepo)
	executionSvc := execution.NewService(migrationRepo, migrationRepo, executionRepo, runner, healthSvc)
	rollbackSvc := rollback.NewService(migrationRepo, executionRepo, rollbackRepo, runner)
	cleanupSvc := cleanup.NewService(executionRepo)

	app := application.New()
	app.RegisterDatabase("migrond", db)
	// Fail fast on a dead database instead of starting services that can
	// only error.
	app.OnStartFunc(db.Ping, application.StartupTaskConfig{Name: "database-ping", AbortOnError: true})
	app.RegisterDomain("migration", "migrond", migrationSvc)
	app.RegisterDomain("execution", "migrond", executionSvc)
	app.RegisterDomain("rollback", "migrond", rollbackSvc)
	app.RegisterDomain("health", "migrond", healthSvc)

	liveness := application.NewHealthCheckHandler(app)
	httpAPI := api.New(migrationSvc, executionSvc, rollbackSvc, healthSvc, cleanupSvc)
	router := httpAPI.Router(liveness, cfg.Server.AllowOrigins...)
	app.RegisterService("http", api.NewServer(cfg.Server.Port, router, cfg.Server.ShutdownTimeoutDuration()))

	cleanupRunner := cleanup.NewRunner(cleanupSvc, cleanup.Options{
		RemoveOldExecutions:        cfg.Cleanup.RemoveOldExecutions,
		CleanupDays:                cfg.Cleanup.RetentionDays,
		RemoveOrphanRollbackPoints: cfg.Cleanup.RemoveOrphanPoints,
	})
	cleanupSched, err := scheduler.New(cfg.Scheduler.CleanupCron, cleanupRunner)
	if err != nil {
		return err
	}
	app.RegisterService("cleanup-scheduler", cleanupSched)

	reportSched, err := scheduler.New(cfg.Scheduler.ReportCron, health.NewReportRunner(healthSvc, 7))
	if err != nil {
		return err
	}
	app.RegisterService("report-scheduler", reportSched)

	return app.Run(ctx)
}

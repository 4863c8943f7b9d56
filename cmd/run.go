package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"digido/config"
	"digido/database"
	"digido/events"
	"digido/generator"
	"digido/notify"
	"digido/repository"
	"digido/service"
	"github.com/robfig/cron/v3"
)

// app holds the wired worker and its resources
type app struct {
	db         *database.DB
	scheduler  service.SchedulerService
	summary    service.SummaryService
	dispatcher service.DispatcherService
	summaries  service.SummaryRepository
	cfg        *config.Config
}

// buildApp wires the full worker: database, repositories, event bus,
// channel senders and services
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	eventBus := events.NewBus()
	events.RegisterAlertHandlers(eventBus)

	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)
	prefsRepo := repository.NewUserPrefsRepository(db)
	runRepo := repository.NewSummaryRunRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	summaryRepo := repository.NewSummaryRepository(db)

	senders, err := notify.BuildSenders(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to build channel senders: %w", err)
	}

	gen := generator.NewHTTPGenerator(cfg.SummaryFlowURL)
	summarySvc := service.NewSummaryService(uowFactory, gen, cfg.FlowTimeout)
	dispatcher := service.NewDispatcherService(outboxRepo, senders, eventBus, cfg.MaxDeliveryAttempts, cfg.DeliveryTimeout)
	scheduler := service.NewSchedulerService(
		prefsRepo,
		runRepo,
		summarySvc,
		dispatcher,
		eventBus,
		cfg.BatchLimit,
		cfg.WorkerCount,
		cfg.GraceWindow,
		cfg.StaleRunThreshold,
		cfg.OutboxBatchSize,
	)

	return &app{db: db, scheduler: scheduler, summary: summarySvc, dispatcher: dispatcher, summaries: summaryRepo, cfg: cfg}, nil
}

func (a *app) close() {
	log.Println("Closing database connection...")
	a.db.Close()
}

// RunTick performs a single scheduler invocation and exits
func RunTick(ctx context.Context) error {
	cfg := config.Get()

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.close()

	if _, err := application.scheduler.Tick(ctx); err != nil {
		return fmt.Errorf("tick failed: %w", err)
	}
	return nil
}

// RunDaemon ticks on the configured cron schedule until the context is
// cancelled. Overlapping ticks are skipped rather than stacked.
func RunDaemon(ctx context.Context) error {
	cfg := config.Get()

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.close()

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	_, err = c.AddFunc(cfg.DaemonSchedule, func() {
		if _, err := application.scheduler.Tick(ctx); err != nil {
			log.Printf("Tick failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid daemon schedule %q: %w", cfg.DaemonSchedule, err)
	}

	log.Printf("Daemon running on schedule %q in %s mode...", cfg.DaemonSchedule, cfg.Environment)
	c.Start()

	<-ctx.Done()

	log.Println("Shutting down daemon...")
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		log.Println("Shutdown completed")
	case <-time.After(10 * time.Second):
		log.Println("Shutdown timeout exceeded")
	}
	return nil
}

// RunUser executes the summary flow for one user outside the due window.
// With deliver=false the content is generated and archived without
// enqueueing any notifications.
func RunUser(ctx context.Context, userID string, summaryDate time.Time, deliver bool) error {
	cfg := config.Get()

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.close()

	if err := application.summary.ForceRun(ctx, userID, summaryDate, deliver); err != nil {
		return fmt.Errorf("run for user %s failed: %w", userID, err)
	}

	// Show the operator what was archived; on a dry run the content itself
	// is the whole point of the command
	latest, err := application.summaries.GetLatest(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load archived summary: %w", err)
	}
	if latest != nil {
		log.Printf("Archived summary for %s on %s (%d bytes)",
			userID, latest.SummaryDate.Format("2006-01-02"), len(latest.Content))
		if !deliver {
			fmt.Println(latest.Content)
		}
	}

	if deliver {
		report, err := application.dispatcher.DrainOutbox(ctx, application.cfg.OutboxBatchSize)
		if err != nil {
			return fmt.Errorf("outbox drain failed: %w", err)
		}
		log.Printf("Delivered %d notifications (%d failed)", report.Delivered, report.Failed)
	}

	log.Printf("Summary run completed for user %s", userID)
	return nil
}

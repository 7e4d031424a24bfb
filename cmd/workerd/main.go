// Command workerd is the standalone process that runs the Scheduler
// Worker: it polls for due schedules and hands each one to the Event
// Dispatcher as a scheduler-origin trigger event (spec §4.3, §4.1).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/opensyte/workflow-core/dispatch"
	"github.com/opensyte/workflow-core/execution"
	"github.com/opensyte/workflow-core/pkg/config"
	"github.com/opensyte/workflow-core/pkg/logger"
	"github.com/opensyte/workflow-core/schedule"
	"github.com/opensyte/workflow-core/store/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "workerd:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	if err := config.Initialize(nil); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Get()

	log := logger.NewLogger(&logger.Config{
		Level: cfg.Logger.Level,
		JSON:  cfg.Logger.JSON,
	})
	ctx = logger.ContextWithLogger(ctx, log)

	if err := postgres.ApplyMigrations(ctx, cfg.Database.DSN); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}

	store, err := postgres.NewStore(ctx, &postgres.Config{
		ConnString: cfg.Database.DSN,
		MaxConns:   cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer func() { _ = store.Close(ctx) }()

	workflowRepo := postgres.NewWorkflowRepo(store.Pool())
	execRepo := postgres.NewExecutionRepo(store.Pool())
	approvalRepo := postgres.NewApprovalRepo(store.Pool())
	scheduleRepo := postgres.NewScheduleRepo(store.Pool())

	cronParser := adapters.NewRobfigCronParser()
	scheduler := schedule.NewScheduler(scheduleRepo, cronParser, adapters.SystemClock)

	// RecordStore fronts the embedding service's own business-entity
	// database (CRM/HR/FINANCE records, spec §6 "ORM dependency"); workerd
	// has none of its own; an embedding service wires its real ORM in
	// place of this in-memory stand-in before going to production.
	engine := execution.NewEngine(execution.Deps{
		WorkflowRepo: workflowRepo,
		ExecRepo:     execRepo,
		ApprovalRepo: approvalRepo,
		Scheduler:    scheduler,
		EmailSink:    adapters.NoopEmailSink{},
		SmsSink:      adapters.UnconfiguredSmsSink{},
		RecordStore:  adapters.NewInMemoryRecordStore(),
		Clock:        adapters.SystemClock,
		Logger:       log,
	})

	dispatcher := dispatch.NewDispatcher(workflowRepo, engine)

	worker := schedule.NewWorker(scheduler, schedulerDispatch(dispatcher), schedule.WorkerConfig{
		PollInterval: cfg.Worker.PollInterval(),
		BatchSize:    cfg.Worker.BatchSize,
	}, log)

	return worker.Run(ctx)
}

// schedulerDispatch adapts a due schedule.Record into the scheduler-origin
// dispatch.Event the Worker's Dispatch callback contract requires (spec
// §4.3 "hands the due schedule to the dispatcher as a scheduler-origin
// trigger event").
func schedulerDispatch(d *dispatch.Dispatcher) schedule.Dispatch {
	return func(ctx context.Context, rec schedule.Record) error {
		ev := dispatch.Event{
			OrganizationID: rec.Metadata.OrganizationID,
			Module:         rec.Metadata.Module,
			EntityType:     rec.Metadata.EntityType,
			EventType:      rec.Metadata.EventType,
			Payload:        rec.Metadata.Payload,
			UserID:         rec.Metadata.UserID,
			TriggeredAt:    adapters.SystemClock.Now(),
		}
		_, err := d.Dispatch(ctx, ev)
		return err
	}
}

package schedule

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/opensyte/workflow-core/pkg/logger"
)

// Dispatch is the callback the Worker invokes for each due schedule; it is
// satisfied by the Event Dispatcher's entry point (spec §4.3: "hands the
// due schedule to the dispatcher as a scheduler-origin trigger event").
type Dispatch func(ctx context.Context, rec Record) error

// WorkerConfig controls the polling loop's cadence and batch size.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Worker polls for due schedules on a fixed interval and hands each one to
// Dispatch, serializing ticks so a slow poll never overlaps the next one
// (spec §4.3 "one tick runs to completion before the next begins").
type Worker struct {
	scheduler *Scheduler
	dispatch  Dispatch
	cfg       WorkerConfig
	log       logger.Logger

	ticking atomic.Bool
}

func NewWorker(scheduler *Scheduler, dispatch Dispatch, cfg WorkerConfig, log logger.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if log == nil {
		log = logger.FromContext(context.Background())
	}
	return &Worker{scheduler: scheduler, dispatch: dispatch, cfg: cfg, log: log}
}

// Run blocks until ctx is canceled or a SIGINT/SIGTERM is received,
// polling for due schedules every PollInterval.
func (w *Worker) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.log.Info("scheduler worker started", "pollInterval", w.cfg.PollInterval, "batchSize", w.cfg.BatchSize)
	for {
		select {
		case <-sigCtx.Done():
			w.log.Info("scheduler worker shutting down")
			return nil
		case <-ticker.C:
			w.tick(sigCtx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if !w.ticking.CompareAndSwap(false, true) {
		w.log.Warn("previous tick still running, skipping this interval")
		return
	}
	defer w.ticking.Store(false)

	due, err := w.scheduler.FetchDueSchedules(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.Error("fetch due schedules failed", "error", err)
		return
	}
	for _, rec := range due {
		w.runOne(ctx, rec)
	}
}

func (w *Worker) runOne(ctx context.Context, rec Record) {
	log := w.log.With("scheduleId", rec.ID.String(), "workflowId", rec.WorkflowID.String())

	err := w.dispatch(ctx, rec)
	if err != nil {
		if markErr := w.scheduler.MarkRunFailure(ctx, rec, err, log); markErr != nil {
			log.Error("failed to record schedule failure", "error", markErr)
		}
		return
	}
	if markErr := w.scheduler.MarkRunSuccess(ctx, rec); markErr != nil {
		log.Error("failed to advance schedule after success", "error", markErr)
	}
}

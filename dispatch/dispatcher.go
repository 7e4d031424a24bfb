package dispatch

import (
	"context"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/pkg/logger"
	"github.com/opensyte/workflow-core/resolve"
	"golang.org/x/sync/errgroup"
)

// Dispatcher routes inbound events to matching workflow triggers and hands
// each match to the Execution Engine (spec §4.1).
type Dispatcher struct {
	repo   Repository
	engine Engine
}

func NewDispatcher(repo Repository, engine Engine) *Dispatcher {
	return &Dispatcher{repo: repo, engine: engine}
}

type workflowPair struct {
	workflowID core.ID
	match      Match
}

// Dispatch implements the full matching + fan-out contract: dispatch(event)
// -> {triggeredCount, perWorkflowResults} (spec §4.1).
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (Result, error) {
	log := logger.FromContext(ctx)

	candidates, err := d.repo.ActiveWorkflowsWithTriggers(ctx, ev.OrganizationID)
	if err != nil {
		return Result{}, err
	}

	evalCtx := resolve.NewContext()
	evalCtx.Payload = ev.Payload

	var pairs []workflowPair
	for _, wt := range candidates {
		if !wt.Workflow.IsEligibleForDispatch() {
			continue
		}
		for _, m := range matchTriggers(wt.Triggers, &ev, evalCtx) {
			pairs = append(pairs, workflowPair{workflowID: wt.Workflow.ID, match: m})
		}
	}

	if len(pairs) == 0 {
		return Result{TriggeredCount: 0}, nil
	}

	// "Collect all, never abort" fan-out: an errgroup.Group used purely
	// for goroutine bookkeeping, not cancellation-on-first-error (spec
	// §4.1: "Failure of one pair must not abort the others").
	results := make([]WorkflowResult, len(pairs))
	var g errgroup.Group
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			results[i] = d.runOne(ctx, log, ev, p)
			return nil
		})
	}
	_ = g.Wait()

	triggered := 0
	for _, r := range results {
		if r.Success {
			triggered++
		}
	}
	return Result{TriggeredCount: triggered, PerWorkflowResults: results}, nil
}

func (d *Dispatcher) runOne(ctx context.Context, log logger.Logger, ev Event, p workflowPair) (res WorkflowResult) {
	res = WorkflowResult{WorkflowID: p.workflowID, TriggerID: p.match.TriggerID}
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic during workflow execution, isolated from other pairs", "recover", r)
			res.Success = false
			res.Error = "internal error"
		}
	}()

	execID, err := d.engine.ExecuteWorkflow(ctx, p.workflowID, ev, p.match.TriggerID)
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.ExecutionID = execID
	if err := d.repo.RecordTriggerFired(ctx, p.match.TriggerID); err != nil {
		log.Warn("execution succeeded but trigger counter update failed",
			"triggerId", p.match.TriggerID.String(), "error", err)
	}
	return res
}

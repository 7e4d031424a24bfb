package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
	"golang.org/x/sync/errgroup"
)

// parallelRunner is injected by the Engine so the PARALLEL interpreter can
// recursively run sibling nodes through the engine's current graph walk
// (bound per walk in graph.go runNode).
type parallelRunner func(ctx context.Context, rc *RunContext, nodeID string) error

// parallelInterpreter implements PARALLEL (spec §4.2 "PARALLEL"): runs
// parallelNodeIds concurrently via the engine's own node interpreter,
// choosing the fan-out strategy by failureHandling (SPEC_FULL §4.2
// "PARALLEL fan-out": errgroup.Group for fail_on_any, a plain
// sync.WaitGroup with error collection otherwise).
type parallelInterpreter struct {
	run parallelRunner
}

func (p parallelInterpreter) Execute(ctx context.Context, rc *RunContext, node *workflow.Node) (NodeResult, error) {
	cfg := node.Config.Parallel
	if len(cfg.ParallelNodeIDs) == 0 {
		return NodeResult{
			Output: core.ObjectValue(map[string]core.Value{"reason": core.StringValue("no parallelNodeIds configured")}),
			Status: core.StatusSkipped,
		}, nil
	}

	var errs []string
	switch cfg.FailureHandling {
	case workflow.FailOnAny, "":
		var g errgroup.Group
		for _, id := range cfg.ParallelNodeIDs {
			id := id
			g.Go(func() error { return p.run(ctx, rc, id) })
		}
		if err := g.Wait(); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, id := range cfg.ParallelNodeIDs {
			id := id
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := p.run(ctx, rc, id); err != nil {
					mu.Lock()
					errs = append(errs, fmt.Sprintf("%s: %s", id, err.Error()))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
	}

	status := core.StatusCompleted
	switch cfg.FailureHandling {
	case workflow.FailOnAny:
		if len(errs) > 0 {
			status = core.StatusFailed
		}
	case workflow.FailOnAll:
		if len(errs) == len(cfg.ParallelNodeIDs) {
			status = core.StatusFailed
		}
	case workflow.ContinueOnFailure:
		status = core.StatusCompleted
	default:
		if len(errs) > 0 {
			status = core.StatusFailed
		}
	}

	out := core.ObjectValue(map[string]core.Value{
		"ranNodeIds": stringsToValue(cfg.ParallelNodeIDs),
		"errorCount": core.NumberValue(float64(len(errs))),
	})
	var nodeErr *core.Error
	if status == core.StatusFailed {
		nodeErr = core.NewError(fmt.Errorf("%d of %d parallel branches failed", len(errs), len(cfg.ParallelNodeIDs)), core.ErrCodeTransient, map[string]any{"errors": errs})
	}
	return NodeResult{Output: out, Status: status, Err: nodeErr}, nil
}

func stringsToValue(ss []string) core.Value {
	vals := make([]core.Value, len(ss))
	for i, s := range ss {
		vals[i] = core.StringValue(s)
	}
	return core.ArrayValue(vals)
}

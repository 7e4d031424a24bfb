package execution

import (
	"context"
	"fmt"

	"github.com/opensyte/workflow-core/core"
	"github.com/opensyte/workflow-core/workflow"
)

// graph is the in-memory view of one workflow's nodes/connections built
// once per executeWorkflow (or resumeAfterApproval) call.
type graph struct {
	nodes    map[string]*workflow.Node
	outgoing map[string][]*workflow.Connection // pre-sorted, spec §4.2/Open Question (b)
}

func buildGraph(nodes []workflow.Node, conns []*workflow.Connection) *graph {
	g := &graph{
		nodes:    make(map[string]*workflow.Node, len(nodes)),
		outgoing: make(map[string][]*workflow.Connection),
	}
	for i := range nodes {
		g.nodes[nodes[i].NodeID] = &nodes[i]
	}
	bySource := make(map[string][]*workflow.Connection)
	for _, c := range conns {
		bySource[c.SourceNodeID] = append(bySource[c.SourceNodeID], c)
	}
	for nodeID, cs := range bySource {
		g.outgoing[nodeID] = workflow.SortConnections(cs)
	}
	return g
}

// selectConnections implements spec §4.2 "Connection gating": a connection
// is taken when its sourceHandle matches one of handles and its
// conditions.onStatus (default COMPLETED) equals status. When handles is
// empty, the default/unset handle is used. A handle with no matching
// connection falls back to "fallback"/"default" connections — the rule
// spec §4.2 states explicitly for CONDITION, generalized to every kind
// since each interpreter now reports its own Handles.
func selectConnections(conns []*workflow.Connection, status core.StatusType, handles []string) []*workflow.Connection {
	statusOK := func(c *workflow.Connection) bool {
		want := core.StatusCompleted
		if c.Conditions != nil && c.Conditions.OnStatus != nil {
			want = *c.Conditions.OnStatus
		}
		return want == status
	}
	if len(handles) == 0 {
		var out []*workflow.Connection
		for _, c := range conns {
			if (c.SourceHandle == "" || c.SourceHandle == "default") && statusOK(c) {
				out = append(out, c)
			}
		}
		return out
	}
	var out []*workflow.Connection
	for _, h := range handles {
		var matched []*workflow.Connection
		for _, c := range conns {
			if c.SourceHandle == h && statusOK(c) {
				matched = append(matched, c)
			}
		}
		if len(matched) == 0 {
			for _, c := range conns {
				if (c.SourceHandle == "fallback" || c.SourceHandle == "default") && statusOK(c) {
					matched = append(matched, c)
				}
			}
		}
		out = append(out, matched...)
	}
	return out
}

// interpreterFor returns the registered interpreter for kind, special-
// casing PARALLEL so it gets a run callback bound to this graph walk
// (parallelRunner — see node_parallel.go) instead of a shared one baked in
// at Engine construction time.
func (e *Engine) interpreterFor(kind workflow.NodeType, run parallelRunner) NodeInterpreter {
	if kind == workflow.NodeParallel {
		return parallelInterpreter{run: run}
	}
	return e.interpreters[kind]
}

// runNode executes one node and recursively walks its outgoing connections
// (spec §4.2 "Graph walk" / "Per-node execution"). LOOP is special-cased
// into runLoopNode because its per-item re-entry cannot be expressed as a
// single interpreter call followed by one connection-selection pass.
func (e *Engine) runNode(ctx context.Context, g *graph, rc *RunContext, nodeID string) error {
	node, ok := g.nodes[nodeID]
	if !ok {
		return fmt.Errorf("unknown node id %q", nodeID)
	}
	if !rc.RecordVisit(nodeID) {
		e.log.Warn("node visit cap exceeded, stopping branch", "nodeId", nodeID, "cap", MaxNodeVisits)
		return nil
	}

	if node.Type == workflow.NodeLoop {
		return e.runLoopNode(ctx, g, rc, node)
	}

	var run parallelRunner
	if node.Type == workflow.NodeParallel {
		run = func(ctx context.Context, rc *RunContext, id string) error {
			return e.runNode(ctx, g, rc, id)
		}
	}
	interp := e.interpreterFor(node.Type, run)
	if interp == nil {
		err := fmt.Errorf("no interpreter registered for node type %q", node.Type)
		return core.NewError(err, core.ErrCodeFatal, map[string]any{"node": nodeID})
	}

	result := e.executeTracked(ctx, rc, node, interp)

	if result.Status == core.StatusCompleted || result.Status == core.StatusPending || result.Status == core.StatusSkipped {
		rc.SetNodeOutput(nodeID, result.Output)
	}
	if result.Status == core.StatusFailed && !node.IsOptional {
		return fmt.Errorf("node %s failed: %w", nodeID, result.Err)
	}

	conns := selectConnections(g.outgoing[nodeID], result.Status, result.Handles)
	for _, c := range conns {
		if err := e.runNode(ctx, g, rc, c.TargetNodeID); err != nil {
			return err
		}
	}
	return nil
}

// executeTracked wraps executeNodeOnce with NodeExecution persistence and
// structured logging (spec §4.2 "Per-node execution" steps 1, 3-5).
func (e *Engine) executeTracked(ctx context.Context, rc *RunContext, node *workflow.Node, interp NodeInterpreter) NodeResult {
	start := rc.Clock.Now()
	neID, idErr := core.NewID()
	var ne *workflow.NodeExecution
	if idErr == nil {
		ne = &workflow.NodeExecution{
			ID:                  neID,
			WorkflowExecutionID: rc.ExecutionID,
			NodeID:              node.NodeID,
			Status:              core.StatusRunning,
			Input:               nodeInputSnapshot(rc),
			StartedAt:           start,
		}
		if err := e.execRepo.CreateNodeExecution(ctx, ne); err != nil {
			e.log.Error("failed to persist node execution start", "nodeId", node.NodeID, "error", err)
		}
	}
	e.appendLog(ctx, rc.ExecutionID, &node.NodeID, core.LogInfo, "node.started", node.NodeID)

	result := e.executeNodeOnce(ctx, rc, node, interp)

	completedAt := rc.Clock.Now()
	if ne != nil {
		ne.Status = result.Status
		ne.Output = result.Output
		ne.Error = result.Err
		ne.CompletedAt = &completedAt
		ne.Duration = completedAt.Sub(start)
		if err := e.execRepo.UpdateNodeExecution(ctx, ne); err != nil {
			e.log.Error("failed to persist node execution result", "nodeId", node.NodeID, "error", err)
		}
	}

	if result.Status == core.StatusFailed {
		e.appendLog(ctx, rc.ExecutionID, &node.NodeID, core.LogError, "node.failed", node.NodeID)
	} else {
		e.appendLog(ctx, rc.ExecutionID, &node.NodeID, core.LogInfo, "node.completed", node.NodeID)
	}
	return result
}

// runLoopNode implements spec §4.2 "LOOP": resolve the collection, bound
// iterations, and re-enter the "body"/"loop"/"item"-handled connections
// once per item with $loop. set to that item's frame. planLoopItems and
// resolveLoopCollection are shared with loopInterpreter's own summary
// output (node_loop.go) so both paths agree on which items actually run.
func (e *Engine) runLoopNode(ctx context.Context, g *graph, rc *RunContext, node *workflow.Node) error {
	cfg := node.Config.Loop
	start := rc.Clock.Now()
	neID, idErr := core.NewID()
	var ne *workflow.NodeExecution
	if idErr == nil {
		ne = &workflow.NodeExecution{
			ID:                  neID,
			WorkflowExecutionID: rc.ExecutionID,
			NodeID:              node.NodeID,
			Status:              core.StatusRunning,
			Input:               nodeInputSnapshot(rc),
			StartedAt:           start,
		}
		if err := e.execRepo.CreateNodeExecution(ctx, ne); err != nil {
			e.log.Error("failed to persist node execution start", "nodeId", node.NodeID, "error", err)
		}
	}

	collection, _ := resolveLoopCollection(rc, cfg)
	items, _ := collection.AsArray()
	total := len(items)

	var runErr error
	processedCount := 0
	if total == 0 {
		emptyConns := selectConnections(g.outgoing[node.NodeID], core.StatusCompleted, []string{"empty"})
		for _, c := range emptyConns {
			if err := e.runNode(ctx, g, rc, c.TargetNodeID); err != nil {
				runErr = err
				break
			}
		}
	} else {
		processed := planLoopItems(rc, cfg, items, total)
		bodyConns := selectConnections(g.outgoing[node.NodeID], core.StatusCompleted, []string{"body", "loop", "item"})
		prevLoop := rc.Loop
		for i, item := range processed {
			rc.Loop = &LoopFrame{Item: item, Index: i, Total: total, ItemVar: cfg.ItemVariable, IndexVar: cfg.IndexVariable}
			for _, c := range bodyConns {
				if err := e.runNode(ctx, g, rc, c.TargetNodeID); err != nil {
					runErr = err
					break
				}
			}
			processedCount++
			if runErr != nil {
				break
			}
		}
		rc.Loop = prevLoop
	}

	status := core.StatusCompleted
	if runErr != nil && !node.IsOptional {
		status = core.StatusFailed
	}
	out := core.ObjectValue(map[string]core.Value{
		"iterations":     core.NumberValue(float64(processedCount)),
		"itemsProcessed": core.NumberValue(float64(processedCount)),
	})
	completedAt := rc.Clock.Now()
	if ne != nil {
		ne.Status = status
		ne.Output = out
		if runErr != nil {
			ne.Error = core.NewError(runErr, core.ErrCodeTransient, nil)
		}
		ne.CompletedAt = &completedAt
		ne.Duration = completedAt.Sub(start)
		if err := e.execRepo.UpdateNodeExecution(ctx, ne); err != nil {
			e.log.Error("failed to persist node execution result", "nodeId", node.NodeID, "error", err)
		}
	}
	rc.SetNodeOutput(node.NodeID, out)

	if status == core.StatusFailed {
		return fmt.Errorf("node %s failed: %w", node.NodeID, runErr)
	}
	return nil
}

func (e *Engine) appendLog(ctx context.Context, execID core.ID, nodeID *string, level core.LogLevel, category, detail string) {
	e.execRepo.AppendLog(ctx, &workflow.ExecutionLog{
		WorkflowExecutionID: execID,
		NodeID:              nodeID,
		Level:               level,
		Source:              "engine",
		Category:            category,
		Timestamp:           e.clock.Now(),
		Details:             core.StringValue(detail),
	})
}

// nodeInputSnapshot is what's persisted as NodeExecution.Input: the frozen
// triggering payload, augmented with the current loop frame when walking
// inside a LOOP body.
func nodeInputSnapshot(rc *RunContext) core.Value {
	if rc.Loop == nil {
		return rc.Payload
	}
	return core.ObjectValue(map[string]core.Value{
		"payload": rc.Payload,
		"loop": core.ObjectValue(map[string]core.Value{
			"item":  rc.Loop.Item,
			"index": core.NumberValue(float64(rc.Loop.Index)),
			"total": core.NumberValue(float64(rc.Loop.Total)),
		}),
	})
}

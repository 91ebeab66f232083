package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loomery/loom/internal/domain"
)

// parallelHandler fans its configured branches out concurrently. Failure
// isolation is per-branch: every branch's outcome is collected and one
// branch failing never aborts its siblings.
type parallelHandler struct {
	executor *Executor
}

func (h *parallelHandler) Type() domain.NodeType {
	return domain.NodeTypeParallel
}

func (h *parallelHandler) Execute(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	rawBranches, ok := node.Config["branches"].([]interface{})
	if !ok || len(rawBranches) == 0 {
		return nil, fmt.Errorf("parallel node %q has no branches", node.ID)
	}

	outcomes := make([]map[string]interface{}, len(rawBranches))
	var wg sync.WaitGroup

	for i, raw := range rawBranches {
		branch, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("parallel node %q: branch %d is not a config map", node.ID, i)
		}

		wg.Add(1)
		go func(index int, branch map[string]interface{}) {
			defer wg.Done()
			outcomes[index] = h.runBranch(ctx, node, ec, index, branch)
		}(i, branch)
	}

	wg.Wait()

	succeeded := 0
	failed := 0
	collected := make([]interface{}, len(outcomes))
	for i, outcome := range outcomes {
		collected[i] = outcome
		if success, _ := outcome["success"].(bool); success {
			succeeded++
		} else {
			failed++
		}
	}

	return map[string]interface{}{
		"branches":  collected,
		"succeeded": succeeded,
		"failed":    failed,
	}, nil
}

func (h *parallelHandler) runBranch(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext, index int, branch map[string]interface{}) (outcome map[string]interface{}) {
	name, _ := branch["name"].(string)
	if name == "" {
		name = fmt.Sprintf("branch-%d", index)
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = map[string]interface{}{
				"name":    name,
				"success": false,
				"error":   "panic: " + formatPanicValue(r),
			}
		}
	}()

	result, err := h.executor.runInlineStep(ctx, node.ID+":"+name, branch, ec)
	if err != nil {
		return map[string]interface{}{
			"name":    name,
			"success": false,
			"error":   err.Error(),
		}
	}
	return map[string]interface{}{
		"name":    name,
		"success": true,
		"result":  result,
	}
}

// loopHandler accumulates one result per iteration. "for" runs a fixed
// count; "while" re-evaluates its condition each round, hard-capped by
// max_iterations so termination never depends on condition truthiness.
type loopHandler struct {
	executor *Executor
}

func (h *loopHandler) Type() domain.NodeType {
	return domain.NodeTypeLoop
}

func (h *loopHandler) Execute(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	kind := stringConfig(node, "loop_type", "")
	switch kind {
	case "for":
		return h.runFor(ctx, node, ec)
	case "while":
		return h.runWhile(ctx, node, ec)
	default:
		return nil, fmt.Errorf("loop node %q: unsupported loop_type %q", node.ID, kind)
	}
}

func (h *loopHandler) runFor(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	iterations := intConfig(node, "iterations", 0)
	if iterations <= 0 {
		return nil, fmt.Errorf("loop node %q: iterations must be positive", node.ID)
	}

	results := make([]interface{}, 0, iterations)
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := h.runIteration(ctx, node, ec, i)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return map[string]interface{}{
		"loop_type":  "for",
		"iterations": iterations,
		"results":    results,
	}, nil
}

func (h *loopHandler) runWhile(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	condition := stringConfig(node, "condition", "")
	if condition == "" {
		return nil, fmt.Errorf("loop node %q: while loop requires condition", node.ID)
	}
	maxIterations := intConfig(node, "max_iterations", 0)
	if maxIterations <= 0 {
		return nil, fmt.Errorf("loop node %q: max_iterations must be positive", node.ID)
	}

	var results []interface{}
	iterations := 0
	for iterations < maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		proceed, err := EvaluateExpression(condition, ec)
		if err != nil {
			return nil, err
		}
		if !proceed {
			break
		}
		result, err := h.runIteration(ctx, node, ec, iterations)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
		iterations++
	}

	return map[string]interface{}{
		"loop_type":  "while",
		"iterations": iterations,
		"results":    results,
	}, nil
}

func (h *loopHandler) runIteration(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext, index int) (interface{}, error) {
	body, ok := node.Config["body"].(map[string]interface{})
	if !ok {
		return map[string]interface{}{"iteration": index}, nil
	}
	result, err := h.executor.runInlineStep(ctx, fmt.Sprintf("%s:%d", node.ID, index), body, ec)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"iteration": index, "result": result}, nil
}

// subflowHandler submits a nested execution through the same scheduler with
// an isolated context, then polls until it reaches a terminal status.
type subflowHandler struct {
	executor *Executor
}

func (h *subflowHandler) Type() domain.NodeType {
	return domain.NodeTypeSubflow
}

func (h *subflowHandler) Execute(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	workflowID := stringConfig(node, "workflow_id", "")
	if workflowID == "" {
		return nil, fmt.Errorf("subflow node %q has no workflow_id", node.ID)
	}

	launcher := h.executor.subflowLauncher()
	if launcher == nil {
		return nil, fmt.Errorf("subflow node %q: no scheduler wired", node.ID)
	}

	depth := ec.SubflowDepth + 1
	if depth > h.executor.cfg.MaxSubflowDepth {
		return nil, &domain.SubflowDepthError{
			WorkflowID: workflowID,
			Depth:      depth,
			MaxDepth:   h.executor.cfg.MaxSubflowDepth,
		}
	}

	inherit := stringSliceConfig(node, "inherit_variables")
	variables, err := ec.ChildVariables(inherit)
	if err != nil {
		return nil, err
	}

	executionID, err := launcher.SubmitSubflow(ctx, workflowID, variables, intConfig(node, "priority", 1), depth)
	if err != nil {
		if domain.IsNotFound(err) {
			notFound := &domain.SubflowNotFoundError{WorkflowID: workflowID}
			return map[string]interface{}{"error": notFound.Error()}, notFound
		}
		return nil, err
	}

	pollInterval := h.executor.cfg.SubflowPollInterval
	if pollInterval <= 0 {
		pollInterval = 25 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}

		execution, ok := launcher.ExecutionStatus(executionID)
		if !ok {
			return nil, fmt.Errorf("subflow node %q: execution %q disappeared", node.ID, executionID)
		}
		if !execution.Status.IsTerminal() {
			continue
		}

		result := map[string]interface{}{
			"execution_id": executionID,
			"workflow_id":  workflowID,
			"status":       string(execution.Status),
			"results":      execution.Results,
		}
		if execution.Status == domain.ExecutionStatusFailed && execution.ErrorDetails != nil {
			result["error"] = *execution.ErrorDetails
		}
		return result, nil
	}
}

// runInlineStep executes a branch or loop-body config as an inline action
// without cache or retry treatment; it reuses the action dispatch table plus
// an optional delay form.
func (x *Executor) runInlineStep(ctx context.Context, stepID string, config map[string]interface{}, ec *domain.ExecutionContext) (interface{}, error) {
	step := &domain.WorkflowNode{
		ID:     stepID,
		Type:   domain.NodeTypeAction,
		Name:   stepID,
		Config: config,
	}

	if _, hasDuration := config["duration"]; hasDuration {
		duration, err := durationConfig(step, "duration")
		if err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(duration):
		}
		if _, hasAction := config["action_type"]; !hasAction {
			return map[string]interface{}{"delayed_ms": duration.Milliseconds()}, nil
		}
	}

	if _, hasAction := config["action_type"]; !hasAction {
		return map[string]interface{}{"step": stepID, "status": "ok"}, nil
	}

	handler := &actionHandler{executor: x}
	return handler.Execute(ctx, step, ec)
}

func stringSliceConfig(node *domain.WorkflowNode, key string) []string {
	raw, ok := node.Config[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

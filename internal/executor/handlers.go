package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/loomery/loom/internal/domain"
)

// triggerHandler shapes the initial payload for a run. It has no side
// effects beyond folding a configured payload into the variables map.
type triggerHandler struct{}

func (h *triggerHandler) Type() domain.NodeType {
	return domain.NodeTypeTrigger
}

func (h *triggerHandler) Execute(_ context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	kind := stringConfig(node, "trigger_type", "manual")
	switch kind {
	case "manual", "webhook", "schedule":
	default:
		return nil, fmt.Errorf("unsupported trigger_type %q", kind)
	}

	if payload, ok := node.Config["payload"].(map[string]interface{}); ok {
		if err := ec.MergeVariables(payload); err != nil {
			return nil, err
		}
	}

	return map[string]interface{}{
		"trigger_type": kind,
		"payload":      ec.Variables(),
	}, nil
}

// conditionHandler evaluates its expression and echoes the outcome. It does
// not alter control flow; branching happens through edge guards.
type conditionHandler struct{}

func (h *conditionHandler) Type() domain.NodeType {
	return domain.NodeTypeCondition
}

func (h *conditionHandler) Execute(_ context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	expr := stringConfig(node, "expression", "")
	if expr == "" {
		return nil, fmt.Errorf("condition node %q has no expression", node.ID)
	}

	outcome, err := EvaluateExpression(expr, ec)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"expression": expr,
		"result":     outcome,
	}, nil
}

// integrationHandler performs the node's external side effect and reports a
// structured record of it. Results are implicitly cacheable.
type integrationHandler struct{}

func (h *integrationHandler) Type() domain.NodeType {
	return domain.NodeTypeIntegration
}

func (h *integrationHandler) Execute(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	kind := stringConfig(node, "integration_type", "")
	if kind == "" {
		return nil, fmt.Errorf("integration node %q has no integration_type", node.ID)
	}

	record := map[string]interface{}{
		"integration_type": kind,
		"status":           "ok",
	}
	if target := stringConfig(node, "target", ""); target != "" {
		record["target"] = target
	}
	if operation := stringConfig(node, "operation", ""); operation != "" {
		record["operation"] = operation
	}

	if kind == "api" {
		if url := stringConfig(node, "url", ""); url != "" {
			response, err := doHTTPRequest(ctx, stringConfig(node, "method", "GET"), url, nil)
			if err != nil {
				return nil, err
			}
			record["status_code"] = response.statusCode
			record["content_length"] = response.contentLength
		}
	}

	return record, nil
}

// delayHandler is the one explicit suspension point: the executing task
// yields for the configured duration, then resumes.
type delayHandler struct{}

func (h *delayHandler) Type() domain.NodeType {
	return domain.NodeTypeDelay
}

func (h *delayHandler) Execute(ctx context.Context, node *domain.WorkflowNode, _ *domain.ExecutionContext) (interface{}, error) {
	duration, err := durationConfig(node, "duration")
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(duration):
	}

	return map[string]interface{}{
		"delayed_ms": duration.Milliseconds(),
	}, nil
}

func stringConfig(node *domain.WorkflowNode, key, fallback string) string {
	if raw, ok := node.Config[key]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func intConfig(node *domain.WorkflowNode, key string, fallback int) int {
	switch v := node.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// durationConfig accepts either a Go duration string or a number of
// milliseconds.
func durationConfig(node *domain.WorkflowNode, key string) (time.Duration, error) {
	switch v := node.Config[key].(type) {
	case string:
		duration, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("node %q: invalid %s: %w", node.ID, key, err)
		}
		return duration, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	case float64:
		return time.Duration(v) * time.Millisecond, nil
	default:
		return 0, fmt.Errorf("node %q: missing or invalid %s", node.ID, key)
	}
}

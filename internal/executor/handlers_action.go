package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/loomery/loom/internal/domain"
)

var actionHTTPClient = &http.Client{Timeout: 30 * time.Second}

type httpResponse struct {
	statusCode    int
	contentLength int
}

func doHTTPRequest(ctx context.Context, method, url string, body io.Reader) (*httpResponse, error) {
	request, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), url, body)
	if err != nil {
		return nil, err
	}

	response, err := actionHTTPClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}

	return &httpResponse{statusCode: response.StatusCode, contentLength: len(data)}, nil
}

// actionHandler dispatches on the action_type sub-discriminator; each kind is
// its own small handler in the dispatch table.
type actionHandler struct {
	executor *Executor
}

func (h *actionHandler) Type() domain.NodeType {
	return domain.NodeTypeAction
}

type actionFunc func(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error)

func (h *actionHandler) dispatchTable() map[string]actionFunc {
	return map[string]actionFunc{
		"http":      h.runHTTP,
		"transform": h.runTransform,
		"agent":     h.runAgent,
		"file":      h.runFile,
		"custom":    h.runCustom,
	}
}

func (h *actionHandler) Execute(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	kind := stringConfig(node, "action_type", "")
	action, ok := h.dispatchTable()[kind]
	if !ok {
		return nil, fmt.Errorf("action node %q: unsupported action_type %q", node.ID, kind)
	}
	return action(ctx, node, ec)
}

func (h *actionHandler) runHTTP(ctx context.Context, node *domain.WorkflowNode, _ *domain.ExecutionContext) (interface{}, error) {
	url := stringConfig(node, "url", "")
	if url == "" {
		return nil, fmt.Errorf("action node %q: http action requires url", node.ID)
	}

	var body io.Reader
	if raw := stringConfig(node, "body", ""); raw != "" {
		body = strings.NewReader(raw)
	}

	response, err := doHTTPRequest(ctx, stringConfig(node, "method", "GET"), url, body)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"action_type":    "http",
		"url":            url,
		"status_code":    response.statusCode,
		"content_length": response.contentLength,
	}, nil
}

// runTransform copies and assigns context variables: "mappings" copies
// existing variables to new names, "assign" sets literals.
func (h *actionHandler) runTransform(_ context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	changed := make(map[string]interface{})

	if mappings, ok := node.Config["mappings"].(map[string]interface{}); ok {
		for target, source := range mappings {
			sourceKey, ok := source.(string)
			if !ok {
				return nil, fmt.Errorf("action node %q: mapping for %q must name a variable", node.ID, target)
			}
			if value, exists := ec.Variable(sourceKey); exists {
				ec.SetVariable(target, value)
				changed[target] = value
			}
		}
	}

	if assign, ok := node.Config["assign"].(map[string]interface{}); ok {
		for key, value := range assign {
			ec.SetVariable(key, value)
			changed[key] = value
		}
	}

	return map[string]interface{}{
		"action_type": "transform",
		"changed":     changed,
	}, nil
}

// runAgent records a delegated agent invocation. The agent transport itself
// lives outside the engine; the node carries what was delegated and to whom.
func (h *actionHandler) runAgent(_ context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	agentID := stringConfig(node, "agent_id", "")
	if agentID == "" {
		return nil, fmt.Errorf("action node %q: agent action requires agent_id", node.ID)
	}

	return map[string]interface{}{
		"action_type": "agent",
		"agent_id":    agentID,
		"task":        stringConfig(node, "task", ""),
		"input":       ec.Variables(),
		"status":      "delegated",
	}, nil
}

func (h *actionHandler) runFile(_ context.Context, node *domain.WorkflowNode, _ *domain.ExecutionContext) (interface{}, error) {
	path := stringConfig(node, "path", "")
	if path == "" {
		return nil, fmt.Errorf("action node %q: file action requires path", node.ID)
	}

	operation := stringConfig(node, "operation", "read")
	switch operation {
	case "read":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"action_type": "file",
			"operation":   "read",
			"path":        path,
			"content":     string(data),
		}, nil
	case "write":
		content := stringConfig(node, "content", "")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"action_type": "file",
			"operation":   "write",
			"path":        path,
			"bytes":       len(content),
		}, nil
	case "delete":
		if err := os.Remove(path); err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"action_type": "file",
			"operation":   "delete",
			"path":        path,
		}, nil
	default:
		return nil, fmt.Errorf("action node %q: unsupported file operation %q", node.ID, operation)
	}
}

func (h *actionHandler) runCustom(_ context.Context, node *domain.WorkflowNode, _ *domain.ExecutionContext) (interface{}, error) {
	if result, ok := node.Config["result"]; ok {
		return result, nil
	}
	return map[string]interface{}{
		"action_type": "custom",
		"operation":   stringConfig(node, "operation", ""),
		"status":      "ok",
	}, nil
}

package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/graph"
	"github.com/loomery/loom/internal/ports"
	"github.com/loomery/loom/internal/xjson"
)

const definitionKeyPrefix = "workflow:definition:"

// Registry validates workflow definitions and stores them immutably.
// Registration is all-or-nothing: a definition that fails any check is
// never stored, not even partially.
type Registry struct {
	storage ports.StoragePort
	logger  *slog.Logger

	mu          sync.RWMutex
	definitions map[string]*domain.WorkflowDefinition
}

func New(storage ports.StoragePort, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		storage:     storage,
		logger:      logger.With("component", "workflow-registry"),
		definitions: make(map[string]*domain.WorkflowDefinition),
	}
}

// Register validates the definition, applies the integration-cacheable
// optimization hint, and stores it under its id. Re-registering an existing
// id replaces the prior definition atomically and bumps the version counter.
func (r *Registry) Register(ctx context.Context, def domain.WorkflowDefinition) (string, error) {
	if def.ID == "" {
		return "", domain.NewValidationError(def.ID, "id", "must not be empty")
	}
	if def.Name == "" {
		return "", domain.NewValidationError(def.ID, "name", "must not be empty")
	}
	if len(def.Nodes) == 0 {
		return "", domain.NewValidationError(def.ID, "nodes", "must not be empty")
	}
	if def.Mode == "" {
		def.Mode = domain.ModeSequential
	}
	switch def.Mode {
	case domain.ModeSequential, domain.ModeParallel, domain.ModeBatch, domain.ModeStreaming:
	default:
		return "", domain.NewValidationError(def.ID, "mode", fmt.Sprintf("unsupported execution mode %q", def.Mode))
	}

	g, err := graph.Build(def.ID, def.Nodes, def.Edges)
	if err != nil {
		return "", err
	}
	if ce := g.DetectCycle(def.ID); ce != nil {
		return "", ce
	}

	for i := range def.Nodes {
		if err := validateNode(def.ID, &def.Nodes[i]); err != nil {
			return "", err
		}
	}

	applyOptimizations(&def)

	r.mu.Lock()
	if prior, exists := r.definitions[def.ID]; exists {
		def.Version = prior.Version + 1
	} else if def.Version == 0 {
		def.Version = 1
	}
	stored := def
	r.definitions[def.ID] = &stored
	r.mu.Unlock()

	if err := r.persist(ctx, &stored); err != nil {
		r.logger.Warn("failed to persist workflow definition",
			"workflow_id", stored.ID,
			"error", err)
	}

	r.logger.Info("workflow registered",
		"workflow_id", stored.ID,
		"version", stored.Version,
		"nodes", len(stored.Nodes),
		"edges", len(stored.Edges),
		"mode", stored.Mode)

	return stored.ID, nil
}

func (r *Registry) Get(workflowID string) (*domain.WorkflowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[workflowID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return def, nil
}

func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.definitions))
	for id := range r.definitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.definitions)
}

func (r *Registry) persist(ctx context.Context, def *domain.WorkflowDefinition) error {
	if r.storage == nil {
		return nil
	}
	data, err := xjson.Marshal(def)
	if err != nil {
		return err
	}
	return r.storage.Put(ctx, definitionKeyPrefix+def.ID, data)
}

// applyOptimizations applies the one safe registration-time hint: integration
// nodes become cacheable unless the definition overrides it.
func applyOptimizations(def *domain.WorkflowDefinition) {
	for i := range def.Nodes {
		node := &def.Nodes[i]
		if node.Type == domain.NodeTypeIntegration && node.Cacheable == nil {
			cacheable := true
			node.Cacheable = &cacheable
		}
	}
}

func validateNode(workflowID string, node *domain.WorkflowNode) error {
	switch node.Type {
	case domain.NodeTypeTrigger:
		if kind, ok := configString(node, "trigger_type"); ok {
			switch kind {
			case "manual", "webhook", "schedule":
			default:
				return domain.NewValidationError(workflowID, node.ID, fmt.Sprintf("unsupported trigger_type %q", kind))
			}
		}
	case domain.NodeTypeAction:
		if _, ok := configString(node, "action_type"); !ok {
			return domain.NewValidationError(workflowID, node.ID, "action node requires action_type")
		}
	case domain.NodeTypeCondition:
		if _, ok := configString(node, "expression"); !ok {
			return domain.NewValidationError(workflowID, node.ID, "condition node requires expression")
		}
	case domain.NodeTypeIntegration:
		if _, ok := configString(node, "integration_type"); !ok {
			return domain.NewValidationError(workflowID, node.ID, "integration node requires integration_type")
		}
	case domain.NodeTypeDelay:
		if _, ok := node.Config["duration"]; !ok {
			return domain.NewValidationError(workflowID, node.ID, "delay node requires duration")
		}
	case domain.NodeTypeParallel:
		branches, ok := node.Config["branches"].([]interface{})
		if !ok || len(branches) == 0 {
			return domain.NewValidationError(workflowID, node.ID, "parallel node requires non-empty branches")
		}
	case domain.NodeTypeLoop:
		kind, ok := configString(node, "loop_type")
		if !ok {
			return domain.NewValidationError(workflowID, node.ID, "loop node requires loop_type")
		}
		switch kind {
		case "for":
			if !hasPositiveInt(node.Config["iterations"]) {
				return domain.NewValidationError(workflowID, node.ID, "for loop requires positive iterations")
			}
		case "while":
			if _, ok := configString(node, "condition"); !ok {
				return domain.NewValidationError(workflowID, node.ID, "while loop requires condition")
			}
			if !hasPositiveInt(node.Config["max_iterations"]) {
				return domain.NewValidationError(workflowID, node.ID, "while loop requires positive max_iterations")
			}
		default:
			return domain.NewValidationError(workflowID, node.ID, fmt.Sprintf("unsupported loop_type %q", kind))
		}
	case domain.NodeTypeSubflow:
		if _, ok := configString(node, "workflow_id"); !ok {
			return domain.NewValidationError(workflowID, node.ID, "subflow node requires workflow_id")
		}
	default:
		return domain.NewValidationError(workflowID, node.ID, fmt.Sprintf("unknown node type %q", node.Type))
	}
	return nil
}

func configString(node *domain.WorkflowNode, key string) (string, bool) {
	raw, ok := node.Config[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func hasPositiveInt(raw interface{}) bool {
	switch v := raw.(type) {
	case int:
		return v > 0
	case int64:
		return v > 0
	case float64:
		return v > 0
	default:
		return false
	}
}

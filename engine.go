package loom

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loomery/loom/internal/adapters/storage"
	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/events"
	"github.com/loomery/loom/internal/executor"
	"github.com/loomery/loom/internal/metrics"
	"github.com/loomery/loom/internal/ports"
	"github.com/loomery/loom/internal/registry"
	"github.com/loomery/loom/internal/scheduler"
)

// Engine is the workflow engine facade: registration, submission, status,
// events, and metrics behind one handle.
type Engine struct {
	cfg       EngineConfig
	logger    *slog.Logger
	storage   ports.StoragePort
	events    *events.Manager
	registry  *registry.Registry
	executor  *executor.Executor
	scheduler *scheduler.Scheduler
	collector *metrics.Collector

	mu      sync.Mutex
	started bool
}

// New assembles an engine from the given configuration. With cfg.DataDir set,
// definitions and execution records persist to a badger store under that
// directory; otherwise everything stays in memory.
func New(cfg EngineConfig, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var store ports.StoragePort
	if cfg.DataDir != "" {
		badger, err := storage.NewBadger(cfg.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("opening data dir %q: %w", cfg.DataDir, err)
		}
		store = badger
	} else {
		store = storage.NewMemory()
	}

	eventManager := events.NewManager(logger)
	counters := domain.NewExecutionMetrics()

	reg := registry.New(store, logger)
	exec := executor.New(cfg, counters, eventManager, logger)
	sched := scheduler.New(cfg, reg, exec, store, eventManager, counters, logger)
	exec.SetSubflowLauncher(sched)

	collector := metrics.NewCollector(counters)
	collector.SetQueueSizeGauge(sched.QueueSize)
	collector.SetActiveCountGauge(sched.ActiveCount)
	collector.SetWorkflowsGauge(reg.Count)
	collector.SetCacheSizeGauge(exec.CacheSize)

	return &Engine{
		cfg:       cfg,
		logger:    logger.With("component", "engine"),
		storage:   store,
		events:    eventManager,
		registry:  reg,
		executor:  exec,
		scheduler: sched,
		collector: collector,
	}, nil
}

// Start brings up the scheduler's dispatch loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return domain.ErrAlreadyStarted
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return err
	}
	e.started = true
	e.logger.Info("engine started")
	return nil
}

// Stop cancels every queued and running execution, waits for them to settle,
// and closes the storage backend.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return domain.ErrNotStarted
	}
	e.started = false

	if err := e.scheduler.Stop(); err != nil {
		return err
	}
	if err := e.storage.Close(); err != nil {
		e.logger.Warn("storage close failed", "error", err)
	}
	e.logger.Info("engine stopped")
	return nil
}

// Register validates and stores a workflow definition. Registering an
// existing id replaces the definition and bumps its version.
func (e *Engine) Register(ctx context.Context, def WorkflowDefinition) (string, error) {
	return e.registry.Register(ctx, def)
}

// RegisterFile loads a YAML definition from disk and registers it.
func (e *Engine) RegisterFile(ctx context.Context, path string) (string, error) {
	def, err := registry.LoadDefinitionFile(path)
	if err != nil {
		return "", err
	}
	return e.registry.Register(ctx, def)
}

// RegisterHandler installs a custom node handler, replacing any built-in
// handler for the same type.
func (e *Engine) RegisterHandler(handler NodeHandler) {
	e.executor.RegisterHandler(handler)
}

// Execute submits an execution of the named workflow and returns its id
// without waiting for completion.
func (e *Engine) Execute(ctx context.Context, workflowID string, variables map[string]interface{}, priority int) (string, error) {
	return e.scheduler.Submit(ctx, workflowID, variables, priority)
}

// GetStatus returns a copy of the execution record, or false when the id is
// unknown.
func (e *Engine) GetStatus(executionID string) (*WorkflowExecution, bool) {
	return e.scheduler.ExecutionStatus(executionID)
}

// GetWorkflow returns the stored definition for a workflow id.
func (e *Engine) GetWorkflow(workflowID string) (*WorkflowDefinition, error) {
	return e.registry.Get(workflowID)
}

// ListWorkflows lists registered workflow ids in sorted order.
func (e *Engine) ListWorkflows() []string {
	return e.registry.List()
}

// Events exposes the subscription surface for lifecycle notifications.
func (e *Engine) Events() *events.Manager {
	return e.events
}

// Metrics assembles a point-in-time aggregate of counters and gauges.
func (e *Engine) Metrics() EngineMetrics {
	return e.collector.Snapshot()
}

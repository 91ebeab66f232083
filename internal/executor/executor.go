package executor

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/ports"
)

// Executor dispatches a single node to its type-specific handler, applies the
// shared result cache, and absorbs failures per the workflow's retry policy
// and the node's error strategy.
type Executor struct {
	cfg     domain.EngineConfig
	cache   *ResultCache
	metrics *domain.ExecutionMetrics
	events  ports.EventSink
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[domain.NodeType]ports.NodeHandler
	launcher ports.SubflowLauncher
}

func New(cfg domain.EngineConfig, metrics *domain.ExecutionMetrics, events ports.EventSink, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = domain.NewExecutionMetrics()
	}

	x := &Executor{
		cfg:      cfg,
		cache:    NewResultCache(),
		metrics:  metrics,
		events:   events,
		logger:   logger.With("component", "node-executor"),
		handlers: make(map[domain.NodeType]ports.NodeHandler),
	}

	x.RegisterHandler(&triggerHandler{})
	x.RegisterHandler(&actionHandler{executor: x})
	x.RegisterHandler(&conditionHandler{})
	x.RegisterHandler(&integrationHandler{})
	x.RegisterHandler(&delayHandler{})
	x.RegisterHandler(&parallelHandler{executor: x})
	x.RegisterHandler(&loopHandler{executor: x})
	x.RegisterHandler(&subflowHandler{executor: x})

	return x
}

// SetSubflowLauncher wires the scheduler back in after construction; the
// subflow handler submits nested executions through it.
func (x *Executor) SetSubflowLauncher(launcher ports.SubflowLauncher) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.launcher = launcher
}

// RegisterHandler installs or replaces the handler for a node type.
func (x *Executor) RegisterHandler(handler ports.NodeHandler) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.handlers[handler.Type()] = handler
}

func (x *Executor) handler(nodeType domain.NodeType) (ports.NodeHandler, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	handler, ok := x.handlers[nodeType]
	return handler, ok
}

func (x *Executor) subflowLauncher() ports.SubflowLauncher {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.launcher
}

func (x *Executor) CacheSize() int {
	return x.cache.Len()
}

// Execute runs one node to a recorded result. A nil return always means the
// node has a result in the context (real, cached, skip marker, or default);
// a non-nil return aborts the enclosing run.
func (x *Executor) Execute(ctx context.Context, def *domain.WorkflowDefinition, node *domain.WorkflowNode, ec *domain.ExecutionContext) error {
	x.metrics.IncrementNodesExecuted()

	handler, ok := x.handler(node.Type)
	if !ok {
		err := &domain.UnknownNodeTypeError{NodeID: node.ID, Type: node.Type}
		ec.RecordPerformance(node.ID, domain.NodePerformance{Success: false, Error: err.Error()})
		x.metrics.IncrementNodesFailed()
		x.logger.Error("no handler for node type",
			"execution_id", ec.ExecutionID,
			"node_id", node.ID,
			"node_type", node.Type)
		return err
	}

	cacheable := node.IsCacheable()
	var cacheKey uint64
	if cacheable {
		cacheKey = CacheKey(node)
		if value, hit := x.cache.Get(cacheKey); hit {
			x.metrics.IncrementCacheHits()
			ec.SetResult(node.ID, value)
			ec.RecordPerformance(node.ID, domain.NodePerformance{Success: true})
			x.publishNodeCompleted(ec, node, 0, true, "")
			x.logger.Debug("node result served from cache",
				"execution_id", ec.ExecutionID,
				"node_id", node.ID,
				"cache_key", cacheKey)
			return nil
		}
		x.metrics.IncrementCacheMisses()
	}

	retry := x.retryPolicy(def)
	attempts := 1
	if retry != nil {
		attempts = retry.MaxAttempts
		if attempts < 1 {
			attempts = 1
		}
	}

	startTime := time.Now()
	var result interface{}
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = x.invokeProtected(ctx, handler, node, ec)
		if err == nil {
			break
		}
		if !retryable(err) || attempt == attempts {
			break
		}

		x.metrics.IncrementNodesRetried()
		backoff := retry.BackoffFor(attempt)
		x.logger.Debug("retrying node after failure",
			"execution_id", ec.ExecutionID,
			"node_id", node.ID,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(backoff):
			continue
		}
		break
	}

	duration := time.Since(startTime)
	x.metrics.AddExecutionTime(duration)

	if err == nil {
		ec.SetResult(node.ID, result)
		ec.RecordPerformance(node.ID, domain.NodePerformance{Duration: duration, Success: true})
		x.metrics.IncrementNodesSucceeded()
		if cacheable {
			x.cache.Put(cacheKey, result)
		}
		x.publishNodeCompleted(ec, node, duration, true, "")
		x.logger.Debug("node executed",
			"execution_id", ec.ExecutionID,
			"node_id", node.ID,
			"node_type", node.Type,
			"duration", duration)
		return nil
	}

	if attempts > 1 && retryable(err) {
		err = &domain.RetryExhaustedError{NodeID: node.ID, Attempts: attempts, LastErr: err}
	}

	return x.absorbFailure(node, ec, result, duration, err)
}

// absorbFailure applies the node's error strategy once retries are spent.
func (x *Executor) absorbFailure(node *domain.WorkflowNode, ec *domain.ExecutionContext, result interface{}, duration time.Duration, err error) error {
	ec.RecordPerformance(node.ID, domain.NodePerformance{Duration: duration, Success: false, Error: err.Error()})
	x.metrics.IncrementNodesFailed()
	x.publishNodeCompleted(ec, node, duration, false, err.Error())

	x.logger.Warn("node execution failed",
		"execution_id", ec.ExecutionID,
		"node_id", node.ID,
		"node_type", node.Type,
		"error_strategy", node.ErrorStrategy,
		"error", err)

	if domain.IsSubflowNotFound(err) {
		// The missing-subflow report is the node's result; only an
		// explicit fail strategy escalates it.
		if result == nil {
			result = map[string]interface{}{"error": err.Error()}
		}
		ec.SetResult(node.ID, result)
		if node.ErrorStrategy == domain.ErrorStrategyFail {
			return &domain.NodeExecutionError{NodeID: node.ID, Err: err}
		}
		return nil
	}

	switch node.ErrorStrategy {
	case domain.ErrorStrategySkip:
		ec.SetResult(node.ID, domain.SkippedMarker())
		x.metrics.IncrementNodesSkipped()
		return nil
	case domain.ErrorStrategyDefault:
		ec.SetResult(node.ID, node.DefaultResult)
		return nil
	default:
		var nodeErr *domain.NodeExecutionError
		if errors.As(err, &nodeErr) {
			return err
		}
		return &domain.NodeExecutionError{NodeID: node.ID, Err: err}
	}
}

// invokeProtected shields the run from handler panics.
func (x *Executor) invokeProtected(ctx context.Context, handler ports.NodeHandler, node *domain.WorkflowNode, ec *domain.ExecutionContext) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			x.logger.Error("node handler panicked",
				"execution_id", ec.ExecutionID,
				"node_id", node.ID,
				"panic_value", r,
				"stack_trace", stack)
			result = nil
			err = &domain.NodeExecutionError{
				NodeID:     node.ID,
				Err:        &panicError{value: r},
				StackTrace: stack,
			}
		}
	}()

	return handler.Execute(ctx, node, ec)
}

func (x *Executor) retryPolicy(def *domain.WorkflowDefinition) *domain.RetryPolicy {
	if def != nil && def.Retry != nil {
		if def.Retry.Enabled {
			return def.Retry
		}
		return nil
	}
	if x.cfg.DefaultRetry.Enabled {
		policy := x.cfg.DefaultRetry
		return &policy
	}
	return nil
}

func (x *Executor) publishNodeCompleted(ec *domain.ExecutionContext, node *domain.WorkflowNode, duration time.Duration, success bool, errMsg string) {
	if x.events == nil {
		return
	}
	x.events.PublishNodeCompleted(domain.NodeCompletedEvent{
		ExecutionID: ec.ExecutionID,
		WorkflowID:  ec.WorkflowID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Duration:    duration,
		Success:     success,
		Error:       errMsg,
	})
}

// retryable excludes failure classes where another attempt cannot help.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if domain.IsSubflowNotFound(err) {
		return false
	}
	var depthErr *domain.SubflowDepthError
	return !errors.As(err, &depthErr)
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return "panic: " + formatPanicValue(e.value)
}

func formatPanicValue(v interface{}) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unexpected panic value"
}

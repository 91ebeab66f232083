package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/executor"
	"github.com/loomery/loom/internal/graph"
	"github.com/loomery/loom/internal/ports"
	"github.com/loomery/loom/internal/strategy"
	"github.com/loomery/loom/internal/xjson"
)

const executionKeyPrefix = "execution:record:"

// Scheduler admits executions under a global concurrency bound. Requests wait
// in a priority queue; a dispatch loop moves them into running goroutines as
// slots free up. Subflows re-enter through the same queue, which is why the
// executor talks to the scheduler through the SubflowLauncher port.
type Scheduler struct {
	cfg         domain.EngineConfig
	definitions ports.DefinitionSource
	exec        *executor.Executor
	storage     ports.StoragePort
	events      ports.EventSink
	metrics     *domain.ExecutionMetrics
	logger      *slog.Logger

	mu         sync.RWMutex
	queue      admissionQueue
	seq        uint64
	executions map[string]*domain.WorkflowExecution
	active     int
	started    bool
	cancel     context.CancelFunc

	wake chan struct{}
	wg   sync.WaitGroup
}

func New(cfg domain.EngineConfig, definitions ports.DefinitionSource, exec *executor.Executor, storage ports.StoragePort, events ports.EventSink, metrics *domain.ExecutionMetrics, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = domain.NewExecutionMetrics()
	}
	return &Scheduler{
		cfg:         cfg,
		definitions: definitions,
		exec:        exec,
		storage:     storage,
		events:      events,
		metrics:     metrics,
		logger:      logger.With("component", "execution-scheduler"),
		executions:  make(map[string]*domain.WorkflowExecution),
		wake:        make(chan struct{}, 1),
	}
}

// Start launches the dispatch loop. The loop runs until Stop or until the
// given context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.started = true
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.dispatchLoop(loopCtx)

	s.logger.Info("scheduler started",
		"max_concurrent_executions", s.cfg.MaxConcurrentExecutions,
		"dispatch_interval", s.cfg.DispatchInterval)
	return nil
}

// Stop cancels the dispatch loop and every running execution, then waits for
// them to wind down. Queued requests that never ran are marked cancelled.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return domain.ErrNotStarted
	}
	s.started = false
	cancel := s.cancel
	s.cancel = nil

	for _, pending := range s.queue {
		s.finishLocked(pending.executionID, domain.ExecutionStatusCancelled, nil, "cancelled before start")
		s.metrics.IncrementExecutionsCancelled()
	}
	s.queue = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// Submit queues a top-level execution and returns its id immediately.
func (s *Scheduler) Submit(ctx context.Context, workflowID string, variables map[string]interface{}, priority int) (string, error) {
	return s.submit(ctx, workflowID, variables, priority, 0)
}

// SubmitSubflow implements ports.SubflowLauncher for nested executions.
func (s *Scheduler) SubmitSubflow(ctx context.Context, workflowID string, variables map[string]interface{}, priority, depth int) (string, error) {
	return s.submit(ctx, workflowID, variables, priority, depth)
}

func (s *Scheduler) submit(ctx context.Context, workflowID string, variables map[string]interface{}, priority, depth int) (string, error) {
	if _, err := s.definitions.Get(workflowID); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return "", domain.ErrNotStarted
	}

	executionID := uuid.New().String()
	s.seq++
	pending := &pendingExecution{
		executionID: executionID,
		workflowID:  workflowID,
		variables:   variables,
		priority:    priority,
		depth:       depth,
		seq:         s.seq,
	}
	heap.Push(&s.queue, pending)

	s.executions[executionID] = &domain.WorkflowExecution{
		ID:         executionID,
		WorkflowID: workflowID,
		Status:     domain.ExecutionStatusPending,
		Priority:   priority,
		StartedAt:  time.Now(),
	}
	s.metrics.IncrementExecutionsSubmitted()

	s.logger.Debug("execution queued",
		"execution_id", executionID,
		"workflow_id", workflowID,
		"priority", priority,
		"depth", depth,
		"queue_size", len(s.queue))

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return executionID, nil
}

// ExecutionStatus returns a copy of the execution record.
func (s *Scheduler) ExecutionStatus(executionID string) (*domain.WorkflowExecution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	execution, ok := s.executions[executionID]
	if !ok {
		return nil, false
	}
	copied := *execution
	return &copied, true
}

func (s *Scheduler) QueueSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

func (s *Scheduler) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// dispatchLoop drains the queue whenever a submission or completion wakes it,
// with a periodic tick as a safety net.
func (s *Scheduler) dispatchLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.DispatchInterval)
	defer ticker.Stop()

	for {
		if !s.dispatchProtected(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.DispatchInterval):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// dispatchProtected shields the loop from faults in dispatch bookkeeping; a
// false return asks the loop to back off briefly before trying again.
func (s *Scheduler) dispatchProtected(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("dispatch loop fault, backing off", "panic_value", r)
			ok = false
		}
	}()
	s.dispatchReady(ctx)
	return true
}

func (s *Scheduler) dispatchReady(ctx context.Context) {
	for {
		s.mu.Lock()
		if !s.started || len(s.queue) == 0 || s.active >= s.cfg.MaxConcurrentExecutions {
			s.mu.Unlock()
			return
		}
		pending := heap.Pop(&s.queue).(*pendingExecution)
		s.active++
		if record, ok := s.executions[pending.executionID]; ok {
			record.Status = domain.ExecutionStatusRunning
			record.StartedAt = time.Now()
		}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.run(ctx, pending)
	}
}

// run carries one execution from running to a terminal status. Any panic in
// the strategy machinery is converted into a failed record rather than
// crashing the dispatch plane.
func (s *Scheduler) run(ctx context.Context, pending *pendingExecution) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}()

	started := time.Now()
	ec := domain.NewExecutionContext(pending.executionID, pending.workflowID, pending.variables)
	ec.SubflowDepth = pending.depth

	if s.events != nil {
		s.events.PublishExecutionStarted(domain.ExecutionStartedEvent{
			ExecutionID: pending.executionID,
			WorkflowID:  pending.workflowID,
			Priority:    pending.priority,
			StartedAt:   started,
		})
	}

	err := s.runProtected(ctx, pending, ec)
	duration := time.Since(started)

	s.mu.Lock()
	switch {
	case err == nil:
		s.finishLocked(pending.executionID, domain.ExecutionStatusCompleted, ec, "")
		s.metrics.IncrementExecutionsCompleted()
	case ctx.Err() != nil:
		s.finishLocked(pending.executionID, domain.ExecutionStatusCancelled, ec, err.Error())
		s.metrics.IncrementExecutionsCancelled()
	default:
		s.finishLocked(pending.executionID, domain.ExecutionStatusFailed, ec, err.Error())
		s.metrics.IncrementExecutionsFailed()
	}
	record := s.executions[pending.executionID]
	s.mu.Unlock()

	s.persistRecord(record)
	s.publishTerminal(pending, ec, duration, err)

	if err != nil {
		s.logger.Warn("execution finished with error",
			"execution_id", pending.executionID,
			"workflow_id", pending.workflowID,
			"duration", duration,
			"error", err)
		return
	}
	s.logger.Info("execution completed",
		"execution_id", pending.executionID,
		"workflow_id", pending.workflowID,
		"duration", duration,
		"nodes", ec.ResultCount())
}

func (s *Scheduler) runProtected(ctx context.Context, pending *pendingExecution, ec *domain.ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("execution panicked",
				"execution_id", pending.executionID,
				"workflow_id", pending.workflowID,
				"panic_value", r)
			err = fmt.Errorf("execution panicked: %v", r)
		}
	}()

	def, err := s.definitions.Get(pending.workflowID)
	if err != nil {
		return err
	}

	g, err := graph.Build(def.ID, def.Nodes, def.Edges)
	if err != nil {
		return err
	}

	strat, err := strategy.ForMode(def.Mode, s.exec, s.cfg, s.logger)
	if err != nil {
		return err
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return strat.Run(runCtx, def, g, ec)
}

// finishLocked moves a record to a terminal status. Caller holds s.mu.
func (s *Scheduler) finishLocked(executionID string, status domain.ExecutionStatus, ec *domain.ExecutionContext, errMsg string) {
	record, ok := s.executions[executionID]
	if !ok {
		return
	}
	now := time.Now()
	record.Status = status
	record.CompletedAt = &now
	if ec != nil {
		record.Results = ec.OrderedResults()
		record.PerformanceMetrics = ec.Performance()
	}
	if errMsg != "" {
		record.ErrorDetails = &errMsg
	}
}

// persistRecord writes the terminal record through the storage port. Storage
// failures are logged, never escalated into the execution's outcome.
func (s *Scheduler) persistRecord(record *domain.WorkflowExecution) {
	if s.storage == nil || record == nil {
		return
	}
	data, err := xjson.Marshal(record)
	if err != nil {
		s.logger.Warn("failed to encode execution record", "execution_id", record.ID, "error", err)
		return
	}
	if err := s.storage.Put(context.Background(), executionKeyPrefix+record.ID, data); err != nil {
		s.logger.Warn("failed to persist execution record", "execution_id", record.ID, "error", err)
	}
}

func (s *Scheduler) publishTerminal(pending *pendingExecution, ec *domain.ExecutionContext, duration time.Duration, err error) {
	if s.events == nil {
		return
	}
	if err != nil {
		failedNode := ""
		var nodeErr *domain.NodeExecutionError
		if errors.As(err, &nodeErr) {
			failedNode = nodeErr.NodeID
		}
		s.events.PublishExecutionFailed(domain.ExecutionFailedEvent{
			ExecutionID: pending.executionID,
			WorkflowID:  pending.workflowID,
			FailedAt:    time.Now(),
			Error:       err.Error(),
			FailedNode:  failedNode,
		})
		return
	}

	executed := make([]string, 0, ec.ResultCount())
	for _, result := range ec.OrderedResults() {
		executed = append(executed, result.NodeID)
	}
	s.events.PublishExecutionCompleted(domain.ExecutionCompletedEvent{
		ExecutionID:   pending.executionID,
		WorkflowID:    pending.workflowID,
		CompletedAt:   time.Now(),
		Duration:      duration,
		ExecutedNodes: executed,
	})
}

package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomery/loom/internal/domain"
	"github.com/loomery/loom/internal/executor"
)

type defMap map[string]*domain.WorkflowDefinition

func (m defMap) Get(workflowID string) (*domain.WorkflowDefinition, error) {
	if def, ok := m[workflowID]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("workflow %q: %w", workflowID, domain.ErrNotFound)
}

// gatedHandler blocks configured workflows until released and tracks the peak
// number of concurrently running nodes.
type gatedHandler struct {
	mu       sync.Mutex
	started  []string
	gates    map[string]chan struct{}
	failOn   map[string]bool
	inFlight int32
	peak     int32
}

func newGatedHandler() *gatedHandler {
	return &gatedHandler{gates: make(map[string]chan struct{}), failOn: make(map[string]bool)}
}

func (h *gatedHandler) Type() domain.NodeType { return domain.NodeTypeAction }

func (h *gatedHandler) Execute(ctx context.Context, node *domain.WorkflowNode, ec *domain.ExecutionContext) (interface{}, error) {
	current := atomic.AddInt32(&h.inFlight, 1)
	defer atomic.AddInt32(&h.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&h.peak)
		if current <= peak || atomic.CompareAndSwapInt32(&h.peak, peak, current) {
			break
		}
	}

	h.mu.Lock()
	h.started = append(h.started, ec.WorkflowID)
	gate := h.gates[ec.WorkflowID]
	fail := h.failOn[ec.WorkflowID]
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-gate:
		}
	}
	if fail {
		return nil, errors.New("simulated node failure")
	}
	return map[string]interface{}{"workflow": ec.WorkflowID}, nil
}

func (h *gatedHandler) startOrder() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.started...)
}

func singleActionDef(id string) *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{
		ID:   id,
		Name: id,
		Mode: domain.ModeSequential,
		Nodes: []domain.WorkflowNode{
			{ID: "step", Type: domain.NodeTypeAction, Name: "step"},
		},
	}
}

func newTestScheduler(t *testing.T, cfg domain.EngineConfig, defs defMap, handler *gatedHandler) *Scheduler {
	t.Helper()
	exec := executor.New(cfg, nil, nil, nil)
	exec.RegisterHandler(handler)
	sched := New(cfg, defs, exec, nil, nil, nil, nil)
	exec.SetSubflowLauncher(sched)
	return sched
}

func waitTerminal(t *testing.T, sched *Scheduler, executionID string) *domain.WorkflowExecution {
	t.Helper()
	var record *domain.WorkflowExecution
	require.Eventually(t, func() bool {
		execution, ok := sched.ExecutionStatus(executionID)
		if !ok || !execution.Status.IsTerminal() {
			return false
		}
		record = execution
		return true
	}, 5*time.Second, 5*time.Millisecond)
	return record
}

func TestSubmitUnknownWorkflowReturnsNotFound(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	sched := newTestScheduler(t, cfg, defMap{}, newGatedHandler())
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	_, err := sched.Submit(context.Background(), "missing", nil, 1)
	assert.True(t, domain.IsNotFound(err))
}

func TestSubmitBeforeStartRejected(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	sched := newTestScheduler(t, cfg, defMap{"wf": singleActionDef("wf")}, newGatedHandler())

	_, err := sched.Submit(context.Background(), "wf", nil, 1)
	assert.ErrorIs(t, err, domain.ErrNotStarted)
}

func TestStartTwiceRejected(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	sched := newTestScheduler(t, cfg, defMap{}, newGatedHandler())
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	assert.ErrorIs(t, sched.Start(context.Background()), domain.ErrAlreadyStarted)
}

func TestExecutionRunsToCompletion(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	defs := defMap{"wf": singleActionDef("wf")}
	sched := newTestScheduler(t, cfg, defs, newGatedHandler())
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	executionID, err := sched.Submit(context.Background(), "wf", map[string]interface{}{"k": "v"}, 1)
	require.NoError(t, err)

	record := waitTerminal(t, sched, executionID)
	assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
	require.NotNil(t, record.CompletedAt)
	require.Len(t, record.Results, 1)
	assert.Equal(t, "step", record.Results[0].NodeID)
	require.Contains(t, record.PerformanceMetrics, "step")
	assert.True(t, record.PerformanceMetrics["step"].Success)
}

func TestConcurrencyBoundNeverExceeded(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.MaxConcurrentExecutions = 2
	cfg.DispatchInterval = 5 * time.Millisecond

	handler := newGatedHandler()
	defs := defMap{}
	var ids []string
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("wf-%d", i)
		defs[id] = singleActionDef(id)
		gate := make(chan struct{})
		handler.gates[id] = gate
		time.AfterFunc(20*time.Millisecond, func() { close(gate) })
		ids = append(ids, id)
	}

	sched := newTestScheduler(t, cfg, defs, handler)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	var executionIDs []string
	for _, id := range ids {
		executionID, err := sched.Submit(context.Background(), id, nil, 1)
		require.NoError(t, err)
		executionIDs = append(executionIDs, executionID)
	}

	for _, executionID := range executionIDs {
		record := waitTerminal(t, sched, executionID)
		assert.Equal(t, domain.ExecutionStatusCompleted, record.Status)
	}

	assert.LessOrEqual(t, atomic.LoadInt32(&handler.peak), int32(2))
}

func TestHigherPriorityDispatchesFirst(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.MaxConcurrentExecutions = 1
	cfg.DispatchInterval = 5 * time.Millisecond

	handler := newGatedHandler()
	gate := make(chan struct{})
	handler.gates["blocker"] = gate
	defs := defMap{
		"blocker": singleActionDef("blocker"),
		"low":     singleActionDef("low"),
		"high":    singleActionDef("high"),
	}

	sched := newTestScheduler(t, cfg, defs, handler)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	blockerID, err := sched.Submit(context.Background(), "blocker", nil, 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sched.ActiveCount() == 1 }, time.Second, time.Millisecond)

	lowID, err := sched.Submit(context.Background(), "low", nil, 1)
	require.NoError(t, err)
	highID, err := sched.Submit(context.Background(), "high", nil, 10)
	require.NoError(t, err)

	close(gate)
	waitTerminal(t, sched, blockerID)
	waitTerminal(t, sched, lowID)
	waitTerminal(t, sched, highID)

	assert.Equal(t, []string{"blocker", "high", "low"}, handler.startOrder())
}

func TestEqualPriorityDispatchesFIFO(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.MaxConcurrentExecutions = 1
	cfg.DispatchInterval = 5 * time.Millisecond

	handler := newGatedHandler()
	gate := make(chan struct{})
	handler.gates["blocker"] = gate
	defs := defMap{
		"blocker": singleActionDef("blocker"),
		"first":   singleActionDef("first"),
		"second":  singleActionDef("second"),
	}

	sched := newTestScheduler(t, cfg, defs, handler)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	blockerID, err := sched.Submit(context.Background(), "blocker", nil, 3)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sched.ActiveCount() == 1 }, time.Second, time.Millisecond)

	firstID, err := sched.Submit(context.Background(), "first", nil, 3)
	require.NoError(t, err)
	secondID, err := sched.Submit(context.Background(), "second", nil, 3)
	require.NoError(t, err)

	close(gate)
	waitTerminal(t, sched, blockerID)
	waitTerminal(t, sched, firstID)
	waitTerminal(t, sched, secondID)

	assert.Equal(t, []string{"blocker", "first", "second"}, handler.startOrder())
}

func TestFailedExecutionRecordsErrorDetails(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	handler := newGatedHandler()
	handler.failOn["wf"] = true

	sched := newTestScheduler(t, cfg, defMap{"wf": singleActionDef("wf")}, handler)
	require.NoError(t, sched.Start(context.Background()))
	defer sched.Stop()

	executionID, err := sched.Submit(context.Background(), "wf", nil, 1)
	require.NoError(t, err)

	record := waitTerminal(t, sched, executionID)
	assert.Equal(t, domain.ExecutionStatusFailed, record.Status)
	require.NotNil(t, record.ErrorDetails)
	assert.Contains(t, *record.ErrorDetails, "simulated node failure")
}

func TestStopCancelsQueuedAndRunning(t *testing.T) {
	cfg := domain.DefaultEngineConfig()
	cfg.MaxConcurrentExecutions = 1
	cfg.DispatchInterval = 5 * time.Millisecond

	handler := newGatedHandler()
	handler.gates["blocker"] = make(chan struct{})
	defs := defMap{
		"blocker": singleActionDef("blocker"),
		"queued":  singleActionDef("queued"),
	}

	sched := newTestScheduler(t, cfg, defs, handler)
	require.NoError(t, sched.Start(context.Background()))

	blockerID, err := sched.Submit(context.Background(), "blocker", nil, 1)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sched.ActiveCount() == 1 }, time.Second, time.Millisecond)

	queuedID, err := sched.Submit(context.Background(), "queued", nil, 1)
	require.NoError(t, err)

	require.NoError(t, sched.Stop())

	blocked, ok := sched.ExecutionStatus(blockerID)
	require.True(t, ok)
	assert.Equal(t, domain.ExecutionStatusCancelled, blocked.Status)

	queued, ok := sched.ExecutionStatus(queuedID)
	require.True(t, ok)
	assert.Equal(t, domain.ExecutionStatusCancelled, queued.Status)
	assert.Equal(t, 0, sched.QueueSize())
}

func TestAdmissionQueueOrdering(t *testing.T) {
	q := &admissionQueue{}
	heap.Init(q)
	heap.Push(q, &pendingExecution{executionID: "low-early", priority: 1, seq: 1})
	heap.Push(q, &pendingExecution{executionID: "high-first", priority: 5, seq: 2})
	heap.Push(q, &pendingExecution{executionID: "high-second", priority: 5, seq: 3})
	heap.Push(q, &pendingExecution{executionID: "mid", priority: 3, seq: 4})

	var order []string
	for q.Len() > 0 {
		order = append(order, heap.Pop(q).(*pendingExecution).executionID)
	}
	assert.Equal(t, []string{"high-first", "high-second", "mid", "low-early"}, order)
}

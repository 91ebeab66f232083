package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomery/loom/internal/domain"
)

// countingHandler counts invocations and fails a configured number of times
// before succeeding.
type countingHandler struct {
	nodeType    domain.NodeType
	invocations int32
	failFirst   int32
	panicAlways bool
	result      interface{}
}

func (h *countingHandler) Type() domain.NodeType { return h.nodeType }

func (h *countingHandler) Execute(_ context.Context, node *domain.WorkflowNode, _ *domain.ExecutionContext) (interface{}, error) {
	n := atomic.AddInt32(&h.invocations, 1)
	if h.panicAlways {
		panic("handler exploded")
	}
	if n <= h.failFirst {
		return nil, errors.New("transient failure")
	}
	if h.result != nil {
		return h.result, nil
	}
	return map[string]interface{}{"invocation": n}, nil
}

func (h *countingHandler) count() int32 { return atomic.LoadInt32(&h.invocations) }

func testDef() *domain.WorkflowDefinition {
	return &domain.WorkflowDefinition{ID: "wf-exec", Name: "exec", Mode: domain.ModeSequential}
}

func TestExecuteUnknownNodeTypeIsFatal(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	ec := domain.NewExecutionContext("exec-1", "wf-exec", nil)

	// Skip strategy must not soften an unknown type.
	node := &domain.WorkflowNode{ID: "mystery", Type: domain.NodeType("mystery"), ErrorStrategy: domain.ErrorStrategySkip}
	err := exec.Execute(context.Background(), testDef(), node, ec)

	assert.True(t, domain.IsUnknownNodeType(err))
	assert.False(t, ec.HasResult("mystery"))
}

func TestExecuteCachesCacheableNodeResults(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeIntegration, result: map[string]interface{}{"status": "ok"}}
	exec.RegisterHandler(handler)

	node := &domain.WorkflowNode{
		ID:   "fetch",
		Type: domain.NodeTypeIntegration,
		Config: map[string]interface{}{
			"integration_type": "database",
			"url":              "https://example.com",
		},
	}

	first := domain.NewExecutionContext("exec-1", "wf-exec", nil)
	require.NoError(t, exec.Execute(context.Background(), testDef(), node, first))

	// Same node, fresh execution: the handler must not run again.
	second := domain.NewExecutionContext("exec-2", "wf-exec", nil)
	require.NoError(t, exec.Execute(context.Background(), testDef(), node, second))

	assert.Equal(t, int32(1), handler.count())
	firstValue, _ := first.Result("fetch")
	secondValue, _ := second.Result("fetch")
	assert.Equal(t, firstValue, secondValue)
	assert.Equal(t, 1, exec.CacheSize())
}

func TestExecuteCacheableOverrideDisablesCache(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeIntegration, result: map[string]interface{}{"status": "ok"}}
	exec.RegisterHandler(handler)

	off := false
	node := &domain.WorkflowNode{
		ID:        "fetch",
		Type:      domain.NodeTypeIntegration,
		Cacheable: &off,
		Config:    map[string]interface{}{"integration_type": "database"},
	}

	for i := 0; i < 2; i++ {
		ec := domain.NewExecutionContext("exec", "wf-exec", nil)
		require.NoError(t, exec.Execute(context.Background(), testDef(), node, ec))
	}

	assert.Equal(t, int32(2), handler.count())
	assert.Zero(t, exec.CacheSize())
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	metrics := domain.NewExecutionMetrics()
	exec := New(domain.DefaultEngineConfig(), metrics, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeAction, failFirst: 2}
	exec.RegisterHandler(handler)

	def := testDef()
	def.Retry = &domain.RetryPolicy{Enabled: true, MaxAttempts: 3, Backoff: time.Millisecond, BackoffFactor: 1}

	ec := domain.NewExecutionContext("exec-retry", "wf-exec", nil)
	node := &domain.WorkflowNode{ID: "flaky", Type: domain.NodeTypeAction}
	require.NoError(t, exec.Execute(context.Background(), def, node, ec))

	assert.Equal(t, int32(3), handler.count())
	assert.True(t, ec.HasResult("flaky"))
	assert.Equal(t, int64(2), metrics.GetSnapshot().NodesRetried)
}

func TestExecuteRetryExhaustion(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeAction, failFirst: 10}
	exec.RegisterHandler(handler)

	def := testDef()
	def.Retry = &domain.RetryPolicy{Enabled: true, MaxAttempts: 3, Backoff: time.Millisecond, BackoffFactor: 1}

	ec := domain.NewExecutionContext("exec-exhaust", "wf-exec", nil)
	node := &domain.WorkflowNode{ID: "doomed", Type: domain.NodeTypeAction}
	err := exec.Execute(context.Background(), def, node, ec)

	require.Error(t, err)
	assert.True(t, domain.IsRetryExhausted(err))
	assert.Equal(t, int32(3), handler.count())
}

func TestExecuteNoRetryWhenPolicyDisabled(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeAction, failFirst: 10}
	exec.RegisterHandler(handler)

	def := testDef()
	def.Retry = &domain.RetryPolicy{Enabled: false, MaxAttempts: 3}

	ec := domain.NewExecutionContext("exec-noretry", "wf-exec", nil)
	err := exec.Execute(context.Background(), def, &domain.WorkflowNode{ID: "once", Type: domain.NodeTypeAction}, ec)

	require.Error(t, err)
	assert.Equal(t, int32(1), handler.count())
}

func TestExecuteSkipStrategyAbsorbsFailure(t *testing.T) {
	metrics := domain.NewExecutionMetrics()
	exec := New(domain.DefaultEngineConfig(), metrics, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeAction, failFirst: 10}
	exec.RegisterHandler(handler)

	ec := domain.NewExecutionContext("exec-skip", "wf-exec", nil)
	node := &domain.WorkflowNode{ID: "optional", Type: domain.NodeTypeAction, ErrorStrategy: domain.ErrorStrategySkip}
	require.NoError(t, exec.Execute(context.Background(), testDef(), node, ec))

	value, ok := ec.Result("optional")
	require.True(t, ok)
	assert.Equal(t, domain.SkippedMarker(), value)
	assert.Equal(t, int64(1), metrics.GetSnapshot().NodesSkipped)

	perf := ec.Performance()["optional"]
	assert.False(t, perf.Success)
}

func TestExecuteDefaultStrategySubstitutesResult(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeAction, failFirst: 10}
	exec.RegisterHandler(handler)

	ec := domain.NewExecutionContext("exec-default", "wf-exec", nil)
	node := &domain.WorkflowNode{
		ID:            "fallback",
		Type:          domain.NodeTypeAction,
		ErrorStrategy: domain.ErrorStrategyDefault,
		DefaultResult: map[string]interface{}{"source": "default"},
	}
	require.NoError(t, exec.Execute(context.Background(), testDef(), node, ec))

	value, ok := ec.Result("fallback")
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"source": "default"}, value)
}

func TestExecuteFailStrategyPropagates(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeAction, failFirst: 10}
	exec.RegisterHandler(handler)

	ec := domain.NewExecutionContext("exec-fail", "wf-exec", nil)
	node := &domain.WorkflowNode{ID: "critical", Type: domain.NodeTypeAction, ErrorStrategy: domain.ErrorStrategyFail}
	err := exec.Execute(context.Background(), testDef(), node, ec)

	var nodeErr *domain.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "critical", nodeErr.NodeID)
	assert.False(t, ec.HasResult("critical"))
}

func TestExecuteRecoversHandlerPanic(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeAction, panicAlways: true}
	exec.RegisterHandler(handler)

	ec := domain.NewExecutionContext("exec-panic", "wf-exec", nil)
	err := exec.Execute(context.Background(), testDef(), &domain.WorkflowNode{ID: "bomb", Type: domain.NodeTypeAction}, ec)

	var nodeErr *domain.NodeExecutionError
	require.ErrorAs(t, err, &nodeErr)
	assert.Contains(t, nodeErr.Error(), "panic")
	assert.NotEmpty(t, nodeErr.StackTrace)
}

func TestExecutePanicWithSkipStrategyStillRecordsResult(t *testing.T) {
	exec := New(domain.DefaultEngineConfig(), nil, nil, nil)
	handler := &countingHandler{nodeType: domain.NodeTypeAction, panicAlways: true}
	exec.RegisterHandler(handler)

	ec := domain.NewExecutionContext("exec-panic-skip", "wf-exec", nil)
	node := &domain.WorkflowNode{ID: "bomb", Type: domain.NodeTypeAction, ErrorStrategy: domain.ErrorStrategySkip}
	require.NoError(t, exec.Execute(context.Background(), testDef(), node, ec))

	value, ok := ec.Result("bomb")
	require.True(t, ok)
	assert.Equal(t, domain.SkippedMarker(), value)
}

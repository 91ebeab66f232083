package events

import (
	"log/slog"
	"sync"

	"github.com/loomery/loom/internal/domain"
)

// Manager fans execution lifecycle transitions out to registered handlers so
// an external notification layer can observe them. Handlers run synchronously
// on the publishing goroutine; long-running observers should hand off.
type Manager struct {
	logger *slog.Logger

	mu                         sync.RWMutex
	executionStartedHandlers   []func(domain.ExecutionStartedEvent)
	nodeCompletedHandlers      []func(domain.NodeCompletedEvent)
	executionCompletedHandlers []func(domain.ExecutionCompletedEvent)
	executionFailedHandlers    []func(domain.ExecutionFailedEvent)
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger.With("component", "event-manager"),
	}
}

func (m *Manager) OnExecutionStarted(handler func(domain.ExecutionStartedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executionStartedHandlers = append(m.executionStartedHandlers, handler)
}

func (m *Manager) OnNodeCompleted(handler func(domain.NodeCompletedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodeCompletedHandlers = append(m.nodeCompletedHandlers, handler)
}

func (m *Manager) OnExecutionCompleted(handler func(domain.ExecutionCompletedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executionCompletedHandlers = append(m.executionCompletedHandlers, handler)
}

func (m *Manager) OnExecutionFailed(handler func(domain.ExecutionFailedEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executionFailedHandlers = append(m.executionFailedHandlers, handler)
}

func (m *Manager) PublishExecutionStarted(event domain.ExecutionStartedEvent) {
	m.mu.RLock()
	handlers := append([]func(domain.ExecutionStartedEvent){}, m.executionStartedHandlers...)
	m.mu.RUnlock()

	for _, handler := range handlers {
		m.invoke(func() { handler(event) })
	}
}

func (m *Manager) PublishNodeCompleted(event domain.NodeCompletedEvent) {
	m.mu.RLock()
	handlers := append([]func(domain.NodeCompletedEvent){}, m.nodeCompletedHandlers...)
	m.mu.RUnlock()

	for _, handler := range handlers {
		m.invoke(func() { handler(event) })
	}
}

func (m *Manager) PublishExecutionCompleted(event domain.ExecutionCompletedEvent) {
	m.mu.RLock()
	handlers := append([]func(domain.ExecutionCompletedEvent){}, m.executionCompletedHandlers...)
	m.mu.RUnlock()

	for _, handler := range handlers {
		m.invoke(func() { handler(event) })
	}
}

func (m *Manager) PublishExecutionFailed(event domain.ExecutionFailedEvent) {
	m.mu.RLock()
	handlers := append([]func(domain.ExecutionFailedEvent){}, m.executionFailedHandlers...)
	m.mu.RUnlock()

	for _, handler := range handlers {
		m.invoke(func() { handler(event) })
	}
}

// invoke shields the engine from observer panics.
func (m *Manager) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler panicked", "panic_value", r)
		}
	}()
	fn()
}

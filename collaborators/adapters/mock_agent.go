package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoplexhq/leadflow/collaborators"
	"github.com/autoplexhq/leadflow/model"
)

// MockAgent is an in-process agent used in tests and local development. It
// records every task it receives and can be told to fail transiently or
// permanently.
type MockAgent struct {
	AgentName     string
	ShouldRetry   bool
	ShouldFail    bool
	Delay         time.Duration
	FailuresLeft  int
	mu            sync.Mutex
	ReceivedTasks []*model.Task
}

func NewMockAgent(name string) *MockAgent {
	return &MockAgent{AgentName: name}
}

func (m *MockAgent) Name() string {
	return m.AgentName
}

func (m *MockAgent) record(task *model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReceivedTasks = append(m.ReceivedTasks, task)
}

// Received returns a copy of the tasks this agent has been handed so far.
func (m *MockAgent) Received() []*model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Task, len(m.ReceivedTasks))
	copy(out, m.ReceivedTasks)
	return out
}

func (m *MockAgent) execute(ctx context.Context, task *model.Task, reason string) (*collaborators.Result, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.record(task)

	ref := "mock_" + uuid.New().String()

	if m.ShouldFail {
		return &collaborators.Result{
			Outcome:   collaborators.OutcomePermanent,
			Reason:    "Mock permanent failure triggered",
			AgentRef:  ref,
			Timestamp: time.Now(),
		}, nil
	}

	m.mu.Lock()
	transient := m.ShouldRetry || m.FailuresLeft > 0
	if m.FailuresLeft > 0 {
		m.FailuresLeft--
	}
	m.mu.Unlock()
	if transient {
		return &collaborators.Result{
			Outcome:   collaborators.OutcomeRetryable,
			Reason:    "Mock transient failure triggered",
			AgentRef:  ref,
			Timestamp: time.Now(),
		}, nil
	}

	return &collaborators.Result{
		Outcome:   collaborators.OutcomeSucceeded,
		Reason:    reason,
		AgentRef:  ref,
		Timestamp: time.Now(),
	}, nil
}

func (m *MockAgent) SendEmail(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	return m.execute(ctx, task, "Email accepted by mock agent")
}

func (m *MockAgent) GenerateDocument(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	return m.execute(ctx, task, "Document generated by mock agent")
}

func (m *MockAgent) CreateStaffTask(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	return m.execute(ctx, task, "Staff task created by mock agent")
}

func (m *MockAgent) ScheduleFollowup(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	return m.execute(ctx, task, "Followup call scheduled by mock agent")
}

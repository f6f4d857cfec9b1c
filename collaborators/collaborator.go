package collaborators

import (
	"context"
	"sort"
	"time"

	"github.com/autoplexhq/leadflow/model"
)

type Outcome string

const (
	// OutcomeSucceeded means the task is done and must not run again.
	OutcomeSucceeded Outcome = "SUCCEEDED"
	// OutcomeRetryable means the call failed transiently and the task
	// should be redelivered with backoff.
	OutcomeRetryable Outcome = "RETRYABLE"
	// OutcomePermanent means retrying cannot help; the task fails terminally.
	OutcomePermanent Outcome = "PERMANENT"
)

// Result is what an agent reports back for a single task execution.
type Result struct {
	Outcome   Outcome                `json:"outcome"`
	Reason    string                 `json:"reason"`
	AgentRef  string                 `json:"agent_ref"`
	RawData   map[string]interface{} `json:"raw_data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Agent is the downstream execution surface for dispatched tasks. Callers
// must treat every method as potentially slow and apply their own timeout.
type Agent interface {
	Name() string
	SendEmail(ctx context.Context, task *model.Task) (*Result, error)
	GenerateDocument(ctx context.Context, task *model.Task) (*Result, error)
	CreateStaffTask(ctx context.Context, task *model.Task) (*Result, error)
	ScheduleFollowup(ctx context.Context, task *model.Task) (*Result, error)
}

// Registry maps task kinds to the agent responsible for executing them.
type Registry struct {
	agents map[string]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register binds an agent to an agent ID. Later registrations for the same
// ID replace earlier ones.
func (r *Registry) Register(agentID model.AgentID, agent Agent) {
	r.agents[string(agentID)] = agent
}

// AgentIDs lists the currently registered agent IDs in a stable order.
func (r *Registry) AgentIDs() []model.AgentID {
	ids := make([]model.AgentID, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, model.AgentID(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ForKind resolves the agent that executes the given task kind. The bool is
// false when no agent is registered for the kind's backing agent.
func (r *Registry) ForKind(kind model.TaskKind) (Agent, bool) {
	agent, ok := r.agents[string(model.AgentForKind(kind))]
	return agent, ok
}

// Execute routes a task to the right agent method for its kind.
func Execute(ctx context.Context, agent Agent, task *model.Task) (*Result, error) {
	switch task.Kind {
	case model.KindSendEmail, model.KindNurtureStep:
		return agent.SendEmail(ctx, task)
	case model.KindGenerateDocument:
		return agent.GenerateDocument(ctx, task)
	case model.KindCreateStaffTask:
		return agent.CreateStaffTask(ctx, task)
	case model.KindScheduleFollowup:
		return agent.ScheduleFollowup(ctx, task)
	default:
		return &Result{
			Outcome:   OutcomePermanent,
			Reason:    "Unknown task kind: " + string(task.Kind),
			Timestamp: time.Now(),
		}, nil
	}
}

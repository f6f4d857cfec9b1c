package model

import (
	"time"
)

// TaskKind enumerates the recognized follow-up action kinds. Each kind is
// backed by a collaborator agent; dispatch of a kind pauses while its agent
// is down.
type TaskKind string

const (
	KindSendEmail        TaskKind = "send_email"
	KindGenerateDocument TaskKind = "generate_document"
	KindCreateStaffTask  TaskKind = "create_staff_task"
	KindScheduleFollowup TaskKind = "schedule_followup"
	KindNurtureStep      TaskKind = "nurture_step"
)

// TaskStatus is the lifecycle status of a scheduled work item.
const (
	StatusPending    = "PENDING"
	StatusDispatched = "DISPATCHED"
	StatusSucceeded  = "SUCCEEDED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// KnownKind reports whether the kind is one the dispatch layer recognizes.
// Unknown kinds are a configuration error, fatal to the triggering operation.
func KnownKind(kind TaskKind) bool {
	switch kind {
	case KindSendEmail, KindGenerateDocument, KindCreateStaffTask, KindScheduleFollowup, KindNurtureStep:
		return true
	}
	return false
}

// Task is a unit of scheduled work. Tasks are created by the lead state
// machine or the campaign orchestrator, mutated only by the scheduler and
// dispatch workers, and never deleted; failed-terminal tasks are retained
// for audit.
type Task struct {
	TaskID         string                 `json:"task_id"`
	Kind           TaskKind               `json:"kind"`
	CustomerID     string                 `json:"customer_id"`
	CampaignID     string                 `json:"campaign_id,omitempty"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
	ScheduledFor   time.Time              `json:"scheduled_for"`
	IdempotencyKey string                 `json:"idempotency_key"`
	Status         string                 `json:"status"`
	Attempts       int                    `json:"attempts"`
	LastError      string                 `json:"last_error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// HashTask derives the deterministic idempotency key for a task from its
// kind, target customer and triggering event. Re-processing the same
// triggering event therefore always produces the same key.
func (t *Task) HashTask(triggerEvent string) string {
	return HashFields(string(t.Kind), t.CustomerID, triggerEvent)
}

// NextRetryDelay computes the exponential redelivery delay for a failed
// attempt: base x 2^attempt, capped.
func NextRetryDelay(attempt int, base, cap time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

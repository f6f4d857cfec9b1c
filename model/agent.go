package model

import "time"

// AgentID identifies a collaborator agent that executes dispatched tasks.
type AgentID string

const (
	AgentCommunication AgentID = "communication_agent"
	AgentDocument      AgentID = "document_agent"
	AgentVoice         AgentID = "voice_agent"
	AgentStaff         AgentID = "staff_agent"
)

// AgentStatus is the aggregated liveness status derived from heartbeats.
type AgentStatus string

const (
	AgentHealthy  AgentStatus = "Healthy"
	AgentDegraded AgentStatus = "Degraded"
	AgentDown     AgentStatus = "Down"
)

// AgentHealth is one entry in the operator-facing health snapshot.
type AgentHealth struct {
	AgentID  AgentID     `json:"agent_id"`
	Status   AgentStatus `json:"status"`
	LastSeen time.Time   `json:"last_seen"`
	Detail   string      `json:"detail,omitempty"`
}

// AgentForKind maps a task kind to the collaborator agent that executes it.
// The scheduler pauses dispatch of a kind while its agent is Down.
func AgentForKind(kind TaskKind) AgentID {
	switch kind {
	case KindGenerateDocument:
		return AgentDocument
	case KindCreateStaffTask:
		return AgentStaff
	case KindScheduleFollowup:
		return AgentVoice
	default:
		// send_email and nurture_step both go out through the
		// communication agent.
		return AgentCommunication
	}
}

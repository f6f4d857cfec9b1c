package model

import "time"

// Classification is the temperature bucket derived from a numeric score.
type Classification string

const (
	ClassificationCold Classification = "Cold"
	ClassificationWarm Classification = "Warm"
	ClassificationHot  Classification = "Hot"
)

// LeadStateName is a lifecycle state in the lead funnel.
type LeadStateName string

const (
	StateProspect  LeadStateName = "Prospect"
	StateWarm      LeadStateName = "Warm"
	StateHot       LeadStateName = "Hot"
	StateConverted LeadStateName = "Converted"
	StateLost      LeadStateName = "Lost"
)

// stateRank orders the automatic states for the monotonicity rule.
// Converted and Lost sit outside the ordering; they are forced, terminal.
var stateRank = map[LeadStateName]int{
	StateProspect: 0,
	StateWarm:     1,
	StateHot:      2,
}

// LeadScore is an immutable, versioned scoring snapshot. A new interaction
// produces a new LeadScore, never an edit of a prior one.
type LeadScore struct {
	ScoreID        string             `json:"score_id"`
	CustomerID     string             `json:"customer_id"`
	InteractionID  string             `json:"interaction_id"`
	RuleSetVersion int                `json:"rule_set_version"`
	Score          int                `json:"score"`
	Classification Classification     `json:"classification"`
	Trace          []RuleContribution `json:"trace"`
	ComputedAt     time.Time          `json:"computed_at"`
}

// LeadState is the authoritative, mutable lifecycle row for one customer.
// All mutation goes through a compare-and-swap on Version.
type LeadState struct {
	CustomerID       string        `json:"customer_id"`
	State            LeadStateName `json:"state"`
	Score            int           `json:"score"`
	LastScoreID      string        `json:"last_score_id,omitempty"`
	LastScoreAt      time.Time     `json:"last_score_at,omitempty"`
	LastTransitionAt time.Time     `json:"last_transition_at"`
	Version          int64         `json:"version"`
}

// IsTerminal reports whether the state admits no further automatic
// transitions.
func (s LeadStateName) IsTerminal() bool {
	return s == StateConverted || s == StateLost
}

// ClassificationForState is the inverse of StateForClassification for the
// score-driven states. Terminal states have no classification and map to
// Cold, which triggers nothing.
func ClassificationForState(s LeadStateName) Classification {
	switch s {
	case StateHot:
		return ClassificationHot
	case StateWarm:
		return ClassificationWarm
	default:
		return ClassificationCold
	}
}

// IsTerminal reports whether the row's current state is terminal.
func (s *LeadState) IsTerminal() bool {
	return s.State.IsTerminal()
}

// StateForClassification maps a classification to its target funnel state.
// Cold maps to Prospect; the monotonicity rule then decides whether the
// target is actually applied.
func StateForClassification(c Classification) LeadStateName {
	switch c {
	case ClassificationHot:
		return StateHot
	case ClassificationWarm:
		return StateWarm
	default:
		return StateProspect
	}
}

// NextState applies the monotone non-decreasing rule: a score-driven target
// below the current state leaves the state unchanged. Terminal states never
// move.
func NextState(current LeadStateName, c Classification) LeadStateName {
	if current.IsTerminal() {
		return current
	}
	target := StateForClassification(c)
	if stateRank[target] < stateRank[current] {
		return current
	}
	return target
}

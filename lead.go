/*
Copyright 2025 Leadflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package leadflow

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/autoplexhq/leadflow/config"
	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

const (
	EventStateChanged = "lead.state_changed"
	EventLeadLost     = "lead.lost"
	EventLeadWon      = "lead.converted"
)

// casUpdate retries an optimistic-lock update of a lead state row. mutate is
// called on a freshly loaded row each attempt and returns false when there is
// nothing left to change. The version conflict path re-reads and recomputes,
// so a concurrent writer can never be silently overwritten.
func (l *Leadflow) casUpdate(ctx context.Context, customerID string, mutate func(*model.LeadState) (bool, error)) (*model.LeadState, bool, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, false, err
	}

	var state *model.LeadState
	var changed bool
	operation := func() error {
		state, err = l.datasource.GetOrCreateLeadState(ctx, customerID)
		if err != nil {
			return backoff.Permanent(err)
		}
		changed, err = mutate(state)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !changed {
			return nil
		}
		if err := l.datasource.UpdateLeadState(ctx, state); err != nil {
			if apierror.IsCode(err, apierror.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cnf.Scoring.MaxCASRetries)), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, false, err
	}
	return state, changed, nil
}

// ApplyScore folds a score snapshot into the lead state machine. Automatic
// transitions are monotone: a lower classification never demotes the state,
// and terminal states are never left. The write is a compare-and-swap on the
// row version; a conflict re-reads and recomputes against the fresh state.
func (l *Leadflow) ApplyScore(ctx context.Context, score *model.LeadScore) (*model.LeadState, error) {
	ctx, span := tracer.Start(ctx, "ApplyScore")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var fromState model.LeadStateName
	var transitioned bool
	state, _, err := l.casUpdate(ctx, score.CustomerID, func(state *model.LeadState) (bool, error) {
		fromState = state.State
		transitioned = false
		if state.IsTerminal() {
			// Scores keep accruing for terminal leads; the state row stays put.
			return false, nil
		}
		// A score that is not newer than the one already applied lost its
		// race and is discarded, never retro-applied.
		if !state.LastScoreAt.IsZero() && !score.ComputedAt.After(state.LastScoreAt) {
			return false, nil
		}

		next := model.NextState(state.State, score.Classification)
		material := abs(score.Score-state.Score) >= cnf.Scoring.MaterialChangeThreshold
		if next == state.State && !material {
			return false, nil
		}

		transitioned = next != state.State
		state.State = next
		state.Score = score.Score
		state.LastScoreID = score.ScoreID
		state.LastScoreAt = score.ComputedAt
		// A material same-state change refreshes the timestamp too, so
		// staleness-based re-engagement sees recent activity.
		state.LastTransitionAt = score.ComputedAt
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if transitioned {
		logrus.WithFields(logrus.Fields{
			"customer_id": state.CustomerID,
			"from":        fromState,
			"to":          state.State,
			"score":       state.Score,
		}).Info("lead state transition")
		l.emitEvent(ctx, EventStateChanged, map[string]interface{}{
			"customer_id": state.CustomerID,
			"from":        fromState,
			"to":          state.State,
			"score":       state.Score,
			"score_id":    state.LastScoreID,
		})
		if err := l.activateForTransition(ctx, state); err != nil {
			// Campaign activation failures must not roll back the
			// transition itself.
			logrus.Errorf("campaign activation after transition failed: %v", err)
		}
	}
	return state, nil
}

// activateForTransition starts every campaign template triggered by the
// state just entered.
func (l *Leadflow) activateForTransition(ctx context.Context, state *model.LeadState) error {
	trigger := fmt.Sprintf("state:%s:%s", state.State, state.LastScoreID)
	activation := model.TriggerForClassification(model.ClassificationForState(state.State))
	for _, template := range model.TemplatesForTrigger(activation) {
		if _, err := l.ActivateCampaign(ctx, template.TemplateID, state.CustomerID, trigger); err != nil {
			return err
		}
	}
	return nil
}

// RecordSale forces a lead into Converted. Terminal transitions bypass the
// monotonic rank check but are themselves final: converting a lost lead or
// vice versa is rejected.
func (l *Leadflow) RecordSale(ctx context.Context, customerID string) (*model.LeadState, error) {
	return l.forceTerminal(ctx, customerID, model.StateConverted, EventLeadWon)
}

// MarkLost forces a lead into Lost.
func (l *Leadflow) MarkLost(ctx context.Context, customerID string) (*model.LeadState, error) {
	return l.forceTerminal(ctx, customerID, model.StateLost, EventLeadLost)
}

func (l *Leadflow) forceTerminal(ctx context.Context, customerID string, target model.LeadStateName, event string) (*model.LeadState, error) {
	ctx, span := tracer.Start(ctx, "ForceTerminalState")
	defer span.End()

	var fromState model.LeadStateName
	state, changed, err := l.casUpdate(ctx, customerID, func(state *model.LeadState) (bool, error) {
		fromState = state.State
		if state.State == target {
			return false, nil
		}
		if state.IsTerminal() {
			return false, apierror.NewAPIError(apierror.ErrInvalidTransition,
				fmt.Sprintf("Lead '%s' is already %s", customerID, state.State), nil)
		}
		state.State = target
		state.LastTransitionAt = time.Now()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return state, nil
	}

	// A terminal lead has no future: every still-pending follow-up is
	// cancelled, campaigns included.
	cancelled, err := l.datasource.CancelPendingTasksForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	campaigns, err := l.datasource.GetCampaignsForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	for _, c := range campaigns {
		if c.Status != model.CampaignActive {
			continue
		}
		if err := l.datasource.CancelCampaign(ctx, c.CampaignID); err != nil && !apierror.IsCode(err, apierror.ErrConflict) {
			logrus.Errorf("failed to cancel campaign %s: %v", c.CampaignID, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"customer_id":     customerID,
		"from":            fromState,
		"to":              target,
		"tasks_cancelled": len(cancelled),
	}).Info("lead reached terminal state")
	l.emitEvent(ctx, event, map[string]interface{}{
		"customer_id":     customerID,
		"from":            fromState,
		"to":              target,
		"tasks_cancelled": cancelled,
	})
	return state, nil
}

// GetLeadState returns the authoritative state row for a customer.
func (l *Leadflow) GetLeadState(ctx context.Context, customerID string) (*model.LeadState, error) {
	return l.datasource.GetLeadState(ctx, customerID)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

// CreateLeadState inserts the initial lifecycle row for a customer. Every
// customer starts as Prospect with version 0.
func (d Datasource) CreateLeadState(ctx context.Context, state *model.LeadState) (*model.LeadState, error) {
	if state.State == "" {
		state.State = model.StateProspect
	}
	if state.LastTransitionAt.IsZero() {
		state.LastTransitionAt = time.Now()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO leadflow.lead_states (customer_id, state, score, last_score_id, last_transition_at, version)
		VALUES ($1, $2, $3, $4, $5, 0)
	`, state.CustomerID, state.State, state.Score, state.LastScoreID, state.LastTransitionAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create lead state", err)
	}
	state.Version = 0
	return state, nil
}

// GetLeadState fetches the lifecycle row for a customer.
func (d Datasource) GetLeadState(ctx context.Context, customerID string) (*model.LeadState, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT customer_id, state, score, COALESCE(last_score_id, ''), last_score_at, last_transition_at, version
		FROM leadflow.lead_states
		WHERE customer_id = $1
	`, customerID)

	state := &model.LeadState{}
	var lastScoreAt sql.NullTime
	err := row.Scan(&state.CustomerID, &state.State, &state.Score, &state.LastScoreID, &lastScoreAt, &state.LastTransitionAt, &state.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Lead state for customer '%s' not found", customerID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get lead state", err)
	}
	state.LastScoreAt = lastScoreAt.Time
	return state, nil
}

// GetOrCreateLeadState returns the lifecycle row, creating the initial
// Prospect row on first contact.
func (d Datasource) GetOrCreateLeadState(ctx context.Context, customerID string) (*model.LeadState, error) {
	state, err := d.GetLeadState(ctx, customerID)
	if err == nil {
		return state, nil
	}
	if !apierror.IsCode(err, apierror.ErrNotFound) {
		return nil, err
	}
	return d.CreateLeadState(ctx, &model.LeadState{CustomerID: customerID})
}

// UpdateLeadState updates a lead lifecycle row under optimistic locking. The
// version field is incremented on a successful update; when no row matches
// the expected version the caller lost the race and must re-read and
// recompute before retrying.
func (d Datasource) UpdateLeadState(ctx context.Context, state *model.LeadState) error {
	query := `
        UPDATE leadflow.lead_states
        SET state = $2, score = $3, last_score_id = $4, last_score_at = $5, last_transition_at = $6, version = version + 1
        WHERE customer_id = $1 AND version = $7
    `

	lastScoreAt := sql.NullTime{Time: state.LastScoreAt, Valid: !state.LastScoreAt.IsZero()}
	result, err := d.Conn.ExecContext(ctx, query, state.CustomerID, state.State, state.Score, state.LastScoreID, lastScoreAt, state.LastTransitionAt, state.Version)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update lead state", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Optimistic locking failure: lead state for customer '%s' was updated by another writer", state.CustomerID), nil)
	}

	state.Version++
	return nil
}

package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

// RecordLeadScore appends an immutable scoring snapshot. Scores are never
// updated; every interaction yields a new row.
func (d Datasource) RecordLeadScore(ctx context.Context, score *model.LeadScore) (*model.LeadScore, error) {
	if score.ScoreID == "" {
		score.ScoreID = GenerateUUIDWithSuffix("score")
	}
	if score.ComputedAt.IsZero() {
		score.ComputedAt = time.Now()
	}

	traceJSON, err := json.Marshal(score.Trace)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal score trace", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO leadflow.lead_scores (score_id, customer_id, interaction_id, rule_set_version, score, classification, trace, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, score.ScoreID, score.CustomerID, score.InteractionID, score.RuleSetVersion, score.Score, score.Classification, traceJSON, score.ComputedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record lead score", err)
	}
	return score, nil
}

func scanLeadScore(row interface{ Scan(...interface{}) error }) (*model.LeadScore, error) {
	score := &model.LeadScore{}
	var traceJSON []byte
	err := row.Scan(&score.ScoreID, &score.CustomerID, &score.InteractionID, &score.RuleSetVersion,
		&score.Score, &score.Classification, &traceJSON, &score.ComputedAt)
	if err != nil {
		return nil, err
	}
	if len(traceJSON) > 0 {
		if err := json.Unmarshal(traceJSON, &score.Trace); err != nil {
			return nil, err
		}
	}
	return score, nil
}

// GetLatestLeadScore returns the most recent scoring snapshot for a
// customer, or NOT_FOUND on first contact.
func (d Datasource) GetLatestLeadScore(ctx context.Context, customerID string) (*model.LeadScore, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT score_id, customer_id, interaction_id, rule_set_version, score, classification, trace, computed_at
		FROM leadflow.lead_scores
		WHERE customer_id = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT 1
	`, customerID)

	score, err := scanLeadScore(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No lead score for customer '%s'", customerID), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get latest lead score", err)
	}
	return score, nil
}

// GetLeadScores returns the score history for a customer, newest first.
func (d Datasource) GetLeadScores(ctx context.Context, customerID string, limit int) ([]model.LeadScore, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT score_id, customer_id, interaction_id, rule_set_version, score, classification, trace, computed_at
		FROM leadflow.lead_scores
		WHERE customer_id = $1
		ORDER BY computed_at DESC, id DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get lead scores", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var scores []model.LeadScore
	for rows.Next() {
		score, err := scanLeadScore(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan lead score", err)
		}
		scores = append(scores, *score)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate lead scores", err)
	}
	return scores, nil
}

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

// PublishRuleSet stores an immutable rule set version. Versions are
// append-only; publishing an existing version is a conflict.
func (d Datasource) PublishRuleSet(ctx context.Context, rs *model.RuleSet) error {
	rulesJSON, err := json.Marshal(rs.Rules)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal rules", err)
	}
	if rs.PublishedAt.IsZero() {
		rs.PublishedAt = time.Now()
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO leadflow.rule_sets (version, rules, decay_factor, warm_threshold, hot_threshold, published_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rs.Version, rulesJSON, rs.DecayFactor, rs.Thresholds.Warm, rs.Thresholds.Hot, rs.PublishedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to publish rule set", err)
	}
	return nil
}

func scanRuleSet(row interface{ Scan(...interface{}) error }) (*model.RuleSet, error) {
	rs := &model.RuleSet{}
	var rulesJSON []byte
	err := row.Scan(&rs.Version, &rulesJSON, &rs.DecayFactor, &rs.Thresholds.Warm, &rs.Thresholds.Hot, &rs.PublishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(rulesJSON, &rs.Rules); err != nil {
		return nil, err
	}
	return rs, nil
}

// GetActiveRuleSet returns the highest published rule set version. Scoring
// reads this once per evaluation so a publish mid-flight never mixes rule
// versions inside a single score.
func (d Datasource) GetActiveRuleSet(ctx context.Context) (*model.RuleSet, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT version, rules, decay_factor, warm_threshold, hot_threshold, published_at
		FROM leadflow.rule_sets
		ORDER BY version DESC
		LIMIT 1
	`)

	rs, err := scanRuleSet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrConfiguration, "No rule set has been published", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get active rule set", err)
	}
	return rs, nil
}

// GetRuleSetByVersion retrieves a specific published version, used to
// reproduce historical score traces.
func (d Datasource) GetRuleSetByVersion(ctx context.Context, version int) (*model.RuleSet, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT version, rules, decay_factor, warm_threshold, hot_threshold, published_at
		FROM leadflow.rule_sets
		WHERE version = $1
	`, version)

	rs, err := scanRuleSet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Rule set version %d not found", version), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rule set", err)
	}
	return rs, nil
}

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

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/autoplexhq/leadflow/config"
	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

const activeRuleSetCacheKey = "leadflow:ruleset:active"

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// activeRuleSet loads the active rule set, going through the cache first.
// The whole set is read in one shot so a publish that lands mid-evaluation
// can never mix two versions inside one score.
func (l *Leadflow) activeRuleSet(ctx context.Context) (*model.RuleSet, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	var cached model.RuleSet
	if err := l.cache.Get(ctx, activeRuleSetCacheKey, &cached); err == nil && cached.Version > 0 {
		return &cached, nil
	}

	rs, err := l.datasource.GetActiveRuleSet(ctx)
	if err != nil {
		return nil, err
	}

	ttl := time.Duration(cnf.Scoring.RuleSetCacheTTLSec) * time.Second
	if err := l.cache.Set(ctx, activeRuleSetCacheKey, rs, ttl); err != nil {
		logrus.Warnf("failed to cache rule set v%d: %v", rs.Version, err)
	}
	return rs, nil
}

// PublishRuleSet stores a new immutable rule set version and invalidates the
// cache so the next evaluation picks it up.
func (l *Leadflow) PublishRuleSet(ctx context.Context, rs *model.RuleSet) error {
	ctx, span := tracer.Start(ctx, "PublishRuleSet")
	defer span.End()

	if len(rs.Rules) == 0 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Rule set has no rules", nil)
	}
	if rs.DecayFactor <= 0 || rs.DecayFactor > 1 {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Decay factor must be in (0, 1]", nil)
	}
	if rs.Thresholds.Warm >= rs.Thresholds.Hot {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Warm threshold must be below hot threshold", nil)
	}
	for _, rule := range rs.Rules {
		if rule.HourFrom < 0 || rule.HourFrom > 23 || rule.HourTo < 0 || rule.HourTo > 23 {
			return apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("Rule '%s' has an hour window outside 0-23", rule.RuleID), nil)
		}
	}

	if err := l.datasource.PublishRuleSet(ctx, rs); err != nil {
		return err
	}
	if err := l.cache.Delete(ctx, activeRuleSetCacheKey); err != nil {
		logrus.Warnf("failed to invalidate rule set cache: %v", err)
	}
	logrus.Infof("published rule set v%d (%d rules)", rs.Version, len(rs.Rules))
	return nil
}

// ScoreInteraction computes a new immutable score snapshot for the
// interaction's customer. The prior score is decayed by elapsed time, rule
// contributions are added, and the total is clamped to [0, 100].
func (l *Leadflow) ScoreInteraction(ctx context.Context, interaction *model.Interaction) (*model.LeadScore, error) {
	ctx, span := tracer.Start(ctx, "ScoreInteraction")
	defer span.End()

	// Empty content is legitimate (a silent or dropped call) and scores as
	// a zero-contribution evaluation, not a validation failure.
	rs, err := l.activeRuleSet(ctx)
	if err != nil {
		return nil, logAndRecordError(span, "failed to load active rule set: ", err)
	}

	prior := 0
	elapsed := time.Duration(0)
	latest, err := l.datasource.GetLatestLeadScore(ctx, interaction.CustomerID)
	if err != nil && !apierror.IsCode(err, apierror.ErrNotFound) {
		return nil, err
	}
	if latest != nil {
		prior = latest.Score
		elapsed = interaction.OccurredAt.Sub(latest.ComputedAt)
	}

	decayed := rs.DecayPrior(prior, elapsed)
	delta, trace := rs.Evaluate(interaction)
	total := model.ClampScore(decayed + delta)

	score := &model.LeadScore{
		CustomerID:     interaction.CustomerID,
		InteractionID:  interaction.InteractionID,
		RuleSetVersion: rs.Version,
		Score:          total,
		Classification: rs.Classify(total),
		Trace:          trace,
		ComputedAt:     interaction.OccurredAt,
	}

	score, err = l.datasource.RecordLeadScore(ctx, score)
	if err != nil {
		return nil, logAndRecordError(span, "failed to record lead score: ", err)
	}
	logrus.WithFields(logrus.Fields{
		"customer_id": score.CustomerID,
		"score":       score.Score,
		"class":       score.Classification,
		"rule_set":    score.RuleSetVersion,
	}).Info("scored interaction")
	return score, nil
}

// GetActiveRuleSet returns the rule set scoring currently runs on.
func (l *Leadflow) GetActiveRuleSet(ctx context.Context) (*model.RuleSet, error) {
	return l.activeRuleSet(ctx)
}

// GetScoreHistory returns the immutable score snapshots for a customer, most
// recent first.
func (l *Leadflow) GetScoreHistory(ctx context.Context, customerID string, limit int) ([]model.LeadScore, error) {
	return l.datasource.GetLeadScores(ctx, customerID, limit)
}

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
	"embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/autoplexhq/leadflow/collaborators"
	"github.com/autoplexhq/leadflow/config"
	"github.com/autoplexhq/leadflow/database"
	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/internal/cache"
	redis_db "github.com/autoplexhq/leadflow/internal/redis-db"
	"github.com/autoplexhq/leadflow/model"
)

var tracer = otel.Tracer("leadflow")

//go:embed sql/*.sql
var SQLFiles embed.FS

// Leadflow represents the main struct for the lead intelligence engine. It
// ties the datasource, the task queue, the collaborator registry and the
// Redis-backed heartbeat store together.
type Leadflow struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	heartbeats database.HeartbeatStore
	registry   *collaborators.Registry
	cache      cache.Cache
	broker     *Broker
}

// NewLeadflow initializes a new instance of Leadflow with the provided
// database datasource. It fetches the configuration and initializes the
// Redis client, the task queue and the collaborator registry.
func NewLeadflow(db database.IDataSource) (*Leadflow, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}

	newLeadflow := &Leadflow{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		heartbeats: database.NewRedisHeartbeats(redisClient.Client()),
		registry:   collaborators.NewRegistry(),
		cache:      newCache,
		broker:     NewBroker(),
	}
	return newLeadflow, nil
}

// Registry exposes the collaborator registry so callers can bind agents
// before workers start.
func (l *Leadflow) Registry() *collaborators.Registry {
	return l.registry
}

// RecordInteraction ingests a customer interaction: it is enriched with
// sentiment, intents and a summary, persisted, and then scored. The returned
// lead state reflects any transition the new score caused.
func (l *Leadflow) RecordInteraction(ctx context.Context, interaction *model.Interaction) (*model.LeadState, error) {
	ctx, span := tracer.Start(ctx, "RecordInteraction")
	defer span.End()

	if err := interaction.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	interaction.Sentiment = model.AnalyzeSentiment(interaction.Content)
	interaction.Intents = model.ExtractIntents(interaction.Content)
	interaction.Summary = model.Summarize(interaction.Content, 200)

	interaction, err := l.datasource.RecordInteraction(ctx, interaction)
	if err != nil {
		return nil, err
	}

	score, err := l.ScoreInteraction(ctx, interaction)
	if err != nil {
		return nil, err
	}

	state, err := l.ApplyScore(ctx, score)
	if err != nil {
		return nil, err
	}

	// Channel-triggered campaigns, e.g. the post-call thank-you after a
	// phone interaction. Terminal leads reject activation; that must not
	// fail the ingestion itself.
	trigger := fmt.Sprintf("channel:%s:%s", interaction.Channel, interaction.InteractionID)
	for _, template := range model.TemplatesForTrigger(model.TriggerForChannel(interaction.Channel)) {
		if _, err := l.ActivateCampaign(ctx, template.TemplateID, interaction.CustomerID, trigger); err != nil {
			if apierror.IsCode(err, apierror.ErrInvalidTransition) {
				continue
			}
			logrus.Errorf("channel-triggered campaign activation failed: %v", err)
		}
	}

	return state, nil
}

// SubmitInteraction validates an interaction and queues it for asynchronous
// ingestion by the workers. The interaction ID is assigned here so the caller
// can poll for the resulting score.
func (l *Leadflow) SubmitInteraction(ctx context.Context, interaction *model.Interaction) (string, error) {
	ctx, span := tracer.Start(ctx, "SubmitInteraction")
	defer span.End()

	if err := interaction.Validate(); err != nil {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	if interaction.InteractionID == "" {
		interaction.InteractionID = model.GenerateUUIDWithSuffix("intr")
	}
	if interaction.OccurredAt.IsZero() {
		interaction.OccurredAt = time.Now()
	}
	if err := l.queue.EnqueueInteraction(ctx, interaction); err != nil {
		return "", err
	}
	return interaction.InteractionID, nil
}

// LeadOverview is the operator-facing snapshot for a single customer.
type LeadOverview struct {
	State        *model.LeadState    `json:"state"`
	LatestScore  *model.LeadScore    `json:"latest_score,omitempty"`
	Interactions []model.Interaction `json:"interactions"`
	Campaigns    []model.Campaign    `json:"campaigns"`
	TaskCounts   map[string]int      `json:"task_counts"`
}

// GetLeadOverview assembles the current state, latest score, recent
// interactions, campaigns and task counts for a customer.
func (l *Leadflow) GetLeadOverview(ctx context.Context, customerID string) (*LeadOverview, error) {
	ctx, span := tracer.Start(ctx, "GetLeadOverview")
	defer span.End()

	state, err := l.datasource.GetLeadState(ctx, customerID)
	if err != nil {
		return nil, err
	}

	overview := &LeadOverview{State: state}

	latest, err := l.datasource.GetLatestLeadScore(ctx, customerID)
	if err != nil && !apierror.IsCode(err, apierror.ErrNotFound) {
		return nil, err
	}
	overview.LatestScore = latest

	interactions, err := l.datasource.GetInteractionsForCustomer(ctx, customerID, 10)
	if err != nil {
		return nil, err
	}
	overview.Interactions = interactions

	campaigns, err := l.datasource.GetCampaignsForCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	overview.Campaigns = campaigns

	counts, err := l.datasource.CountTasksByStatus(ctx, customerID)
	if err != nil {
		return nil, err
	}
	overview.TaskCounts = counts

	return overview, nil
}

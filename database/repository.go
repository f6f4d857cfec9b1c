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
	"time"

	"github.com/autoplexhq/leadflow/model"
)

// IDataSource defines the interface for data source operations, grouping
// related functionalities.
type IDataSource interface {
	interaction
	leadScore
	leadState
	task
	campaign
	ruleSet
}

// interaction defines methods for the immutable interaction log.
type interaction interface {
	RecordInteraction(ctx context.Context, in *model.Interaction) (*model.Interaction, error)
	GetInteraction(ctx context.Context, id string) (*model.Interaction, error)
	GetInteractionsForCustomer(ctx context.Context, customerID string, limit int) ([]model.Interaction, error)
}

// leadScore defines methods for the immutable score history.
type leadScore interface {
	RecordLeadScore(ctx context.Context, score *model.LeadScore) (*model.LeadScore, error)
	GetLatestLeadScore(ctx context.Context, customerID string) (*model.LeadScore, error)
	GetLeadScores(ctx context.Context, customerID string, limit int) ([]model.LeadScore, error)
}

// leadState defines methods for the authoritative lead lifecycle row.
// UpdateLeadState is a compare-and-swap on the version counter.
type leadState interface {
	CreateLeadState(ctx context.Context, state *model.LeadState) (*model.LeadState, error)
	GetLeadState(ctx context.Context, customerID string) (*model.LeadState, error)
	GetOrCreateLeadState(ctx context.Context, customerID string) (*model.LeadState, error)
	UpdateLeadState(ctx context.Context, state *model.LeadState) error
}

// task defines methods for the durable work item queue state.
type task interface {
	RecordTask(ctx context.Context, t *model.Task) (*model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	GetTaskByIdempotencyKey(ctx context.Context, key string) (*model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status string, attempts int, lastError string) error
	MarkTaskDispatched(ctx context.Context, id string) error
	CancelPendingTasksForCampaign(ctx context.Context, campaignID string) ([]string, error)
	CancelPendingTasksForCustomer(ctx context.Context, customerID string) ([]string, error)
	CountTasksByStatus(ctx context.Context, customerID string) (map[string]int, error)
	GetTasksForCampaign(ctx context.Context, campaignID string) ([]model.Task, error)
}

// campaign defines methods for campaign records.
type campaign interface {
	RecordCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error)
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	GetActiveCampaign(ctx context.Context, customerID, templateID string) (*model.Campaign, error)
	GetCampaignsForCustomer(ctx context.Context, customerID string) ([]model.Campaign, error)
	CancelCampaign(ctx context.Context, id string) error
}

// ruleSet defines methods for versioned rule sets. PublishRuleSet is atomic:
// a new version becomes visible in full or not at all.
type ruleSet interface {
	PublishRuleSet(ctx context.Context, rs *model.RuleSet) error
	GetActiveRuleSet(ctx context.Context) (*model.RuleSet, error)
	GetRuleSetByVersion(ctx context.Context, version int) (*model.RuleSet, error)
}

// HeartbeatStore is the small persistence surface the health monitor needs;
// it is backed by Redis rather than Postgres.
type HeartbeatStore interface {
	SetHeartbeat(ctx context.Context, agentID string, at time.Time) error
	GetHeartbeat(ctx context.Context, agentID string) (time.Time, error)
}

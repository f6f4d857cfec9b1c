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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/autoplexhq/leadflow/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Interaction methods

// Record-style methods echo their input when the expectation returns nil, so
// tests do not have to predict the pointer the code under test constructs.

func (m *MockDataSource) RecordInteraction(ctx context.Context, in *model.Interaction) (*model.Interaction, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return in, args.Error(1)
	}
	return args.Get(0).(*model.Interaction), args.Error(1)
}

func (m *MockDataSource) GetInteraction(ctx context.Context, id string) (*model.Interaction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*model.Interaction), args.Error(1)
}

func (m *MockDataSource) GetInteractionsForCustomer(ctx context.Context, customerID string, limit int) ([]model.Interaction, error) {
	args := m.Called(ctx, customerID, limit)
	return args.Get(0).([]model.Interaction), args.Error(1)
}

// Lead score methods

func (m *MockDataSource) RecordLeadScore(ctx context.Context, score *model.LeadScore) (*model.LeadScore, error) {
	args := m.Called(ctx, score)
	if args.Get(0) == nil {
		return score, args.Error(1)
	}
	return args.Get(0).(*model.LeadScore), args.Error(1)
}

func (m *MockDataSource) GetLatestLeadScore(ctx context.Context, customerID string) (*model.LeadScore, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LeadScore), args.Error(1)
}

func (m *MockDataSource) GetLeadScores(ctx context.Context, customerID string, limit int) ([]model.LeadScore, error) {
	args := m.Called(ctx, customerID, limit)
	return args.Get(0).([]model.LeadScore), args.Error(1)
}

// Lead state methods

func (m *MockDataSource) CreateLeadState(ctx context.Context, state *model.LeadState) (*model.LeadState, error) {
	args := m.Called(ctx, state)
	return args.Get(0).(*model.LeadState), args.Error(1)
}

func (m *MockDataSource) GetLeadState(ctx context.Context, customerID string) (*model.LeadState, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LeadState), args.Error(1)
}

func (m *MockDataSource) GetOrCreateLeadState(ctx context.Context, customerID string) (*model.LeadState, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LeadState), args.Error(1)
}

func (m *MockDataSource) UpdateLeadState(ctx context.Context, state *model.LeadState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

// Task methods

func (m *MockDataSource) RecordTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return t, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *MockDataSource) GetTask(ctx context.Context, id string) (*model.Task, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *MockDataSource) GetTaskByIdempotencyKey(ctx context.Context, key string) (*model.Task, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Task), args.Error(1)
}

func (m *MockDataSource) UpdateTaskStatus(ctx context.Context, id string, status string, attempts int, lastError string) error {
	args := m.Called(ctx, id, status, attempts, lastError)
	return args.Error(0)
}

func (m *MockDataSource) MarkTaskDispatched(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) CancelPendingTasksForCampaign(ctx context.Context, campaignID string) ([]string, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) CancelPendingTasksForCustomer(ctx context.Context, customerID string) ([]string, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) CountTasksByStatus(ctx context.Context, customerID string) (map[string]int, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockDataSource) GetTasksForCampaign(ctx context.Context, campaignID string) ([]model.Task, error) {
	args := m.Called(ctx, campaignID)
	return args.Get(0).([]model.Task), args.Error(1)
}

// Campaign methods

func (m *MockDataSource) RecordCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return c, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockDataSource) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockDataSource) GetActiveCampaign(ctx context.Context, customerID, templateID string) (*model.Campaign, error) {
	args := m.Called(ctx, customerID, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockDataSource) GetCampaignsForCustomer(ctx context.Context, customerID string) ([]model.Campaign, error) {
	args := m.Called(ctx, customerID)
	return args.Get(0).([]model.Campaign), args.Error(1)
}

func (m *MockDataSource) CancelCampaign(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Rule set methods

func (m *MockDataSource) PublishRuleSet(ctx context.Context, rs *model.RuleSet) error {
	args := m.Called(ctx, rs)
	return args.Error(0)
}

func (m *MockDataSource) GetActiveRuleSet(ctx context.Context) (*model.RuleSet, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RuleSet), args.Error(1)
}

func (m *MockDataSource) GetRuleSetByVersion(ctx context.Context, version int) (*model.RuleSet, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RuleSet), args.Error(1)
}

// MockHeartbeatStore is a mock implementation of the HeartbeatStore interface
type MockHeartbeatStore struct {
	mock.Mock
}

func (m *MockHeartbeatStore) SetHeartbeat(ctx context.Context, agentID string, at time.Time) error {
	args := m.Called(ctx, agentID, at)
	return args.Error(0)
}

func (m *MockHeartbeatStore) GetHeartbeat(ctx context.Context, agentID string) (time.Time, error) {
	args := m.Called(ctx, agentID)
	return args.Get(0).(time.Time), args.Error(1)
}

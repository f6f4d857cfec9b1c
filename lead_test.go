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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

func TestApplyScorePromotesProspectToWarm(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	now := time.Now()
	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1",
		State:      model.StateProspect,
		Score:      9,
		Version:    2,
	}, nil)
	datasource.On("UpdateLeadState", mock.Anything, mock.Anything).Return(nil)
	// The transition into Warm auto-activates the nurture campaign; an
	// already-active instance makes that a no-op.
	datasource.On("GetActiveCampaign", mock.Anything, "cust_1", model.TemplateWarmNurture).
		Return(&model.Campaign{CampaignID: "cmp_existing", Status: model.CampaignActive}, nil)

	state, err := engine.ApplyScore(context.Background(), &model.LeadScore{
		ScoreID:        "scr_1",
		CustomerID:     "cust_1",
		Score:          44,
		Classification: model.ClassificationWarm,
		ComputedAt:     now,
	})

	assert.NoError(t, err)
	assert.Equal(t, model.StateWarm, state.State)
	assert.Equal(t, 44, state.Score)
	assert.Equal(t, "scr_1", state.LastScoreID)
	assert.Equal(t, now, state.LastTransitionAt)
	datasource.AssertExpectations(t)
}

func TestApplyScoreNeverDemotes(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1",
		State:      model.StateHot,
		Score:      75,
		Version:    4,
	}, nil)
	// A material drop still updates the score, but the state holds.
	datasource.On("UpdateLeadState", mock.Anything, mock.MatchedBy(func(s *model.LeadState) bool {
		return s.State == model.StateHot && s.Score == 20
	})).Return(nil)

	state, err := engine.ApplyScore(context.Background(), &model.LeadScore{
		ScoreID:        "scr_2",
		CustomerID:     "cust_1",
		Score:          20,
		Classification: model.ClassificationCold,
		ComputedAt:     time.Now(),
	})

	assert.NoError(t, err)
	assert.Equal(t, model.StateHot, state.State)
	datasource.AssertExpectations(t)
}

func TestApplyScoreSkipsImmaterialChange(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1",
		State:      model.StateWarm,
		Score:      40,
		Version:    3,
	}, nil)

	state, err := engine.ApplyScore(context.Background(), &model.LeadScore{
		CustomerID:     "cust_1",
		Score:          42,
		Classification: model.ClassificationWarm,
		ComputedAt:     time.Now(),
	})

	assert.NoError(t, err)
	assert.Equal(t, 40, state.Score, "a two point drift is below the material threshold")
	datasource.AssertNotCalled(t, "UpdateLeadState", mock.Anything, mock.Anything)
}

func TestApplyScoreMaterialSameStateChangeRefreshesTimestamp(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	staleTransition := time.Now().Add(-48 * time.Hour)
	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID:       "cust_1",
		State:            model.StateWarm,
		Score:            40,
		LastScoreAt:      staleTransition,
		LastTransitionAt: staleTransition,
		Version:          3,
	}, nil)
	datasource.On("UpdateLeadState", mock.Anything, mock.Anything).Return(nil)

	computedAt := time.Now()
	state, err := engine.ApplyScore(context.Background(), &model.LeadScore{
		ScoreID:        "scr_2",
		CustomerID:     "cust_1",
		Score:          60,
		Classification: model.ClassificationWarm,
		ComputedAt:     computedAt,
	})

	assert.NoError(t, err)
	assert.Equal(t, model.StateWarm, state.State)
	assert.Equal(t, 60, state.Score)
	// Staleness-based re-engagement keys off this timestamp, so a material
	// same-state change must refresh it.
	assert.Equal(t, computedAt, state.LastTransitionAt)
	datasource.AssertExpectations(t)
}

func TestApplyScoreDiscardsStaleScore(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	newerAt := time.Now()
	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID:  "cust_1",
		State:       model.StateHot,
		Score:       75,
		LastScoreID: "scr_newer",
		LastScoreAt: newerAt,
		Version:     4,
	}, nil)

	state, err := engine.ApplyScore(context.Background(), &model.LeadScore{
		ScoreID:        "scr_older",
		CustomerID:     "cust_1",
		Score:          44,
		Classification: model.ClassificationWarm,
		ComputedAt:     newerAt.Add(-time.Hour),
	})

	assert.NoError(t, err)
	assert.Equal(t, model.StateHot, state.State)
	assert.Equal(t, 75, state.Score)
	assert.Equal(t, "scr_newer", state.LastScoreID)
	datasource.AssertNotCalled(t, "UpdateLeadState", mock.Anything, mock.Anything)
}

func TestApplyScoreConflictLoserDiscardsStaleScore(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	// Two scores race on the same row: this one (44, Warm) and a newer one
	// (75, Hot) that wins the first compare-and-swap. The loser re-reads,
	// sees the row already reflects a newer score, and discards its own.
	now := time.Now()
	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1", State: model.StateProspect, Score: 5,
		LastScoreAt: now.Add(-2 * time.Hour), Version: 1,
	}, nil).Once()
	datasource.On("UpdateLeadState", mock.Anything, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrConflict, "Lead state was modified concurrently", nil)).Once()

	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1", State: model.StateHot, Score: 75,
		LastScoreID: "scr_newer", LastScoreAt: now, Version: 2,
	}, nil).Once()

	state, err := engine.ApplyScore(context.Background(), &model.LeadScore{
		ScoreID:        "scr_older",
		CustomerID:     "cust_1",
		Score:          44,
		Classification: model.ClassificationWarm,
		ComputedAt:     now.Add(-time.Hour),
	})

	assert.NoError(t, err)
	assert.Equal(t, model.StateHot, state.State)
	assert.Equal(t, 75, state.Score)
	assert.Equal(t, "scr_newer", state.LastScoreID)
	datasource.AssertNumberOfCalls(t, "UpdateLeadState", 1)
}

func TestApplyScoreLeavesTerminalStateAlone(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1",
		State:      model.StateConverted,
		Score:      80,
		Version:    9,
	}, nil)

	state, err := engine.ApplyScore(context.Background(), &model.LeadScore{
		CustomerID:     "cust_1",
		Score:          95,
		Classification: model.ClassificationHot,
		ComputedAt:     time.Now(),
	})

	assert.NoError(t, err)
	assert.Equal(t, model.StateConverted, state.State)
	datasource.AssertNotCalled(t, "UpdateLeadState", mock.Anything, mock.Anything)
}

func TestApplyScoreRecomputesOnVersionConflict(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	// First attempt loses the compare-and-swap race; the retry re-reads the
	// fresh row and recomputes against it.
	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1", State: model.StateProspect, Score: 5, Version: 1,
	}, nil).Once()
	datasource.On("UpdateLeadState", mock.Anything, mock.Anything).
		Return(apierror.NewAPIError(apierror.ErrConflict, "Lead state was modified concurrently", nil)).Once()

	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1", State: model.StateWarm, Score: 35, Version: 2,
	}, nil).Once()
	datasource.On("UpdateLeadState", mock.Anything, mock.MatchedBy(func(s *model.LeadState) bool {
		return s.Version == 2 && s.State == model.StateHot
	})).Return(nil).Once()
	datasource.On("GetActiveCampaign", mock.Anything, "cust_1", model.TemplateHotLead).
		Return(&model.Campaign{CampaignID: "cmp_existing", Status: model.CampaignActive}, nil)

	state, err := engine.ApplyScore(context.Background(), &model.LeadScore{
		ScoreID:        "scr_3",
		CustomerID:     "cust_1",
		Score:          78,
		Classification: model.ClassificationHot,
		ComputedAt:     time.Now(),
	})

	assert.NoError(t, err)
	assert.Equal(t, model.StateHot, state.State)
	datasource.AssertExpectations(t)
}

func TestRecordSaleCancelsOutstandingWork(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1", State: model.StateWarm, Score: 44, Version: 3,
	}, nil)
	datasource.On("UpdateLeadState", mock.Anything, mock.MatchedBy(func(s *model.LeadState) bool {
		return s.State == model.StateConverted
	})).Return(nil)
	datasource.On("CancelPendingTasksForCustomer", mock.Anything, "cust_1").Return([]string{"task_1", "task_2"}, nil)
	datasource.On("GetCampaignsForCustomer", mock.Anything, "cust_1").Return([]model.Campaign{
		{CampaignID: "cmp_1", Status: model.CampaignActive},
		{CampaignID: "cmp_0", Status: model.CampaignCancelled},
	}, nil)
	datasource.On("CancelCampaign", mock.Anything, "cmp_1").Return(nil)

	state, err := engine.RecordSale(context.Background(), "cust_1")

	assert.NoError(t, err)
	assert.Equal(t, model.StateConverted, state.State)
	datasource.AssertExpectations(t)
	datasource.AssertNotCalled(t, "CancelCampaign", mock.Anything, "cmp_0")
}

func TestRecordSaleIsIdempotent(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1", State: model.StateConverted, Version: 5,
	}, nil)

	state, err := engine.RecordSale(context.Background(), "cust_1")

	assert.NoError(t, err)
	assert.Equal(t, model.StateConverted, state.State)
	datasource.AssertNotCalled(t, "UpdateLeadState", mock.Anything, mock.Anything)
	datasource.AssertNotCalled(t, "CancelPendingTasksForCustomer", mock.Anything, mock.Anything)
}

func TestMarkLostRejectsConvertedLead(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetOrCreateLeadState", mock.Anything, "cust_1").Return(&model.LeadState{
		CustomerID: "cust_1", State: model.StateConverted, Version: 5,
	}, nil)

	_, err := engine.MarkLost(context.Background(), "cust_1")

	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrInvalidTransition))
}

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

	"github.com/autoplexhq/leadflow/internal/apierror"
	redlock "github.com/autoplexhq/leadflow/internal/lock"
	"github.com/autoplexhq/leadflow/model"
)

// ActivateCampaign binds a template to a customer and eagerly materializes
// every step as a durable task. Activation is guarded by a per-customer
// distributed lock; a template that is already active for the customer is a
// no-op returning the existing instance.
func (l *Leadflow) ActivateCampaign(ctx context.Context, templateID, customerID, triggerEvent string) (*model.Campaign, error) {
	ctx, span := tracer.Start(ctx, "ActivateCampaign")
	defer span.End()

	template, ok := model.BuiltinTemplates()[templateID]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Unknown campaign template '%s'", templateID), nil)
	}

	locker := redlock.NewLocker(l.redis, "campaign:"+customerID)
	if err := locker.WaitLock(ctx, 30*time.Second, 10*time.Second); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Could not acquire campaign lock", err)
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release campaign lock: %v", err)
		}
	}()

	existing, err := l.datasource.GetActiveCampaign(ctx, customerID, templateID)
	if err != nil && !apierror.IsCode(err, apierror.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		logrus.WithFields(logrus.Fields{
			"customer_id": customerID,
			"template_id": templateID,
			"campaign_id": existing.CampaignID,
		}).Info("campaign already active, skipping activation")
		return existing, nil
	}

	state, err := l.datasource.GetOrCreateLeadState(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if state.IsTerminal() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("Lead '%s' is %s, campaigns cannot be activated", customerID, state.State), nil)
	}

	campaign, err := l.datasource.RecordCampaign(ctx, &model.Campaign{
		TemplateID:   templateID,
		CustomerID:   customerID,
		TriggerEvent: triggerEvent,
		Status:       model.CampaignActive,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for i, step := range template.Steps {
		task := &model.Task{
			Kind:         step.Kind,
			CustomerID:   customerID,
			CampaignID:   campaign.CampaignID,
			Payload:      stepPayload(step),
			ScheduledFor: now.Add(step.Delay),
		}
		// The step index is part of the dedup key so repeated steps of
		// the same kind inside one campaign stay distinct.
		stepTrigger := fmt.Sprintf("%s:%s:step:%d", campaign.CampaignID, triggerEvent, i)
		task.IdempotencyKey = task.HashTask(stepTrigger)

		if err := l.ScheduleTask(ctx, task, stepTrigger); err != nil {
			return nil, err
		}
	}

	logrus.WithFields(logrus.Fields{
		"customer_id": customerID,
		"template_id": templateID,
		"campaign_id": campaign.CampaignID,
		"steps":       len(template.Steps),
	}).Info("campaign activated")
	return campaign, nil
}

func stepPayload(step model.CampaignStep) map[string]interface{} {
	payload := map[string]interface{}{}
	for k, v := range step.Payload {
		payload[k] = v
	}
	if step.Template != "" {
		payload["template"] = step.Template
	}
	return payload
}

// CancelCampaign cancels an active campaign and every still-pending task it
// owns. Tasks already dispatched, succeeded or failed are left untouched.
// Broker-side deletions are best effort: a scheduled delivery that survives
// is dropped at dispatch time when the worker sees the CANCELLED status.
func (l *Leadflow) CancelCampaign(ctx context.Context, campaignID string) error {
	ctx, span := tracer.Start(ctx, "CancelCampaign")
	defer span.End()

	if err := l.datasource.CancelCampaign(ctx, campaignID); err != nil {
		return err
	}

	cancelled, err := l.datasource.CancelPendingTasksForCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	for _, taskID := range cancelled {
		task, err := l.datasource.GetTask(ctx, taskID)
		if err != nil {
			logrus.Errorf("failed to load cancelled task %s: %v", taskID, err)
			continue
		}
		if err := l.queue.RemoveScheduled(task); err != nil {
			logrus.Warnf("failed to remove scheduled delivery for %s: %v", taskID, err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id":     campaignID,
		"tasks_cancelled": len(cancelled),
	}).Info("campaign cancelled")
	return nil
}

// GetCampaign returns a campaign instance with its materialized tasks.
func (l *Leadflow) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, []model.Task, error) {
	campaign, err := l.datasource.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := l.datasource.GetTasksForCampaign(ctx, campaignID)
	if err != nil {
		return nil, nil, err
	}
	return campaign, tasks, nil
}

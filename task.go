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

	"github.com/autoplexhq/leadflow/collaborators"
	"github.com/autoplexhq/leadflow/config"
	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/internal/notification"
	"github.com/autoplexhq/leadflow/model"
)

const EventTaskFailed = "task.failed"

// ErrRetryLater signals the queue to redeliver the task after a backoff.
type ErrRetryLater struct {
	Reason string
}

func (e *ErrRetryLater) Error() string {
	return e.Reason
}

// ScheduleTask persists a durable task and schedules its delivery. The
// idempotency key makes re-processing of the same triggering event a no-op:
// the existing task is returned and nothing new is enqueued.
func (l *Leadflow) ScheduleTask(ctx context.Context, task *model.Task, triggerEvent string) error {
	ctx, span := tracer.Start(ctx, "ScheduleTask")
	defer span.End()

	if !model.KnownKind(task.Kind) {
		return apierror.NewAPIError(apierror.ErrConfiguration, fmt.Sprintf("Unknown task kind '%s'", task.Kind), nil)
	}
	if task.CustomerID == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "Task has no customer", nil)
	}
	if task.IdempotencyKey == "" {
		task.IdempotencyKey = task.HashTask(triggerEvent)
	}

	existing, err := l.datasource.GetTaskByIdempotencyKey(ctx, task.IdempotencyKey)
	if err != nil && !apierror.IsCode(err, apierror.ErrNotFound) {
		return err
	}
	if existing != nil {
		logrus.WithFields(logrus.Fields{
			"task_id":     existing.TaskID,
			"kind":        existing.Kind,
			"customer_id": existing.CustomerID,
		}).Info("duplicate trigger, task already scheduled")
		*task = *existing
		return nil
	}

	task, err = l.datasource.RecordTask(ctx, task)
	if err != nil {
		return err
	}
	return l.queue.Enqueue(ctx, task)
}

// DispatchTask is the worker-side execution path for one delivered task. It
// re-reads the durable row first: cancelled and already-succeeded tasks are
// dropped, and a task whose backing agent is Down is requeued fresh so the
// wait never consumes an attempt.
func (l *Leadflow) DispatchTask(ctx context.Context, taskID string) error {
	ctx, span := tracer.Start(ctx, "DispatchTask")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	task, err := l.datasource.GetTask(ctx, taskID)
	if err != nil {
		if apierror.IsCode(err, apierror.ErrNotFound) {
			logrus.Warnf("delivered task %s has no durable row, dropping", taskID)
			return nil
		}
		return logAndRecordError(span, "failed to load task for dispatch: ", err)
	}

	switch task.Status {
	case model.StatusCancelled:
		logrus.Infof("task %s was cancelled, dropping delivery", taskID)
		return nil
	case model.StatusSucceeded, model.StatusFailed:
		// Duplicate delivery of a settled task.
		return nil
	}

	paused, err := l.IsKindPaused(ctx, task.Kind)
	if err != nil {
		logrus.Warnf("health check for %s failed, dispatching anyway: %v", task.Kind, err)
	}
	if paused {
		// Waiting out an agent outage must not consume the retry budget:
		// this delivery is acked and a fresh one is scheduled, so the task
		// resumes once the agent heartbeats again.
		delay := time.Duration(cnf.Queue.BaseRetryDelaySec) * time.Second
		logrus.WithFields(logrus.Fields{
			"task_id": task.TaskID,
			"kind":    task.Kind,
			"delay":   delay,
		}).Warn("agent down, pausing task dispatch")
		if err := l.queue.RequeuePaused(ctx, task, delay); err != nil {
			return logAndRecordError(span, "failed to requeue paused task: ", err)
		}
		return nil
	}

	if task.Status == model.StatusPending {
		if err := l.datasource.MarkTaskDispatched(ctx, taskID); err != nil {
			if apierror.IsCode(err, apierror.ErrConflict) {
				// Lost the race to a cancel or a concurrent worker.
				return nil
			}
			return err
		}
		task.Status = model.StatusDispatched
	}

	agent, ok := l.registry.ForKind(task.Kind)
	if !ok {
		return l.settleTask(ctx, task, &collaborators.Result{
			Outcome: collaborators.OutcomePermanent,
			Reason:  fmt.Sprintf("No agent registered for kind '%s'", task.Kind),
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, time.Duration(cnf.Collaborator.CallTimeoutSec)*time.Second)
	defer cancel()

	result, err := collaborators.Execute(callCtx, agent, task)
	if err != nil {
		// Transport errors and timeouts count as transient.
		result = &collaborators.Result{Outcome: collaborators.OutcomeRetryable, Reason: err.Error()}
	}
	return l.settleTask(ctx, task, result)
}

// settleTask records a dispatch outcome. Success and permanent failure are
// terminal; a transient failure goes back to PENDING with its attempt count
// bumped, and the returned error drives the broker's redelivery backoff.
func (l *Leadflow) settleTask(ctx context.Context, task *model.Task, result *collaborators.Result) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	switch result.Outcome {
	case collaborators.OutcomeSucceeded:
		return l.datasource.UpdateTaskStatus(ctx, task.TaskID, model.StatusSucceeded, task.Attempts+1, "")

	case collaborators.OutcomeRetryable:
		attempts := task.Attempts + 1
		if attempts >= cnf.Queue.MaxRetryAttempts {
			return l.failTask(ctx, task, attempts, result.Reason)
		}
		if err := l.datasource.UpdateTaskStatus(ctx, task.TaskID, model.StatusPending, attempts, result.Reason); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"task_id":  task.TaskID,
			"kind":     task.Kind,
			"attempts": attempts,
			"reason":   result.Reason,
		}).Warn("task attempt failed, will retry")
		return &ErrRetryLater{Reason: result.Reason}

	default:
		return l.failTask(ctx, task, task.Attempts+1, result.Reason)
	}
}

func (l *Leadflow) failTask(ctx context.Context, task *model.Task, attempts int, reason string) error {
	if err := l.datasource.UpdateTaskStatus(ctx, task.TaskID, model.StatusFailed, attempts, reason); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"task_id":  task.TaskID,
		"kind":     task.Kind,
		"attempts": attempts,
		"reason":   reason,
	}).Error("task failed terminally")
	l.emitEvent(ctx, EventTaskFailed, map[string]interface{}{
		"task_id":     task.TaskID,
		"kind":        task.Kind,
		"customer_id": task.CustomerID,
		"campaign_id": task.CampaignID,
		"attempts":    attempts,
		"reason":      reason,
	})
	notification.NotifyError(fmt.Errorf("task %s (%s) failed after %d attempts: %s", task.TaskID, task.Kind, attempts, reason))
	return nil
}

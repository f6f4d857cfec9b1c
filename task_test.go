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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/autoplexhq/leadflow/collaborators/adapters"
	"github.com/autoplexhq/leadflow/config"
	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

func TestScheduleTaskPersistsAndEnqueues(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	task := &model.Task{
		Kind:         model.KindSendEmail,
		CustomerID:   "cust_1",
		ScheduledFor: time.Now().Add(30 * time.Minute),
	}

	datasource.On("GetTaskByIdempotencyKey", mock.Anything, mock.Anything).
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "no task", nil))
	datasource.On("RecordTask", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recorded := args.Get(1).(*model.Task)
		recorded.TaskID = "task_1"
		recorded.Status = model.StatusPending
	}).Return(nil, nil)

	err := engine.ScheduleTask(context.Background(), task, "intr_1")

	assert.NoError(t, err)
	assert.Equal(t, "task_1", task.TaskID)
	assert.NotEmpty(t, task.IdempotencyKey)
	datasource.AssertExpectations(t)
}

func TestScheduleTaskDuplicateTriggerIsNoOp(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	existing := &model.Task{
		TaskID:         "task_1",
		Kind:           model.KindSendEmail,
		CustomerID:     "cust_1",
		Status:         model.StatusSucceeded,
		IdempotencyKey: (&model.Task{Kind: model.KindSendEmail, CustomerID: "cust_1"}).HashTask("intr_1"),
	}
	datasource.On("GetTaskByIdempotencyKey", mock.Anything, existing.IdempotencyKey).Return(existing, nil)

	task := &model.Task{Kind: model.KindSendEmail, CustomerID: "cust_1"}
	err := engine.ScheduleTask(context.Background(), task, "intr_1")

	assert.NoError(t, err)
	assert.Equal(t, "task_1", task.TaskID, "the existing task is returned in place")
	assert.Equal(t, model.StatusSucceeded, task.Status)
	datasource.AssertNotCalled(t, "RecordTask", mock.Anything, mock.Anything)
}

func TestScheduleTaskRejectsUnknownKind(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	err := engine.ScheduleTask(context.Background(), &model.Task{
		Kind:       model.TaskKind("teleport_customer"),
		CustomerID: "cust_1",
	}, "intr_1")

	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrConfiguration))
}

func TestDispatchTaskSucceeds(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	agent := adapters.NewMockAgent("communication_agent")
	engine.Registry().Register(model.AgentCommunication, agent)
	assert.NoError(t, engine.ReportHeartbeat(context.Background(), model.AgentCommunication))

	datasource.On("GetTask", mock.Anything, "task_1").Return(&model.Task{
		TaskID:     "task_1",
		Kind:       model.KindSendEmail,
		CustomerID: "cust_1",
		Status:     model.StatusPending,
	}, nil)
	datasource.On("MarkTaskDispatched", mock.Anything, "task_1").Return(nil)
	datasource.On("UpdateTaskStatus", mock.Anything, "task_1", model.StatusSucceeded, 1, "").Return(nil)

	err := engine.DispatchTask(context.Background(), "task_1")

	assert.NoError(t, err)
	assert.Len(t, agent.Received(), 1)
	datasource.AssertExpectations(t)
}

func TestDispatchTaskTransientFailureGoesBackToPending(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	agent := adapters.NewMockAgent("communication_agent")
	agent.FailuresLeft = 1
	engine.Registry().Register(model.AgentCommunication, agent)
	assert.NoError(t, engine.ReportHeartbeat(context.Background(), model.AgentCommunication))

	datasource.On("GetTask", mock.Anything, "task_1").Return(&model.Task{
		TaskID:     "task_1",
		Kind:       model.KindSendEmail,
		CustomerID: "cust_1",
		Status:     model.StatusPending,
	}, nil)
	datasource.On("MarkTaskDispatched", mock.Anything, "task_1").Return(nil)
	datasource.On("UpdateTaskStatus", mock.Anything, "task_1", model.StatusPending, 1, mock.Anything).Return(nil)

	err := engine.DispatchTask(context.Background(), "task_1")

	var retry *ErrRetryLater
	assert.True(t, errors.As(err, &retry), "transient failure must ask the queue to redeliver")
	datasource.AssertExpectations(t)
}

func TestDispatchTaskExhaustedRetriesFailTerminally(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	agent := adapters.NewMockAgent("communication_agent")
	agent.ShouldRetry = true
	engine.Registry().Register(model.AgentCommunication, agent)
	assert.NoError(t, engine.ReportHeartbeat(context.Background(), model.AgentCommunication))

	// One attempt left out of the default five.
	datasource.On("GetTask", mock.Anything, "task_1").Return(&model.Task{
		TaskID:     "task_1",
		Kind:       model.KindSendEmail,
		CustomerID: "cust_1",
		Status:     model.StatusPending,
		Attempts:   4,
	}, nil)
	datasource.On("MarkTaskDispatched", mock.Anything, "task_1").Return(nil)
	datasource.On("UpdateTaskStatus", mock.Anything, "task_1", model.StatusFailed, 5, mock.Anything).Return(nil)

	err := engine.DispatchTask(context.Background(), "task_1")

	assert.NoError(t, err, "a terminally failed task is settled, not redelivered")
	datasource.AssertExpectations(t)
}

func TestDispatchTaskDropsCancelledDelivery(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetTask", mock.Anything, "task_1").Return(&model.Task{
		TaskID: "task_1",
		Kind:   model.KindSendEmail,
		Status: model.StatusCancelled,
	}, nil)

	err := engine.DispatchTask(context.Background(), "task_1")

	assert.NoError(t, err)
	datasource.AssertNotCalled(t, "MarkTaskDispatched", mock.Anything, mock.Anything)
	datasource.AssertNotCalled(t, "UpdateTaskStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatchTaskDropsDuplicateDeliveryOfSettledTask(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetTask", mock.Anything, "task_1").Return(&model.Task{
		TaskID: "task_1",
		Kind:   model.KindSendEmail,
		Status: model.StatusSucceeded,
	}, nil)

	err := engine.DispatchTask(context.Background(), "task_1")

	assert.NoError(t, err)
	datasource.AssertNotCalled(t, "MarkTaskDispatched", mock.Anything, mock.Anything)
}

func TestDispatchTaskPausesWhenAgentIsDown(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	// No heartbeat was ever reported, so the communication agent is Down.
	datasource.On("GetTask", mock.Anything, "task_1").Return(&model.Task{
		TaskID:     "task_1",
		Kind:       model.KindSendEmail,
		CustomerID: "cust_1",
		Status:     model.StatusPending,
	}, nil)

	err := engine.DispatchTask(context.Background(), "task_1")

	// The delivery is acked so no retry budget is spent, and a fresh
	// delivery sits scheduled in the broker for when the agent recovers.
	assert.NoError(t, err)
	datasource.AssertNotCalled(t, "MarkTaskDispatched", mock.Anything, mock.Anything)
	datasource.AssertNotCalled(t, "UpdateTaskStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	cnf, err := config.Fetch()
	assert.NoError(t, err)
	scheduled, err := engine.queue.Inspector.ListScheduledTasks(engine.queue.queueFor(cnf, "cust_1"))
	assert.NoError(t, err)
	assert.Len(t, scheduled, 1)
}

func TestDispatchTaskWithoutRegisteredAgentFailsPermanently(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	assert.NoError(t, engine.ReportHeartbeat(context.Background(), model.AgentCommunication))

	datasource.On("GetTask", mock.Anything, "task_1").Return(&model.Task{
		TaskID:     "task_1",
		Kind:       model.KindSendEmail,
		CustomerID: "cust_1",
		Status:     model.StatusPending,
	}, nil)
	datasource.On("MarkTaskDispatched", mock.Anything, "task_1").Return(nil)
	datasource.On("UpdateTaskStatus", mock.Anything, "task_1", model.StatusFailed, 1, mock.Anything).Return(nil)

	err := engine.DispatchTask(context.Background(), "task_1")

	assert.NoError(t, err)
	datasource.AssertExpectations(t)
}

func TestDispatchTaskDropsDeliveryWithoutDurableRow(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	datasource.On("GetTask", mock.Anything, "task_gone").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "no task", nil))

	err := engine.DispatchTask(context.Background(), "task_gone")

	assert.NoError(t, err)
}

func TestDispatchTaskLostDispatchRaceIsDropped(t *testing.T) {
	engine, datasource, _ := newTestEngine(t)

	assert.NoError(t, engine.ReportHeartbeat(context.Background(), model.AgentCommunication))

	datasource.On("GetTask", mock.Anything, "task_1").Return(&model.Task{
		TaskID:     "task_1",
		Kind:       model.KindSendEmail,
		CustomerID: "cust_1",
		Status:     model.StatusPending,
	}, nil)
	// A concurrent cancel (or worker) got to the row first.
	datasource.On("MarkTaskDispatched", mock.Anything, "task_1").
		Return(apierror.NewAPIError(apierror.ErrConflict, "task is no longer pending", nil))

	err := engine.DispatchTask(context.Background(), "task_1")

	assert.NoError(t, err)
	datasource.AssertNotCalled(t, "UpdateTaskStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

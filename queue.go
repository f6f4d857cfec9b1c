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
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/autoplexhq/leadflow/config"
	redis_db "github.com/autoplexhq/leadflow/internal/redis-db"
	"github.com/autoplexhq/leadflow/model"
)

// Queue wraps the asynq client used to schedule durable task deliveries.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// Enqueue schedules a task for delivery at its ScheduledFor time. The asynq
// task ID is the durable task ID, so a double enqueue of the same task is
// rejected by the broker.
func (q *Queue) Enqueue(ctx context.Context, task *model.Task) error {
	ctx, span := tracer.Start(ctx, "Adding Task To Redis Queue")
	defer span.End()

	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	asynqTask, err := q.buildTask(task, payload)
	if err != nil {
		return err
	}

	info, err := q.Client.EnqueueContext(ctx, asynqTask)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Already scheduled; dedup holds.
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued task: %s (%s)", task.TaskID, task.Kind)
	return nil
}

// EnqueueInteraction queues an interaction for asynchronous ingestion and
// scoring. The interaction ID doubles as the broker task ID, so a caller
// retrying the submit cannot double-score.
func (q *Queue) EnqueueInteraction(ctx context.Context, interaction *model.Interaction) error {
	ctx, span := tracer.Start(ctx, "Adding Interaction To Redis Queue")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(interaction)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(interaction.InteractionID),
		asynq.Queue(cnf.Queue.ScoreQueue),
		asynq.MaxRetry(cnf.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(cnf.Queue.ScoreQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued interaction: %s", interaction.InteractionID)
	return nil
}

// RequeuePaused schedules a fresh delivery for a task whose backing agent is
// down. The delivery in hand gets acked, so waiting out an outage never
// consumes retry budget. The new delivery carries its own broker ID because
// the paused delivery still holds the durable task ID until it completes;
// duplicate deliveries are harmless, the dispatch-time status guard drops
// them.
func (q *Queue) RequeuePaused(ctx context.Context, task *model.Task, delay time.Duration) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	queueName := q.queueFor(cnf, task.CustomerID)
	taskOptions := []asynq.Option{
		asynq.TaskID(fmt.Sprintf("%s:paused:%d", task.TaskID, time.Now().UnixNano())),
		asynq.Queue(queueName),
		asynq.MaxRetry(cnf.Queue.MaxRetryAttempts),
		asynq.ProcessIn(delay),
	}

	_, err = q.Client.EnqueueContext(ctx, asynq.NewTask(queueName, payload, taskOptions...))
	if err != nil {
		return err
	}
	log.Printf(" [*] Requeued paused task: %s (%s)", task.TaskID, task.Kind)
	return nil
}

// RemoveScheduled deletes a not-yet-delivered task from the broker. Used by
// campaign cancellation as a best-effort cleanup: the DB status check at
// dispatch time is the real guard.
func (q *Queue) RemoveScheduled(task *model.Task) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	queueName := q.queueFor(cnf, task.CustomerID)
	err = q.Inspector.DeleteTask(queueName, task.TaskID)
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return err
	}
	return nil
}

// buildTask generates an asynq task routed to a queue shard derived from the
// customer ID. All tasks for one customer land on the same shard, so they
// are delivered serially and never race each other on the lead row.
func (q *Queue) buildTask(task *model.Task, payload []byte) (*asynq.Task, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	queueName := q.queueFor(cnf, task.CustomerID)

	taskOptions := []asynq.Option{
		asynq.TaskID(task.TaskID),
		asynq.Queue(queueName),
		asynq.MaxRetry(cnf.Queue.MaxRetryAttempts),
	}
	if task.ScheduledFor.After(time.Now()) {
		taskOptions = append(taskOptions, asynq.ProcessIn(time.Until(task.ScheduledFor)))
	}

	return asynq.NewTask(queueName, payload, taskOptions...), nil
}

func (q *Queue) queueFor(cnf *config.Configuration, customerID string) string {
	queueIndex := hashCustomerID(customerID) % cnf.Queue.NumberOfQueues
	return fmt.Sprintf("%s_%d", cnf.Queue.TaskQueue, queueIndex+1)
}

func hashCustomerID(customerID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(customerID))
	return int(h.Sum32())
}

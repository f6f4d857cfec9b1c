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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

// RecordTask inserts a durable work item. Tasks are never deleted;
// failed-terminal tasks are retained for audit.
func (d Datasource) RecordTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	if t.TaskID == "" {
		t.TaskID = GenerateUUIDWithSuffix("task")
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.ScheduledFor.IsZero() {
		t.ScheduledFor = t.CreatedAt
	}

	payloadJSON, err := json.Marshal(t.Payload)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal task payload", err)
	}

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO leadflow.tasks (task_id, kind, customer_id, campaign_id, payload, scheduled_for, idempotency_key, status, attempts, last_error, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
	`, t.TaskID, t.Kind, t.CustomerID, t.CampaignID, payloadJSON, t.ScheduledFor, t.IdempotencyKey, t.Status, t.Attempts, t.LastError, t.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record task", err)
	}
	return t, nil
}

func scanTask(row interface{ Scan(...interface{}) error }) (*model.Task, error) {
	t := &model.Task{}
	var payloadJSON []byte
	var campaignID sql.NullString
	var lastError sql.NullString
	err := row.Scan(&t.TaskID, &t.Kind, &t.CustomerID, &campaignID, &payloadJSON, &t.ScheduledFor,
		&t.IdempotencyKey, &t.Status, &t.Attempts, &lastError, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.CampaignID = campaignID.String
	t.LastError = lastError.String
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &t.Payload); err != nil {
			return nil, err
		}
	}
	return t, nil
}

const taskColumns = `task_id, kind, customer_id, campaign_id, payload, scheduled_for, idempotency_key, status, attempts, last_error, created_at`

// GetTask retrieves a task by its ID.
func (d Datasource) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM leadflow.tasks
		WHERE task_id = $1
	`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Task '%s' not found", id), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get task", err)
	}
	return t, nil
}

// GetTaskByIdempotencyKey looks up a task by its deduplication key. Enqueue
// uses this to make re-delivery of the same triggering event a no-op.
func (d Datasource) GetTaskByIdempotencyKey(ctx context.Context, key string) (*model.Task, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM leadflow.tasks
		WHERE idempotency_key = $1
	`, key)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("No task with idempotency key '%s'", key), err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get task by idempotency key", err)
	}
	return t, nil
}

// UpdateTaskStatus records a task outcome together with its attempt count
// and last error. The write is durable before the queue lease is released.
func (d Datasource) UpdateTaskStatus(ctx context.Context, id string, status string, attempts int, lastError string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE leadflow.tasks
		SET status = $2, attempts = $3, last_error = NULLIF($4, '')
		WHERE task_id = $1
	`, id, status, attempts, lastError)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update task status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Task '%s' not found", id), nil)
	}
	return nil
}

// MarkTaskDispatched flips a pending task to DISPATCHED when a worker takes
// its lease. Cancelled tasks stay cancelled: the guard in the WHERE clause
// is what makes campaign cancellation cooperative.
func (d Datasource) MarkTaskDispatched(ctx context.Context, id string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE leadflow.tasks
		SET status = $2
		WHERE task_id = $1 AND status = $3
	`, id, model.StatusDispatched, model.StatusPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark task dispatched", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Task '%s' is not pending", id), nil)
	}
	return nil
}

func (d Datasource) cancelPendingTasks(ctx context.Context, where string, arg string) ([]string, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		UPDATE leadflow.tasks
		SET status = '`+model.StatusCancelled+`'
		WHERE `+where+` = $1 AND status = '`+model.StatusPending+`'
		RETURNING task_id
	`, arg)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to cancel pending tasks", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan cancelled task id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate cancelled tasks", err)
	}
	return ids, nil
}

// CancelPendingTasksForCampaign cancels every still-pending task owned by a
// campaign and returns their IDs. Dispatched, succeeded and failed tasks are
// untouched.
func (d Datasource) CancelPendingTasksForCampaign(ctx context.Context, campaignID string) ([]string, error) {
	return d.cancelPendingTasks(ctx, "campaign_id", campaignID)
}

// CancelPendingTasksForCustomer cancels every still-pending task for a
// customer, used when a lead reaches a terminal state.
func (d Datasource) CancelPendingTasksForCustomer(ctx context.Context, customerID string) ([]string, error) {
	return d.cancelPendingTasks(ctx, "customer_id", customerID)
}

// CountTasksByStatus returns per-status task counts for a customer, feeding
// the observability snapshot.
func (d Datasource) CountTasksByStatus(ctx context.Context, customerID string) (map[string]int, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM leadflow.tasks
		WHERE customer_id = $1
		GROUP BY status
	`, customerID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count tasks", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan task count", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate task counts", err)
	}
	return counts, nil
}

// GetTasksForCampaign lists all tasks a campaign materialized, in schedule
// order.
func (d Datasource) GetTasksForCampaign(ctx context.Context, campaignID string) ([]model.Task, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM leadflow.tasks
		WHERE campaign_id = $1
		ORDER BY scheduled_for ASC, id ASC
	`, campaignID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get campaign tasks", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan task", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to iterate campaign tasks", err)
	}
	return tasks, nil
}

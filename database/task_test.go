package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

func TestRecordTaskAssignsIDAndDefaults(t *testing.T) {
	d, mock := newTestDatasource(t)

	mock.ExpectExec("INSERT INTO leadflow.tasks").
		WillReturnResult(sqlmock.NewResult(1, 1))

	task, err := d.RecordTask(context.Background(), &model.Task{
		Kind:           model.KindSendEmail,
		CustomerID:     "cust_1",
		IdempotencyKey: "abc123",
	})

	assert.NoError(t, err)
	assert.Contains(t, task.TaskID, "task_")
	assert.Equal(t, model.StatusPending, task.Status)
	assert.WithinDuration(t, time.Now(), task.CreatedAt, time.Second)
	assert.Equal(t, task.CreatedAt, task.ScheduledFor)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskByIdempotencyKeyNotFound(t *testing.T) {
	d, mock := newTestDatasource(t)

	mock.ExpectQuery("FROM leadflow.tasks").
		WithArgs("missing_key").
		WillReturnError(sql.ErrNoRows)

	task, err := d.GetTaskByIdempotencyKey(context.Background(), "missing_key")

	assert.Nil(t, task)
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTaskByIdempotencyKeyReturnsExisting(t *testing.T) {
	d, mock := newTestDatasource(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"task_id", "kind", "customer_id", "campaign_id", "payload", "scheduled_for",
		"idempotency_key", "status", "attempts", "last_error", "created_at"}).
		AddRow("task_1", string(model.KindSendEmail), "cust_1", "cmp_1", []byte(`{"template":"nurture_campaign"}`),
			now, "abc123", model.StatusPending, 0, nil, now)
	mock.ExpectQuery("FROM leadflow.tasks").
		WithArgs("abc123").
		WillReturnRows(rows)

	task, err := d.GetTaskByIdempotencyKey(context.Background(), "abc123")

	assert.NoError(t, err)
	assert.Equal(t, "task_1", task.TaskID)
	assert.Equal(t, "cmp_1", task.CampaignID)
	assert.Equal(t, "nurture_campaign", task.Payload["template"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkTaskDispatchedOnlyMovesPending(t *testing.T) {
	d, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE leadflow.tasks").
		WithArgs("task_1", model.StatusDispatched, model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, d.MarkTaskDispatched(context.Background(), "task_1"))

	// A cancelled task no longer matches the guard.
	mock.ExpectExec("UPDATE leadflow.tasks").
		WithArgs("task_2", model.StatusDispatched, model.StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.MarkTaskDispatched(context.Background(), "task_2")
	assert.True(t, apierror.IsCode(err, apierror.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingTasksForCampaignReturnsIDs(t *testing.T) {
	d, mock := newTestDatasource(t)

	rows := sqlmock.NewRows([]string{"task_id"}).AddRow("task_1").AddRow("task_3")
	mock.ExpectQuery("UPDATE leadflow.tasks").
		WithArgs("cmp_1").
		WillReturnRows(rows)

	ids, err := d.CancelPendingTasksForCampaign(context.Background(), "cmp_1")

	assert.NoError(t, err)
	assert.Equal(t, []string{"task_1", "task_3"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTaskStatusNotFound(t *testing.T) {
	d, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE leadflow.tasks").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := d.UpdateTaskStatus(context.Background(), "task_missing", model.StatusSucceeded, 1, "")

	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountTasksByStatus(t *testing.T) {
	d, mock := newTestDatasource(t)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow(model.StatusPending, 2).
		AddRow(model.StatusSucceeded, 5)
	mock.ExpectQuery("SELECT status, COUNT\\(\\*\\)").
		WithArgs("cust_1").
		WillReturnRows(rows)

	counts, err := d.CountTasksByStatus(context.Background(), "cust_1")

	assert.NoError(t, err)
	assert.Equal(t, map[string]int{model.StatusPending: 2, model.StatusSucceeded: 5}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

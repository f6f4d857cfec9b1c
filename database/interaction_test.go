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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/autoplexhq/leadflow/model"
)

func TestRecordInteractionAssignsIDAndTimestamp(t *testing.T) {
	d, mock := newTestDatasource(t)

	mock.ExpectExec("INSERT INTO leadflow.interactions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	interaction, err := d.RecordInteraction(context.Background(), &model.Interaction{
		CustomerID: "cust_1",
		Channel:    model.ChannelEmail,
		Content:    "interested in financing",
	})

	assert.NoError(t, err)
	assert.Contains(t, interaction.InteractionID, "intr_")
	assert.WithinDuration(t, time.Now(), interaction.OccurredAt, time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordInteractionRedeliveryIsIdempotent(t *testing.T) {
	d, mock := newTestDatasource(t)

	interaction := &model.Interaction{
		InteractionID: "intr_1",
		CustomerID:    "cust_1",
		Channel:       model.ChannelPhone,
		Content:       "asked about a test drive",
		OccurredAt:    time.Now(),
	}

	mock.ExpectExec("INSERT INTO leadflow.interactions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	// A redelivered ingestion re-runs the insert; the conflict clause makes
	// it a no-op instead of a unique-constraint error.
	mock.ExpectExec("INSERT INTO leadflow.interactions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := d.RecordInteraction(context.Background(), interaction)
	assert.NoError(t, err)

	_, err = d.RecordInteraction(context.Background(), interaction)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

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
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/autoplexhq/leadflow/internal/apierror"
	"github.com/autoplexhq/leadflow/model"
)

func TestPublishRuleSet(t *testing.T) {
	ds, mock := newTestDatasource(t)

	rs := model.DefaultRuleSet()
	rulesJSON, _ := json.Marshal(rs.Rules)

	mock.ExpectExec("INSERT INTO leadflow.rule_sets").
		WithArgs(1, rulesJSON, 0.9, 30, 70, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := ds.PublishRuleSet(context.Background(), rs)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveRuleSetPicksHighestVersion(t *testing.T) {
	ds, mock := newTestDatasource(t)

	rules := []model.Rule{{RuleID: "warm_financing", Pattern: "financing", Weight: 15, Priority: 5}}
	rulesJSON, _ := json.Marshal(rules)
	rows := sqlmock.NewRows([]string{"version", "rules", "decay_factor", "warm_threshold", "hot_threshold", "published_at"}).
		AddRow(3, rulesJSON, 0.9, 30, 70, time.Now())
	mock.ExpectQuery("FROM leadflow.rule_sets").WillReturnRows(rows)

	rs, err := ds.GetActiveRuleSet(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 3, rs.Version)
	assert.Len(t, rs.Rules, 1)
	assert.Equal(t, "warm_financing", rs.Rules[0].RuleID)
	assert.Equal(t, model.Thresholds{Warm: 30, Hot: 70}, rs.Thresholds)
}

func TestGetActiveRuleSetWithoutPublishIsConfigurationError(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("FROM leadflow.rule_sets").
		WillReturnRows(sqlmock.NewRows([]string{"version", "rules", "decay_factor", "warm_threshold", "hot_threshold", "published_at"}))

	_, err := ds.GetActiveRuleSet(context.Background())

	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrConfiguration))
}

func TestGetRuleSetByVersionNotFound(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("FROM leadflow.rule_sets").
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows([]string{"version", "rules", "decay_factor", "warm_threshold", "hot_threshold", "published_at"}))

	_, err := ds.GetRuleSetByVersion(context.Background(), 9)

	assert.Error(t, err)
	assert.True(t, apierror.IsCode(err, apierror.ErrNotFound))
}

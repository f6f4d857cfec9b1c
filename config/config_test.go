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

package config

import (
	"encoding/json"
	"os"
	"testing"
)

func TestValidateAndAddDefaults(t *testing.T) {
	// Missing data source DNS is fatal
	cnf := Configuration{
		Redis: RedisConfig{Dns: "localhost:6379"},
	}
	err := cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "data source DNS is required" {
		t.Errorf("Expected data source DNS required error, got %v", err)
	}

	// Missing redis DNS is fatal
	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
	}
	err = cnf.validateAndAddDefaults()
	if err == nil || err.Error() != "redis DNS is required" {
		t.Errorf("Expected redis DNS required error, got %v", err)
	}

	// Everything else gets a default
	cnf = Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	}
	err = cnf.validateAndAddDefaults()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if cnf.ProjectName != "Leadflow" {
		t.Errorf("Expected default project name, got %s", cnf.ProjectName)
	}
	if cnf.Queue.NumberOfQueues != 4 {
		t.Errorf("Expected 4 task queues by default, got %d", cnf.Queue.NumberOfQueues)
	}
	if cnf.Queue.MaxRetryAttempts != 5 {
		t.Errorf("Expected 5 retry attempts by default, got %d", cnf.Queue.MaxRetryAttempts)
	}
	if cnf.Queue.BaseRetryDelaySec != 30 || cnf.Queue.MaxRetryDelaySec != 3600 {
		t.Errorf("Unexpected retry delay defaults: %d/%d", cnf.Queue.BaseRetryDelaySec, cnf.Queue.MaxRetryDelaySec)
	}
	if cnf.Scoring.MaterialChangeThreshold != 5 {
		t.Errorf("Expected material change threshold 5, got %d", cnf.Scoring.MaterialChangeThreshold)
	}
	if cnf.Health.DegradedAfterSec != 90 || cnf.Health.DownAfterSec != 270 {
		t.Errorf("Unexpected health threshold defaults: %d/%d", cnf.Health.DegradedAfterSec, cnf.Health.DownAfterSec)
	}
}

func TestDownThresholdTracksDegraded(t *testing.T) {
	cnf := Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Health:     HealthConfig{DegradedAfterSec: 120, DownAfterSec: 60},
	}
	if err := cnf.validateAndAddDefaults(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	// A down cutoff at or below the degraded one can never fire; it is
	// pushed out to three times the degraded threshold.
	if cnf.Health.DownAfterSec != 360 {
		t.Errorf("Expected down threshold 360, got %d", cnf.Health.DownAfterSec)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "leadflow.json")
	if err != nil {
		t.Fatalf("Unable to create temporary file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	sampleConfig := Configuration{
		ProjectName: "Temp Project",
		DataSource:  DataSourceConfig{Dns: "temp-dns"},
		Redis:       RedisConfig{Dns: "temp-redis"},
	}
	if err := json.NewEncoder(tmpFile).Encode(sampleConfig); err != nil {
		t.Fatalf("Unable to write to temporary file: %v", err)
	}
	tmpFile.Close()

	// Environment variables override file values
	os.Setenv("LEADFLOW_PROJECT_NAME", "Env Project")
	defer os.Unsetenv("LEADFLOW_PROJECT_NAME")

	if err := loadConfigFromFile(tmpFile.Name()); err != nil {
		t.Fatalf("loadConfigFromFile failed: %v", err)
	}

	loadedConfig, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if loadedConfig.ProjectName != "Env Project" {
		t.Errorf("Expected ProjectName to be 'Env Project', got '%s'", loadedConfig.ProjectName)
	}
	if loadedConfig.DataSource.Dns != "temp-dns" {
		t.Errorf("Expected DataSource.Dns to be 'temp-dns', got '%s'", loadedConfig.DataSource.Dns)
	}
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	cnf, err := Fetch()
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if cnf.Queue.TaskQueue == "" || cnf.Queue.ScoreQueue == "" || cnf.Queue.WebhookQueue == "" {
		t.Error("Expected queue name defaults to be applied")
	}
}

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
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"LEADFLOW_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"LEADFLOW_REDIS_DNS"`
}

// QueueConfig controls the task dispatch layer. Tasks for the same customer
// always land in the same numbered queue, so NumberOfQueues bounds dispatch
// parallelism across customers, not within one.
type QueueConfig struct {
	TaskQueue         string `json:"task_queue" envconfig:"LEADFLOW_QUEUE_TASK_QUEUE"`
	ScoreQueue        string `json:"score_queue" envconfig:"LEADFLOW_QUEUE_SCORE_QUEUE"`
	WebhookQueue      string `json:"webhook_queue" envconfig:"LEADFLOW_QUEUE_WEBHOOK_QUEUE"`
	NumberOfQueues    int    `json:"number_of_queues" envconfig:"LEADFLOW_QUEUE_NUMBER_OF_QUEUES"`
	MaxRetryAttempts  int    `json:"max_retry_attempts" envconfig:"LEADFLOW_QUEUE_MAX_RETRY_ATTEMPTS"`
	BaseRetryDelaySec int    `json:"base_retry_delay_sec" envconfig:"LEADFLOW_QUEUE_BASE_RETRY_DELAY_SEC"`
	MaxRetryDelaySec  int    `json:"max_retry_delay_sec" envconfig:"LEADFLOW_QUEUE_MAX_RETRY_DELAY_SEC"`
	LeaseDurationSec  int    `json:"lease_duration_sec" envconfig:"LEADFLOW_QUEUE_LEASE_DURATION_SEC"`
	MonitoringPort    string `json:"monitoring_port" envconfig:"LEADFLOW_QUEUE_MONITORING_PORT"`
}

// ScoringConfig tunes the lead state machine around the scoring engine.
type ScoringConfig struct {
	MaterialChangeThreshold int `json:"material_change_threshold" envconfig:"LEADFLOW_SCORING_MATERIAL_CHANGE_THRESHOLD"`
	MaxCASRetries           int `json:"max_cas_retries" envconfig:"LEADFLOW_SCORING_MAX_CAS_RETRIES"`
	RuleSetCacheTTLSec      int `json:"rule_set_cache_ttl_sec" envconfig:"LEADFLOW_SCORING_RULE_SET_CACHE_TTL_SEC"`
}

// HealthConfig sets the heartbeat silence thresholds for collaborator
// agents.
type HealthConfig struct {
	DegradedAfterSec int `json:"degraded_after_sec" envconfig:"LEADFLOW_HEALTH_DEGRADED_AFTER_SEC"`
	DownAfterSec     int `json:"down_after_sec" envconfig:"LEADFLOW_HEALTH_DOWN_AFTER_SEC"`
}

// CollaboratorConfig bounds a single outbound collaborator call.
type CollaboratorConfig struct {
	CallTimeoutSec int `json:"call_timeout_sec" envconfig:"LEADFLOW_COLLABORATOR_CALL_TIMEOUT_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName  string             `json:"project_name" envconfig:"LEADFLOW_PROJECT_NAME"`
	DataSource   DataSourceConfig   `json:"data_source"`
	Redis        RedisConfig        `json:"redis"`
	Queue        QueueConfig        `json:"queue"`
	Scoring      ScoringConfig      `json:"scoring"`
	Health       HealthConfig       `json:"health"`
	Collaborator CollaboratorConfig `json:"collaborator"`
	Notification Notification       `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("leadflow", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called leadflow.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Leadflow"
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Queue.TaskQueue == "" {
		cnf.Queue.TaskQueue = "new:task"
	}
	if cnf.Queue.ScoreQueue == "" {
		cnf.Queue.ScoreQueue = "new:score"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.NumberOfQueues <= 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}
	if cnf.Queue.BaseRetryDelaySec <= 0 {
		cnf.Queue.BaseRetryDelaySec = 30
	}
	if cnf.Queue.MaxRetryDelaySec <= 0 {
		cnf.Queue.MaxRetryDelaySec = 3600
	}
	if cnf.Queue.LeaseDurationSec <= 0 {
		cnf.Queue.LeaseDurationSec = 60
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5002"
	}

	if cnf.Scoring.MaterialChangeThreshold <= 0 {
		cnf.Scoring.MaterialChangeThreshold = 5
	}
	if cnf.Scoring.MaxCASRetries <= 0 {
		cnf.Scoring.MaxCASRetries = 5
	}
	if cnf.Scoring.RuleSetCacheTTLSec <= 0 {
		cnf.Scoring.RuleSetCacheTTLSec = 60
	}

	if cnf.Health.DegradedAfterSec <= 0 {
		cnf.Health.DegradedAfterSec = 90
	}
	if cnf.Health.DownAfterSec <= cnf.Health.DegradedAfterSec {
		cnf.Health.DownAfterSec = cnf.Health.DegradedAfterSec * 3
	}

	if cnf.Collaborator.CallTimeoutSec <= 0 {
		cnf.Collaborator.CallTimeoutSec = 30
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}

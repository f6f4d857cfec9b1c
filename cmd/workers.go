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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/autoplexhq/leadflow"
	"github.com/autoplexhq/leadflow/collaborators/adapters"
	"github.com/autoplexhq/leadflow/config"
	redis_db "github.com/autoplexhq/leadflow/internal/redis-db"
	"github.com/autoplexhq/leadflow/model"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// processTask handles one delivered task from a customer queue shard. The
// delivered payload only names the task; the durable row is the source of
// truth and is re-read inside DispatchTask.
func (b *leadflowInstance) processTask(ctx context.Context, t *asynq.Task) error {
	var task model.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		logrus.Error(err)
		return fmt.Errorf("malformed task payload: %w", asynq.SkipRetry)
	}

	err := b.engine.DispatchTask(ctx, task.TaskID)
	if err != nil {
		var retry *leadflow.ErrRetryLater
		if errors.As(err, &retry) {
			logrus.Infof("Task %s pushed back for retry: %v", task.TaskID, err)
			return err
		}
		logrus.Errorf("Task %s dispatch error: %v", task.TaskID, err)
		return err
	}

	log.Println(" [*] Task Processed", task.TaskID)
	return nil
}

// processInteraction ingests one queued interaction: enrichment, scoring and
// any state transition happen inside RecordInteraction.
func (b *leadflowInstance) processInteraction(ctx context.Context, t *asynq.Task) error {
	var interaction model.Interaction
	if err := json.Unmarshal(t.Payload(), &interaction); err != nil {
		logrus.Error(err)
		return fmt.Errorf("malformed interaction payload: %w", asynq.SkipRetry)
	}

	state, err := b.engine.RecordInteraction(ctx, &interaction)
	if err != nil {
		logrus.Errorf("Interaction %s ingestion error: %v", interaction.InteractionID, err)
		return err
	}

	log.Printf(" [*] Interaction Processed %s (lead %s is %s)", interaction.InteractionID, state.CustomerID, state.State)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.WebhookQueue] = 3
	queues[cfg.Queue.ScoreQueue] = 2

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.TaskQueue, i)
		queues[queueName] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				base := time.Duration(conf.Queue.BaseRetryDelaySec) * time.Second
				max := time.Duration(conf.Queue.MaxRetryDelaySec) * time.Second
				return model.NextRetryDelay(n, base, max)
			},
		},
	), nil
}

func initializeTaskHandlers(b *leadflowInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.TaskQueue, i)
		mux.HandleFunc(queueName, b.processTask)
	}

	mux.HandleFunc(cfg.Queue.ScoreQueue, b.processInteraction)
	mux.HandleFunc(cfg.Queue.WebhookQueue, func(ctx context.Context, t *asynq.Task) error {
		return leadflow.ProcessWebhook(ctx, t.Payload())
	})
}

// registerAgents binds the configured collaborator agents. Without remote
// endpoints in the config the in-process mock agents are used, which keeps
// local development self-contained.
func registerAgents(b *leadflowInstance) {
	registry := b.engine.Registry()
	for _, agentID := range []model.AgentID{
		model.AgentCommunication,
		model.AgentDocument,
		model.AgentVoice,
		model.AgentStaff,
	} {
		registry.Register(agentID, adapters.NewMockAgent(string(agentID)))
	}
}

// workerCommands defines the "workers" command to start worker processes.
// The workers drain the customer task shards and the webhook queue.
func workerCommands(b *leadflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start leadflow workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			registerAgents(b)

			// The bundled in-process agents have nobody else to heartbeat
			// for them.
			if err := b.engine.StartLocalHeartbeats(context.Background()); err != nil {
				log.Fatal("Error starting local agent heartbeats:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring",
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}

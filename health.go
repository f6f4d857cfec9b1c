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

	"github.com/autoplexhq/leadflow/config"
	"github.com/autoplexhq/leadflow/internal/notification"
	"github.com/autoplexhq/leadflow/model"
)

const EventAgentDown = "agent.down"

var knownAgents = []model.AgentID{
	model.AgentCommunication,
	model.AgentDocument,
	model.AgentVoice,
	model.AgentStaff,
}

// ReportHeartbeat records that an agent is alive. Agents are expected to
// call this on a fixed cadence; silence is what degrades them.
func (l *Leadflow) ReportHeartbeat(ctx context.Context, agentID model.AgentID) error {
	if err := l.heartbeats.SetHeartbeat(ctx, string(agentID), time.Now()); err != nil {
		return err
	}
	// A heartbeat from a previously down agent clears the alert marker so
	// the next outage alerts again.
	if err := l.redis.Del(ctx, downMarkerKey(agentID)).Err(); err != nil {
		logrus.Warnf("failed to clear down marker for %s: %v", agentID, err)
	}
	return nil
}

// StartLocalHeartbeats reports heartbeats for every agent registered
// in-process, once immediately and then on a cadence well inside the
// degraded threshold. Remote agents report their own heartbeats; without
// this, a worker fleet running the bundled in-process agents would look
// Down from boot and pause every task kind. The loop stops when ctx is
// cancelled.
func (l *Leadflow) StartLocalHeartbeats(ctx context.Context) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	beat := func() {
		for _, agentID := range l.registry.AgentIDs() {
			if err := l.ReportHeartbeat(ctx, agentID); err != nil {
				logrus.Warnf("local heartbeat for %s failed: %v", agentID, err)
			}
		}
	}
	beat()

	interval := time.Duration(cnf.Health.DegradedAfterSec) * time.Second / 3
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				beat()
			}
		}
	}()
	return nil
}

// GetAgentHealth derives an agent's status from its last heartbeat and the
// configured silence thresholds.
func (l *Leadflow) GetAgentHealth(ctx context.Context, agentID model.AgentID) (*model.AgentHealth, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	lastSeen, err := l.heartbeats.GetHeartbeat(ctx, string(agentID))
	if err != nil {
		return nil, err
	}

	health := &model.AgentHealth{AgentID: agentID, LastSeen: lastSeen}
	silence := time.Since(lastSeen)
	switch {
	case lastSeen.IsZero():
		health.Status = model.AgentDown
		health.Detail = "never reported"
	case silence > time.Duration(cnf.Health.DownAfterSec)*time.Second:
		health.Status = model.AgentDown
		health.Detail = fmt.Sprintf("silent for %s", silence.Truncate(time.Second))
	case silence > time.Duration(cnf.Health.DegradedAfterSec)*time.Second:
		health.Status = model.AgentDegraded
		health.Detail = fmt.Sprintf("silent for %s", silence.Truncate(time.Second))
	default:
		health.Status = model.AgentHealthy
	}

	if health.Status == model.AgentDown {
		l.alertAgentDown(ctx, health)
	}
	return health, nil
}

// AllAgentHealth returns the operator-facing snapshot for every known agent.
func (l *Leadflow) AllAgentHealth(ctx context.Context) ([]model.AgentHealth, error) {
	snapshot := make([]model.AgentHealth, 0, len(knownAgents))
	for _, agentID := range knownAgents {
		health, err := l.GetAgentHealth(ctx, agentID)
		if err != nil {
			return nil, err
		}
		snapshot = append(snapshot, *health)
	}
	return snapshot, nil
}

// IsKindPaused reports whether dispatch of a task kind should pause because
// its backing agent is Down. Degraded agents keep receiving work.
func (l *Leadflow) IsKindPaused(ctx context.Context, kind model.TaskKind) (bool, error) {
	health, err := l.GetAgentHealth(ctx, model.AgentForKind(kind))
	if err != nil {
		return false, err
	}
	return health.Status == model.AgentDown, nil
}

func downMarkerKey(agentID model.AgentID) string {
	return "leadflow:agent:down:" + string(agentID)
}

// alertAgentDown raises the outage alert exactly once per outage: a Redis
// marker keyed by agent suppresses repeats until a heartbeat clears it.
func (l *Leadflow) alertAgentDown(ctx context.Context, health *model.AgentHealth) {
	set, err := l.redis.SetNX(ctx, downMarkerKey(health.AgentID), time.Now().Format(time.RFC3339), 24*time.Hour).Result()
	if err != nil {
		logrus.Warnf("failed to set down marker for %s: %v", health.AgentID, err)
		return
	}
	if !set {
		return
	}

	logrus.WithFields(logrus.Fields{
		"agent_id":  health.AgentID,
		"last_seen": health.LastSeen,
		"detail":    health.Detail,
	}).Error("agent down, pausing dispatch of its kinds")
	l.emitEvent(ctx, EventAgentDown, map[string]interface{}{
		"agent_id":  health.AgentID,
		"last_seen": health.LastSeen,
		"detail":    health.Detail,
	})
	notification.NotifyError(fmt.Errorf("agent %s is down: %s", health.AgentID, health.Detail))
}

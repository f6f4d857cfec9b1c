package adapters

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/autoplexhq/leadflow/collaborators"
	"github.com/autoplexhq/leadflow/internal/request"
	"github.com/autoplexhq/leadflow/model"
)

// HTTPAgentConfig describes where a remote agent listens for each task kind.
type HTTPAgentConfig struct {
	Name      string            `json:"name"`
	BaseURL   string            `json:"base_url"`
	APIKey    string            `json:"api_key"`
	Endpoints map[string]string `json:"endpoints"`
}

// HTTPAgent dispatches tasks to a remote agent service over HTTP. The
// response status decides the outcome: 2xx succeeds, 4xx is permanent,
// everything else is retryable.
type HTTPAgent struct {
	config HTTPAgentConfig
}

func NewHTTPAgent(config HTTPAgentConfig) *HTTPAgent {
	return &HTTPAgent{config: config}
}

func (a *HTTPAgent) Name() string {
	return a.config.Name
}

type agentResponse struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

func (a *HTTPAgent) post(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	endpoint, ok := a.config.Endpoints[string(task.Kind)]
	if !ok {
		return &collaborators.Result{
			Outcome:   collaborators.OutcomePermanent,
			Reason:    fmt.Sprintf("Agent '%s' has no endpoint for kind '%s'", a.config.Name, task.Kind),
			Timestamp: time.Now(),
		}, nil
	}

	payload, err := request.ToJsonReq(map[string]interface{}{
		"task_id":     task.TaskID,
		"kind":        task.Kind,
		"customer_id": task.CustomerID,
		"campaign_id": task.CampaignID,
		"payload":     task.Payload,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+endpoint, payload)
	if err != nil {
		return nil, err
	}
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	var body agentResponse
	resp, err := request.Call(req, &body)
	if err != nil {
		// Network failures and timeouts are transient from our side.
		return &collaborators.Result{
			Outcome:   collaborators.OutcomeRetryable,
			Reason:    err.Error(),
			Timestamp: time.Now(),
		}, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	result := &collaborators.Result{
		AgentRef:  body.Ref,
		Reason:    body.Reason,
		Timestamp: time.Now(),
	}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Outcome = collaborators.OutcomeSucceeded
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		result.Outcome = collaborators.OutcomePermanent
		if result.Reason == "" {
			result.Reason = fmt.Sprintf("Agent '%s' rejected task: %s", a.config.Name, resp.Status)
		}
	default:
		result.Outcome = collaborators.OutcomeRetryable
		if result.Reason == "" {
			result.Reason = fmt.Sprintf("Agent '%s' returned %s", a.config.Name, resp.Status)
		}
	}
	return result, nil
}

func (a *HTTPAgent) SendEmail(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	return a.post(ctx, task)
}

func (a *HTTPAgent) GenerateDocument(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	return a.post(ctx, task)
}

func (a *HTTPAgent) CreateStaffTask(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	return a.post(ctx, task)
}

func (a *HTTPAgent) ScheduleFollowup(ctx context.Context, task *model.Task) (*collaborators.Result, error) {
	return a.post(ctx, task)
}

package leadflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/autoplexhq/leadflow/config"
	"github.com/autoplexhq/leadflow/internal/request"
)

// WebhookEvent is the envelope delivered to the configured webhook endpoint.
type WebhookEvent struct {
	Event     string                 `json:"event"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp time.Time              `json:"timestamp"`
}

// emitEvent publishes an engine event to in-process subscribers and queues a
// webhook delivery when an endpoint is configured. Emission is fire and
// forget: webhook trouble never fails the operation that raised the event.
func (l *Leadflow) emitEvent(ctx context.Context, event string, payload map[string]interface{}) {
	envelope := WebhookEvent{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	l.broker.Publish(envelope)

	cnf, err := config.Fetch()
	if err != nil {
		logrus.Errorf("failed to fetch config for webhook: %v", err)
		return
	}
	if cnf.Notification.Webhook.Url == "" {
		return
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		logrus.Errorf("failed to marshal webhook event %s: %v", event, err)
		return
	}

	task := asynq.NewTask(cnf.Queue.WebhookQueue, data,
		asynq.Queue(cnf.Queue.WebhookQueue),
		asynq.MaxRetry(cnf.Queue.MaxRetryAttempts))
	info, err := l.queue.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return
	}
	log.Printf(" [*] Successfully enqueued webhook event: %s", event)
}

// ProcessWebhook delivers one queued webhook event to the configured
// endpoint. A non-2xx response is an error so the queue redelivers it.
func ProcessWebhook(ctx context.Context, payload []byte) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}
	if cnf.Notification.Webhook.Url == "" {
		return nil
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return err
	}

	body, err := request.ToJsonReq(event)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cnf.Notification.Webhook.Url, body)
	if err != nil {
		return err
	}
	for k, v := range cnf.Notification.Webhook.Headers {
		req.Header.Set(k, v)
	}

	var response map[string]interface{}
	resp, err := request.Call(req, &response)
	if resp == nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if err != nil && !errors.Is(err, io.EOF) {
		// An empty response body is fine; anything else is a delivery failure.
		return err
	}
	if resp.StatusCode >= 300 {
		return &ErrRetryLater{Reason: "webhook endpoint returned " + resp.Status}
	}
	logrus.Infof("delivered webhook event %s", event.Event)
	return nil
}

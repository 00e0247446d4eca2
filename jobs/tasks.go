package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/xuanji-ai/xuanji-web/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBackendTrigger posts a stored body to a prediction API endpoint.
	TaskBackendTrigger = "backend:trigger"
)

// TriggerPayload describes one deferred backend call.
type TriggerPayload struct {
	Endpoint string          `json:"endpoint"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// NewTriggerTask constructs an Asynq task.
func NewTriggerTask(payload TriggerPayload) (*asynq.Task, error) {
	if payload.Endpoint == "" {
		return nil, errors.New("jobs: trigger endpoint required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBackendTrigger, data), nil
}

// Poster is the slice of the backend client the trigger job needs.
type Poster interface {
	Post(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error)
}

// TriggerJob runs TaskBackendTrigger tasks.
type TriggerJob struct {
	Backend Poster
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTriggerJob initialises the trigger handler.
func NewTriggerJob(backend Poster, logger *slog.Logger, metrics *jobmetrics.Metrics) *TriggerJob {
	return &TriggerJob{Backend: backend, Logger: logger, Metrics: metrics}
}

// Handle posts the payload body. Malformed payloads are not retried.
func (j *TriggerJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Backend == nil {
		return errors.New("backend trigger: handler not configured")
	}
	var payload TriggerPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.Endpoint == "" {
		return j.Metrics.Track(t.Type(), "").End(fmt.Errorf("backend trigger: decode payload: %w", asynq.SkipRetry))
	}

	tracker := j.Metrics.Track(t.Type(), payload.Endpoint)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("endpoint", payload.Endpoint))
	var body []byte
	if len(payload.Body) > 0 {
		body = payload.Body
	}
	result, err := j.Backend.Post(ctx, payload.Endpoint, body)
	if err != nil {
		logger.Error("backend trigger failed", slog.Any("error", err))
		return err
	}
	logger.Info("backend trigger completed", slog.Int("response_bytes", len(result)))
	return nil
}

func (j *TriggerJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

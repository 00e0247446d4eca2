package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/xuanji-ai/xuanji-web/internal/panel"
	"github.com/xuanji-ai/xuanji-web/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	catalog   *panel.Catalog
}

// NewJobsCLI initialises the CLI helpers using the provided Redis connection.
func NewJobsCLI(redisOpt asynq.RedisConnOpt, catalog *panel.Catalog) (*JobsCLI, error) {
	if catalog == nil {
		return nil, errors.New("jobs cli: catalog required")
	}
	client := asynq.NewClient(redisOpt)
	inspector := asynq.NewInspector(redisOpt)
	return &JobsCLI{client: client, inspector: inspector, catalog: catalog}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerTask builds the task for a queued panel. Only panels without
// fields can be triggered by name.
func TriggerTask(catalog *panel.Catalog, panelID string) (*asynq.Task, error) {
	def, ok := catalog.Lookup(panelID)
	if !ok {
		return nil, fmt.Errorf("jobs cli: unknown panel %s", panelID)
	}
	if !def.Queued || len(def.Fields) > 0 {
		return nil, fmt.Errorf("jobs cli: panel %s cannot be triggered", panelID)
	}
	return jobs.NewTriggerTask(jobs.TriggerPayload{Endpoint: def.Endpoint})
}

// Trigger enqueues the backend call of a queued panel.
func (c *JobsCLI) Trigger(ctx context.Context, panelID string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := TriggerTask(c.catalog, panelID)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(0))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if errors.Is(err, asynq.ErrQueueNotFound) {
		return stats, nil
	}
	if err != nil {
		return QueueStats{}, err
	}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Client enqueues backend triggers on behalf of the web process.
type Client struct {
	client *asynq.Client
}

// NewClient constructs a Client.
func NewClient(redis asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(redis)}
}

// EnqueueTrigger queues a single backend call and returns the task id.
// Triggers are not retried: the backend treats each call as a new run.
func (c *Client) EnqueueTrigger(ctx context.Context, endpoint string, body []byte) (string, error) {
	task, err := NewTriggerTask(TriggerPayload{Endpoint: endpoint, Body: body})
	if err != nil {
		return "", err
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(0))
	if err != nil {
		return "", fmt.Errorf("jobs: enqueue %s: %w", endpoint, err)
	}
	return info.ID, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.client.Close()
}

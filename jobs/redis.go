package jobs

import (
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

// RedisConnOpt accepts either host:port or a redis:// URL, matching what
// the web process accepts for its own client.
func RedisConnOpt(addr string) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := asynq.ParseRedisURI(addr)
		if err != nil {
			return nil, fmt.Errorf("jobs: parse redis uri: %w", err)
		}
		return opt, nil
	}
	if addr == "" {
		return nil, fmt.Errorf("jobs: redis address required")
	}
	return asynq.RedisClientOpt{Addr: addr}, nil
}

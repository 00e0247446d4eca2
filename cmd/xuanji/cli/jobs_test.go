package cli

import (
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/xuanji-ai/xuanji-web/internal/panel"
	"github.com/xuanji-ai/xuanji-web/jobs"
)

func TestTriggerTaskForOptimize(t *testing.T) {
	task, err := TriggerTask(panel.DefaultCatalog(), panel.IDOptimize)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskBackendTrigger, task.Type())
	require.JSONEq(t, `{"endpoint":"/api/optimize_models"}`, string(task.Payload()))
}

func TestTriggerTaskRejectsFormPanels(t *testing.T) {
	_, err := TriggerTask(panel.DefaultCatalog(), panel.IDLottery)
	require.ErrorContains(t, err, "cannot be triggered")

	_, err = TriggerTask(panel.DefaultCatalog(), "missing")
	require.ErrorContains(t, err, "unknown panel")
}

func TestNewJobsCLIRequiresCatalog(t *testing.T) {
	_, err := NewJobsCLI(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, nil)
	require.Error(t, err)
}

package autorun

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/wwwzy/GraphPilot/internal/agent"
	"github.com/wwwzy/GraphPilot/internal/storage"
)

const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// TestRunStore 是 Job 落库所需的最小接口
type TestRunStore interface {
	InsertTestRun(ctx context.Context, run *storage.TestRun) error
	FinishTestRun(ctx context.Context, id uint64, r storage.TestRunResult) error
}

// NewTestRunJob 以空输入调用 Agent (触发自动指令)，并把每次运行记录为一条 TestRun。
// store 为 nil 时只运行不落库。
func NewTestRunJob(runnable compose.Runnable[agent.AgentState, agent.AgentState], store TestRunStore, trigger string, timeout time.Duration) Job {
	return func(ctx context.Context) error {
		if runnable == nil {
			return errors.New("runnable is required")
		}
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		ctx, traceID := agent.NewTrace(ctx)

		run := storage.TestRun{
			TraceID:     traceID,
			TriggeredBy: trigger,
			Status:      storage.StatusRunning,
			StartedAt:   time.Now().UTC(),
		}
		if store != nil {
			if err := store.InsertTestRun(ctx, &run); err != nil {
				return err
			}
		}

		slog.Info("auto test run started", "trace_id", traceID, "trigger", trigger)
		out, runErr := runnable.Invoke(ctx, agent.AgentState{})

		res := storage.TestRunResult{
			Status:         storage.StatusSuccess,
			Summary:        agent.LastAssistantContent(out.Messages),
			TestOutput:     out.LastTestOutput,
			LLMCalls:       out.LLMCalls,
			EnvInitialized: out.EnvInitialized,
			FinishedAt:     time.Now().UTC(),
		}
		if runErr != nil {
			res.Status = storage.StatusFailed
			res.ErrorMessage = runErr.Error()
		}

		if store != nil {
			// ctx 可能已超时，结果仍需写入
			if err := store.FinishTestRun(context.WithoutCancel(ctx), run.ID, res); err != nil {
				return errors.Join(runErr, err)
			}
		}

		slog.Info("auto test run finished",
			"trace_id", traceID,
			"status", res.Status,
			"llm_calls", res.LLMCalls,
			"duration", res.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
		)
		return runErr
	}
}

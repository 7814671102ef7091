package autorun

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wwwzy/GraphPilot/internal/agent"
	"github.com/wwwzy/GraphPilot/internal/agent/agenttest"
	"github.com/wwwzy/GraphPilot/internal/calculator"
	"github.com/wwwzy/GraphPilot/internal/storage"
)

func openTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "autorun-test.db")
	store, err := storage.Open(context.Background(), storage.Config{Path: dbPath, EnableWAL: true})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestScheduler_Next(t *testing.T) {
	s, err := NewScheduler("0 3 * * *", func(context.Context) error { return nil })
	require.NoError(t, err)

	after := time.Date(2026, 1, 1, 2, 0, 0, 0, time.UTC)
	next, err := s.Next(after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC), next)

	next, err = s.Next(next)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), next)
}

func TestScheduler_InvalidExpr(t *testing.T) {
	_, err := NewScheduler("every day", func(context.Context) error { return nil })
	assert.Error(t, err)

	_, err = NewScheduler("0 3 * * *", nil)
	assert.Error(t, err)
}

func TestScheduler_RunOnceNoOverlap(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s, err := NewScheduler("* * * * *", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.RunOnce(context.Background()) }()
	<-started

	assert.ErrorIs(t, s.RunOnce(context.Background()), ErrRunInProgress)

	close(release)
	require.NoError(t, <-done)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s, err := NewScheduler("0 3 * * *", func(context.Context) error {
		t.Error("job should not run")
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}

func calculatorDefinition() agent.Definition {
	def := calculator.Definition()
	def.AutoTrigger = func() []*schema.Message {
		return []*schema.Message{schema.UserMessage("what is 3 + 4?")}
	}
	return def
}

func TestTestRunJob_RecordsRun(t *testing.T) {
	store := openTestStorage(t)
	cm := agenttest.NewScriptedModel(
		agenttest.CallTools(agenttest.ToolCall("c1", "add", `{"a":3,"b":4}`)),
		agenttest.Reply("3 + 4 = 7"),
	)
	ctx := context.Background()
	runnable, err := agent.BuildGraph(ctx, cm, calculatorDefinition(), agent.Options{})
	require.NoError(t, err)

	job := NewTestRunJob(runnable, store, TriggerManual, time.Minute)
	require.NoError(t, job(ctx))

	runs, err := store.QueryTestRuns(ctx, storage.TestRunQuery{TriggeredBy: TriggerManual})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, storage.StatusSuccess, run.Status)
	assert.Equal(t, "3 + 4 = 7", run.Summary)
	assert.Equal(t, 2, run.LLMCalls)
	assert.NotEmpty(t, run.TraceID)
	assert.False(t, run.FinishedAt.IsZero())
}

func TestTestRunJob_RecordsFailure(t *testing.T) {
	store := openTestStorage(t)
	cm := agenttest.NewScriptedModel(agenttest.Fail(errors.New("quota exceeded")))
	ctx := context.Background()
	runnable, err := agent.BuildGraph(ctx, cm, calculatorDefinition(), agent.Options{})
	require.NoError(t, err)

	job := NewTestRunJob(runnable, store, TriggerCron, 0)
	err = job(ctx)
	require.Error(t, err)

	runs, err := store.QueryTestRuns(ctx, storage.TestRunQuery{TriggeredBy: TriggerCron})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].ErrorMessage, "quota exceeded")
}

// blockingRunnable 一直阻塞到 ctx 结束，模拟长时间运行的测试
type blockingRunnable struct {
	started chan struct{}
}

func (r *blockingRunnable) Invoke(ctx context.Context, _ agent.AgentState, _ ...compose.Option) (agent.AgentState, error) {
	close(r.started)
	<-ctx.Done()
	return agent.AgentState{LLMCalls: 1}, ctx.Err()
}

func (r *blockingRunnable) Stream(context.Context, agent.AgentState, ...compose.Option) (*schema.StreamReader[agent.AgentState], error) {
	return nil, errors.New("not supported")
}

func (r *blockingRunnable) Collect(context.Context, *schema.StreamReader[agent.AgentState], ...compose.Option) (agent.AgentState, error) {
	return agent.AgentState{}, errors.New("not supported")
}

func (r *blockingRunnable) Transform(context.Context, *schema.StreamReader[agent.AgentState], ...compose.Option) (*schema.StreamReader[agent.AgentState], error) {
	return nil, errors.New("not supported")
}

func TestTestRunJob_CancelStopsRun(t *testing.T) {
	store := openTestStorage(t)
	r := &blockingRunnable{started: make(chan struct{})}
	job := NewTestRunJob(r, store, TriggerManual, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job(ctx) }()

	<-r.started
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("job did not return after cancel")
	}

	// 取消后运行记录仍然写完
	runs, err := store.QueryTestRuns(context.Background(), storage.TestRunQuery{TriggeredBy: TriggerManual})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.StatusFailed, runs[0].Status)
	assert.False(t, runs[0].FinishedAt.IsZero())
}

func TestRetention_RunOnce(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		rec := storage.AuditRecord{
			Action:    "calculator.add",
			Status:    storage.StatusSuccess,
			CreatedAt: now.Add(-time.Duration(i*10) * 24 * time.Hour),
		}
		require.NoError(t, store.InsertAuditRecord(ctx, &rec))
	}
	old := storage.TestRun{TriggeredBy: TriggerCron, Status: storage.StatusSuccess, StartedAt: now.Add(-100 * 24 * time.Hour)}
	fresh := storage.TestRun{TriggeredBy: TriggerCron, Status: storage.StatusSuccess, StartedAt: now}
	require.NoError(t, store.InsertTestRun(ctx, &old))
	require.NoError(t, store.InsertTestRun(ctx, &fresh))

	// 0/10/20 天前的保留，30/40 天前的删除；再只保留最新 2 条
	c, err := NewRetentionCollector(store, RetentionConfig{
		Workers:      1,
		BatchRows:    1,
		AuditKeep:    25 * 24 * time.Hour,
		AuditMaxRows: 2,
		TestRunKeep:  90 * 24 * time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, c.RunOnce(ctx, now))

	n, err := store.CountAuditRecords(ctx, storage.AuditQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	runs, err := store.QueryTestRuns(ctx, storage.TestRunQuery{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, fresh.ID, runs[0].ID)
}

func TestManager_Lifecycle(t *testing.T) {
	store := openTestStorage(t)

	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.Retention.Interval = time.Hour

	rc, err := NewRetentionCollector(store, cfg.Retention)
	require.NoError(t, err)
	m := NewManager(cfg).WithRetention(rc)

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))

	m.Stop()
	assert.NoError(t, m.Wait())
}

func TestManager_RequiresScheduler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retention.Enabled = false

	err := NewManager(cfg).Start(context.Background())
	assert.Error(t, err)
}

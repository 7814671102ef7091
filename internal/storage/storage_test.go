package storage

import (
	"context"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "graphpilot.db")
	s, err := Open(ctx, Config{
		Path:      dbPath,
		EnableWAL: true,
	})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestDSNFromConfig(t *testing.T) {
	dsn, err := dsnFromConfig(Config{Path: "/tmp/g.db", EnableWAL: true, BusyTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	path, rawQuery, _ := strings.Cut(dsn, "?")
	if path != "file:/tmp/g.db" {
		t.Fatalf("unexpected path part: %s", path)
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	want := []string{"busy_timeout(2000)", "foreign_keys(1)", "journal_mode(WAL)"}
	got := q["_pragma"]
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected pragmas: %v", got)
	}

	mem, err := dsnFromConfig(Config{InMemory: true})
	if err != nil {
		t.Fatalf("memory dsn: %v", err)
	}
	if !strings.Contains(mem, "mode=memory") || strings.Contains(mem, "journal_mode") {
		t.Fatalf("unexpected memory dsn: %s", mem)
	}
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(context.Background(), Config{InMemory: true})
	if err != nil {
		t.Fatalf("open in-memory storage: %v", err)
	}
	defer s.Close()
	if s.Path() != ":memory:" {
		t.Fatalf("unexpected path: %s", s.Path())
	}
}

func TestAuditInsertQueryUpdate(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	rec := AuditRecord{
		TraceID:   "trace-1",
		Action:    "calculator.add",
		Status:    StatusRunning,
		StartedAt: time.Now().Add(-1 * time.Second).UTC(),
	}
	if err := s.InsertAuditRecord(ctx, &rec); err != nil {
		t.Fatalf("insert audit: %v", err)
	}
	if rec.ID == 0 {
		t.Fatalf("expected audit id to be set")
	}

	got, err := s.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1", Limit: 10})
	if err != nil {
		t.Fatalf("query audit: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(got))
	}
	if got[0].Status != StatusRunning {
		t.Fatalf("unexpected status: %s", got[0].Status)
	}

	status := StatusSuccess
	result := "7"
	finished := time.Now().UTC()
	if err := s.UpdateAuditRecord(ctx, rec.ID, AuditUpdate{
		Status:     &status,
		ResultJSON: &result,
		FinishedAt: &finished,
	}); err != nil {
		t.Fatalf("update audit: %v", err)
	}

	got2, err := s.QueryAuditRecords(ctx, AuditQuery{TraceID: "trace-1", Limit: 10})
	if err != nil {
		t.Fatalf("query audit after update: %v", err)
	}
	if len(got2) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(got2))
	}
	if got2[0].Status != StatusSuccess || got2[0].ResultJSON != result {
		t.Fatalf("unexpected updated record: status=%s result=%s", got2[0].Status, got2[0].ResultJSON)
	}

	if err := s.UpdateAuditRecord(ctx, 9999, AuditUpdate{Status: &status}); err == nil {
		t.Fatalf("expected not found error for missing id")
	}
}

func TestAuditCountAndPrune(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 6; i++ {
		rec := AuditRecord{
			TraceID:   "trace-prune",
			Action:    "testrunner.run_test_suite",
			Status:    StatusSuccess,
			CreatedAt: now.Add(-time.Duration(6-i) * 24 * time.Hour),
		}
		if err := s.InsertAuditRecord(ctx, &rec); err != nil {
			t.Fatalf("insert audit %d: %v", i, err)
		}
	}

	n, err := s.CountAuditRecords(ctx, AuditQuery{})
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if n != 6 {
		t.Fatalf("expected 6 records, got %d", n)
	}

	// 早于 3.5 天前的有 3 条 (6/5/4 天前)，每批删 2 条
	var deleted int64
	for {
		aff, err := s.DeleteAuditRecordsBeforeLimited(ctx, now.Add(-84*time.Hour), 2)
		if err != nil {
			t.Fatalf("delete old audit: %v", err)
		}
		if aff == 0 {
			break
		}
		deleted += aff
	}
	if deleted != 3 {
		t.Fatalf("expected delete 3 audit records, got %d", deleted)
	}

	aff, err := s.DeleteAuditRecordsKeepLatest(ctx, 1, 0)
	if err != nil {
		t.Fatalf("keep latest: %v", err)
	}
	if aff != 2 {
		t.Fatalf("expected keep-latest to delete 2, got %d", aff)
	}

	remain, err := s.QueryAuditRecords(ctx, AuditQuery{Limit: 10})
	if err != nil {
		t.Fatalf("query remaining: %v", err)
	}
	if len(remain) != 1 {
		t.Fatalf("expected 1 remaining record, got %d", len(remain))
	}
	if !remain[0].CreatedAt.After(now.Add(-25 * time.Hour)) {
		t.Fatalf("expected newest record to remain, got created_at=%v", remain[0].CreatedAt)
	}
}

func TestTestRunLifecycle(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	run := TestRun{TraceID: "trace-run", TriggeredBy: "cron"}
	if err := s.InsertTestRun(ctx, &run); err != nil {
		t.Fatalf("insert run: %v", err)
	}
	if run.ID == 0 || run.Status != StatusRunning {
		t.Fatalf("unexpected inserted run: id=%d status=%s", run.ID, run.Status)
	}

	if err := s.FinishTestRun(ctx, run.ID, TestRunResult{
		Status:         StatusSuccess,
		Summary:        "All 42 tests passed.",
		TestOutput:     "exit_code: 0\n42 passed\n",
		LLMCalls:       3,
		EnvInitialized: true,
	}); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := s.QueryTestRuns(ctx, TestRunQuery{TriggeredBy: "cron", Desc: true})
	if err != nil {
		t.Fatalf("query runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	got := runs[0]
	if got.Status != StatusSuccess || got.LLMCalls != 3 || !got.EnvInitialized || got.FinishedAt.IsZero() {
		t.Fatalf("unexpected finished run: %+v", got)
	}

	var nf notFoundError
	if err := s.FinishTestRun(ctx, 9999, TestRunResult{Status: StatusFailed}); !errors.As(err, &nf) {
		t.Fatalf("expected notFoundError, got %v", err)
	}

	info, err := s.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.TestRuns != 1 || info.LastRun == nil || info.LastRun.ID != run.ID {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestTestRunPruneKeepsRunning(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	old := time.Now().Add(-30 * 24 * time.Hour).UTC()
	finished := TestRun{TriggeredBy: "cron", Status: StatusFailed, StartedAt: old}
	running := TestRun{TriggeredBy: "cron", Status: StatusRunning, StartedAt: old}
	recent := TestRun{TriggeredBy: "manual", Status: StatusSuccess}
	for _, r := range []*TestRun{&finished, &running, &recent} {
		if err := s.InsertTestRun(ctx, r); err != nil {
			t.Fatalf("insert run: %v", err)
		}
	}

	aff, err := s.DeleteTestRunsBeforeLimited(ctx, time.Now().Add(-7*24*time.Hour), 10)
	if err != nil {
		t.Fatalf("delete runs: %v", err)
	}
	if aff != 1 {
		t.Fatalf("expected delete 1 run, got %d", aff)
	}

	n, err := s.CountTestRuns(ctx, TestRunQuery{})
	if err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 remaining runs, got %d", n)
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/wwwzy/GraphPilot/internal/storage"
)

func main() {
	path := flag.String("db", "graphpilot.db", "sqlite 数据库路径")
	flag.Parse()

	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Config{Path: *path})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	fmt.Println("--- Verifying GraphPilot Database ---")

	info, err := store.Info(ctx)
	if err != nil {
		log.Fatalf("failed to read database info: %v", err)
	}
	fmt.Printf("Total Audit Records: %d\n", info.AuditRecords)

	if info.AuditRecords > 0 {
		recs, err := store.QueryAuditRecords(ctx, storage.AuditQuery{Limit: 5, Desc: true})
		if err != nil {
			log.Fatalf("failed to query audit records: %v", err)
		}
		fmt.Println("Latest 5 Tool Calls (Local Time):")
		for _, r := range recs {
			fmt.Printf("  [%s] %s %s trace=%s\n",
				r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Action, r.Status, r.TraceID)
		}
	}

	fmt.Println("\n------------------------------------")

	fmt.Printf("Total Test Runs: %d\n", info.TestRuns)
	if info.TestRuns > 0 {
		runs, err := store.QueryTestRuns(ctx, storage.TestRunQuery{Limit: 5, Desc: true})
		if err != nil {
			log.Fatalf("failed to query test runs: %v", err)
		}
		fmt.Println("Latest 5 Test Runs (Local Time):")
		for _, r := range runs {
			summary := r.Summary
			if len(summary) > 50 {
				summary = summary[:47] + "..."
			}
			fmt.Printf("  [%s] #%d %s [%s] %s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.ID, r.TriggeredBy, r.Status, summary)
		}
	}
}

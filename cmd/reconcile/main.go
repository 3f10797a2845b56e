// Command reconcile re-mirrors approved students that never reached the
// student-records service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"time"

	"schoolreg/internal/config"
	"schoolreg/internal/server"
)

func main() {
	limit := flag.Int("limit", 100, "Maximum students to re-mirror")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall deadline")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := srv.Applications().ReconcileMirrors(ctx, *limit)
	if err != nil {
		log.Fatalf("Reconcile failed: %v", err)
	}

	fmt.Printf("attempted=%d mirrored=%d failed=%d\n", report.Attempted, report.Mirrored, len(report.Failed))
	ids := make([]string, 0, len(report.Failed))
	for id := range report.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %s: %s\n", id, report.Failed[id])
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if len(report.Failed) > 0 {
		log.Fatalf("%d students could not be mirrored", len(report.Failed))
	}
}

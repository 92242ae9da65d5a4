package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ShahriarSojib/MarketHub/internal/pkg/billing"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/cache"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/database"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/env"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/limiter"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/subsync"
)

// One-off reconciliation runs for operational use: the same sync and sweep
// the scheduler triggers, invocable by hand.
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repo := billing.NewRepository(database.GetDB())
	client := billing.NewStripeClientFromEnv()
	syncer := subsync.NewSynchronizer(repo, client, billing.NewReconciler(repo), limiter.New(5))

	ctx := context.Background()

	var summary billing.SyncSummary
	var err error
	switch os.Args[1] {
	case "sync":
		summary, err = syncer.SyncAll(ctx)
	case "expiry":
		summary, err = syncer.SweepExpired(ctx)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	out, _ := json.Marshal(summary)
	fmt.Println(string(out))
}

func printUsage() {
	fmt.Println("Usage: go run cmd/reconcile/main.go [command]")
	fmt.Println("Available commands:")
	fmt.Println("  sync   - Reconcile all linked subscriptions against Stripe")
	fmt.Println("  expiry - Sweep locally expired subscriptions")
}

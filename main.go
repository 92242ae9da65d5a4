package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ShahriarSojib/MarketHub/app/controllers"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/billing"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/cache"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/database"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/env"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/limiter"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/router"
	"github.com/ShahriarSojib/MarketHub/internal/pkg/subsync"
)

func main() {
	app, manager := NewApplication()
	manager.Start()
	defer manager.Stop()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		manager.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *subsync.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// One limiter per process so the webhook path, scheduled syncs, sweeps
	// and manual triggers share the same outbound concurrency bound. The
	// synchronizer holds its slot itself across retries, so it takes the
	// unwrapped client.
	repo := billing.NewRepository(database.GetDB())
	client := billing.NewStripeClientFromEnv()
	rec := billing.NewReconciler(repo)
	lim := limiter.New(5)
	syncer := subsync.NewSynchronizer(repo, client, rec, lim)
	manager := subsync.NewManager(syncer)

	dispatcher := billing.NewDispatcher(repo, rec,
		billing.NewLimitedClient(client, lim),
		env.GetEnv("STRIPE_WEBHOOK_SECRET", ""))

	controllers.InitializeBillingAdminController(syncer)
	controllers.InitializeWebhookController(dispatcher)

	app := fiber.New(fiber.Config{})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app, manager
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ManuelReschke/ReplyFox/app/controllers"
	"github.com/ManuelReschke/ReplyFox/app/repository"
	apiv1 "github.com/ManuelReschke/ReplyFox/internal/api/v1"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/billing"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/cache"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/database"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/env"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/generation"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/invite"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/llm"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/metrics"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/middleware"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/router"
	"github.com/ManuelReschke/ReplyFox/internal/pkg/s3backup"
)

func main() {
	app, jobs := NewApplication()
	if err := jobs.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		jobs.Stop()
		if err := app.ShutdownWithTimeout(20 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	verifier, err := middleware.NewOIDCVerifierFromEnv(context.Background())
	if err != nil {
		log.Fatalf("Auth setup failed: %v", err)
	}

	generator := generation.NewService(
		repos.Wallet,
		ratelimit.New(cache.GetClient(), ratelimit.ConfigFromEnv()),
		llm.NewGeminiClientFromEnv(),
		generation.WithAudit(repos.Generation),
		generation.WithMetrics(m),
	)
	webhooks := billing.NewService(db, env.GetEnv("LEMON_WEBHOOK_SECRET", ""), billing.WithMetrics(m))
	checkout := billing.NewCheckoutService(billing.NewRepository(db), billing.NewLemonClientFromEnv())

	api := &controllers.API{
		Generator:       generator,
		Wallets:         repos.Wallet,
		Ledger:          repos.Ledger,
		Options:         repos.Option,
		Invites:         invite.NewService(db, invite.RewardsFromEnv(), m),
		Checkout:        checkout,
		Webhooks:        webhooks,
		OptionsCacheTTL: env.GetEnvDuration("OPTIONS_CACHE_TTL", 10*time.Minute),
	}

	jobOpts := []jobqueue.Option{jobqueue.WithMetrics(m)}
	s3cfg, err := s3backup.LoadConfig()
	if err != nil {
		log.Fatalf("Ledger export config: %v", err)
	}
	if s3cfg.IsEnabled() {
		store, err := s3backup.NewClient(context.Background(), s3cfg)
		if err != nil {
			log.Fatalf("Ledger export storage: %v", err)
		}
		jobOpts = append(jobOpts, jobqueue.WithLedgerExporter(s3backup.NewLedgerExporter(repos.Ledger, store, s3cfg, m)))
	}
	jobs := jobqueue.NewManager(repos.Wallet, jobqueue.ConfigFromEnv(), jobOpts...)

	// init fiber app
	// forwarding headers are honoured only from TRUSTED_PROXIES
	app := fiber.New(fiber.Config{
		BodyLimit:               1 << 20,
		ProxyHeader:             env.GetEnv("PROXY_HEADER", ""),
		EnableTrustedProxyCheck: true,
		TrustedProxies:          env.GetEnvList("TRUSTED_PROXIES"),
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// prometheus metrics
	app.Get("/metrics", metrics.Handler(registry))

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath:    "/docs/api/",
		FileContent: apiv1.OpenAPIDocument(),
		Path:        "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		API:            api,
		Verifier:       verifier,
		Wallets:        repos.Wallet,
		LimiterStorage: cache.NewFiberStorage(cache.LimiterDatabase),
	})

	return app, jobs
}

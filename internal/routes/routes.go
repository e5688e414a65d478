package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vaultly/vaultly/internal/account"
	"github.com/vaultly/vaultly/internal/balance"
	"github.com/vaultly/vaultly/internal/chain"
	"github.com/vaultly/vaultly/internal/config"
	"github.com/vaultly/vaultly/internal/ledger"
	"github.com/vaultly/vaultly/internal/limits"
	"github.com/vaultly/vaultly/internal/middleware"
	"github.com/vaultly/vaultly/internal/notification"
	"github.com/vaultly/vaultly/internal/rates"
	"github.com/vaultly/vaultly/internal/transfer"
	"github.com/vaultly/vaultly/pkg/retrier"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Chain  chain.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes. It returns the
// reconciler so the caller can attach the background sweeper to the same
// ledger the handlers use.
func Setup(app *fiber.App, d Deps) (ledger.Reconciler, error) {
	// Enforce real backends outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Chain == nil {
		return nil, fmt.Errorf("chain client is required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Persistence, with in-memory stand-ins for local development.
	var accountRepo account.Repository
	var reconciler ledger.Reconciler
	if d.DB != nil {
		accountRepo = account.NewPostgresRepository(d.DB)
		reconciler = ledger.NewPostgresReconciler(d.DB, d.Logger)
	} else {
		accountRepo = account.NewMemoryRepository()
		reconciler = ledger.NewInMemory(d.Logger)
	}

	// Services and handlers
	accountSvc := account.NewService(accountRepo)
	converter := rates.NewConverter(d.Chain, d.Cfg.RateFreshness, d.Logger)
	aggregator := balance.NewAggregator(accountRepo, d.Chain, d.Chain, reconciler)
	notifier := notification.NewLoggerNotifier(d.Logger)

	retry := retrier.New(
		retrier.WithInitialInterval(200*time.Millisecond),
		retrier.WithMaxInterval(3*time.Second),
		retrier.WithMaxAttempts(4),
	)

	orchestrator := transfer.NewOrchestrator(accountRepo, reconciler, d.Chain,
		buildPolicy(d.Cfg), retry, d.Cfg.CallTimeout, notifier, d.Logger)

	accountHandler := account.NewHandler(accountSvc)
	balanceHandler := balance.NewHandler(aggregator)
	rateHandler := rates.NewHandler(converter)
	transferHandler := transfer.NewHandler(orchestrator)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterAccountRoutes(api, accountHandler)
	RegisterBalanceRoutes(api, balanceHandler)
	RegisterRateRoutes(api, rateHandler)

	// Transfer submissions go through the Redis idempotency layer when a
	// cache is configured; the ledger's client_ref dedupe still backstops it.
	transfers := api.Group("")
	if d.Cache != nil {
		transfers = api.Group("", middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	RegisterTransferRoutes(transfers, transferHandler)

	return reconciler, nil
}

func buildPolicy(cfg config.Config) limits.Policy {
	toRule := func(l config.OperationLimits) limits.Rule {
		return limits.Rule{Min: l.Min, Max: l.Max, DailyCap: l.DailyCap}
	}
	return limits.Policy{
		Rules: map[ledger.OperationKind]limits.Rule{
			ledger.KindDeposit:  toRule(cfg.DepositLimits),
			ledger.KindWithdraw: toRule(cfg.WithdrawLimits),
			ledger.KindSend:     toRule(cfg.SendLimits),
		},
		KycThresholdAmount: cfg.KycThreshold,
	}
}

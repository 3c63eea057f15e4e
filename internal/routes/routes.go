package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tiered_ledger/internal/config"
	"github.com/congo-pay/tiered_ledger/internal/events"
	"github.com/congo-pay/tiered_ledger/internal/funding"
	"github.com/congo-pay/tiered_ledger/internal/ledger"
	"github.com/congo-pay/tiered_ledger/internal/middleware"
	"github.com/congo-pay/tiered_ledger/internal/report"
	"github.com/congo-pay/tiered_ledger/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg       config.Config
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Publisher events.Publisher
	Logger    *slog.Logger
}

// Setup configures middlewares and all application routes. Without a
// database the ledger and request log live in memory, which is only allowed
// in development.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Publisher == nil {
		d.Publisher = events.NewLoggerPublisher(d.Logger)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	var (
		store    ledger.Store
		requests funding.Repository
	)
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
		requests = funding.NewPostgresRepository(d.DB)
	} else {
		store = ledger.NewInMemory()
		requests = funding.NewMemoryRepository()
	}

	engine := ledger.NewEngine(store, d.Logger).WithPublisher(d.Publisher)
	walletSvc := wallet.NewService(engine, d.Logger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := walletSvc.EnsureSuperAdmin(ctx, d.Cfg.SuperAdminID); err != nil {
		return fmt.Errorf("bootstrap super admin: %w", err)
	}
	fundingSvc, err := funding.NewService(requests, engine, walletSvc, d.Publisher, d.Logger, d.Cfg.WithdrawalFee)
	if err != nil {
		return err
	}
	reportSvc := report.NewService(store, fundingSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	protected := api.Group("", middleware.Actor(walletSvc))
	if d.Cache != nil {
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))
	RegisterFundingRoutes(protected, funding.NewHandler(fundingSvc),
		middleware.RateLimit(d.Cache, "fund_request", d.Cfg.CreateRateLimit, d.Logger))
	RegisterLedgerRoutes(protected, ledger.NewHandler(engine))
	RegisterReportRoutes(protected, report.NewHandler(reportSvc, walletSvc))

	d.Logger.Info("routes ready",
		slog.Bool("postgres", d.DB != nil),
		slog.Bool("redis", d.Cache != nil),
		slog.String("super_admin_id", d.Cfg.SuperAdminID),
		slog.Int64("withdrawal_fee", d.Cfg.WithdrawalFee),
	)
	return nil
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/evghenin/erpnext-moldova-efactura/internal/application/invoicing"
	appsync "github.com/evghenin/erpnext-moldova-efactura/internal/application/sync"
	infraefactura "github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/efactura"
	"github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/postgres"
	httpRouter "github.com/evghenin/erpnext-moldova-efactura/internal/interfaces/http"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/config"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: "info",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("starting application")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to PostgreSQL")
	}
	defer pool.Close()

	invoiceRepo := postgres.NewInvoiceRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	efacturaRepo := postgres.NewEFacturaRepository(pool)

	client := infraefactura.NewClient(cfg.EFactura, log)
	composer := infraefactura.NewComposer(cfg.EFactura.Language)

	fiscalSvc := invoicing.NewFiscalStatusService(
		invoiceRepo, customerRepo, customerRepo, efacturaRepo,
		cfg.EFactura.FiscalTerritory, log,
	)
	recordSvc := invoicing.NewRecordService(
		efacturaRepo, client, composer, fiscalSvc,
		cfg.EFactura.VATIncludedInRate, log,
	)

	hub := invoicing.NewProgressHub()
	bulkSvc := invoicing.NewBulkFiscalStatus(fiscalSvc, hub, log)

	poller := appsync.NewStatusPoller(efacturaRepo, client, fiscalSvc, cfg.Sync.BatchSize, log)
	sweep := appsync.NewCancellationSweep(efacturaRepo, client, fiscalSvc, cfg.EFactura.CancelLookback, log)
	promotion := appsync.NewDraftPromotion(efacturaRepo, client, fiscalSvc, log)
	scheduler := appsync.NewScheduler(poller, sweep, promotion, cfg.Sync, log)
	scheduler.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		Fiscal:    fiscalSvc,
		Bulk:      bulkSvc,
		Hub:       hub,
		Records:   recordSvc,
		Registry:  client,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	log.Info().Msg("application stopped")
}

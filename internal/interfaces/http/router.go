package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/evghenin/erpnext-moldova-efactura/internal/application/invoicing"
)

// RouterDeps are the wired services the router hands to the handlers.
type RouterDeps struct {
	Fiscal    *invoicing.FiscalStatusService
	Bulk      *invoicing.BulkFiscalStatus
	Hub       *invoicing.ProgressHub
	Records   *invoicing.RecordService
	Registry  Registry
	JWTSecret string
}

// Router registers the API routes. Everything under /api requires a Bearer
// token; the ERP front end mints the tokens.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	fiscalHandler := NewFiscalStatusHandler(deps.Fiscal, deps.Bulk, deps.Hub)
	invoices := api.Group("/invoices")
	invoices.Post("/fiscal-status/bulk", fiscalHandler.StartBulk)
	invoices.Post("/:name/fiscal-status", fiscalHandler.Actualize)
	api.Get("/jobs/:id", fiscalHandler.Progress)

	recordHandler := NewEFacturaHandler(deps.Records)
	efacturas := api.Group("/efacturas")
	efacturas.Post("/:name/refresh", recordHandler.RefreshStatus)
	efacturas.Post("/:name/send", recordHandler.Send)
	efacturas.Get("/:name/sign-payload", recordHandler.SignPayload)
	efacturas.Post("/:name/signed", recordHandler.ProcessSigned)
	efacturas.Post("/:name/cancel", recordHandler.Cancel)
	efacturas.Put("/:name/dates", recordHandler.UpdateDates)
	efacturas.Post("/:name/autofill", recordHandler.Autofill)
	efacturas.Get("/:name/xml", recordHandler.DownloadXML)
	efacturas.Get("/:name/pdf", recordHandler.DownloadPDF)

	registryHandler := NewRegistryHandler(deps.Registry)
	registry := api.Group("/registry")
	registry.Get("/ping", registryHandler.Ping)
	registry.Get("/taxpayers/:idno", registryHandler.Taxpayer)
}

package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/evghenin/erpnext-moldova-efactura/internal/application/dto"
	"github.com/evghenin/erpnext-moldova-efactura/internal/application/invoicing"
)

// FiscalStatusHandler serves fiscal status actualization, both the single
// interactive call and the bulk background job.
type FiscalStatusHandler struct {
	fiscal *invoicing.FiscalStatusService
	bulk   *invoicing.BulkFiscalStatus
	hub    *invoicing.ProgressHub
}

func NewFiscalStatusHandler(fiscal *invoicing.FiscalStatusService, bulk *invoicing.BulkFiscalStatus, hub *invoicing.ProgressHub) *FiscalStatusHandler {
	return &FiscalStatusHandler{fiscal: fiscal, bulk: bulk, hub: hub}
}

// Actualize recomputes and persists one invoice's fiscal status.
// POST /api/invoices/:name/fiscal-status
func (h *FiscalStatusHandler) Actualize(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "invoice name required"})
	}
	status, err := h.fiscal.ActualizeByName(c.Context(), name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.ActualizeResponse{Invoice: name, FiscalStatus: string(status)})
}

// StartBulk launches a background job over the given invoice ids and returns
// its handle immediately.
// POST /api/invoices/fiscal-status/bulk
func (h *FiscalStatusHandler) StartBulk(c *fiber.Ctx) error {
	var in dto.BulkActualizeRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "invalid request body"})
	}
	if len(in.InvoiceIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "invoice_ids must not be empty"})
	}
	// The job outlives the request, so it must not run on c.Context().
	jobID := h.bulk.Start(c.UserContext(), in.InvoiceIDs)
	return c.Status(fiber.StatusAccepted).JSON(dto.BulkActualizeResponse{JobID: jobID})
}

// Progress returns the latest snapshot of a background job for polling.
// GET /api/jobs/:id
func (h *FiscalStatusHandler) Progress(c *fiber.Ctx) error {
	id := c.Params("id")
	p, ok := h.hub.Snapshot(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "unknown job"})
	}
	return c.JSON(p)
}

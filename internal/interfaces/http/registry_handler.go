package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/evghenin/erpnext-moldova-efactura/internal/application/dto"
	"github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/efactura"
)

// Registry is the slice of the e-Factura client the settings endpoints need.
type Registry interface {
	Ping(ctx context.Context, message string) (string, error)
	GetTaxpayersInfo(ctx context.Context, fiscalCodes []string) ([]efactura.TaxpayerInfo, error)
}

// RegistryHandler serves registry connectivity and lookup endpoints used by
// the settings screen.
type RegistryHandler struct {
	registry Registry
}

func NewRegistryHandler(registry Registry) *RegistryHandler {
	return &RegistryHandler{registry: registry}
}

// Ping verifies connectivity and credentials against the registry.
// GET /api/registry/ping
func (h *RegistryHandler) Ping(c *fiber.Ctx) error {
	echo, err := h.registry.Ping(c.Context(), "ping")
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.PingResponse{Echo: echo})
}

// Taxpayer looks one fiscal code up in the registry.
// GET /api/registry/taxpayers/:idno
func (h *RegistryHandler) Taxpayer(c *fiber.Ctx) error {
	idno := c.Params("idno")
	if idno == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "idno required"})
	}
	taxpayers, err := h.registry.GetTaxpayersInfo(c.Context(), []string{idno})
	if err != nil {
		return respondError(c, err)
	}
	if len(taxpayers) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "taxpayer not found"})
	}
	tp := taxpayers[0]
	return c.JSON(dto.TaxpayerResponse{
		IDNO:            tp.IDNO,
		VATCode:         tp.VATCode,
		Name:            tp.Name,
		Address:         tp.Address,
		TaxpayerType:    tp.TaxpayerType,
		IsEFacturaActor: tp.IsEFacturaActor,
	})
}

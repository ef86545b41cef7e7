package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/evghenin/erpnext-moldova-efactura/internal/application/dto"
	"github.com/evghenin/erpnext-moldova-efactura/internal/application/invoicing"
)

const dateLayout = "2006-01-02"

// EFacturaHandler serves the e-Factura record workflow: upload, the external
// signing round-trip, status refresh, downloads and local mutations.
type EFacturaHandler struct {
	records *invoicing.RecordService
}

func NewEFacturaHandler(records *invoicing.RecordService) *EFacturaHandler {
	return &EFacturaHandler{records: records}
}

func recordName(c *fiber.Ctx) (string, error) {
	name := c.Params("name")
	if name == "" {
		return "", c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "record name required"})
	}
	return name, nil
}

// RefreshStatus re-reads the record's registry status on demand.
// POST /api/efacturas/:name/refresh
func (h *EFacturaHandler) RefreshStatus(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	record, err := h.records.RefreshStatus(c.Context(), name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.NewEFacturaResponse(record))
}

// Send uploads the document without a signature.
// POST /api/efacturas/:name/send
func (h *EFacturaHandler) Send(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	posted, err := h.records.SendUnsigned(c.Context(), name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SendResponse{Posted: posted})
}

// SignPayload prepares the base64 document and digest for the signing plugin.
// GET /api/efacturas/:name/sign-payload
func (h *EFacturaHandler) SignPayload(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	payload, err := h.records.GetForSign(c.Context(), name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SignPayloadResponse{XML: payload.XMLBase64, Hash: payload.HashBase64})
}

// ProcessSigned accepts the signing plugin's result and uploads the signed
// document.
// POST /api/efacturas/:name/signed
func (h *EFacturaHandler) ProcessSigned(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	var in dto.SignedXMLRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "invalid request body"})
	}
	posted, err := h.records.ProcessSignedXML(c.Context(), name, in.Content, in.Signature)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(dto.SendResponse{Posted: posted})
}

// Cancel marks the record cancelled locally.
// POST /api/efacturas/:name/cancel
func (h *EFacturaHandler) Cancel(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	if err := h.records.Cancel(c.Context(), name); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateDates changes the issue and delivery dates of a pending record.
// PUT /api/efacturas/:name/dates
func (h *EFacturaHandler) UpdateDates(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	var in dto.UpdateDatesRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "invalid request body"})
	}
	issue, err := time.Parse(dateLayout, in.IssueDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "issue_date: expected format 2006-01-02"})
	}
	delivery, err := time.Parse(dateLayout, in.DeliveryDate)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "delivery_date: expected format 2006-01-02"})
	}
	if err := h.records.UpdateDates(c.Context(), name, issue, delivery); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Autofill refreshes the record's party blocks from the registry.
// POST /api/efacturas/:name/autofill
func (h *EFacturaHandler) Autofill(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	if err := h.records.AutofillParties(c.Context(), name); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DownloadXML returns the composed document XML as a file.
// GET /api/efacturas/:name/xml
func (h *EFacturaHandler) DownloadXML(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	filename, data, err := h.records.DownloadXML(c.Context(), name)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/xml")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(data)
}

// DownloadPDF returns the registry's print rendering of a registered record.
// GET /api/efacturas/:name/pdf
func (h *EFacturaHandler) DownloadPDF(c *fiber.Ctx) error {
	name, err := recordName(c)
	if name == "" {
		return err
	}
	filename, data, err := h.records.DownloadPDF(c.Context(), name)
	if err != nil {
		return respondError(c, err)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Send(data)
}

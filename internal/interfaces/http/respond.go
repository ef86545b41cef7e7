package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/application/dto"
)

// respondError maps application errors onto HTTP statuses. Remote registry
// failures surface as 502 so clients can tell "our fault" from "their fault".
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
	case errors.Is(err, apperrors.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, apperrors.ErrConfiguration):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "CONFIGURATION", Message: err.Error()})
	case errors.Is(err, apperrors.ErrAmbiguousResult):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "AMBIGUOUS_RESULT", Message: err.Error()})
	case errors.Is(err, apperrors.ErrRemoteProtocol):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "REMOTE", Message: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
}

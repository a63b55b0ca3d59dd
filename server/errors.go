package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"hotfeed/models"
)

// statusFor maps the error taxonomy onto an HTTP status and the message sent
// to the client. Server side failures get a fixed message; the cause is logged.
func statusFor(err error) (int, string) {
	var dangling *models.DanglingAuthorError
	var fiberErr *fiber.Error

	switch {
	case errors.As(err, &dangling):
		return fiber.StatusInternalServerError, "data integrity error"
	case errors.Is(err, models.ErrMalformedQuery), errors.Is(err, models.ErrInvalidPost):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrUnauthorized):
		return fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, models.ErrForbidden):
		return fiber.StatusForbidden, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable, "store unavailable"
	case errors.Is(err, models.ErrPersistFailure):
		return fiber.StatusInternalServerError, "failed to persist"
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	default:
		return fiber.StatusInternalServerError, "internal server error"
	}
}

// errorHandler writes every handler error as {"message": ...}
func errorHandler(c *fiber.Ctx, err error) error {
	status, message := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"status": status,
			"error":  err,
		}).Error("Request failed")
	}
	return c.Status(status).JSON(fiber.Map{"message": message})
}

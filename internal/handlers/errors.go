package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/mGhassen/WildEnergy-sub005/internal/middleware"
	"github.com/mGhassen/WildEnergy-sub005/internal/services"
)

var errUnauthenticated = errors.New("request carries no authenticated caller")

func mapRegistrationError(c *fiber.Ctx, err error) error {
	code := services.ErrorCode(err)
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden", "code": code})
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.Is(err, services.ErrCourseFull):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Course is full", "code": code})
	case errors.Is(err, services.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.Is(err, services.ErrInsufficientSessions):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.Is(err, services.ErrAlreadyStarted):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Course has already started", "code": code})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error(), "code": code})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process registration request", "code": code})
	}
}

// callerFromCtx reads the identity AuthRequired put on the request.
func callerFromCtx(c *fiber.Ctx) (services.Caller, error) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return services.Caller{}, errUnauthenticated
	}
	return services.Caller{MemberID: identity.MemberID, IsAdmin: identity.IsAdmin()}, nil
}

func parseIDParam(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
	"github.com/mGhassen/WildEnergy-sub005/internal/services"
)

// AdminHandler serves the front desk and back office routes. Every route is
// mounted behind AdminRequired.
type AdminHandler struct {
	registrations adminRegistrationService
	checkins      checkinByCodeService
	sweep         absenceSweepService
}

type adminRegistrationService interface {
	CheckIn(ctx context.Context, registrationID int64) (*models.Checkin, error)
	CheckOut(ctx context.Context, registrationID int64) (*services.CheckOutResult, error)
	Approve(ctx context.Context, caller services.Caller, registrationID int64) (*models.Registration, error)
	Disapprove(ctx context.Context, caller services.Caller, registrationID int64) (*models.Registration, error)
	ListCourseRoster(ctx context.Context, caller services.Caller, courseID int64, input services.RegistrationListInput) ([]models.RegistrationDetail, int, error)
}

type checkinByCodeService interface {
	CheckInByCode(ctx context.Context, qrCode string) (*services.ScanResult, error)
	CheckOutByCode(ctx context.Context, qrCode string) (*services.ScanResult, error)
}

type absenceSweepService interface {
	Run(ctx context.Context) (*services.SweepResult, error)
}

func NewAdminHandler(
	registrations *services.RegistrationService,
	checkins *services.CheckinRecorder,
	sweep *services.AbsenceSweep,
) *AdminHandler {
	return &AdminHandler{registrations: registrations, checkins: checkins, sweep: sweep}
}

type scanRequest struct {
	QRCode string `json:"qr_code" validate:"required,max=128"`
}

func (h *AdminHandler) CheckIn(c *fiber.Ctx) error {
	registrationID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration id"})
	}

	checkin, err := h.registrations.CheckIn(c.UserContext(), registrationID)
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"checkin": checkin})
}

func (h *AdminHandler) CheckOut(c *fiber.Ctx) error {
	registrationID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration id"})
	}

	result, err := h.registrations.CheckOut(c.UserContext(), registrationID)
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.JSON(result)
}

func (h *AdminHandler) Approve(c *fiber.Ctx) error {
	return h.review(c, h.registrations.Approve)
}

func (h *AdminHandler) Disapprove(c *fiber.Ctx) error {
	return h.review(c, h.registrations.Disapprove)
}

func (h *AdminHandler) review(
	c *fiber.Ctx,
	decide func(context.Context, services.Caller, int64) (*models.Registration, error),
) error {
	caller, err := callerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	registrationID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration id"})
	}

	registration, err := decide(c.UserContext(), caller, registrationID)
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.JSON(fiber.Map{"registration": registration})
}

func (h *AdminHandler) ScanCheckIn(c *fiber.Ctx) error {
	qrCode, msg := parseScan(c)
	if msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	result, err := h.checkins.CheckInByCode(c.UserContext(), qrCode)
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *AdminHandler) ScanCheckOut(c *fiber.Ctx) error {
	qrCode, msg := parseScan(c)
	if msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	result, err := h.checkins.CheckOutByCode(c.UserContext(), qrCode)
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.JSON(result)
}

func (h *AdminHandler) ListCourseRoster(c *fiber.Ctx) error {
	caller, err := callerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	courseID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid course id"})
	}

	page, limit := parsePage(c)

	registrations, total, err := h.registrations.ListCourseRoster(c.UserContext(), caller, courseID, services.RegistrationListInput{
		Status: strings.TrimSpace(c.Query("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.JSON(fiber.Map{
		"registrations": registrations,
		"pagination":    buildPaginationMeta(page, limit, total),
	})
}

func (h *AdminHandler) RunAbsenceSweep(c *fiber.Ctx) error {
	result, err := h.sweep.Run(c.UserContext())
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.JSON(fiber.Map{"updated_count": result.UpdatedCount, "batches": result.Batches})
}

// parseScan returns the trimmed code, or a non-empty message for a 400.
func parseScan(c *fiber.Ctx) (string, string) {
	var req scanRequest
	if err := c.BodyParser(&req); err != nil {
		return "", "Invalid request body"
	}
	req.QRCode = strings.TrimSpace(req.QRCode)
	if err := validate.Struct(req); err != nil {
		return "", validationMessage(err)
	}
	return req.QRCode, ""
}

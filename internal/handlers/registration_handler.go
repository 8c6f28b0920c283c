package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mGhassen/WildEnergy-sub005/internal/models"
	"github.com/mGhassen/WildEnergy-sub005/internal/services"
)

type RegistrationHandler struct {
	service registrationApplicationService
}

type registrationApplicationService interface {
	CreateRegistration(ctx context.Context, caller services.Caller, input services.CreateRegistrationInput) (*models.Registration, error)
	CancelRegistration(ctx context.Context, caller services.Caller, input services.CancelRegistrationInput) (*services.CancelResult, error)
	GetRegistration(ctx context.Context, caller services.Caller, registrationID int64) (*models.RegistrationDetail, error)
	ListMemberRegistrations(ctx context.Context, caller services.Caller, input services.RegistrationListInput) ([]models.RegistrationDetail, int, error)
}

func NewRegistrationHandler(service *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

type createRegistrationRequest struct {
	CourseID int64  `json:"course_id" validate:"required,gt=0"`
	MemberID *int64 `json:"member_id" validate:"omitempty,gt=0"`
	Force    bool   `json:"force"`
}

type cancelRegistrationRequest struct {
	ForceRefund *bool `json:"force_refund"`
}

func (h *RegistrationHandler) CreateRegistration(c *fiber.Ctx) error {
	caller, err := callerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createRegistrationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationMessage(err)})
	}

	input := services.CreateRegistrationInput{CourseID: req.CourseID, Force: req.Force}
	if req.MemberID != nil {
		input.MemberID = *req.MemberID
	}

	registration, err := h.service.CreateRegistration(c.UserContext(), caller, input)
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"registration": registration})
}

func (h *RegistrationHandler) ListRegistrations(c *fiber.Ctx) error {
	caller, err := callerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	timeframe := strings.TrimSpace(c.Query("timeframe"))
	if timeframe != "" && timeframe != "upcoming" && timeframe != "past" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "timeframe must be upcoming or past"})
	}

	page, limit := parsePage(c)

	registrations, total, err := h.service.ListMemberRegistrations(c.UserContext(), caller, services.RegistrationListInput{
		Status:    strings.TrimSpace(c.Query("status")),
		Timeframe: timeframe,
		Page:      page,
		Limit:     limit,
	})
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.JSON(fiber.Map{
		"registrations": registrations,
		"pagination":    buildPaginationMeta(page, limit, total),
	})
}

func (h *RegistrationHandler) GetRegistration(c *fiber.Ctx) error {
	caller, err := callerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	registrationID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration id"})
	}

	registration, err := h.service.GetRegistration(c.UserContext(), caller, registrationID)
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.JSON(fiber.Map{"registration": registration})
}

func (h *RegistrationHandler) CancelRegistration(c *fiber.Ctx) error {
	caller, err := callerFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	registrationID, ok := parseIDParam(c, "id")
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid registration id"})
	}

	var req cancelRegistrationRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
	}

	result, err := h.service.CancelRegistration(c.UserContext(), caller, services.CancelRegistrationInput{
		RegistrationID: registrationID,
		ForceRefund:    req.ForceRefund,
	})
	if err != nil {
		return mapRegistrationError(c, err)
	}

	return c.JSON(result)
}

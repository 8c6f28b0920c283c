package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mGhassen/WildEnergy-sub005/internal/handlers"
	"github.com/mGhassen/WildEnergy-sub005/internal/middleware"
	"go.uber.org/zap"
)

type Dependencies struct {
	JWTSecret     string
	Registrations *handlers.RegistrationHandler
	Admin         *handlers.AdminHandler

	// BookingLimiter may be nil; RateLimit then counts in process.
	BookingLimiter    middleware.RateCounter
	BookingRateLimit  int
	BookingRateWindow time.Duration
	Logger            *zap.Logger
}

func RegisterRoutes(app *fiber.App, deps Dependencies) {
	api := app.Group("/api")
	authProtected := api.Group("/v1", middleware.AuthRequired(deps.JWTSecret))

	registrations := authProtected.Group("/registrations")
	registrations.Post("",
		middleware.RateLimit(deps.BookingLimiter, "booking", deps.BookingRateLimit, deps.BookingRateWindow, deps.Logger),
		deps.Registrations.CreateRegistration,
	)
	registrations.Get("", deps.Registrations.ListRegistrations)
	registrations.Get("/:id", deps.Registrations.GetRegistration)
	registrations.Post("/:id/cancel", deps.Registrations.CancelRegistration)

	admin := authProtected.Group("/admin", middleware.AdminRequired())
	admin.Post("/registrations/:id/checkin", deps.Admin.CheckIn)
	admin.Delete("/registrations/:id/checkin", deps.Admin.CheckOut)
	admin.Post("/registrations/:id/approve", deps.Admin.Approve)
	admin.Post("/registrations/:id/disapprove", deps.Admin.Disapprove)
	admin.Post("/checkins/scan", deps.Admin.ScanCheckIn)
	admin.Post("/checkins/scan/checkout", deps.Admin.ScanCheckOut)
	admin.Get("/courses/:id/registrations", deps.Admin.ListCourseRoster)
	admin.Post("/sweeps/absence", deps.Admin.RunAbsenceSweep)
}

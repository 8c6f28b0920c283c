package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/mGhassen/WildEnergy-sub005/internal/services"
)

type PaginationMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// parsePage reads page and limit from the query. The page upper bound is
// enforced by the service.
func parsePage(c *fiber.Ctx) (page, limit int) {
	page = parsePositiveInt(c.Query("page"), 1)
	limit = parsePositiveInt(c.Query("limit"), services.DefaultListLimit)
	if limit > services.MaxListLimit {
		limit = services.MaxListLimit
	}
	return page, limit
}

func buildPaginationMeta(page, limit, total int) PaginationMeta {
	totalPages := 0
	if total > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return PaginationMeta{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

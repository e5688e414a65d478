package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultly/vaultly/internal/rates"
)

// RegisterRateRoutes wires the yield rate endpoint.
func RegisterRateRoutes(router fiber.Router, h *rates.Handler) {
	router.Get("/rates/yield", h.Get)
}

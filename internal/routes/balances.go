package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultly/vaultly/internal/balance"
)

// RegisterBalanceRoutes wires the unified balance snapshot endpoint.
func RegisterBalanceRoutes(router fiber.Router, h *balance.Handler) {
	router.Get("/accounts/:accountId/balance", h.Get)
}

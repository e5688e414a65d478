package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultly/vaultly/internal/account"
)

// RegisterAccountRoutes wires account registration and KYC management.
func RegisterAccountRoutes(router fiber.Router, h *account.Handler) {
	group := router.Group("/accounts")
	group.Post("/", h.Create)
	group.Get("/:accountId", h.Get)
	group.Put("/:accountId/kyc", h.UpdateKyc)
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vaultly/vaultly/internal/transfer"
)

// RegisterTransferRoutes wires transfer submission and status polling.
func RegisterTransferRoutes(router fiber.Router, h *transfer.Handler) {
	group := router.Group("/transfers")
	group.Post("/", h.Submit)
	group.Get("/:entryId", h.Status)
}

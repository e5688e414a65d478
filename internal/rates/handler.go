package rates

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes the yield rate endpoint.
type Handler struct {
	converter *Converter
}

// NewHandler builds a rates HTTP handler.
func NewHandler(converter *Converter) *Handler {
	return &Handler{converter: converter}
}

type rateResponse struct {
	APYPercent string    `json:"apy_percent"`
	NativeRate string    `json:"native_rate"`
	ObservedAt time.Time `json:"observed_at"`
	Stale      bool      `json:"stale"`
}

// Get returns the current yield rate.
func (h *Handler) Get(c *fiber.Ctx) error {
	rate, err := h.converter.CurrentAPY(c.UserContext())
	if err != nil {
		if errors.Is(err, ErrRateUnavailable) {
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(rateResponse{
		APYPercent: rate.APYPercent.StringFixed(2),
		NativeRate: rate.NativeRate.String(),
		ObservedAt: rate.ObservedAt,
		Stale:      rate.Stale,
	})
}

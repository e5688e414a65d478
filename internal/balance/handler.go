package balance

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vaultly/vaultly/internal/account"
)

// Handler exposes the merged balance endpoint.
type Handler struct {
	aggregator *Aggregator
}

// NewHandler builds a balance HTTP handler.
func NewHandler(aggregator *Aggregator) *Handler {
	return &Handler{aggregator: aggregator}
}

type snapshotResponse struct {
	AccountID      string    `json:"account_id"`
	WalletAmount   int64     `json:"wallet_amount"`
	PoolAmount     int64     `json:"pool_amount"`
	TotalAmount    int64     `json:"total_amount"`
	TotalDeposited int64     `json:"total_deposited"`
	YieldEarned    int64     `json:"yield_earned"`
	AsOf           time.Time `json:"as_of"`
}

// Get returns the merged balance snapshot for an account.
func (h *Handler) Get(c *fiber.Ctx) error {
	snap, err := h.aggregator.Snapshot(c.UserContext(), c.Params("accountId"))
	if err != nil {
		switch {
		case errors.Is(err, account.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrLedgerUnreachable):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(snapshotResponse{
		AccountID:      snap.AccountID,
		WalletAmount:   snap.WalletAmount,
		PoolAmount:     snap.PoolAmount,
		TotalAmount:    snap.TotalAmount,
		TotalDeposited: snap.TotalDeposited,
		YieldEarned:    snap.YieldEarned,
		AsOf:           snap.AsOf,
	})
}

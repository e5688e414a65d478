package transfer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vaultly/vaultly/internal/account"
	"github.com/vaultly/vaultly/internal/ledger"
	"github.com/vaultly/vaultly/internal/limits"
)

// Handler exposes transfer HTTP endpoints.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler builds a transfer HTTP handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

type submitRequest struct {
	AccountID           string `json:"account_id"`
	Kind                string `json:"kind"`
	Amount              int64  `json:"amount"`
	CounterpartyAddress string `json:"counterparty_address"`
}

type entryResponse struct {
	EntryID             string     `json:"entry_id"`
	AccountID           string     `json:"account_id"`
	Kind                string     `json:"kind"`
	Amount              int64      `json:"amount"`
	CounterpartyAddress string     `json:"counterparty_address,omitempty"`
	ExternalTxRef       string     `json:"external_tx_ref,omitempty"`
	Status              string     `json:"status"`
	FailureDetail       string     `json:"failure_detail,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	FinalizedAt         *time.Time `json:"finalized_at,omitempty"`
}

type denialResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	Limit  int64  `json:"limit"`
}

func toResponse(entry ledger.Entry) entryResponse {
	return entryResponse{
		EntryID:             entry.ID,
		AccountID:           entry.AccountID,
		Kind:                string(entry.Kind),
		Amount:              entry.Amount,
		CounterpartyAddress: entry.CounterpartyAddress,
		ExternalTxRef:       entry.ExternalTxRef,
		Status:              string(entry.Status),
		FailureDetail:       entry.FailureDetail,
		CreatedAt:           entry.CreatedAt,
		FinalizedAt:         entry.FinalizedAt,
	}
}

// Submit accepts a transfer intent. The Idempotency-Key header doubles as the
// intent's client reference so a resubmission maps back to the same entry.
func (h *Handler) Submit(c *fiber.Ctx) error {
	var req submitRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	intent := ledger.TransferIntent{
		Kind:                ledger.OperationKind(req.Kind),
		Amount:              req.Amount,
		CounterpartyAddress: req.CounterpartyAddress,
		ClientRef:           c.Get("Idempotency-Key"),
		RequestedAt:         time.Now().UTC(),
	}

	entry, err := h.orchestrator.Submit(c.UserContext(), req.AccountID, intent)
	if err != nil {
		var denial limits.DenialError
		switch {
		case errors.Is(err, ledger.ErrDuplicateIntent):
			return c.Status(http.StatusOK).JSON(toResponse(entry))
		case errors.As(err, &denial):
			return c.Status(http.StatusUnprocessableEntity).JSON(denialResponse{
				Error:  denial.Error(),
				Reason: string(denial.Reason),
				Limit:  denial.Limit,
			})
		case errors.Is(err, ErrValidation):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, account.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrExternalCallFailed):
			// The entry exists and is terminal; return it so the caller can
			// inspect and poll.
			return c.Status(http.StatusBadGateway).JSON(toResponse(entry))
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(toResponse(entry))
}

// Status returns the ledger entry for an accepted intent.
func (h *Handler) Status(c *fiber.Ctx) error {
	entry, err := h.orchestrator.Status(c.UserContext(), c.Params("entryId"))
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(entry))
}

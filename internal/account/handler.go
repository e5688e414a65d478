package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	OwnerID           string `json:"owner_id"`
	WalletAddress     string `json:"wallet_address"`
	ControllerAddress string `json:"controller_address"`
}

type accountResponse struct {
	ID                string `json:"id"`
	OwnerID           string `json:"owner_id"`
	WalletAddress     string `json:"wallet_address"`
	ControllerAddress string `json:"controller_address"`
	KycStatus         string `json:"kyc_status"`
}

// Create registers a provisioned account.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Create(c.UserContext(), CreateInput{
		OwnerID:           req.OwnerID,
		WalletAddress:     req.WalletAddress,
		ControllerAddress: req.ControllerAddress,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(accountResponse{
		ID:                acct.ID,
		OwnerID:           acct.OwnerID,
		WalletAddress:     acct.WalletAddress,
		ControllerAddress: acct.ControllerAddress,
		KycStatus:         string(acct.KycStatus),
	})
}

// Get returns account metadata.
func (h *Handler) Get(c *fiber.Ctx) error {
	acct, err := h.service.Get(c.UserContext(), c.Params("accountId"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(accountResponse{
		ID:                acct.ID,
		OwnerID:           acct.OwnerID,
		WalletAddress:     acct.WalletAddress,
		ControllerAddress: acct.ControllerAddress,
		KycStatus:         string(acct.KycStatus),
	})
}

type kycRequest struct {
	Status string `json:"status"`
}

// UpdateKyc records the latest KYC provider verdict for the account.
func (h *Handler) UpdateKyc(c *fiber.Ctx) error {
	var req kycRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.SetKycStatus(c.UserContext(), c.Params("accountId"), KycStatus(req.Status)); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

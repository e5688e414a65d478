package account

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Service exposes account provisioning and KYC status updates. Onboarding
// itself (identity checks, wallet deployment) happens upstream; this service
// only records the resulting addresses.
type Service struct {
	repo Repository
}

// NewService builds an account service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput captures data required to register an account.
type CreateInput struct {
	OwnerID           string
	WalletAddress     string
	ControllerAddress string
}

// Create registers a provisioned custody wallet for an owner.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	if _, err := uuid.Parse(input.OwnerID); err != nil {
		return Account{}, fmt.Errorf("owner id: %w", err)
	}
	if !common.IsHexAddress(input.WalletAddress) {
		return Account{}, fmt.Errorf("wallet address %q is not a valid address", input.WalletAddress)
	}
	if !common.IsHexAddress(input.ControllerAddress) {
		return Account{}, fmt.Errorf("controller address %q is not a valid address", input.ControllerAddress)
	}

	acct := Account{
		ID:                uuid.New().String(),
		OwnerID:           input.OwnerID,
		WalletAddress:     common.HexToAddress(input.WalletAddress).Hex(),
		ControllerAddress: common.HexToAddress(input.ControllerAddress).Hex(),
		KycStatus:         KycNone,
		CreatedAt:         time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, acct); err != nil {
		return Account{}, err
	}

	return acct, nil
}

// Get retrieves account metadata.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.Get(ctx, id)
}

// SetKycStatus records a verdict received from the KYC provider.
func (s *Service) SetKycStatus(ctx context.Context, id string, status KycStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown kyc status %q", status)
	}
	return s.repo.UpdateKycStatus(ctx, id, status)
}

package account

import "time"

// KycStatus mirrors the verification state reported by the KYC provider.
type KycStatus string

const (
	KycNone     KycStatus = "none"
	KycPending  KycStatus = "pending"
	KycApproved KycStatus = "approved"
	KycDeclined KycStatus = "declined"
)

// Valid reports whether the status is one the provider can emit.
func (s KycStatus) Valid() bool {
	switch s {
	case KycNone, KycPending, KycApproved, KycDeclined:
		return true
	}
	return false
}

// Account links a user to their custody wallet. The wallet address is
// immutable once provisioned; only the KYC status changes afterwards.
type Account struct {
	ID                string
	OwnerID           string
	WalletAddress     string
	ControllerAddress string
	KycStatus         KycStatus
	CreatedAt         time.Time
}

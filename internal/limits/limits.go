package limits

import (
	"fmt"

	"github.com/vaultly/vaultly/internal/account"
	"github.com/vaultly/vaultly/internal/ledger"
)

// Reason identifies why the gate denied an operation.
type Reason string

const (
	ReasonBelowMinimum     Reason = "below_minimum"
	ReasonAboveMaximum     Reason = "above_maximum"
	ReasonDailyCapExceeded Reason = "daily_cap_exceeded"
	ReasonKycRequired      Reason = "kyc_required"
)

// DenialError is a structured gate denial. Callers use the reason to render
// precise guidance instead of a generic failure.
type DenialError struct {
	Reason Reason
	Limit  int64
}

func (e DenialError) Error() string {
	return fmt.Sprintf("denied: %s (limit %d)", e.Reason, e.Limit)
}

// Rule bounds a single operation kind.
type Rule struct {
	Min        int64
	Max        int64
	DailyCap   int64
	RequireKyc bool
}

// Policy is the configuration snapshot evaluated by Authorize. It is treated
// as immutable for the duration of a single evaluation.
type Policy struct {
	Rules              map[ledger.OperationKind]Rule
	KycThresholdAmount int64
}

// Authorize validates the intent against the policy. Checks run in order and
// short-circuit on the first failure: amount bounds, rolling daily cap, then
// the KYC threshold rule. It is a pure function of its inputs; no record is
// created and no external call is made on a denial.
func Authorize(intent ledger.TransferIntent, policy Policy, kycStatus account.KycStatus, rollingDailyTotal int64) error {
	rule := policy.Rules[intent.Kind]

	if intent.Amount < rule.Min {
		return DenialError{Reason: ReasonBelowMinimum, Limit: rule.Min}
	}
	if rule.Max > 0 && intent.Amount > rule.Max {
		return DenialError{Reason: ReasonAboveMaximum, Limit: rule.Max}
	}
	if rule.DailyCap > 0 && rollingDailyTotal+intent.Amount > rule.DailyCap {
		return DenialError{Reason: ReasonDailyCapExceeded, Limit: rule.DailyCap}
	}
	if rule.RequireKyc || (policy.KycThresholdAmount > 0 && intent.Amount >= policy.KycThresholdAmount) {
		if kycStatus != account.KycApproved {
			return DenialError{Reason: ReasonKycRequired, Limit: policy.KycThresholdAmount}
		}
	}
	return nil
}

package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// Simulator is a concurrency-safe in-memory chain double for unit tests. It
// keeps wallet and pool balances per address and settles submissions
// synchronously unless told otherwise.
type Simulator struct {
	mu      sync.Mutex
	wallets map[string]int64
	pool    map[string]int64
	rate    *big.Int
	txs     map[string]TxStatus
	seq     int

	// Sticky errors returned on every call until cleared.
	WalletErr   error
	PoolErr     error
	RateErr     error
	SupplyErr   error
	RedeemErr   error
	TransferErr error

	// Counters of transient failures to inject before an operation succeeds.
	SupplyFailures   int
	RedeemFailures   int
	TransferFailures int
}

// NewSimulator builds an empty simulator.
func NewSimulator() *Simulator {
	return &Simulator{
		wallets: make(map[string]int64),
		pool:    make(map[string]int64),
		txs:     make(map[string]TxStatus),
	}
}

// SeedWallet sets the liquid balance for a wallet address.
func (s *Simulator) SeedWallet(address string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[address] = amount
}

// SeedPool sets the pool position for a wallet address.
func (s *Simulator) SeedPool(address string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool[address] = amount
}

// SetRate sets the native liquidity rate returned by NativeRate.
func (s *Simulator) SetRate(ray *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = new(big.Int).Set(ray)
}

// SetTxStatus overrides the recorded status for a transaction reference.
func (s *Simulator) SetTxStatus(ref string, status TxStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[ref] = status
}

func (s *Simulator) WalletBalance(_ context.Context, address string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WalletErr != nil {
		return 0, s.WalletErr
	}
	return s.wallets[address], nil
}

func (s *Simulator) PoolBalance(_ context.Context, address string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PoolErr != nil {
		return 0, s.PoolErr
	}
	return s.pool[address], nil
}

func (s *Simulator) NativeRate(_ context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RateErr != nil {
		return nil, s.RateErr
	}
	if s.rate == nil {
		return nil, errors.New("rate not seeded")
	}
	return new(big.Int).Set(s.rate), nil
}

func (s *Simulator) SupplyToPool(_ context.Context, wallet string, amount int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SupplyErr != nil {
		return "", s.SupplyErr
	}
	if s.SupplyFailures > 0 {
		s.SupplyFailures--
		return "", errors.New("node timeout")
	}
	if s.wallets[wallet] < amount {
		return "", Rejected(errors.New("insufficient wallet balance"))
	}
	s.wallets[wallet] -= amount
	s.pool[wallet] += amount
	return s.record(), nil
}

func (s *Simulator) RedeemFromPool(_ context.Context, wallet string, amount int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RedeemErr != nil {
		return "", s.RedeemErr
	}
	if s.RedeemFailures > 0 {
		s.RedeemFailures--
		return "", errors.New("node timeout")
	}
	if s.pool[wallet] < amount {
		return "", Rejected(errors.New("insufficient pool balance"))
	}
	s.pool[wallet] -= amount
	s.wallets[wallet] += amount
	return s.record(), nil
}

func (s *Simulator) Transfer(_ context.Context, wallet, to string, amount int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TransferErr != nil {
		return "", s.TransferErr
	}
	if s.TransferFailures > 0 {
		s.TransferFailures--
		return "", errors.New("node timeout")
	}
	if s.wallets[wallet] < amount {
		return "", Rejected(errors.New("insufficient wallet balance"))
	}
	s.wallets[wallet] -= amount
	if _, known := s.wallets[to]; known {
		s.wallets[to] += amount
	}
	return s.record(), nil
}

func (s *Simulator) ConfirmationStatus(_ context.Context, txRef string) (TxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.txs[txRef]
	if !ok {
		return TxPending, nil
	}
	return status, nil
}

func (s *Simulator) record() string {
	s.seq++
	ref := fmt.Sprintf("0xsim%06d", s.seq)
	s.txs[ref] = TxConfirmed
	return ref
}

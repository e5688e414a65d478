package account

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Account
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[acct.ID]; exists {
		return errors.New("account exists")
	}
	r.storage[acct.ID] = acct
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.storage[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (r *memoryRepository) UpdateKycStatus(_ context.Context, id string, status KycStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.storage[id]
	if !ok {
		return ErrNotFound
	}
	acct.KycStatus = status
	r.storage[id] = acct
	return nil
}

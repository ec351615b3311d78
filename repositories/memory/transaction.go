package memory

import (
	"context"
	"sync"

	"github.com/shinobiwanshin/Sweetify/repositories"
)

type txKey struct{}

// TransactionManager serializes transactional work with a single mutex.
// Writes made inside a failed function are not undone.
type TransactionManager struct {
	mu sync.Mutex
}

// NewTransactionManager creates a transaction manager for the memory store
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

// Begin acquires the store lock; Commit or Rollback releases it.
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	tm.mu.Lock()
	tx := &transaction{release: tm.mu.Unlock}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)
	return tx, nil
}

// InTransaction runs fn while holding the store lock. Nested calls join the outer transaction.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if tx, ok := ctx.Value(txKey{}).(*transaction); ok {
		return fn(ctx, tx)
	}

	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type transaction struct {
	ctx     context.Context
	once    sync.Once
	release func()
}

func (t *transaction) Commit() error {
	t.once.Do(t.release)
	return nil
}

func (t *transaction) Rollback() error {
	t.once.Do(t.release)
	return nil
}

func (t *transaction) Context() context.Context {
	return t.ctx
}

// NewRepositories creates a complete in-memory store
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:     NewUserRepository(),
		Sweets:    NewSweetRepository(),
		Purchases: NewPurchaseRepository(),
	}
}

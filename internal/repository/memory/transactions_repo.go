// Package memory provides mutex-guarded in-process stores. They replace the
// durable postgres variant in tests and single-node demo runs; the interface
// contract is identical.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbeauvoir/transfer-backend/internal/models"
	repo "github.com/rbeauvoir/transfer-backend/internal/repository"
)

type TransactionsRepo struct {
	mu    sync.RWMutex
	byID  map[string]models.Transaction
	order []string // insertion order, newest last
}

func NewTransactionsRepo() *TransactionsRepo {
	return &TransactionsRepo{byID: make(map[string]models.Transaction)}
}

func (r *TransactionsRepo) Insert(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tx.IdempotencyKey != "" {
		for _, id := range r.order {
			existing := r.byID[id]
			if existing.UserID == tx.UserID && existing.IdempotencyKey == tx.IdempotencyKey {
				return existing, nil
			}
		}
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	r.byID[tx.ID] = tx
	r.order = append(r.order, tx.ID)
	return tx, nil
}

func (r *TransactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.byID[id]
	if !ok {
		return models.Transaction{}, repo.ErrNotFound
	}
	return tx, nil
}

func (r *TransactionsRepo) GetByOrderID(ctx context.Context, orderID string) (models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if tx := r.byID[id]; tx.OrderID == orderID {
			return tx, nil
		}
	}
	return models.Transaction{}, repo.ErrNotFound
}

func (r *TransactionsRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		tx := r.byID[id]
		if tx.UserID == userID && tx.IdempotencyKey == key {
			return tx, nil
		}
	}
	return models.Transaction{}, repo.ErrNotFound
}

func (r *TransactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []models.Transaction
	for i := len(r.order) - 1; i >= 0; i-- { // newest first
		if tx := r.byID[r.order[i]]; tx.UserID == userID {
			matched = append(matched, tx)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *TransactionsRepo) UpdateStatusFrom(ctx context.Context, id string, from, to models.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return repo.ErrNotFound
	}
	if tx.Status != from {
		return repo.ErrConflict
	}
	tx.Status = to
	r.byID[id] = tx
	return nil
}

func (r *TransactionsRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Transaction
	for _, id := range r.order {
		tx := r.byID[id]
		if tx.Status == models.TxnPending && tx.CreatedAt.Before(cutoff) {
			out = append(out, tx)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Len reports the number of stored transactions.
func (r *TransactionsRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

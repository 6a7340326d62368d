package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rbeauvoir/transfer-backend/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a guarded status update finds the
	// transaction in a state that does not allow the transition.
	ErrConflict = errors.New("status conflict")
)

// Transactions is the append-only transaction store. Insert replays the
// existing row when the idempotency key is already present; nothing ever
// deletes a transaction.
type Transactions interface {
	Insert(ctx context.Context, tx models.Transaction) (models.Transaction, error)
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	GetByOrderID(ctx context.Context, orderID string) (models.Transaction, error)
	FindByIdempotencyKey(ctx context.Context, userID, key string) (models.Transaction, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error)
	// UpdateStatusFrom applies from→to only when the row is still in the
	// from status; ErrConflict otherwise.
	UpdateStatusFrom(ctx context.Context, id string, from, to models.TransactionStatus) error
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error)
}

type Users interface {
	Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
}

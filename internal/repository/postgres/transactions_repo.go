package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rbeauvoir/transfer-backend/internal/models"
	repo "github.com/rbeauvoir/transfer-backend/internal/repository"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

const txColumns = `id, user_id, amount, currency, status, order_id, payment_method, payment_details, idempotency_key, created_at`

func (r *transactionsRepo) Insert(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	details, err := json.Marshal(tx.PaymentDetails)
	if err != nil {
		return models.Transaction{}, err
	}

	// A retried request with the same idempotency key lands on the existing
	// row; the no-op update lets RETURNING hand it back. Keys are scoped per
	// user, so one caller's key can never replay another caller's row.
	const q = `
INSERT INTO transactions (id, user_id, amount, currency, status, order_id, payment_method, payment_details, idempotency_key)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (user_id, idempotency_key) DO UPDATE
SET idempotency_key = EXCLUDED.idempotency_key
RETURNING ` + txColumns

	row := r.pool.QueryRow(ctx, q,
		tx.ID, tx.UserID, tx.Amount, tx.Currency, tx.Status, tx.OrderID, tx.PaymentMethod, details, nullable(tx.IdempotencyKey),
	)
	return scanTx(row)
}

func (r *transactionsRepo) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id=$1`, id)
	return scanTx(row)
}

func (r *transactionsRepo) GetByOrderID(ctx context.Context, orderID string) (models.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE order_id=$1`, orderID)
	return scanTx(row)
}

func (r *transactionsRepo) FindByIdempotencyKey(ctx context.Context, userID, key string) (models.Transaction, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE user_id=$1 AND idempotency_key=$2`, userID, key)
	return scanTx(row)
}

func (r *transactionsRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *transactionsRepo) UpdateStatusFrom(ctx context.Context, id string, from, to models.TransactionStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET status=$3 WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return repo.ErrNotFound
		}
		return repo.ErrConflict
	}
	return nil
}

func (r *transactionsRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE status=$1 AND created_at < $2 ORDER BY created_at LIMIT $3`,
		models.TxnPending, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		tx, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanTx(row pgx.Row) (models.Transaction, error) {
	var (
		tx      models.Transaction
		details []byte
		idem    *string
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Currency, &tx.Status, &tx.OrderID,
		&tx.PaymentMethod, &details, &idem, &tx.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Transaction{}, repo.ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}
	if idem != nil {
		tx.IdempotencyKey = *idem
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &tx.PaymentDetails); err != nil {
			return models.Transaction{}, err
		}
	}
	return tx, nil
}

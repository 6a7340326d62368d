package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rbeauvoir/transfer-backend/internal/events"
	"github.com/rbeauvoir/transfer-backend/internal/metrics"
	"github.com/rbeauvoir/transfer-backend/internal/models"
	"github.com/rbeauvoir/transfer-backend/internal/moncash"
	repo "github.com/rbeauvoir/transfer-backend/internal/repository"
	"github.com/rbeauvoir/transfer-backend/internal/worker"
)

// Gateway is the slice of the MonCash client the orchestrator drives.
type Gateway interface {
	Token(ctx context.Context) (string, error)
	CreatePayment(ctx context.Context, token string, amount float64, orderID string) (*moncash.Payment, error)
	RedirectURL(token string) string
}

type PaymentService struct {
	trx   repo.Transactions
	audit repo.AuditLogs
	gw    Gateway
	pub   *events.Publisher
	wp    *worker.Pool

	checkoutURL string
	pendingTTL  time.Duration
}

func NewPaymentService(trx repo.Transactions, audit repo.AuditLogs, gw Gateway, pub *events.Publisher, wp *worker.Pool, checkoutURL string, pendingTTL time.Duration) *PaymentService {
	return &PaymentService{
		trx:         trx,
		audit:       audit,
		gw:          gw,
		pub:         pub,
		wp:          wp,
		checkoutURL: checkoutURL,
		pendingTTL:  pendingTTL,
	}
}

type CreatePaymentInput struct {
	Amount         string
	Currency       string
	PaymentMethod  string
	IdempotencyKey string
}

type CreatePaymentResult struct {
	Transaction models.Transaction
	Message     string
	RedirectURL string
	// Replayed is set when an idempotency key matched an earlier call and
	// the stored transaction was returned instead of a new one.
	Replayed bool
}

// CreatePayment validates the request, drives the gateway for the moncash
// method, and persists exactly one pending transaction. Provider failures
// abort before the store write, so no record exists for a failed attempt.
func (s *PaymentService) CreatePayment(ctx context.Context, userID string, in CreatePaymentInput) (*CreatePaymentResult, error) {
	amount, err := parseAmount(in.Amount)
	if err != nil {
		metrics.PaymentsFailed.WithLabelValues("validation").Inc()
		return nil, err
	}
	currency := models.Currency(in.Currency)
	if !currency.Valid() {
		metrics.PaymentsFailed.WithLabelValues("validation").Inc()
		return nil, errInvalidCurrency
	}

	if in.IdempotencyKey != "" {
		existing, err := s.trx.FindByIdempotencyKey(ctx, userID, in.IdempotencyKey)
		switch {
		case err == nil:
			return &CreatePaymentResult{
				Transaction: existing,
				Message:     "Payment already created",
				RedirectURL: s.redirectFor(existing),
				Replayed:    true,
			}, nil
		case !errors.Is(err, repo.ErrNotFound):
			// A store outage must not bypass the replay guarantee by
			// creating a duplicate transaction.
			metrics.PaymentsFailed.WithLabelValues("storage").Inc()
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
	}

	// Order id is generated before any provider call; it is the
	// provider-side correlation reference.
	txID := uuid.NewString()
	orderID := models.NewOrderID()
	method := models.PaymentMethod(in.PaymentMethod)

	var (
		details     models.PaymentDetails
		redirectURL string
		message     string
	)
	switch method {
	case models.MethodCreditCard, models.MethodPayPal:
		details.PaypalOrderID = orderID
		redirectURL = s.checkoutURL
		message = "Payment created"

	case models.MethodMoncash:
		start := time.Now()
		token, err := s.gw.Token(ctx)
		if err != nil {
			metrics.PaymentsFailed.WithLabelValues("provider_auth").Inc()
			return nil, err
		}
		payment, err := s.gw.CreatePayment(ctx, token, amount, orderID)
		metrics.ProviderCallDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.PaymentsFailed.WithLabelValues(providerFailureReason(err)).Inc()
			return nil, err
		}
		details.MoncashToken = payment.Token
		details.MoncashTransactionID = payment.TransactionID
		redirectURL = s.gw.RedirectURL(payment.Token)
		message = "MonCash payment created"

	default:
		// Unrecognized methods fall through to an out-of-band confirmation
		// flow handled elsewhere.
		redirectURL = "/transfer/confirm/" + txID
		message = "Transfer pending confirmation"
	}

	tx := models.Transaction{
		ID:             txID,
		UserID:         userID,
		Amount:         amount,
		Currency:       currency,
		Status:         models.TxnPending,
		OrderID:        orderID,
		PaymentMethod:  method,
		PaymentDetails: details,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	stored, err := s.trx.Insert(ctx, tx)
	if err != nil {
		metrics.PaymentsFailed.WithLabelValues("storage").Inc()
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	metrics.PaymentsCreated.WithLabelValues(string(method)).Inc()
	s.auditLog(stored.ID, "created", string(method)+" payment created")
	s.submit(func() { s.pub.TransactionCreated(stored) })

	return &CreatePaymentResult{
		Transaction: stored,
		Message:     message,
		RedirectURL: redirectURL,
	}, nil
}

// GetPaymentStatus is a point read; it never mutates the record.
func (s *PaymentService) GetPaymentStatus(ctx context.Context, id string) (models.Transaction, error) {
	return s.trx.GetByID(ctx, id)
}

func (s *PaymentService) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.Transaction, error) {
	return s.trx.ListByUser(ctx, userID, limit, offset)
}

// HandleCallback advances a pending transaction after the gateway reports the
// outcome. Terminal transactions reject further transitions.
func (s *PaymentService) HandleCallback(ctx context.Context, orderID string, status models.TransactionStatus) (models.Transaction, error) {
	if status != models.TxnCompleted && status != models.TxnFailed {
		return models.Transaction{}, errInvalidStatus
	}

	tx, err := s.trx.GetByOrderID(ctx, orderID)
	if err != nil {
		return models.Transaction{}, err
	}
	if !tx.Status.CanTransition(status) {
		return models.Transaction{}, repo.ErrConflict
	}
	if err := s.trx.UpdateStatusFrom(ctx, tx.ID, models.TxnPending, status); err != nil {
		return models.Transaction{}, err
	}

	from := tx.Status
	tx.Status = status
	s.auditLog(tx.ID, "status_change", fmt.Sprintf("%s -> %s via gateway callback", from, status))
	s.submit(func() { s.pub.StatusChanged(tx, from, status) })
	return tx, nil
}

// ExpireStale moves pending transactions older than the configured TTL to
// expired. Called from the background sweep loop.
func (s *PaymentService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.pendingTTL)
	stale, err := s.trx.ListStalePending(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, tx := range stale {
		if err := s.trx.UpdateStatusFrom(ctx, tx.ID, models.TxnPending, models.TxnExpired); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				continue // settled by a callback between list and update
			}
			return expired, err
		}
		expired++
		from := tx.Status
		tx.Status = models.TxnExpired
		s.auditLog(tx.ID, "status_change", "pending -> expired by sweep")
		s.submit(func() { s.pub.StatusChanged(tx, from, models.TxnExpired) })
	}
	return expired, nil
}

func (s *PaymentService) redirectFor(tx models.Transaction) string {
	switch tx.PaymentMethod {
	case models.MethodCreditCard, models.MethodPayPal:
		return s.checkoutURL
	case models.MethodMoncash:
		return s.gw.RedirectURL(tx.PaymentDetails.MoncashToken)
	default:
		return "/transfer/confirm/" + tx.ID
	}
}

func (s *PaymentService) auditLog(txID, action, message string) {
	if s.audit == nil {
		return
	}
	err := s.audit.Create(context.Background(), models.AuditLog{
		EntityType: "transaction",
		EntityID:   &txID,
		Action:     action,
		Details:    map[string]any{"message": message},
	})
	if err != nil {
		slog.Error("audit write", "transaction_id", txID, "err", err)
	}
}

func (s *PaymentService) submit(f func()) {
	if s.wp == nil {
		f()
		return
	}
	s.wp.Submit(f)
}

func parseAmount(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errInvalidAmount
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, errInvalidAmount
	}
	return v, nil
}

func providerFailureReason(err error) string {
	var shape *moncash.ShapeError
	if errors.As(err, &shape) {
		return "provider_shape"
	}
	return "provider_request"
}

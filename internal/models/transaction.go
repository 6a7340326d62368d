package models

import (
	"fmt"
	"math/rand"
	"time"
)

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyHTG Currency = "HTG"
)

func (c Currency) Valid() bool { return c == CurrencyUSD || c == CurrencyHTG }

type PaymentMethod string

const (
	MethodCreditCard PaymentMethod = "credit-card"
	MethodPayPal     PaymentMethod = "paypal"
	MethodMoncash    PaymentMethod = "moncash"
)

type TransactionStatus string

const (
	TxnPending   TransactionStatus = "pending"
	TxnCompleted TransactionStatus = "completed"
	TxnFailed    TransactionStatus = "failed"
	TxnExpired   TransactionStatus = "expired"
)

// CanTransition reports whether moving to the given status is allowed.
// Only pending transactions move; completed/failed/expired are terminal.
func (s TransactionStatus) CanTransition(to TransactionStatus) bool {
	if s != TxnPending {
		return false
	}
	switch to {
	case TxnCompleted, TxnFailed, TxnExpired:
		return true
	}
	return false
}

// PaymentDetails carries the provider-specific addendum for a transaction.
// Exactly one group of fields is set depending on the payment method.
type PaymentDetails struct {
	PaypalOrderID        string `json:"paypal_order_id,omitempty"`
	MoncashToken         string `json:"moncash_token,omitempty"`
	MoncashTransactionID string `json:"moncash_transaction_id,omitempty"`
}

type Transaction struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Amount         float64           `json:"amount"`
	Currency       Currency          `json:"currency"`
	Status         TransactionStatus `json:"status"`
	OrderID        string            `json:"order_id"`
	PaymentMethod  PaymentMethod     `json:"payment_method"`
	PaymentDetails PaymentDetails    `json:"payment_details"`
	IdempotencyKey string            `json:"-"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewOrderID builds the provider-side order reference: creation timestamp
// in milliseconds plus a random suffix.
func NewOrderID() string {
	return fmt.Sprintf("%d-%04d", time.Now().UnixMilli(), rand.Intn(10000))
}

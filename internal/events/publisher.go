// Package events publishes transaction lifecycle events to NATS so downstream
// consumers (reconciliation, notifications) can react without being in the
// request path. A nil Publisher is valid and drops everything.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rbeauvoir/transfer-backend/internal/models"
)

const (
	SubjectCreated = "payments.created"
	SubjectStatus  = "payments.status"
)

type Publisher struct {
	nc *nats.Conn
}

func Connect(url string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Timeout(5*time.Second))
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}

type statusEvent struct {
	TransactionID string                   `json:"transaction_id"`
	OrderID       string                   `json:"order_id"`
	From          models.TransactionStatus `json:"from"`
	To            models.TransactionStatus `json:"to"`
	At            time.Time                `json:"at"`
}

// TransactionCreated publishes the full record. Best effort: a broker outage
// never fails the payment that triggered it.
func (p *Publisher) TransactionCreated(tx models.Transaction) {
	p.publish(SubjectCreated, tx)
}

func (p *Publisher) StatusChanged(tx models.Transaction, from, to models.TransactionStatus) {
	p.publish(SubjectStatus, statusEvent{
		TransactionID: tx.ID,
		OrderID:       tx.OrderID,
		From:          from,
		To:            to,
		At:            time.Now().UTC(),
	})
}

func (p *Publisher) publish(subject string, v any) {
	if p == nil || p.nc == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("event marshal", "subject", subject, "err", err)
		return
	}
	if err := p.nc.Publish(subject, b); err != nil {
		slog.Error("event publish", "subject", subject, "err", err)
	}
}

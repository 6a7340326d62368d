package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rbeauvoir/transfer-backend/internal/models"
)

type AuditLogsRepo struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func NewAuditLogsRepo() *AuditLogsRepo { return &AuditLogsRepo{} }

func (r *AuditLogsRepo) Create(ctx context.Context, l models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = int64(len(r.entries) + 1)
	l.CreatedAt = time.Now().UTC()
	r.entries = append(r.entries, l)
	return nil
}

// Entries returns a copy of the recorded log.
func (r *AuditLogsRepo) Entries() []models.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditLog, len(r.entries))
	copy(out, r.entries)
	return out
}

package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbeauvoir/transfer-backend/internal/models"
	repo "github.com/rbeauvoir/transfer-backend/internal/repository"
)

type UsersRepo struct {
	mu   sync.RWMutex
	byID map[string]models.User
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{byID: make(map[string]models.User)}
}

func (r *UsersRepo) Create(ctx context.Context, username, email, passwordHash, role string) (models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			return models.User{}, errors.New("email already registered")
		}
	}
	u := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	r.byID[u.ID] = u
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return models.User{}, repo.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repo.ErrNotFound
}

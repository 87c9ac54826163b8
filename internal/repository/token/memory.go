package token

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"consent-bridge/internal/domain"
)

type memoryRepo struct {
	mu    sync.RWMutex
	token *Token
}

// NewMemory returns a Repository that keeps the token in process memory only.
func NewMemory() Repository {
	return &memoryRepo{}
}

func (r *memoryRepo) Get(_ context.Context) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.token == nil {
		return nil, domain.ErrNotFound
	}
	clone := *r.token
	return &clone, nil
}

func (r *memoryRepo) Set(_ context.Context, token Token) error {
	if strings.TrimSpace(token.Value) == "" {
		return errors.New("empty access token")
	}
	if token.ObtainedAt.IsZero() {
		token.ObtainedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.token = &token
	r.mu.Unlock()
	return nil
}

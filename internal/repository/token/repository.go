package token

import (
	"context"
	"time"
)

// Token is the upstream access token obtained through the OAuth exchange.
type Token struct {
	Value      string
	Scope      string
	ObtainedAt time.Time
}

// Repository holds the current access token. Get returns domain.ErrNotFound
// until a token has been set; Set replaces whatever was held before.
type Repository interface {
	Get(ctx context.Context) (*Token, error)
	Set(ctx context.Context, token Token) error
}

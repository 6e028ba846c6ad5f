package domain

import (
	"context"
	"time"
)

// AccessToken is an opaque bearer credential bound to a User. Only the HMAC
// of the token is stored; Token holds the plain value right after issuing.
type AccessToken struct {
	ID         int        `json:"id"`
	UserID     int        `json:"user_id" gorm:"notNull;index"`
	User       *User      `json:"-"`
	Name       string     `json:"name" gorm:"notNull"`
	Token      string     `json:"-" gorm:"-"`
	TokenHash  string     `json:"-" gorm:"notNull;uniqueIndex"`
	LastUsedAt *time.Time `json:"last_used_at"`

	CreatedAt time.Time `json:"created_at"`
}

// TokenService issues, resolves and revokes AccessTokens.
type TokenService interface {
	Issue(ctx context.Context, userID int, name string) (*AccessToken, error)
	Count(ctx context.Context, userID int) (int64, error)
	Resolve(ctx context.Context, token string) (*AccessToken, error)
	Revoke(ctx context.Context, id int) error
}

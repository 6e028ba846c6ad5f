package domain

import (
	"context"
	"time"
)

// User represents a registered account. Users own Posts, Likes and AccessTokens.
// Password only ever lives in memory during registration; the database
// stores the bcrypt hash in PasswordHash.
type User struct {
	ID           int    `json:"id"`
	Name         string `json:"name" gorm:"notNull"`
	Email        string `json:"email" gorm:"notNull;uniqueIndex"`
	Password     string `json:"-" gorm:"-"`
	PasswordHash string `json:"-" gorm:"notNull"`

	Posts  []Post        `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Likes  []Like        `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Tokens []AccessToken `json:"-" gorm:"constraint:OnDelete:CASCADE"`

	// PostsCount is only set when a query explicitly counts the user's posts.
	PostsCount *int `json:"-" gorm:"->;-:migration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserService is a set of methods to manipulate and work with the User model.
type UserService interface {
	ByID(ctx context.Context, id int) (*User, error)
	ByIDWithPosts(ctx context.Context, id int) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]User, int64, error)
	Create(ctx context.Context, user *User) error
	Authenticate(ctx context.Context, email, password string) (*User, error)
}

// UserFilter narrows down and orders a user listing. Sort is one of the
// sortable columns, optionally prefixed with "-" for descending order.
type UserFilter struct {
	Sort string `json:"sort"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

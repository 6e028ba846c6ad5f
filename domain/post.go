package domain

import (
	"context"
	"time"
)

// Post is a user-authored text entry with an optional image. Image holds the
// image's path relative to the public storage directory, never the file itself.
type Post struct {
	ID     int     `json:"id"`
	UserID int     `json:"user_id" gorm:"notNull;index"`
	User   *User   `json:"user,omitempty"`
	Text   string  `json:"post" gorm:"column:post;type:text;notNull"`
	Image  *string `json:"image"`

	Likes []Like `json:"-" gorm:"constraint:OnDelete:CASCADE"`

	// LikesCount is only set when a query explicitly counts the post's likes.
	LikesCount *int `json:"-" gorm:"->;-:migration"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostService is a set of methods to manipulate and work with the Post model.
// Update and Delete enforce that only the post's owner may mutate it.
type PostService interface {
	List(ctx context.Context, filter PostFilter) ([]Post, int64, error)
	ByID(ctx context.Context, id int) (*Post, error)
	Create(ctx context.Context, post *Post) error
	Update(ctx context.Context, id int, text string, requesterID int) (*Post, error)
	Delete(ctx context.Context, id int, requesterID int) (*Post, error)
}

// PostFilter narrows down a post listing. Search is matched as a substring
// of the post text.
type PostFilter struct {
	UserID     *int   `json:"user_id"`
	Search     string `json:"search"`
	CountLikes bool   `json:"-"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

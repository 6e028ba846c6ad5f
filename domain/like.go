package domain

import (
	"context"
	"time"
)

// Like represents a many-to-many relationship between a User and a Post.
// A user likes a post at most once; the (user_id, post_id) pair is unique.
// It's destroyed when the user unlikes the post, or when the post gets deleted.
type Like struct {
	ID     int `json:"id"`
	UserID int `json:"user_id" gorm:"notNull;uniqueIndex:idx_likes_user_post"`
	PostID int `json:"post_id" gorm:"notNull;uniqueIndex:idx_likes_user_post;index"`

	CreatedAt time.Time `json:"created_at"`
}

// LikeService is a set of methods to manipulate and work with the Like model.
type LikeService interface {
	// Toggle likes the post for the liker, or unlikes it if it was liked before.
	// It reports whether the post is liked afterwards.
	Toggle(ctx context.Context, postID int, liker *User) (bool, error)
}

package domain

import (
	"context"
	"time"
)

// LikeNotification is the payload of the asynchronous "post liked" task. It carries
// ids rather than whole records; the dispatcher looks the owner up when it runs.
type LikeNotification struct {
	PostID      int       `json:"post_id"`
	PostOwnerID int       `json:"post_owner_id"`
	LikerID     int       `json:"liker_id"`
	LikerName   string    `json:"liker_name"`
	LikedAt     time.Time `json:"liked_at"`
}

// NotificationQueue hands notifications over to the dispatcher.
type NotificationQueue interface {
	Enqueue(ctx context.Context, n LikeNotification) error
}

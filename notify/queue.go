package notify

import (
	"context"
	"encoding/json"

	pkgerrors "github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"

	"posty/domain"
)

const (
	// StreamKey is the Redis stream "post liked" notifications are appended to.
	StreamKey = "posty:notifications:liked"
	// DeadStreamKey receives notifications that could not be delivered.
	DeadStreamKey = "posty:notifications:dead"
	// Group is the consumer group of the mail workers.
	Group = "posty-mailer"

	// streamMaxLen caps the stream length; trimming is approximate.
	streamMaxLen = 100000
	payloadField = "payload"
)

// RedisQueue appends notifications to a Redis stream.
// It implements the domain.NotificationQueue interface.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue returns a queue writing to StreamKey.
func NewRedisQueue(rdb *redis.Client) *RedisQueue {
	return &RedisQueue{rdb: rdb}
}

var _ domain.NotificationQueue = &RedisQueue{}

// Enqueue appends the notification as a JSON payload.
func (q *RedisQueue) Enqueue(ctx context.Context, n domain.LikeNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return pkgerrors.Wrap(err, "marshal like notification")
	}
	err = q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{payloadField: string(payload)},
	}).Err()
	return pkgerrors.Wrap(err, "xadd like notification")
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"posty/domain"
	"posty/errs"
	"posty/metrics"
)

const (
	readCount     = 10
	readBlock     = 2 * time.Second
	reclaimSpec   = "@every 1m"
	reclaimIdle   = 60 * time.Second
	reclaimCount  = 50
	maxDeliveries = 5
)

// outcome is what happens to a stream message after an attempt to handle it.
type outcome int

const (
	// outcomeAck removes the message from the pending list.
	outcomeAck outcome = iota
	// outcomeRetry leaves the message pending for the reclaim job.
	outcomeRetry
	// outcomeDead moves the message to the dead stream and acks it.
	outcomeDead
)

// ownerFinder loads the owner of a liked post.
type ownerFinder interface {
	ByID(ctx context.Context, id int) (*domain.User, error)
}

// Worker consumes "post liked" notifications from the stream and mails them
// to the post owners. Delivery is at least once: a message is only acked after
// its mail was sent, or after it turned out it can never be sent.
type Worker struct {
	rdb      *redis.Client
	users    ownerFinder
	mailer   Mailer
	log      *logrus.Logger
	consumer string
}

// NewWorker returns a Worker reading with a consumer name unique to this host.
func NewWorker(rdb *redis.Client, users ownerFinder, mailer Mailer, log *logrus.Logger) *Worker {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "posty-unknown"
	}
	return &Worker{
		rdb:      rdb,
		users:    users,
		mailer:   mailer,
		log:      log,
		consumer: fmt.Sprintf("mailer-%s-%d", hostname, os.Getpid()),
	}
}

// Start creates the consumer group if needed, then starts consuming the stream
// and schedules the reclaim job. Both stop when ctx is cancelled.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup) error {
	err := w.rdb.XGroupCreateMkStream(ctx, StreamKey, Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return pkgerrors.Wrap(err, "create consumer group")
	}

	c := cron.New()
	if _, err := c.AddFunc(reclaimSpec, func() { w.reclaim(ctx) }); err != nil {
		return pkgerrors.Wrap(err, "schedule reclaim job")
	}
	c.Start()

	wg.Add(2)
	go w.consume(ctx, wg)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// consume reads new messages until ctx is cancelled.
func (w *Worker) consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	w.log.Infof("[notify] consuming stream %s as %s", StreamKey, w.consumer)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("[notify] shutting down")
			return
		default:
		}

		streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    Group,
			Consumer: w.consumer,
			Streams:  []string{StreamKey, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Errorf("[notify] XReadGroup error: %v", err)
				wait(ctx, time.Second)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				w.settle(ctx, msg, w.handle(ctx, msg))
			}
		}
	}
}

// reclaim takes over messages that stayed pending for too long, dead-letters
// those that were delivered too often, and retries the rest.
func (w *Worker) reclaim(ctx context.Context) {
	pendings, err := w.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: StreamKey,
		Group:  Group,
		Idle:   reclaimIdle,
		Start:  "-",
		End:    "+",
		Count:  reclaimCount,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			w.log.Errorf("[notify] XPendingExt error: %v", err)
		}
		return
	}
	if len(pendings) == 0 {
		return
	}

	retries := make(map[string]int64, len(pendings))
	ids := make([]string, 0, len(pendings))
	for _, p := range pendings {
		retries[p.ID] = p.RetryCount
		ids = append(ids, p.ID)
	}

	claimed, err := w.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   StreamKey,
		Group:    Group,
		Consumer: w.consumer,
		MinIdle:  reclaimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		w.log.Errorf("[notify] XClaim error: %v", err)
		return
	}
	if len(claimed) > 0 {
		w.log.Infof("[notify] reclaimed %d pending messages", len(claimed))
	}

	for _, msg := range claimed {
		if retries[msg.ID] >= maxDeliveries {
			w.settle(ctx, msg, outcomeDead)
			continue
		}
		w.settle(ctx, msg, w.handle(ctx, msg))
	}
}

// handle decodes a message and delivers it.
func (w *Worker) handle(ctx context.Context, msg redis.XMessage) outcome {
	n, err := decodeNotification(msg)
	if err != nil {
		w.log.Errorf("[notify] invalid message %s: %v", msg.ID, err)
		return outcomeDead
	}
	return w.deliver(ctx, n)
}

// deliver mails the notification to the post owner. An owner that no longer
// exists means there is no one left to notify, so the message is dropped.
func (w *Worker) deliver(ctx context.Context, n domain.LikeNotification) outcome {
	owner, err := w.users.ByID(ctx, n.PostOwnerID)
	if err != nil {
		if errs.IsCode(err, errs.ENOTFOUND) {
			w.log.Warnf("[notify] owner %d of post %d not found, dropping notification", n.PostOwnerID, n.PostID)
			metrics.RecordNotification("skipped")
			return outcomeAck
		}
		w.log.Errorf("[notify] loading owner %d: %v", n.PostOwnerID, err)
		metrics.RecordNotification("retry")
		return outcomeRetry
	}

	msg, err := compose(owner, n)
	if err != nil {
		w.log.Errorf("[notify] composing mail for post %d: %v", n.PostID, err)
		return outcomeDead
	}
	if err := w.mailer.Send(ctx, msg); err != nil {
		w.log.Warnf("[notify] sending mail for post %d: %v", n.PostID, err)
		metrics.RecordNotification("retry")
		return outcomeRetry
	}
	metrics.RecordNotification("sent")
	return outcomeAck
}

// settle acks or dead-letters a message according to the outcome.
func (w *Worker) settle(ctx context.Context, msg redis.XMessage, o outcome) {
	switch o {
	case outcomeRetry:
		return
	case outcomeDead:
		payload, _ := msg.Values[payloadField].(string)
		err := w.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: DeadStreamKey,
			Values: map[string]interface{}{
				"original_stream": StreamKey,
				"msg_id":          msg.ID,
				payloadField:      payload,
				"created_at":      time.Now().UnixMilli(),
			},
		}).Err()
		if err != nil {
			// Leave it pending; the next reclaim tries again.
			w.log.Errorf("[notify] dead-lettering %s: %v", msg.ID, err)
			return
		}
		w.log.Warnf("[notify] message %s moved to %s", msg.ID, DeadStreamKey)
		metrics.RecordNotification("dead")
	}
	if err := w.rdb.XAck(ctx, StreamKey, Group, msg.ID).Err(); err != nil {
		w.log.Errorf("[notify] XAck %s: %v", msg.ID, err)
	}
}

// decodeNotification extracts the notification from a stream message.
func decodeNotification(msg redis.XMessage) (domain.LikeNotification, error) {
	var n domain.LikeNotification
	payload, ok := msg.Values[payloadField].(string)
	if !ok {
		return n, fmt.Errorf("missing %q field", payloadField)
	}
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, pkgerrors.Wrap(err, "decode payload")
	}
	if n.PostID <= 0 || n.PostOwnerID <= 0 {
		return n, fmt.Errorf("incomplete notification %s", payload)
	}
	return n, nil
}

// wait pauses for d or until ctx is done, whichever comes first.
func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package crud

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"posty/domain"
	"posty/errs"
)

// errAlreadyLiked aborts a toggle whose insert lost the race against a concurrent like.
var errAlreadyLiked = errors.New("post already liked")

// LikeService manages Likes.
// It implements the domain.LikeService interface.
type LikeService struct {
	likeValidator
}

// likeValidator runs validations on incoming Like data.
// On success, it passes the data on to likeGorm.
// Otherwise, it returns the error of the validation that has failed.
type likeValidator struct {
	likeGorm
}

// likeGorm runs CRUD operations on the database using incoming Like data.
// Every like it creates is announced on the notification queue.
type likeGorm struct {
	db    *gorm.DB
	queue domain.NotificationQueue
}

// NewLikeService returns an instance of LikeService.
func NewLikeService(db *gorm.DB, queue domain.NotificationQueue) *LikeService {
	return &LikeService{
		likeValidator{
			likeGorm{
				db:    db,
				queue: queue,
			},
		},
	}
}

// Ensure the LikeService struct properly implements the domain.LikeService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.LikeService = &LikeService{}

// Toggle makes sure the liker and the liked post exist, then likes or unlikes the post.
func (lv *likeValidator) Toggle(ctx context.Context, postID int, liker *domain.User) (bool, error) {
	if liker == nil || liker.ID <= 0 {
		return false, errs.Errorf(errs.EUNAUTHORIZED, "Unauthenticated.")
	}
	post, err := lv.likedPost(ctx, postID)
	if err != nil {
		return false, err
	}
	return lv.likeGorm.Toggle(ctx, post, liker)
}

// likedPost makes sure that the post to be liked actually exists.
func (lv *likeValidator) likedPost(ctx context.Context, postID int) (*domain.Post, error) {
	var post domain.Post
	err := lv.db.WithContext(ctx).First(&post, "id = ?", postID).Error
	if err != nil {
		return nil, notFound(err, "Post Not Found")
	}
	return &post, nil
}

// Toggle deletes the liker's like of the post if there is one. Otherwise it creates
// one and, once the like is committed, enqueues exactly one notification for the
// post's owner. If the notification cannot be enqueued the like is deleted again,
// so a like never exists without its notification.
// An insert that hits the unique index means a concurrent request liked the post
// first; that counts as liked, and nothing is enqueued.
func (lg *likeGorm) Toggle(ctx context.Context, post *domain.Post, liker *domain.User) (bool, error) {
	var like *domain.Like
	err := lg.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND post_id = ?", liker.ID, post.ID).Delete(&domain.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}

		l := domain.Like{UserID: liker.ID, PostID: post.ID}
		if err := tx.Create(&l).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyLiked
			}
			return err
		}
		like = &l
		return nil
	})
	if errors.Is(err, errAlreadyLiked) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if like == nil {
		return false, nil
	}

	n := domain.LikeNotification{
		PostID:      post.ID,
		PostOwnerID: post.UserID,
		LikerID:     liker.ID,
		LikerName:   liker.Name,
		LikedAt:     like.CreatedAt,
	}
	if n.LikedAt.IsZero() {
		n.LikedAt = time.Now()
	}
	if err := lg.queue.Enqueue(ctx, n); err != nil {
		err = pkgerrors.Wrap(err, "enqueue like notification")
		// The request context may already be done; the compensation must still run.
		cerr := lg.db.WithContext(context.WithoutCancel(ctx)).Delete(&domain.Like{}, like.ID).Error
		if cerr != nil {
			errs.Log.Errorf("[likes] could not undo like %d: %v", like.ID, cerr)
		}
		return false, err
	}
	return true, nil
}

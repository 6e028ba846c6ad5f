package crud

import (
	"context"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"posty/domain"
	"posty/errs"
)

// PostMaxLength is the maximum number of characters of a post's text.
const PostMaxLength = 5000

// likesCountSelect adds the number of likes of every selected post as likes_count.
const likesCountSelect = "posts.*, (SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id) AS likes_count"

// searchEscaper escapes the LIKE wildcards of a search term, so that it matches literally.
var searchEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostService manages Posts.
// It implements the domain.PostService interface.
type PostService struct {
	postValidator
}

// postValidator runs validations on incoming Post data.
// On success, it passes the data on to postGorm.
// Otherwise, it returns the error of the validation that has failed.
type postValidator struct {
	postGorm
}

// postGorm runs CRUD operations on the database using incoming Post data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type postGorm struct {
	db *gorm.DB
}

// NewPostService returns an instance of PostService.
func NewPostService(db *gorm.DB) *PostService {
	return &PostService{
		postValidator{
			postGorm{
				db: db,
			},
		},
	}
}

// Ensure the PostService struct properly implements the domain.PostService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.PostService = &PostService{}

// Create runs validations needed for creating new Post database records.
func (pv *postValidator) Create(ctx context.Context, post *domain.Post) error {
	err := runPostValFns(post,
		pv.userIDValid,
		pv.textNormalize,
		pv.textRequired,
		pv.textMaxLength)
	if err != nil {
		return err
	}
	return pv.postGorm.Create(ctx, post)
}

// Update runs validations on the new text, then makes sure the post exists and
// belongs to the requester before the text is changed.
func (pv *postValidator) Update(ctx context.Context, id int, text string, requesterID int) (*domain.Post, error) {
	err := runPostValFns(&domain.Post{Text: text},
		pv.textNormalize,
		pv.textRequired,
		pv.textMaxLength)
	if err != nil {
		return nil, err
	}
	post, err := pv.ownedBy(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	post.Text = strings.TrimSpace(text)
	if err := pv.postGorm.Update(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// Delete makes sure the post exists and belongs to the requester, then deletes it.
// The deleted post is returned so the caller can clean up its image.
func (pv *postValidator) Delete(ctx context.Context, id int, requesterID int) (*domain.Post, error) {
	post, err := pv.ownedBy(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	if err := pv.postGorm.Delete(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// ownedBy retrieves a post and makes sure that it belongs to the given user.
func (pv *postValidator) ownedBy(ctx context.Context, id int, userID int) (*domain.Post, error) {
	var post domain.Post
	err := pv.db.WithContext(ctx).First(&post, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "Post Not Found")
	}
	if post.UserID != userID {
		return nil, errs.Errorf(errs.EFORBIDDEN, "This action is unauthorized.")
	}
	return &post, nil
}

// runPostValFns runs any number of functions of type postValFn on the passed in Post object.
// Validation failures are collected; any other error is returned right away.
func runPostValFns(post *domain.Post, fns ...postValFn) error {
	var v errs.Validation
	for _, fn := range fns {
		if err := collectInvalid(&v, fn(post)); err != nil {
			return err
		}
	}
	return v.Err()
}

// A postValFn is any function that takes in a pointer to a domain.Post object and returns an error.
type postValFn func(post *domain.Post) error

// userIDValid ensures that the post has an owner.
func (pv *postValidator) userIDValid(post *domain.Post) error {
	if post.UserID <= 0 {
		return errs.Errorf(errs.EUNAUTHORIZED, "Unauthenticated.")
	}
	return nil
}

// textNormalize trims the surrounding whitespace of the post's text.
func (pv *postValidator) textNormalize(post *domain.Post) error {
	post.Text = strings.TrimSpace(post.Text)
	return nil
}

// textRequired makes sure that the post's text is not empty.
func (pv *postValidator) textRequired(post *domain.Post) error {
	if post.Text == "" {
		return errs.Invalid("post", "The post field is required.")
	}
	return nil
}

// textMaxLength makes sure that the post's text does not exceed PostMaxLength.
func (pv *postValidator) textMaxLength(post *domain.Post) error {
	if utf8.RuneCountInString(post.Text) > PostMaxLength {
		return errs.Invalid("post", "The post field must not be greater than 5000 characters.")
	}
	return nil
}

// List retrieves one page of posts matching the filter, newest first and with
// their owners, along with the total number of matching posts.
func (pg *postGorm) List(ctx context.Context, filter domain.PostFilter) ([]domain.Post, int64, error) {
	var total int64
	err := pg.db.WithContext(ctx).
		Model(&domain.Post{}).
		Scopes(postFilter(filter)).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	db := pg.db.WithContext(ctx)
	if filter.CountLikes {
		db = db.Select(likesCountSelect)
	}
	var posts []domain.Post
	err = db.
		Scopes(postFilter(filter), offsetLimit(filter.Offset, filter.Limit)).
		Preload("User").
		Order("posts.created_at desc, posts.id desc").
		Find(&posts).Error
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// postFilter applies the owner and search conditions of a filter to a query.
func postFilter(filter domain.PostFilter) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if filter.UserID != nil {
			db = db.Where("posts.user_id = ?", *filter.UserID)
		}
		if filter.Search != "" {
			db = db.Where("posts.post ILIKE ?", "%"+searchEscaper.Replace(filter.Search)+"%")
		}
		return db
	}
}

// ByID retrieves a single Post by ID, along with its owner.
// If the record doesn't exist, it returns errs.ENOTFOUND.
func (pg *postGorm) ByID(ctx context.Context, id int) (*domain.Post, error) {
	var post domain.Post
	err := pg.db.WithContext(ctx).
		Preload("User").
		First(&post, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "Post Not Found")
	}
	return &post, nil
}

// Create stores the data from the Post object in a new database record,
// then loads its owner so the response can show it.
func (pg *postGorm) Create(ctx context.Context, post *domain.Post) error {
	if err := pg.db.WithContext(ctx).Create(post).Error; err != nil {
		return err
	}
	var owner domain.User
	if err := pg.db.WithContext(ctx).First(&owner, "id = ?", post.UserID).Error; err != nil {
		return err
	}
	post.User = &owner
	return nil
}

// Update saves the post's text.
func (pg *postGorm) Update(ctx context.Context, post *domain.Post) error {
	return pg.db.WithContext(ctx).
		Model(post).
		Update("post", post.Text).Error
}

// Delete permanently deletes a Post record from the database, along with its Likes.
func (pg *postGorm) Delete(ctx context.Context, post *domain.Post) error {
	return pg.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&domain.Like{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Post{}, post.ID).Error
	})
}

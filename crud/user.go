package crud

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"posty/domain"
	"posty/errs"
)

// sortableUserColumns are the columns a user listing may be ordered by.
var sortableUserColumns = map[string]bool{
	"name":       true,
	"email":      true,
	"created_at": true,
}

// emailRegex is the shape every stored and every submitted email address must have.
var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,16}$`)

// ValidEmail reports whether email is a normalized, well-formed email address.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// postsCountSelect adds the number of posts of every selected user as posts_count.
const postsCountSelect = "users.*, (SELECT COUNT(*) FROM posts WHERE posts.user_id = users.id) AS posts_count"

// UserService manages Users. It also contains the part of the authentication system
// that checks credentials. Issuing and resolving bearer tokens is left to TokenService.
// It implements the domain.UserService interface.
type UserService struct {
	userValidator
}

// userValidator runs validations on incoming User data.
// On success, it passes the data on to userGorm.
// Otherwise, it returns the error of the validation that has failed.
type userValidator struct {
	pepper string
	userGorm
}

// userGorm runs CRUD operations on the database using incoming User data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type userGorm struct {
	db *gorm.DB
}

// NewUserService returns an instance of UserService.
func NewUserService(db *gorm.DB, pepper string) *UserService {
	return &UserService{
		userValidator{
			pepper: pepper,
			userGorm: userGorm{
				db: db,
			},
		},
	}
}

// Ensure the UserService struct properly implements the domain.UserService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.UserService = &UserService{}

// Authenticate checks a submitted email address and password for existence and correctness.
// Both an unknown email address and a wrong password result in the same error, so that
// the response does not reveal which accounts exist.
func (uv *userValidator) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	// Look for a user database record containing the submitted email address.
	found, err := uv.userGorm.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Errorf(errs.EUNAUTHORIZED, "No User Found")
		}
		return nil, err
	}

	// Append the pepper to the submitted password, and compare it to the stored hash.
	err = bcrypt.CompareHashAndPassword([]byte(found.PasswordHash), []byte(password+uv.pepper))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, errs.Errorf(errs.EUNAUTHORIZED, "No User Found")
		}
		return nil, err
	}

	return found, nil
}

// Create runs validations needed for creating new User database records,
// then hashes the password and stores the user.
func (uv *userValidator) Create(ctx context.Context, user *domain.User) error {
	err := runUserValFns(ctx, user,
		uv.nameNormalize,
		uv.nameRequired,
		uv.nameMaxLength,
		uv.emailNormalize,
		uv.emailRequired,
		uv.emailFormat,
		uv.emailIsAvail,
		uv.passwordRequired,
		uv.passwordMinLength)
	if err != nil {
		return err
	}
	if err := uv.passwordBcrypt(user); err != nil {
		return err
	}
	return uv.userGorm.Create(ctx, user)
}

// List runs validations on the filter before listing users.
func (uv *userValidator) List(ctx context.Context, filter domain.UserFilter) ([]domain.User, int64, error) {
	sort := strings.TrimPrefix(filter.Sort, "-")
	if filter.Sort != "" && !sortableUserColumns[sort] {
		return nil, 0, errs.Invalid("sort", "Requested sort(s) `"+filter.Sort+"` is not allowed. Allowed sort(s) are `name, email, created_at`.")
	}
	return uv.userGorm.List(ctx, filter)
}

// runUserValFns runs any number of functions of type userValFn on the passed in User object.
// Validation failures are collected so that every invalid field is reported at once.
// Any other error stops the chain and is returned as is.
func runUserValFns(ctx context.Context, user *domain.User, fns ...userValFn) error {
	var v errs.Validation
	for _, fn := range fns {
		if err := collectInvalid(&v, fn(ctx, user, &v)); err != nil {
			return err
		}
	}
	return v.Err()
}

// A userValFn is any function that takes in a pointer to a domain.User object and returns an error.
// The validation collected so far is passed along, so rules can skip fields that already failed.
type userValFn func(ctx context.Context, user *domain.User, v *errs.Validation) error

// nameNormalize trims the name's surrounding whitespace.
func (uv *userValidator) nameNormalize(_ context.Context, user *domain.User, _ *errs.Validation) error {
	user.Name = strings.TrimSpace(user.Name)
	return nil
}

// nameRequired makes sure that the name is not the empty string.
func (uv *userValidator) nameRequired(_ context.Context, user *domain.User, _ *errs.Validation) error {
	if user.Name == "" {
		return errs.Invalid("name", "The name field is required.")
	}
	return nil
}

// nameMaxLength makes sure that the name has at most 255 characters.
func (uv *userValidator) nameMaxLength(_ context.Context, user *domain.User, _ *errs.Validation) error {
	if utf8.RuneCountInString(user.Name) > 255 {
		return errs.Invalid("name", "The name field must not be greater than 255 characters.")
	}
	return nil
}

// emailFormat makes sure that a provided email address matches a predefined regex pattern.
func (uv *userValidator) emailFormat(_ context.Context, user *domain.User, _ *errs.Validation) error {
	if user.Email == "" {
		return nil
	}
	if utf8.RuneCountInString(user.Email) > 255 || !ValidEmail(user.Email) {
		return errs.Invalid("email", "The email field must be a valid email address.")
	}
	return nil
}

// emailIsAvail makes sure that a provided email address is not yet taken.
// The unique index on users.email catches the race between this check and the insert.
func (uv *userValidator) emailIsAvail(ctx context.Context, user *domain.User, v *errs.Validation) error {
	if user.Email == "" || v.Has("email") {
		return nil
	}
	existing, err := uv.userGorm.ByEmail(ctx, user.Email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Address is not taken.
		return nil
	}
	if err != nil {
		return err
	}
	if user.ID != existing.ID {
		return errs.Invalid("email", "The email has already been taken.")
	}
	return nil
}

// emailNormalize converts the email to all lowercase and trims its whitespaces.
func (uv *userValidator) emailNormalize(_ context.Context, user *domain.User, _ *errs.Validation) error {
	user.Email = strings.ToLower(user.Email)
	user.Email = strings.TrimSpace(user.Email)
	return nil
}

// emailRequired makes sure that the email is not the empty string.
func (uv *userValidator) emailRequired(_ context.Context, user *domain.User, _ *errs.Validation) error {
	if user.Email == "" {
		return errs.Invalid("email", "The email field is required.")
	}
	return nil
}

// passwordRequired makes sure that the user's password is not the empty string.
func (uv *userValidator) passwordRequired(_ context.Context, user *domain.User, _ *errs.Validation) error {
	if user.Password == "" {
		return errs.Invalid("password", "The password field is required.")
	}
	return nil
}

// passwordMinLength makes sure that the user's password is at least 8 characters long.
func (uv *userValidator) passwordMinLength(_ context.Context, user *domain.User, _ *errs.Validation) error {
	if user.Password == "" {
		return nil
	}
	if utf8.RuneCountInString(user.Password) < 8 {
		return errs.Invalid("password", "The password field must be at least 8 characters.")
	}
	return nil
}

// passwordBcrypt hashes a user's password with a predefined pepper.
// It then clears the password on the user object in memory.
func (uv *userValidator) passwordBcrypt(user *domain.User) error {
	if user.Password == "" {
		return nil
	}
	pwBytes := []byte(user.Password + uv.pepper)
	hashedBytes, err := bcrypt.GenerateFromPassword(pwBytes, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hashedBytes)
	user.Password = ""
	return nil
}

// ByID retrieves a plain User database record by ID.
func (ug *userGorm) ByID(ctx context.Context, id int) (*domain.User, error) {
	var user domain.User
	err := ug.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "User Not Found")
	}
	return &user, nil
}

// ByIDWithPosts retrieves a User database record by ID, along with the number
// of its posts and the posts themselves, newest first.
func (ug *userGorm) ByIDWithPosts(ctx context.Context, id int) (*domain.User, error) {
	var user domain.User
	err := ug.db.WithContext(ctx).
		Select(postsCountSelect).
		Preload("Posts", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at desc, id desc")
		}).
		First(&user, "users.id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "User Not Found")
	}
	if user.Posts == nil {
		user.Posts = []domain.Post{}
	}
	return &user, nil
}

// ByEmail retrieves a User database record by Email.
func (ug *userGorm) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := ug.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// List retrieves one page of users, each with the number of its posts,
// along with the total number of users.
func (ug *userGorm) List(ctx context.Context, filter domain.UserFilter) ([]domain.User, int64, error) {
	var total int64
	if err := ug.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	db := ug.db.WithContext(ctx).Select(postsCountSelect)
	if filter.Sort != "" {
		db = db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: strings.TrimPrefix(filter.Sort, "-")},
			Desc:   strings.HasPrefix(filter.Sort, "-"),
		})
	}
	var users []domain.User
	err := db.
		Order("id").
		Scopes(offsetLimit(filter.Offset, filter.Limit)).
		Find(&users).Error
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// Create stores the data from the User object in a new database record.
func (ug *userGorm) Create(ctx context.Context, user *domain.User) error {
	err := ug.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errs.Invalid("email", "The email has already been taken.")
	}
	return err
}

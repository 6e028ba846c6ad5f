package crud

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"posty/domain"
	"posty/errs"
)

func TestUserCreateValidation(t *testing.T) {
	db, mock := newMockDB(t)
	us := NewUserService(db, "pepper")

	tests := []struct {
		name   string
		user   domain.User
		fields []string
	}{
		{"all missing", domain.User{}, []string{"name", "email", "password"}},
		{"bad email", domain.User{Name: "Ann", Email: "not-an-email", Password: "password"}, []string{"email"}},
		{"short password", domain.User{Name: "Ann", Email: "bad", Password: "short"}, []string{"email", "password"}},
		{"long name", domain.User{Name: strings.Repeat("a", 256), Email: "bad", Password: "password"}, []string{"name", "email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := tt.user
			err := us.Create(context.Background(), &user)
			require.Error(t, err)
			assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))

			var e *errs.Error
			require.ErrorAs(t, err, &e)
			for _, f := range tt.fields {
				assert.Contains(t, e.Fields, f)
			}
			assert.Len(t, e.Fields, len(tt.fields))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	us := NewUserService(db, "pepper")

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = .*`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).AddRow(1, "Ann", "ann@example.com"))

	user := domain.User{Name: "Other", Email: " Ann@Example.com ", Password: "password"}
	err := us.Create(context.Background(), &user)
	require.Error(t, err)
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))
	assert.Equal(t, "The email has already been taken.", errs.ErrorMessage(err))
	assert.Equal(t, "ann@example.com", user.Email)

	// No insert happened.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate(t *testing.T) {
	db, mock := newMockDB(t)
	us := NewUserService(db, "pepper")

	mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = .*`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO "users"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

	user := domain.User{Name: "Ann", Email: "ann@example.com", Password: "password"}
	require.NoError(t, us.Create(context.Background(), &user))
	assert.Equal(t, 5, user.ID)
	assert.Empty(t, user.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("passwordpepper")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("passwordpepper"), bcrypt.MinCost)
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		db, mock := newMockDB(t)
		us := NewUserService(db, "pepper")
		mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = .*`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash"}).
				AddRow(3, "Ann", "ann@example.com", string(hash)))

		user, err := us.Authenticate(context.Background(), "ANN@example.com", "password")
		require.NoError(t, err)
		assert.Equal(t, 3, user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		db, mock := newMockDB(t)
		us := NewUserService(db, "pepper")
		mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = .*`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password_hash"}).
				AddRow(3, "Ann", "ann@example.com", string(hash)))

		_, err := us.Authenticate(context.Background(), "ann@example.com", "wrong-password")
		assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err))
		assert.Equal(t, "No User Found", errs.ErrorMessage(err))
	})

	t.Run("unknown email", func(t *testing.T) {
		db, mock := newMockDB(t)
		us := NewUserService(db, "pepper")
		mock.ExpectQuery(`SELECT \* FROM "users" WHERE email = .*`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := us.Authenticate(context.Background(), "nobody@example.com", "password")
		assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err))
	})
}

func TestUserListRejectsUnknownSort(t *testing.T) {
	db, mock := newMockDB(t)
	us := NewUserService(db, "pepper")

	_, _, err := us.List(context.Background(), domain.UserFilter{Sort: "-password_hash"})
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	us := NewUserService(db, "pepper")
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE id = .*`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := us.ByID(context.Background(), 9)
	assert.Equal(t, errs.ENOTFOUND, errs.ErrorCode(err))
	assert.Equal(t, "User Not Found", errs.ErrorMessage(err))
}

func TestValidEmail(t *testing.T) {
	for _, email := range []string{"ann@example.com", "jane.doe+posts@mail.posty.test", "a_b%c@x-y.io"} {
		assert.True(t, ValidEmail(email), email)
	}
	for _, email := range []string{"", "not-an-email", "ann@example", "Ann@Example.com", "ann@example.c", "ann smith@example.com"} {
		assert.False(t, ValidEmail(email), email)
	}
}

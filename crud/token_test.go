package crud

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posty/errs"
)

func TestTokenIssue(t *testing.T) {
	db, mock := newMockDB(t)
	ts := NewTokenService(db, "secret")

	mock.ExpectQuery(`INSERT INTO "access_tokens"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "access_tokens"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))

	first, err := ts.Issue(context.Background(), 3, "auth_token")
	require.NoError(t, err)
	second, err := ts.Issue(context.Background(), 3, "auth_token")
	require.NoError(t, err)

	assert.NotEmpty(t, first.Token)
	assert.NotEqual(t, first.Token, second.Token)
	assert.NotEqual(t, first.Token, first.TokenHash)
	assert.Equal(t, ts.hash(first.Token), first.TokenHash)
	assert.Equal(t, "auth_token", first.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenHashDependsOnKey(t *testing.T) {
	a := NewTokenService(nil, "one")
	b := NewTokenService(nil, "two")
	assert.Equal(t, a.hash("token"), a.hash("token"))
	assert.NotEqual(t, a.hash("token"), b.hash("token"))
}

func TestTokenResolve(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		db, mock := newMockDB(t)
		_, err := NewTokenService(db, "secret").Resolve(context.Background(), "")
		assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT \* FROM "access_tokens" WHERE token_hash = .*`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := NewTokenService(db, "secret").Resolve(context.Background(), "nope")
		assert.Equal(t, errs.EUNAUTHORIZED, errs.ErrorCode(err))
		assert.Equal(t, "Unauthenticated.", errs.ErrorMessage(err))
	})

	t.Run("known token", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(`SELECT \* FROM "access_tokens" WHERE token_hash = .*`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name"}).AddRow(1, 3, "auth_token"))
		mock.ExpectQuery(`SELECT \* FROM "users" WHERE "users"."id" = .*`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(3, "Ann"))
		mock.ExpectExec(`UPDATE "access_tokens" SET "last_used_at"=.*`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		token, err := NewTokenService(db, "secret").Resolve(context.Background(), "plain")
		require.NoError(t, err)
		require.NotNil(t, token.User)
		assert.Equal(t, "Ann", token.User.Name)
		assert.NotNil(t, token.LastUsedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTokenCount(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT count\(\*\) FROM "access_tokens" WHERE user_id = .*`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := NewTokenService(db, "secret").Count(context.Background(), 3)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

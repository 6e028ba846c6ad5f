package crud

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"posty/domain"
)

// newMockDB returns a gorm connection backed by sqlmock.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

// fakeQueue records enqueued notifications.
type fakeQueue struct {
	sent []domain.LikeNotification
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, n domain.LikeNotification) error {
	if q.err != nil {
		return q.err
	}
	q.sent = append(q.sent, n)
	return nil
}

func TestNewServices(t *testing.T) {
	db, _ := newMockDB(t)
	s, err := NewServices(db,
		WithUser("pepper"),
		WithToken("key"),
		WithPost(),
		WithLike(&fakeQueue{}),
	)
	require.NoError(t, err)
	require.NotNil(t, s.User)
	require.NotNil(t, s.Token)
	require.NotNil(t, s.Post)
	require.NotNil(t, s.Like)
}

package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"posty/domain"
)

func TestUserRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetUser(ctx))

	user := &domain.User{ID: 7, Name: "Ann"}
	ctx = SetUser(ctx, user)
	assert.Same(t, user, GetUser(ctx))
}

func TestTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetToken(ctx))

	token := &domain.AccessToken{ID: 3, UserID: 7}
	ctx = SetToken(ctx, token)
	assert.Same(t, token, GetToken(ctx))
	assert.Nil(t, GetUser(ctx))
}

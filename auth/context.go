package auth

import (
	"context"

	"posty/domain"
)

const (
	userKey  privateKey = "user"
	tokenKey privateKey = "token"
)

type privateKey string

// SetUser stores the authenticated user in the context.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the authenticated user, or nil for anonymous requests.
func GetUser(ctx context.Context) *domain.User {
	if temp := ctx.Value(userKey); temp != nil {
		if user, ok := temp.(*domain.User); ok {
			return user
		}
	}
	return nil
}

// SetToken stores the access token the request was authenticated with.
func SetToken(ctx context.Context, token *domain.AccessToken) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// GetToken returns the access token of the current request, or nil.
func GetToken(ctx context.Context) *domain.AccessToken {
	if temp := ctx.Value(tokenKey); temp != nil {
		if token, ok := temp.(*domain.AccessToken); ok {
			return token
		}
	}
	return nil
}

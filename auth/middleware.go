package auth

import (
	"net/http"
	"strings"

	"posty/domain"
	"posty/errs"
)

// TokenMw authenticates requests by their bearer token. It stores the token
// and its user in the request context; requests without a valid token are
// answered with 401 and never reach the next handler.
type TokenMw struct {
	domain.TokenService
}

// Apply wraps a http.Handler.
func (mw *TokenMw) Apply(next http.Handler) http.Handler {
	return mw.ApplyFn(next.ServeHTTP)
}

// ApplyFn wraps a single handler function.
func (mw *TokenMw) ApplyFn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plain, ok := BearerToken(r)
		if !ok {
			errs.ReturnError(w, r, errs.Errorf(errs.EUNAUTHORIZED, "Unauthenticated."))
			return
		}
		token, err := mw.TokenService.Resolve(r.Context(), plain)
		if err != nil {
			errs.ReturnError(w, r, err)
			return
		}
		ctx := SetToken(r.Context(), token)
		ctx = SetUser(ctx, token.User)
		next(w, r.WithContext(ctx))
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

package crud

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"gorm.io/gorm"

	"posty/domain"
	"posty/errs"
)

// tokenBytes is the number of random bytes in a plain access token.
const tokenBytes = 32

// TokenService manages AccessTokens.
// It implements the domain.TokenService interface.
type TokenService struct {
	tokenGorm
	hmacKey []byte
}

// tokenGorm runs CRUD operations on the database using AccessToken data.
type tokenGorm struct {
	db *gorm.DB
}

// NewTokenService returns an instance of TokenService. Tokens are stored
// as HMAC-SHA256 digests keyed with hmacKey.
func NewTokenService(db *gorm.DB, hmacKey string) *TokenService {
	return &TokenService{
		tokenGorm: tokenGorm{
			db: db,
		},
		hmacKey: []byte(hmacKey),
	}
}

// Ensure the TokenService struct properly implements the domain.TokenService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.TokenService = &TokenService{}

// Issue generates a new random token for the user and stores its hash.
// The plain token is only available on the returned object.
func (ts *TokenService) Issue(ctx context.Context, userID int, name string) (*domain.AccessToken, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	plain := base64.URLEncoding.EncodeToString(b)
	token := domain.AccessToken{
		UserID:    userID,
		Name:      name,
		Token:     plain,
		TokenHash: ts.hash(plain),
	}
	if err := ts.db.WithContext(ctx).Create(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// Resolve looks up the token by its hash, loads its user and stamps its last use.
// An empty or unknown token results in errs.EUNAUTHORIZED.
func (ts *TokenService) Resolve(ctx context.Context, plain string) (*domain.AccessToken, error) {
	if plain == "" {
		return nil, errs.Errorf(errs.EUNAUTHORIZED, "Unauthenticated.")
	}
	var token domain.AccessToken
	err := ts.db.WithContext(ctx).
		Preload("User").
		First(&token, "token_hash = ?", ts.hash(plain)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Errorf(errs.EUNAUTHORIZED, "Unauthenticated.")
		}
		return nil, err
	}
	if token.User == nil {
		return nil, errs.Errorf(errs.EUNAUTHORIZED, "Unauthenticated.")
	}

	now := time.Now()
	err = ts.db.WithContext(ctx).
		Model(&domain.AccessToken{}).
		Where("id = ?", token.ID).
		Update("last_used_at", now).Error
	if err != nil {
		return nil, err
	}
	token.LastUsedAt = &now
	return &token, nil
}

// hash returns the base64url encoded HMAC-SHA256 of a plain token.
// A new hash.Hash is created per call, so TokenService is safe for concurrent use.
func (ts *TokenService) hash(plain string) string {
	h := hmac.New(sha256.New, ts.hmacKey)
	h.Write([]byte(plain))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

// Count returns the number of tokens the user holds.
func (tg *tokenGorm) Count(ctx context.Context, userID int) (int64, error) {
	var count int64
	err := tg.db.WithContext(ctx).
		Model(&domain.AccessToken{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Revoke permanently deletes a token.
func (tg *tokenGorm) Revoke(ctx context.Context, id int) error {
	return tg.db.WithContext(ctx).Delete(&domain.AccessToken{}, id).Error
}

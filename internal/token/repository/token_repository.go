package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mail2md-backend/internal/token/domain"
)

// tokenRepository implements TokenRepository on GORM.
type tokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) FindByProviderAndEmail(provider, email string) (*domain.StoredToken, error) {
	var token domain.StoredToken
	err := r.db.Where("provider = ? AND email = ?", provider, email).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) Upsert(token *domain.StoredToken) error {
	existing, err := r.FindByProviderAndEmail(token.Provider, token.Email)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing == nil {
		token.ID = uuid.New().String()
		token.CreatedAt = now
		token.UpdatedAt = now
		token.Version = 1
		return r.db.Create(token).Error
	}
	token.ID = existing.ID
	token.CreatedAt = existing.CreatedAt
	token.UpdatedAt = now
	token.Version = existing.Version + 1
	return r.db.Save(token).Error
}

func (r *tokenRepository) UpdateGuarded(token *domain.StoredToken) (bool, error) {
	res := r.db.Model(&domain.StoredToken{}).
		Where("provider = ? AND email = ? AND version = ?", token.Provider, token.Email, token.Version).
		Updates(map[string]interface{}{
			"access_token_cipher":  token.AccessTokenCipher,
			"refresh_token_cipher": token.RefreshTokenCipher,
			"expires_at":           token.ExpiresAt,
			"scope":                token.Scope,
			"is_valid":             token.IsValid,
			"last_error":           token.LastError,
			"refresh_failures":     token.RefreshFailures,
			"version":              token.Version + 1,
			"updated_at":           time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *tokenRepository) Delete(provider, email string) error {
	return r.db.Where("provider = ? AND email = ?", provider, email).Delete(&domain.StoredToken{}).Error
}

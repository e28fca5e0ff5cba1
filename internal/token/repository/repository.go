package repository

import (
	"mail2md-backend/internal/token/domain"
)

// TokenRepository persists StoredToken rows keyed by (provider, email).
type TokenRepository interface {
	FindByProviderAndEmail(provider, email string) (*domain.StoredToken, error)
	// Upsert creates or replaces the row for (provider, email).
	Upsert(token *domain.StoredToken) error
	// UpdateGuarded writes the row only if its Version column still matches
	// the in-memory value, then bumps the version. Returns false when the
	// row was changed concurrently.
	UpdateGuarded(token *domain.StoredToken) (bool, error)
	// Delete is idempotent: deleting an absent token is not an error.
	Delete(provider, email string) error
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

// Provider identifies an OAuth/storage provider. The set is closed;
// anything else is a configuration error, never a runtime fallback.
type Provider string

const (
	ProviderMicrosoft Provider = "microsoft"
	ProviderGoogle    Provider = "google"
)

// ParseProvider resolves a provider name case-insensitively, accepting the
// storage-product aliases users see in the UI.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "microsoft", "onedrive":
		return ProviderMicrosoft, nil
	case "google", "googledrive":
		return ProviderGoogle, nil
	default:
		return "", fmt.Errorf("unknown storage provider %q", name)
	}
}

// StoredToken holds one user's OAuth credentials for one provider. Access
// and refresh tokens are stored encrypted, never in plaintext. Version is
// an optimistic concurrency token: a stale refresh racing another webhook
// fails to write instead of clobbering newer credentials.
type StoredToken struct {
	ID                 string    `gorm:"primaryKey"`
	Provider           string    `gorm:"uniqueIndex:idx_token_provider_email;size:32"`
	Email              string    `gorm:"uniqueIndex:idx_token_provider_email;size:320"`
	AccessTokenCipher  string    `gorm:"type:text"`
	RefreshTokenCipher string    `gorm:"type:text"`
	ExpiresAt          time.Time
	Scope              string
	ProviderUserID     string
	TenantID           string
	IsValid            bool
	LastError          string `gorm:"type:text"`
	RefreshFailures    int
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// MaxRefreshFailures is the strike count after which a token is considered
// permanently invalid until the user re-authorizes.
const MaxRefreshFailures = 3

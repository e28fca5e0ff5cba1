package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"mail2md-backend/internal/token/domain"
	"mail2md-backend/internal/token/repository"
	"mail2md-backend/pkg/config"
	"mail2md-backend/pkg/crypto"
)

// ErrNoValidToken means the user has no usable credentials for the provider
// and must (re-)authorize before delivery can work.
var ErrNoValidToken = errors.New("no valid token stored for provider")

// refreshSkew: tokens expiring within this window are refreshed eagerly so
// an upload never starts with a token about to die mid-flight.
const refreshSkew = 5 * time.Minute

// TokenStore owns the OAuth credential lifecycle for every provider.
type TokenStore interface {
	GetValidAccessToken(ctx context.Context, provider domain.Provider, email string) (string, error)
	ExchangeCodeForTokens(ctx context.Context, provider domain.Provider, email, code, codeVerifier, redirectURI string) error
	RevokeTokens(provider domain.Provider, email string) error
}

type providerSettings struct {
	endpoint     oauth2.Endpoint
	clientID     string
	clientSecret string
	authScopes   []string
	// refreshScope is sent on token refresh when non-empty. Microsoft
	// requires the scope parameter there; Google rejects it.
	refreshScope string
}

type tokenStore struct {
	repo     repository.TokenRepository
	cipher   crypto.TokenCipher
	http     *http.Client
	logger   zerolog.Logger
	settings map[domain.Provider]providerSettings
}

func NewTokenStore(repo repository.TokenRepository, cipher crypto.TokenCipher, cfg *config.Config, logger zerolog.Logger) TokenStore {
	return &tokenStore{
		repo:   repo,
		cipher: cipher,
		http:   &http.Client{Timeout: 15 * time.Second},
		logger: logger.With().Str("component", "tokenstore").Logger(),
		settings: map[domain.Provider]providerSettings{
			domain.ProviderMicrosoft: {
				endpoint:     microsoft.AzureADEndpoint("common"),
				clientID:     cfg.MicrosoftClientID,
				clientSecret: cfg.MicrosoftClientSecret,
				authScopes:   []string{"offline_access", "User.Read", "Files.ReadWrite"},
				refreshScope: "offline_access User.Read Files.ReadWrite",
			},
			domain.ProviderGoogle: {
				endpoint:     google.Endpoint,
				clientID:     cfg.GoogleClientID,
				clientSecret: cfg.GoogleClientSecret,
				authScopes:   []string{"https://www.googleapis.com/auth/drive.file"},
			},
		},
	}
}

func (s *tokenStore) settingsFor(provider domain.Provider) (providerSettings, error) {
	settings, ok := s.settings[provider]
	if !ok {
		return providerSettings{}, fmt.Errorf("no OAuth settings for provider %q", provider)
	}
	return settings, nil
}

// GetValidAccessToken returns a plaintext access token ready for use, or
// ErrNoValidToken when the user has to re-authorize. Tokens with more than
// five minutes of life left are returned directly; anything closer to
// expiry goes through a refresh first.
func (s *tokenStore) GetValidAccessToken(ctx context.Context, provider domain.Provider, email string) (string, error) {
	email = strings.ToLower(email)
	stored, err := s.repo.FindByProviderAndEmail(string(provider), email)
	if err != nil {
		return "", err
	}
	if stored == nil || !stored.IsValid {
		return "", ErrNoValidToken
	}

	if time.Until(stored.ExpiresAt) > refreshSkew {
		if plain := s.cipher.Decrypt(stored.AccessTokenCipher); plain != "" {
			return plain, nil
		}
		// likely a rotated encryption key; fall through to a refresh
		s.logger.Warn().Str("provider", string(provider)).Msg("stored access token failed to decrypt, attempting refresh")
	}

	return s.refresh(ctx, provider, stored)
}

type tokenEndpointResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
}

func (s *tokenStore) refresh(ctx context.Context, provider domain.Provider, stored *domain.StoredToken) (string, error) {
	settings, err := s.settingsFor(provider)
	if err != nil {
		return "", err
	}

	refreshToken := s.cipher.Decrypt(stored.RefreshTokenCipher)
	if refreshToken == "" {
		return "", s.recordRefreshFailure(stored, "refresh token unavailable (decryption failed)")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {settings.clientID},
		"client_secret": {settings.clientSecret},
	}
	if settings.refreshScope != "" {
		form.Set("scope", settings.refreshScope)
	}

	resp, err := s.postForm(ctx, settings.endpoint.TokenURL, form)
	if err != nil {
		return "", s.recordRefreshFailure(stored, err.Error())
	}

	stored.AccessTokenCipher = s.cipher.Encrypt(resp.AccessToken)
	if resp.RefreshToken != "" && resp.RefreshToken != refreshToken {
		// provider rotated the refresh token
		stored.RefreshTokenCipher = s.cipher.Encrypt(resp.RefreshToken)
	}
	stored.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.Scope != "" {
		stored.Scope = resp.Scope
	}
	stored.IsValid = true
	stored.LastError = ""
	stored.RefreshFailures = 0

	written, err := s.repo.UpdateGuarded(stored)
	if err != nil {
		return "", err
	}
	if !written {
		s.logger.Warn().Str("provider", string(provider)).Str("email", stored.Email).
			Msg("token row changed during refresh, keeping concurrent writer's state")
	}
	return resp.AccessToken, nil
}

// recordRefreshFailure bumps the strike counter and invalidates the token
// on the third consecutive failure. The returned error is always
// ErrNoValidToken so callers treat it as a re-auth condition.
func (s *tokenStore) recordRefreshFailure(stored *domain.StoredToken, reason string) error {
	stored.RefreshFailures++
	stored.LastError = reason
	if stored.RefreshFailures >= domain.MaxRefreshFailures {
		stored.IsValid = false
		s.logger.Warn().Str("provider", stored.Provider).Str("email", stored.Email).
			Int("failures", stored.RefreshFailures).Msg("token invalidated after repeated refresh failures")
	}
	if _, err := s.repo.UpdateGuarded(stored); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist refresh failure")
	}
	return ErrNoValidToken
}

func (s *tokenStore) postForm(ctx context.Context, tokenURL string, form url.Values) (*tokenEndpointResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer httpResp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", httpResp.StatusCode, truncate(string(body), 200))
	}

	var resp tokenEndpointResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, errors.New("token response carried no access token")
	}
	return &resp, nil
}

// ExchangeCodeForTokens completes the authorization-code + PKCE flow and
// upserts the resulting credentials.
func (s *tokenStore) ExchangeCodeForTokens(ctx context.Context, provider domain.Provider, email, code, codeVerifier, redirectURI string) error {
	settings, err := s.settingsFor(provider)
	if err != nil {
		return err
	}

	conf := &oauth2.Config{
		ClientID:     settings.clientID,
		ClientSecret: settings.clientSecret,
		Endpoint:     settings.endpoint,
		RedirectURL:  redirectURI,
		Scopes:       settings.authScopes,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.http)
	tok, err := conf.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return fmt.Errorf("authorization code exchange failed: %w", err)
	}

	claims := decodeIdentityClaims(tok)
	scope, _ := tok.Extra("scope").(string)

	stored := &domain.StoredToken{
		Provider:           string(provider),
		Email:              strings.ToLower(email),
		AccessTokenCipher:  s.cipher.Encrypt(tok.AccessToken),
		RefreshTokenCipher: s.cipher.Encrypt(tok.RefreshToken),
		ExpiresAt:          tok.Expiry,
		Scope:              scope,
		ProviderUserID:     firstClaim(claims, "oid", "sub"),
		TenantID:           firstClaim(claims, "tid"),
		IsValid:            true,
	}
	return s.repo.Upsert(stored)
}

// RevokeTokens deletes the stored credentials. Absence is not an error.
func (s *tokenStore) RevokeTokens(provider domain.Provider, email string) error {
	return s.repo.Delete(string(provider), strings.ToLower(email))
}

// decodeIdentityClaims pulls claims out of the identity token without
// verifying the signature; a malformed or absent token yields an empty map
// rather than an error.
func decodeIdentityClaims(tok *oauth2.Token) jwt.MapClaims {
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return jwt.MapClaims{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return jwt.MapClaims{}
	}
	return claims
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mail2md-backend/internal/token/domain"
	"mail2md-backend/pkg/config"
	"mail2md-backend/pkg/crypto"
)

// fakeTokenRepository keeps tokens in memory. Reads hand out copies so the
// only way state persists is through UpdateGuarded/Upsert, like the real
// repository.
type fakeTokenRepository struct {
	tokens map[string]*domain.StoredToken
}

func newFakeTokenRepository() *fakeTokenRepository {
	return &fakeTokenRepository{tokens: map[string]*domain.StoredToken{}}
}

func tokenKey(provider, email string) string { return provider + "|" + email }

func (r *fakeTokenRepository) FindByProviderAndEmail(provider, email string) (*domain.StoredToken, error) {
	t, ok := r.tokens[tokenKey(provider, email)]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (r *fakeTokenRepository) Upsert(token *domain.StoredToken) error {
	c := *token
	r.tokens[tokenKey(token.Provider, token.Email)] = &c
	return nil
}

func (r *fakeTokenRepository) UpdateGuarded(token *domain.StoredToken) (bool, error) {
	current, ok := r.tokens[tokenKey(token.Provider, token.Email)]
	if !ok || current.Version != token.Version {
		return false, nil
	}
	token.Version++
	c := *token
	r.tokens[tokenKey(token.Provider, token.Email)] = &c
	return true, nil
}

func (r *fakeTokenRepository) Delete(provider, email string) error {
	delete(r.tokens, tokenKey(provider, email))
	return nil
}

func newTestStore(t *testing.T, repo *fakeTokenRepository) (*tokenStore, crypto.TokenCipher) {
	t.Helper()
	cipher, err := crypto.NewAESCipher("unit-test-secret")
	if err != nil {
		t.Fatalf("NewAESCipher: %v", err)
	}
	cfg := &config.Config{
		MicrosoftClientID:     "ms-client",
		MicrosoftClientSecret: "ms-secret",
		GoogleClientID:        "g-client",
		GoogleClientSecret:    "g-secret",
	}
	return NewTokenStore(repo, cipher, cfg, zerolog.Nop()).(*tokenStore), cipher
}

// pointTokenEndpoint redirects a provider's token URL at a test server.
func pointTokenEndpoint(s *tokenStore, provider domain.Provider, url string) {
	settings := s.settings[provider]
	settings.endpoint.TokenURL = url
	s.settings[provider] = settings
}

func seedToken(repo *fakeTokenRepository, cipher crypto.TokenCipher, provider domain.Provider, email, access, refresh string, expiresAt time.Time) {
	repo.Upsert(&domain.StoredToken{
		ID:                 "tok-1",
		Provider:           string(provider),
		Email:              email,
		AccessTokenCipher:  cipher.Encrypt(access),
		RefreshTokenCipher: cipher.Encrypt(refresh),
		ExpiresAt:          expiresAt,
		IsValid:            true,
	})
}

func TestGetValidAccessTokenReturnsUnexpiredToken(t *testing.T) {
	repo := newFakeTokenRepository()
	store, cipher := newTestStore(t, repo)
	seedToken(repo, cipher, domain.ProviderMicrosoft, "user@example.com", "live-token", "refresh-1", time.Now().Add(time.Hour))

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()
	pointTokenEndpoint(store, domain.ProviderMicrosoft, srv.URL)

	got, err := store.GetValidAccessToken(context.Background(), domain.ProviderMicrosoft, "User@Example.com")
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if got != "live-token" {
		t.Errorf("got token %q, want the stored one", got)
	}
	if calls != 0 {
		t.Errorf("token endpoint was called %d times for an unexpired token", calls)
	}
}

func TestGetValidAccessTokenRefreshesNearExpiry(t *testing.T) {
	repo := newFakeTokenRepository()
	store, cipher := newTestStore(t, repo)
	seedToken(repo, cipher, domain.ProviderMicrosoft, "user@example.com", "old-token", "refresh-1", time.Now().Add(time.Minute))

	var gotScope string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotScope = r.PostForm.Get("scope")
		fmt.Fprint(w, `{"access_token":"new-token","refresh_token":"refresh-2","expires_in":3600,"scope":"Files.ReadWrite"}`)
	}))
	defer srv.Close()
	pointTokenEndpoint(store, domain.ProviderMicrosoft, srv.URL)

	got, err := store.GetValidAccessToken(context.Background(), domain.ProviderMicrosoft, "user@example.com")
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if got != "new-token" {
		t.Errorf("got token %q, want the refreshed one", got)
	}
	if gotScope == "" {
		t.Error("refresh request to the Microsoft endpoint carried no scope parameter")
	}

	stored, _ := repo.FindByProviderAndEmail(string(domain.ProviderMicrosoft), "user@example.com")
	if stored.RefreshFailures != 0 || !stored.IsValid {
		t.Errorf("refreshed token state = failures %d valid %v", stored.RefreshFailures, stored.IsValid)
	}
	if cipher.Decrypt(stored.RefreshTokenCipher) != "refresh-2" {
		t.Error("rotated refresh token was not persisted")
	}
	if cipher.Decrypt(stored.AccessTokenCipher) != "new-token" {
		t.Error("new access token was not persisted")
	}
}

func TestGoogleRefreshOmitsScope(t *testing.T) {
	repo := newFakeTokenRepository()
	store, cipher := newTestStore(t, repo)
	seedToken(repo, cipher, domain.ProviderGoogle, "user@example.com", "old-token", "refresh-1", time.Now().Add(time.Minute))

	scopeSent := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		scopeSent = r.PostForm.Has("scope")
		fmt.Fprint(w, `{"access_token":"new-token","expires_in":3600}`)
	}))
	defer srv.Close()
	pointTokenEndpoint(store, domain.ProviderGoogle, srv.URL)

	if _, err := store.GetValidAccessToken(context.Background(), domain.ProviderGoogle, "user@example.com"); err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if scopeSent {
		t.Error("Google refresh request carried a scope parameter")
	}

	// Google does not rotate refresh tokens; the original must survive.
	stored, _ := repo.FindByProviderAndEmail(string(domain.ProviderGoogle), "user@example.com")
	if cipher.Decrypt(stored.RefreshTokenCipher) != "refresh-1" {
		t.Error("refresh token was overwritten despite no rotation")
	}
}

func TestRefreshFailuresInvalidateAfterThreeStrikes(t *testing.T) {
	repo := newFakeTokenRepository()
	store, cipher := newTestStore(t, repo)
	seedToken(repo, cipher, domain.ProviderMicrosoft, "user@example.com", "old-token", "refresh-1", time.Now().Add(time.Minute))

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	pointTokenEndpoint(store, domain.ProviderMicrosoft, srv.URL)

	for i := 1; i <= 3; i++ {
		_, err := store.GetValidAccessToken(context.Background(), domain.ProviderMicrosoft, "user@example.com")
		if !errors.Is(err, ErrNoValidToken) {
			t.Fatalf("attempt %d: err = %v, want ErrNoValidToken", i, err)
		}
	}

	stored, _ := repo.FindByProviderAndEmail(string(domain.ProviderMicrosoft), "user@example.com")
	if stored.IsValid {
		t.Fatal("token still valid after three consecutive refresh failures")
	}
	if stored.RefreshFailures != 3 {
		t.Errorf("RefreshFailures = %d, want 3", stored.RefreshFailures)
	}

	// Once invalidated, lookups short-circuit without hitting the network.
	if _, err := store.GetValidAccessToken(context.Background(), domain.ProviderMicrosoft, "user@example.com"); !errors.Is(err, ErrNoValidToken) {
		t.Fatalf("err = %v, want ErrNoValidToken", err)
	}
	if calls != 3 {
		t.Errorf("token endpoint called %d times, want 3", calls)
	}
}

func TestRefreshSuccessResetsFailureCount(t *testing.T) {
	repo := newFakeTokenRepository()
	store, cipher := newTestStore(t, repo)
	seedToken(repo, cipher, domain.ProviderMicrosoft, "user@example.com", "old-token", "refresh-1", time.Now().Add(time.Minute))

	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "temporary", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"access_token":"new-token","expires_in":3600}`)
	}))
	defer srv.Close()
	pointTokenEndpoint(store, domain.ProviderMicrosoft, srv.URL)

	if _, err := store.GetValidAccessToken(context.Background(), domain.ProviderMicrosoft, "user@example.com"); !errors.Is(err, ErrNoValidToken) {
		t.Fatalf("err = %v, want ErrNoValidToken", err)
	}
	fail = false
	if _, err := store.GetValidAccessToken(context.Background(), domain.ProviderMicrosoft, "user@example.com"); err != nil {
		t.Fatalf("refresh after transient failure: %v", err)
	}

	stored, _ := repo.FindByProviderAndEmail(string(domain.ProviderMicrosoft), "user@example.com")
	if stored.RefreshFailures != 0 {
		t.Errorf("RefreshFailures = %d after a successful refresh, want 0", stored.RefreshFailures)
	}
}

func TestGetValidAccessTokenUnknownUser(t *testing.T) {
	repo := newFakeTokenRepository()
	store, _ := newTestStore(t, repo)

	_, err := store.GetValidAccessToken(context.Background(), domain.ProviderGoogle, "stranger@example.com")
	if !errors.Is(err, ErrNoValidToken) {
		t.Fatalf("err = %v, want ErrNoValidToken", err)
	}
}

func TestRevokeTokensIsIdempotent(t *testing.T) {
	repo := newFakeTokenRepository()
	store, cipher := newTestStore(t, repo)
	seedToken(repo, cipher, domain.ProviderGoogle, "user@example.com", "tok", "ref", time.Now().Add(time.Hour))

	if err := store.RevokeTokens(domain.ProviderGoogle, "User@Example.com"); err != nil {
		t.Fatalf("RevokeTokens: %v", err)
	}
	if stored, _ := repo.FindByProviderAndEmail(string(domain.ProviderGoogle), "user@example.com"); stored != nil {
		t.Fatal("token still present after revocation")
	}
	if err := store.RevokeTokens(domain.ProviderGoogle, "user@example.com"); err != nil {
		t.Fatalf("revoking an absent token: %v", err)
	}
}

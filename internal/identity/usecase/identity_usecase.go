package usecase

import (
	"strings"

	"github.com/rs/zerolog"

	"mail2md-backend/internal/identity/repository"
)

// IdentityLinkGraph resolves which email addresses belong to one logical
// user so connections registered under any of them act as one account.
type IdentityLinkGraph interface {
	LinkIdentities(emailA, emailB, provider string) error
	// ResolveGroup returns the email itself plus its directly linked
	// neighbors. Resolution is deliberately one hop deep: chains of links
	// do not leak connections across accounts that never linked directly.
	ResolveGroup(email string) ([]string, error)
	Unlink(emailA, emailB string) error
}

type identityLinkGraph struct {
	repo   repository.LinkRepository
	logger zerolog.Logger
}

func NewIdentityLinkGraph(repo repository.LinkRepository, logger zerolog.Logger) IdentityLinkGraph {
	return &identityLinkGraph{
		repo:   repo,
		logger: logger.With().Str("component", "identity").Logger(),
	}
}

func (g *identityLinkGraph) LinkIdentities(emailA, emailB, provider string) error {
	emailA = strings.ToLower(strings.TrimSpace(emailA))
	emailB = strings.ToLower(strings.TrimSpace(emailB))
	if emailA == "" || emailB == "" || emailA == emailB {
		return nil
	}
	g.logger.Info().Str("email", emailA).Str("linked", emailB).Str("provider", provider).Msg("linking identities")
	return g.repo.CreatePair(emailA, emailB, provider)
}

func (g *identityLinkGraph) ResolveGroup(email string) ([]string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	group := []string{email}
	seen := map[string]bool{email: true}

	links, err := g.repo.FindByEmail(email)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		if !seen[link.LinkedEmail] {
			seen[link.LinkedEmail] = true
			group = append(group, link.LinkedEmail)
		}
	}
	return group, nil
}

func (g *identityLinkGraph) Unlink(emailA, emailB string) error {
	return g.repo.DeletePair(strings.ToLower(emailA), strings.ToLower(emailB))
}

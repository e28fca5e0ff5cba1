package usecase

import (
	"testing"

	"github.com/rs/zerolog"

	"mail2md-backend/internal/identity/domain"
)

// fakeLinkRepository mirrors the real one: CreatePair writes both
// directions of the edge.
type fakeLinkRepository struct {
	links       []domain.IdentityLink
	createCalls int
}

func (r *fakeLinkRepository) CreatePair(emailA, emailB, provider string) error {
	r.createCalls++
	r.links = append(r.links,
		domain.IdentityLink{Email: emailA, LinkedEmail: emailB, Provider: provider},
		domain.IdentityLink{Email: emailB, LinkedEmail: emailA, Provider: provider},
	)
	return nil
}

func (r *fakeLinkRepository) FindByEmail(email string) ([]domain.IdentityLink, error) {
	var out []domain.IdentityLink
	for _, l := range r.links {
		if l.Email == email {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLinkRepository) DeletePair(emailA, emailB string) error {
	kept := r.links[:0]
	for _, l := range r.links {
		if (l.Email == emailA && l.LinkedEmail == emailB) || (l.Email == emailB && l.LinkedEmail == emailA) {
			continue
		}
		kept = append(kept, l)
	}
	r.links = kept
	return nil
}

func newTestGraph() (IdentityLinkGraph, *fakeLinkRepository) {
	repo := &fakeLinkRepository{}
	return NewIdentityLinkGraph(repo, zerolog.Nop()), repo
}

func groupContains(group []string, email string) bool {
	for _, e := range group {
		if e == email {
			return true
		}
	}
	return false
}

func TestLinkIdentitiesIsSymmetric(t *testing.T) {
	g, _ := newTestGraph()
	if err := g.LinkIdentities("Personal@Example.com", "work@example.com", "microsoft"); err != nil {
		t.Fatalf("LinkIdentities: %v", err)
	}

	forward, err := g.ResolveGroup("personal@example.com")
	if err != nil {
		t.Fatalf("ResolveGroup: %v", err)
	}
	if !groupContains(forward, "work@example.com") {
		t.Errorf("forward group %v missing linked address", forward)
	}

	reverse, err := g.ResolveGroup("work@example.com")
	if err != nil {
		t.Fatalf("ResolveGroup: %v", err)
	}
	if !groupContains(reverse, "personal@example.com") {
		t.Errorf("reverse group %v missing linked address", reverse)
	}
}

func TestLinkIdentitiesIgnoresSelfAndEmpty(t *testing.T) {
	g, repo := newTestGraph()
	if err := g.LinkIdentities("a@example.com", "A@Example.com", "google"); err != nil {
		t.Fatalf("LinkIdentities self: %v", err)
	}
	if err := g.LinkIdentities("a@example.com", "", "google"); err != nil {
		t.Fatalf("LinkIdentities empty: %v", err)
	}
	if repo.createCalls != 0 {
		t.Errorf("repository written %d times for no-op links", repo.createCalls)
	}
}

func TestResolveGroupIsOneHopDeep(t *testing.T) {
	g, _ := newTestGraph()
	g.LinkIdentities("a@example.com", "b@example.com", "microsoft")
	g.LinkIdentities("b@example.com", "c@example.com", "microsoft")

	group, err := g.ResolveGroup("a@example.com")
	if err != nil {
		t.Fatalf("ResolveGroup: %v", err)
	}
	if !groupContains(group, "a@example.com") || !groupContains(group, "b@example.com") {
		t.Errorf("group %v missing direct members", group)
	}
	if groupContains(group, "c@example.com") {
		t.Errorf("group %v leaked a transitive link", group)
	}
}

func TestResolveGroupAlwaysIncludesSelf(t *testing.T) {
	g, _ := newTestGraph()
	group, err := g.ResolveGroup("lonely@example.com")
	if err != nil {
		t.Fatalf("ResolveGroup: %v", err)
	}
	if len(group) != 1 || group[0] != "lonely@example.com" {
		t.Errorf("group for an unlinked address = %v", group)
	}
}

func TestUnlinkRemovesBothDirections(t *testing.T) {
	g, _ := newTestGraph()
	g.LinkIdentities("a@example.com", "b@example.com", "google")
	if err := g.Unlink("A@example.com", "b@example.com"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}

	for _, email := range []string{"a@example.com", "b@example.com"} {
		group, err := g.ResolveGroup(email)
		if err != nil {
			t.Fatalf("ResolveGroup: %v", err)
		}
		if len(group) != 1 {
			t.Errorf("group for %s after unlink = %v", email, group)
		}
	}
}

// Package provider holds the storage backends and the router that picks
// one by name.
package provider

import (
	"context"
	"fmt"
	"time"

	storagedomain "mail2md-backend/internal/storage/domain"
	tokendomain "mail2md-backend/internal/token/domain"
)

// StorageProvider is the uniform contract every backend implements.
// SaveFile never returns an error for per-provider failures; they are
// encoded in the outcome so the fan-out can aggregate them.
type StorageProvider interface {
	Name() string
	SaveFile(ctx context.Context, userEmail, rootFolder, fileName string, content []byte) storagedomain.DeliveryOutcome
	ValidateConnection(ctx context.Context, userEmail string) bool
	ListFolders(ctx context.Context, userEmail, parentPath string) ([]storagedomain.FolderInfo, error)
}

// Router resolves provider names (including aliases) to implementations.
type Router struct {
	providers map[tokendomain.Provider]StorageProvider
}

func NewRouter(providers ...StorageProvider) *Router {
	r := &Router{providers: make(map[tokendomain.Provider]StorageProvider, len(providers))}
	for _, p := range providers {
		r.providers[tokendomain.Provider(p.Name())] = p
	}
	return r
}

// GetProvider resolves case-insensitively with aliases. An unknown name is
// a configuration error, not a runtime fallback.
func (r *Router) GetProvider(nameOrType string) (StorageProvider, error) {
	id, err := tokendomain.ParseProvider(nameOrType)
	if err != nil {
		return nil, err
	}
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", id)
	}
	return p, nil
}

// datedPath builds the destination path {root}/{yyyy}/{mm}/{dd}/{file}
// using zero-padded UTC components.
func datedPath(rootFolder, fileName string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s", rootFolder, now.Year(), int(now.Month()), now.Day(), fileName)
}

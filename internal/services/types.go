package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"
)

// TypeLister fetches document types from the backend.
type TypeLister interface {
	ListDocumentTypes(ctx context.Context) ([]string, error)
	ListPublicDocumentTypes(ctx context.Context) ([]string, error)
}

// DocumentTypes caches the two document type listings, which change only when the backend is
// reconfigured. Failed fetches are not cached.
type DocumentTypes struct {
	lister TypeLister
	cache  *cache.Cache
}

const (
	publicTypesKey = "public"
	adminTypesKey  = "admin"
)

// NewDocumentTypes creates a cache whose entries live for ttl.
func NewDocumentTypes(lister TypeLister, ttl time.Duration) DocumentTypes {
	return DocumentTypes{
		lister: lister,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// Public returns the types an inquiry can be scoped to.
func (d DocumentTypes) Public(ctx context.Context) ([]string, error) {
	return d.get(ctx, publicTypesKey, d.lister.ListPublicDocumentTypes)
}

// All returns the types a document can be assigned.
func (d DocumentTypes) All(ctx context.Context) ([]string, error) {
	return d.get(ctx, adminTypesKey, d.lister.ListDocumentTypes)
}

// Invalidate drops every cached listing.
func (d DocumentTypes) Invalidate() {
	d.cache.Flush()
}

func (d DocumentTypes) get(ctx context.Context, key string,
	fetch func(context.Context) ([]string, error),
) ([]string, error) {
	if v, found := d.cache.Get(key); found {
		return slices.Clone(v.([]string)), nil
	}

	types, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s document types: %w", key, err)
	}
	d.cache.SetDefault(key, slices.Clone(types))
	return types, nil
}

package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const revocationCacheKeyPrefix = "go-tenantquery::token_revocation::v1"

type CachedRevocationStore struct {
	base  Revoker
	cache repositorycache.CacheService
}

func NewCachedRevocationStore(base Revoker, cacheService repositorycache.CacheService) (*CachedRevocationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base revocation store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: revocation cache service is required")
	}
	return &CachedRevocationStore{base: base, cache: cacheService}, nil
}

// RevocationCacheKey returns go-tenantquery::token_revocation::v1::<token_id>
// with the token id URL-path escaped.
func RevocationCacheKey(tokenID string) (string, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return "", fmt.Errorf("sqlstore: token id is required")
	}
	return revocationCacheKeyPrefix + "::" + url.PathEscape(tokenID), nil
}

func (s *CachedRevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return false, fmt.Errorf("sqlstore: cached revocation store is not configured")
	}
	if strings.TrimSpace(tokenID) == "" {
		return false, nil
	}
	key, err := RevocationCacheKey(tokenID)
	if err != nil {
		return false, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (bool, error) {
		return s.base.IsRevoked(ctx, tokenID)
	})
}

func (s *CachedRevocationStore) Revoke(ctx context.Context, revocation Revocation) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached revocation store is not configured")
	}
	if err := s.base.Revoke(ctx, revocation); err != nil {
		return err
	}
	key, err := RevocationCacheKey(revocation.TokenID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, key)
}

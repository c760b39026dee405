package repository

import (
	"context"

	lru "github.com/hashicorp/golang-lru"

	"bazaarchat/internal/domain/entity"
	"bazaarchat/internal/domain/repository"
)

type cachedProfileRepository struct {
	inner repository.ProfileRepository
	cache *lru.Cache
}

// NewCachedProfileRepository keeps the last size successful lookups of inner.
func NewCachedProfileRepository(inner repository.ProfileRepository, size int) (repository.ProfileRepository, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &cachedProfileRepository{inner: inner, cache: cache}, nil
}

func (r *cachedProfileRepository) GetByIdentity(ctx context.Context, identity string) (*entity.Profile, error) {
	if v, ok := r.cache.Get(identity); ok {
		p := *v.(*entity.Profile)
		return &p, nil
	}

	profile, err := r.inner.GetByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}

	stored := *profile
	r.cache.Add(identity, &stored)
	return profile, nil
}

package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// CachedRepository serves doctor profiles from a short lived cache. Doctors are
// owned by the profile service and never written here, so a stale entry only
// delays an availability change by at most the TTL.
type CachedRepository struct {
	Repository
	doctors *cache.Cache
}

func NewCachedRepository(repo Repository, ttl time.Duration) *CachedRepository {
	return &CachedRepository{
		Repository: repo,
		doctors:    cache.New(ttl, 2*ttl),
	}
}

func (r *CachedRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	key := id.String()
	if v, found := r.doctors.Get(key); found {
		d := v.(Doctor)
		return &d, nil
	}

	d, err := r.Repository.GetDoctorByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.doctors.Set(key, *d, cache.DefaultExpiration)
	return d, nil
}

// internal/profiles/store.go
package profiles

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"autoapply-backend/internal/common/database"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/models"

	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

// Provider is the read-only view of user profiles the core depends on.
type Provider interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// CurrentProvider is a Provider that can also read past its cache.
type CurrentProvider interface {
	Provider
	CurrentProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

const cacheKeyPrefix = "profile:"

// Store reads profiles from Postgres through an optional Redis read-through cache.
type Store struct {
	db     *sql.DB
	cache  redis.Cmdable
	ttl    time.Duration
	logger logger.Logger
}

func NewStore(db *sql.DB, cache redis.Cmdable, ttl time.Duration, log logger.Logger) *Store {
	return &Store{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "profiles"}),
	}
}

const selectProfile = `
	SELECT user_id, email, phone, full_name, skills, experience_level, location,
	       desired_roles, preferred_locations, preferred_job_types, preferred_work_types,
	       salary_min, salary_max, salary_currency, onboarding_completed, package_tier
	FROM user_profiles WHERE user_id = $1`

// GetProfile returns the profile or a NOT_FOUND error.
func (s *Store) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if s.cache != nil && s.ttl > 0 {
		var cached models.UserProfile
		err := database.GetJSON(ctx, s.cache, cacheKeyPrefix+userID, &cached)
		if err == nil {
			return &cached, nil
		}
		if !stderrors.Is(err, database.ErrCacheMiss) {
			s.logger.Warn("profile cache read failed", map[string]interface{}{"userId": userID, "error": err})
		}
	}

	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, p)
	return p, nil
}

// CurrentProfile reads the profile from Postgres, skipping the cache, and
// replaces the cached copy. Scoring paths use it so a profile edit is seen
// on the next ingest or rescore.
func (s *Store) CurrentProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	p, err := s.load(ctx, userID)
	if errors.IsNotFound(err) {
		if err := s.Invalidate(ctx, userID); err != nil {
			s.logger.Warn("profile cache invalidate failed", map[string]interface{}{"userId": userID, "error": err})
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.remember(ctx, p)
	return p, nil
}

// Invalidate drops the cached copy so the next read sees profile changes.
func (s *Store) Invalidate(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cacheKeyPrefix+userID).Err()
}

func (s *Store) load(ctx context.Context, userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	err := s.db.QueryRowContext(ctx, selectProfile, userID).Scan(
		&p.UserID, &p.Email, &p.Phone, &p.FullName, pq.Array(&p.Skills), &p.ExperienceLevel, &p.Location,
		pq.Array(&p.Preferences.DesiredRoles), pq.Array(&p.Preferences.PreferredLocations),
		pq.Array(&p.Preferences.PreferredJobTypes), pq.Array(&p.Preferences.PreferredWorkTypes),
		&p.Preferences.SalaryRange.Min, &p.Preferences.SalaryRange.Max, &p.Preferences.SalaryRange.Currency,
		&p.OnboardingCompleted, &p.PackageTier,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("profile", userID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("select profile", err)
	}
	return &p, nil
}

func (s *Store) remember(ctx context.Context, p *models.UserProfile) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := database.SetJSON(ctx, s.cache, cacheKeyPrefix+p.UserID, p, s.ttl); err != nil {
		s.logger.Warn("profile cache write failed", map[string]interface{}{"userId": p.UserID, "error": err})
	}
}

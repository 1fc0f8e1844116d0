package profiles

import (
	"context"
	"testing"
	"time"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var profileColumns = []string{
	"user_id", "email", "phone", "full_name", "skills", "experience_level", "location",
	"desired_roles", "preferred_locations", "preferred_job_types", "preferred_work_types",
	"salary_min", "salary_max", "salary_currency", "onboarding_completed", "package_tier",
}

func profileRow() *sqlmock.Rows {
	return sqlmock.NewRows(profileColumns).AddRow(
		"u1", "u1@example.com", "+15550001111", "Ada L", "{go,sql}", "senior", "Berlin",
		"{backend}", "{Berlin}", "{full_time}", "{remote,hybrid}",
		70000, 90000, "EUR", true, "premium",
	)
}

func setup(t *testing.T) (*Store, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return NewStore(db, rdb, time.Minute, logger.NewTestLogger(t)), mock, mr
}

func TestGetProfile_ReadThroughCache(t *testing.T) {
	store, mock, mr := setup(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT user_id, email").
		WithArgs("u1").
		WillReturnRows(profileRow())

	p, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, p.Skills)
	assert.Equal(t, []string{"remote", "hybrid"}, p.Preferences.PreferredWorkTypes)
	assert.Equal(t, 90000, p.Preferences.SalaryRange.Max)
	assert.True(t, p.OnboardingCompleted)
	assert.True(t, mr.Exists("profile:u1"))

	// second read is served from Redis; no further query is expected
	cached, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, p, cached)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_NotFound(t *testing.T) {
	store, mock, _ := setup(t)

	mock.ExpectQuery("SELECT user_id, email").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(profileColumns))

	_, err := store.GetProfile(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfile_CacheDownFallsBackToDatabase(t *testing.T) {
	store, mock, mr := setup(t)
	mr.Close()

	mock.ExpectQuery("SELECT user_id, email").WithArgs("u1").WillReturnRows(profileRow())

	p, err := store.GetProfile(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
}

func TestCurrentProfile_SkipsStaleCache(t *testing.T) {
	store, mock, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("profile:u1", `{"userId":"u1","skills":["cobol"]}`))

	mock.ExpectQuery("SELECT user_id, email").WithArgs("u1").WillReturnRows(profileRow())

	p, err := store.CurrentProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, p.Skills)

	// the refreshed copy replaces the stale one
	cached, err := store.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "sql"}, cached.Skills)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentProfile_DeletedProfileDropsCache(t *testing.T) {
	store, mock, mr := setup(t)
	require.NoError(t, mr.Set("profile:u1", `{"userId":"u1"}`))

	mock.ExpectQuery("SELECT user_id, email").WithArgs("u1").WillReturnRows(sqlmock.NewRows(profileColumns))

	_, err := store.CurrentProfile(context.Background(), "u1")
	assert.True(t, errors.IsNotFound(err))
	assert.False(t, mr.Exists("profile:u1"))
}

func TestInvalidate(t *testing.T) {
	store, _, mr := setup(t)
	require.NoError(t, mr.Set("profile:u1", "{}"))

	require.NoError(t, store.Invalidate(context.Background(), "u1"))
	assert.False(t, mr.Exists("profile:u1"))
}

func TestCompleteness(t *testing.T) {
	assert.Equal(t, 0, Completeness(nil))
	assert.Equal(t, 0, Completeness(&models.UserProfile{}))

	full := &models.UserProfile{
		FullName: "Ada", Email: "a@b.co", Phone: "+1555", Location: "Berlin", ExperienceLevel: "senior",
		Skills: []string{"go"},
		Preferences: models.JobPreferences{
			DesiredRoles: []string{"backend"}, PreferredLocations: []string{"Berlin"},
			PreferredJobTypes: []string{"full_time"}, PreferredWorkTypes: []string{"remote"},
			SalaryRange: models.SalaryRange{Min: 1},
		},
	}
	assert.Equal(t, 100, Completeness(full))

	full.Phone = ""
	assert.Equal(t, 91, Completeness(full))
}

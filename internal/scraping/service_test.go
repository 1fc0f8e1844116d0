package scraping

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/jobs"
	"autoapply-backend/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test doubles and fixtures
// ==========================

type stubProfiles map[string]*models.UserProfile

func (s stubProfiles) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	p, ok := s[userID]
	if !ok {
		return nil, errors.NewNotFoundError("profile", userID)
	}
	return p, nil
}

type stubScraper struct {
	mu       sync.Mutex
	resp     *ScrapeResponse
	err      error
	requests []ScrapeRequest
}

func (s *stubScraper) ScrapeJobs(_ context.Context, req ScrapeRequest) (*ScrapeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.resp, s.err
}

type stubIngester struct {
	result   *jobs.IngestResult
	err      error
	postings []models.RawPosting
}

func (s *stubIngester) Ingest(_ context.Context, _, _ string, postings []models.RawPosting) (*jobs.IngestResult, error) {
	s.postings = postings
	return s.result, s.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	sessions []models.ScrapingSession
}

func (r *recordingPublisher) SessionFinished(_ context.Context, s *models.ScrapingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, *s)
	return nil
}

var (
	fixedNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	user     = models.Actor{ID: "u1", Role: models.RoleUser}
	admin    = models.Actor{ID: "admin-1", Role: models.RoleAdmin}

	testPackages = map[string]config.PackageConfig{
		"free":    {MaxSessionsPerDay: 1, MaxJobsPerPlatform: 10, Platforms: []string{"linkedin"}},
		"premium": {MaxSessionsPerDay: 10, MaxJobsPerPlatform: 50, Platforms: []string{"linkedin", "indeed"}},
	}
)

func readyProfile() *models.UserProfile {
	return &models.UserProfile{
		UserID:              "u1",
		Skills:              []string{"go", "postgres"},
		ExperienceLevel:     "senior",
		Location:            "Berlin",
		OnboardingCompleted: true,
		PackageTier:         "premium",
		Preferences: models.JobPreferences{
			DesiredRoles:       []string{"Backend Engineer"},
			PreferredWorkTypes: []string{"remote"},
			SalaryRange:        models.SalaryRange{Min: 70000, Max: 90000},
		},
	}
}

type fixture struct {
	svc       *Service
	mock      sqlmock.Sqlmock
	scraper   *stubScraper
	ingester  *stubIngester
	publisher *recordingPublisher
}

func newFixture(t *testing.T, profile *models.UserProfile) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		mock:      mock,
		scraper:   &stubScraper{},
		ingester:  &stubIngester{},
		publisher: &recordingPublisher{},
	}
	provider := stubProfiles{}
	if profile != nil {
		provider[profile.UserID] = profile
	}
	cfg := config.ScraperConfig{Timeout: 1000, MaxJobsPerPlatform: 25, Platforms: []string{"linkedin"}, MaxConcurrentSessions: 2}
	f.svc = NewService(db, provider, f.scraper, f.ingester, cfg, testPackages, nil, logger.NewTestLogger(t))
	f.svc.SetPublisher(f.publisher)
	f.svc.now = func() time.Time { return fixedNow }
	f.svc.newID = func() string { return "sess-1" }
	return f
}

// drain waits for background runs so expectations can be checked.
func (f *fixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Shutdown(ctx))
}

func sessionRows(sessions ...models.ScrapingSession) *sqlmock.Rows {
	rows := sqlmock.NewRows(sessionColumns)
	for _, s := range sessions {
		criteria, _ := json.Marshal(s.SearchCriteria)
		var completedAt interface{}
		if s.Timing.CompletedAt != nil {
			completedAt = *s.Timing.CompletedAt
		}
		rows.AddRow(
			s.SessionID, s.UserID, string(s.Status), criteria, s.Results.TotalJobsFound, s.Results.JobsSaved,
			s.Results.DuplicatesSkipped, s.Results.ErrorCount, []byte("[]"), []byte("[]"), []byte("{}"),
			s.Timing.StartedAt, completedAt, s.Timing.DurationMs,
		)
	}
	return rows
}

func storedSession(status models.SessionStatus) models.ScrapingSession {
	return models.ScrapingSession{
		SessionID: "sess-1",
		UserID:    "u1",
		Status:    status,
		Timing:    models.SessionTiming{StartedAt: fixedNow.Add(-time.Minute)},
	}
}

func (f *fixture) expectEligible(count int) {
	f.mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM scraping_sessions WHERE user_id = \\$1").
		WithArgs("u1", fixedNow.Truncate(24*time.Hour)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func (f *fixture) expectInsert() {
	f.mock.ExpectExec("INSERT INTO scraping_sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func (f *fixture) expectStart(affected int64) {
	f.mock.ExpectExec("UPDATE scraping_sessions SET status = 'in_progress'").
		WithArgs("sess-1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, affected))
}

// ==========================
// Trigger and run
// ==========================

func TestTrigger_CompletesSession(t *testing.T) {
	f := newFixture(t, readyProfile())
	f.scraper.resp = &ScrapeResponse{
		Jobs: []models.RawPosting{
			{Title: "Go Engineer", Company: "Acme"},
			{Title: "Go Engineer", Company: "Acme"},
			{Title: "", Company: "Nameless"},
		},
		PlatformResults: []models.PlatformResult{{Platform: "linkedin", JobsFound: 3, Success: true}},
		TotalJobsFound:  3,
		Errors:          []ScrapeError{{Platform: "indeed", Message: "captcha"}},
	}
	f.ingester.result = &jobs.IngestResult{
		JobsSaved:         1,
		DuplicatesSkipped: 1,
		Errors:            []jobs.IngestError{{Index: 2, Company: "Nameless", Code: errors.ErrCodeValidationFailed, Message: "title is required"}},
		JobIDs:            []string{"job-1"},
	}

	f.expectEligible(0)
	f.expectInsert()
	f.expectStart(1)
	f.mock.ExpectExec("UPDATE scraping_sessions SET status = 'completed'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := f.svc.Trigger(context.Background(), user, "")
	require.NoError(t, err)
	assert.Equal(t, &TriggerResult{SessionID: "sess-1", Initiated: true}, res)

	f.drain(t)
	require.NoError(t, f.mock.ExpectationsWereMet())

	require.Len(t, f.scraper.requests, 1)
	req := f.scraper.requests[0]
	assert.Equal(t, []string{"linkedin", "indeed"}, req.Settings.Platforms)
	assert.Equal(t, 50, req.Settings.MaxJobsPerPlatform)
	assert.Equal(t, 1000, req.Settings.TimeoutMs)
	assert.Equal(t, []string{"Backend Engineer"}, req.Criteria.Keywords)
	assert.Len(t, f.ingester.postings, 3)

	require.Len(t, f.publisher.sessions, 1)
	got := f.publisher.sessions[0]
	assert.Equal(t, models.SessionCompleted, got.Status)
	assert.Equal(t, models.SessionResults{TotalJobsFound: 3, JobsSaved: 1, DuplicatesSkipped: 1, ErrorCount: 1}, got.Results)
	assert.Equal(t, []string{"job-1"}, got.JobsCreated)
	assert.Equal(t, int64(0), got.Timing.DurationMs)
	require.Len(t, got.ErrorDetails, 2)
	assert.Equal(t, string(errors.ErrCodeUpstreamFailure), got.ErrorDetails[0].Code)
	assert.Equal(t, "indeed", got.ErrorDetails[0].Platform)
	assert.Equal(t, string(errors.ErrCodePartialIngestFailure), got.ErrorDetails[1].Code)
	assert.Equal(t, "#2", got.ErrorDetails[1].Posting)
}

func TestTrigger_PlatformErrorsDoNotCountAgainstTotals(t *testing.T) {
	f := newFixture(t, readyProfile())
	f.scraper.resp = &ScrapeResponse{
		Jobs:           []models.RawPosting{{Title: "Go Engineer", Company: "Acme"}, {Title: "SRE", Company: "Acme"}},
		TotalJobsFound: 2,
		Errors:         []ScrapeError{{Platform: "indeed", Message: "captcha"}},
	}
	f.ingester.result = &jobs.IngestResult{JobsSaved: 2, JobIDs: []string{"job-1", "job-2"}}

	f.expectEligible(0)
	f.expectInsert()
	f.expectStart(1)
	f.mock.ExpectExec("UPDATE scraping_sessions SET status = 'completed'").
		WithArgs("sess-1", 2, 2, 0, 0,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := f.svc.Trigger(context.Background(), user, "")
	require.NoError(t, err)
	f.drain(t)
	require.NoError(t, f.mock.ExpectationsWereMet())

	require.Len(t, f.publisher.sessions, 1)
	got := f.publisher.sessions[0]
	r := got.Results
	assert.Equal(t, r.TotalJobsFound, r.JobsSaved+r.DuplicatesSkipped+r.ErrorCount)
	require.Len(t, got.ErrorDetails, 1)
	assert.Equal(t, "indeed", got.ErrorDetails[0].Platform)
}

func TestTrigger_ScraperFailureMarksFailed(t *testing.T) {
	f := newFixture(t, readyProfile())
	f.scraper.err = errors.NewUpstreamError("scraper", stderrors.New("scraper returned 502"))

	f.expectEligible(0)
	f.expectInsert()
	f.expectStart(1)
	f.mock.ExpectExec("UPDATE scraping_sessions SET status = 'failed'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := f.svc.Trigger(context.Background(), user, "u1")
	require.NoError(t, err)

	f.drain(t)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Nil(t, f.ingester.postings)

	require.Len(t, f.publisher.sessions, 1)
	got := f.publisher.sessions[0]
	assert.Equal(t, models.SessionFailed, got.Status)
	require.Len(t, got.ErrorDetails, 1)
	assert.Equal(t, string(errors.ErrCodeUpstreamFailure), got.ErrorDetails[0].Code)
	assert.Contains(t, got.ErrorDetails[0].Message, "502")
}

func TestTrigger_NotEligible(t *testing.T) {
	t.Run("onboarding incomplete", func(t *testing.T) {
		p := readyProfile()
		p.OnboardingCompleted = false
		f := newFixture(t, p)

		res, err := f.svc.Trigger(context.Background(), user, "u1")
		require.NoError(t, err)
		assert.False(t, res.Initiated)
		assert.Equal(t, "onboarding not completed", res.Reason)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("daily limit reached", func(t *testing.T) {
		p := readyProfile()
		p.PackageTier = "free"
		f := newFixture(t, p)
		f.expectEligible(1)

		res, err := f.svc.Trigger(context.Background(), user, "u1")
		require.NoError(t, err)
		assert.False(t, res.Initiated)
		assert.Contains(t, res.Reason, "daily session limit")
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("unknown tier falls back to free", func(t *testing.T) {
		p := readyProfile()
		p.PackageTier = "enterprise"
		f := newFixture(t, p)
		f.expectEligible(1)

		res, err := f.svc.Trigger(context.Background(), user, "u1")
		require.NoError(t, err)
		assert.False(t, res.Initiated)
	})
}

func TestTrigger_Authorization(t *testing.T) {
	f := newFixture(t, readyProfile())

	_, err := f.svc.Trigger(context.Background(), models.Actor{ID: "u2", Role: models.RoleUser}, "u1")
	assert.True(t, errors.IsForbidden(err))

	_, err = f.svc.Trigger(context.Background(), admin, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestTrigger_AfterShutdown(t *testing.T) {
	f := newFixture(t, readyProfile())
	f.drain(t)

	_, err := f.svc.Trigger(context.Background(), user, "u1")
	assert.True(t, errors.IsInvalidState(err))
}

func TestRun_SkipsWhenNoLongerInitiated(t *testing.T) {
	f := newFixture(t, readyProfile())
	f.expectStart(0)

	session := storedSession(models.SessionInitiated)
	f.svc.run(context.Background(), &session, readyProfile(), testPackages["premium"])

	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.scraper.requests)
	assert.Empty(t, f.publisher.sessions)
}

func TestRun_CancelledSessionKeepsCancelledState(t *testing.T) {
	f := newFixture(t, readyProfile())
	f.scraper.resp = &ScrapeResponse{Jobs: []models.RawPosting{}}
	f.ingester.result = &jobs.IngestResult{}

	f.expectStart(1)
	f.mock.ExpectExec("UPDATE scraping_sessions SET status = 'completed'").
		WillReturnResult(sqlmock.NewResult(0, 0))

	session := storedSession(models.SessionInitiated)
	f.svc.run(context.Background(), &session, readyProfile(), testPackages["premium"])

	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.publisher.sessions)
	assert.Equal(t, models.SessionInProgress, session.Status)
}

// ==========================
// Cancel, Get, History
// ==========================

func TestCancel(t *testing.T) {
	f := newFixture(t, readyProfile())

	cancelled := storedSession(models.SessionCancelled)
	completedAt := fixedNow
	cancelled.Timing.CompletedAt = &completedAt
	cancelled.Timing.DurationMs = 60000

	f.mock.ExpectQuery("SELECT session_id, .* FROM scraping_sessions WHERE session_id = \\$1").
		WithArgs("sess-1").
		WillReturnRows(sessionRows(storedSession(models.SessionInProgress)))
	f.mock.ExpectQuery("UPDATE scraping_sessions SET status = 'cancelled'.* RETURNING session_id").
		WillReturnRows(sessionRows(cancelled))

	interrupted := false
	f.svc.running["sess-1"] = func() { interrupted = true }

	got, err := f.svc.Cancel(context.Background(), user, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCancelled, got.Status)
	assert.Equal(t, int64(60000), got.Timing.DurationMs)
	assert.True(t, interrupted)
	require.Len(t, f.publisher.sessions, 1)
	assert.Equal(t, models.SessionCancelled, f.publisher.sessions[0].Status)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancel_Rejections(t *testing.T) {
	t.Run("terminal session", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectQuery("SELECT session_id").
			WillReturnRows(sessionRows(storedSession(models.SessionCompleted)))

		_, err := f.svc.Cancel(context.Background(), user, "sess-1")
		assert.True(t, errors.IsInvalidState(err))
	})

	t.Run("finished concurrently", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectQuery("SELECT session_id").
			WillReturnRows(sessionRows(storedSession(models.SessionInProgress)))
		f.mock.ExpectQuery("UPDATE scraping_sessions SET status = 'cancelled'").
			WillReturnRows(sqlmock.NewRows(sessionColumns))

		_, err := f.svc.Cancel(context.Background(), user, "sess-1")
		assert.True(t, errors.IsInvalidState(err))
		assert.Empty(t, f.publisher.sessions)
	})

	t.Run("other user", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectQuery("SELECT session_id").
			WillReturnRows(sessionRows(storedSession(models.SessionInProgress)))

		_, err := f.svc.Cancel(context.Background(), models.Actor{ID: "u2", Role: models.RoleUser}, "sess-1")
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("SELECT session_id").
		WillReturnRows(sqlmock.NewRows(sessionColumns))

	_, err := f.svc.Get(context.Background(), admin, "missing")
	assert.True(t, errors.IsNotFound(err))
}

func TestHistory(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("SELECT session_id, .* FROM scraping_sessions WHERE .*user_id.* ORDER BY started_at DESC, session_id ASC LIMIT 20").
		WillReturnRows(sessionRows(storedSession(models.SessionCompleted), storedSession(models.SessionFailed)))

	sessions, err := f.svc.History(context.Background(), user, "", 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, models.SessionFailed, sessions[1].Status)
	assert.Equal(t, []string{}, sessions[0].JobsCreated)
	require.NoError(t, f.mock.ExpectationsWereMet())

	_, err = f.svc.History(context.Background(), user, "u2", 10)
	assert.True(t, errors.IsForbidden(err))
}

func TestHistory_AdminSeesEveryone(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("SELECT session_id, .* FROM scraping_sessions ORDER BY started_at DESC, session_id ASC LIMIT 100").
		WillReturnRows(sessionRows())

	sessions, err := f.svc.History(context.Background(), admin, "", 500)
	require.NoError(t, err)
	assert.Empty(t, sessions)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

// ==========================
// Reaper and criteria
// ==========================

func TestReapStale(t *testing.T) {
	f := newFixture(t, nil)
	cutoff := fixedNow.Add(-30 * time.Minute)
	f.mock.ExpectQuery("UPDATE scraping_sessions SET status = 'failed'.* RETURNING session_id, user_id").
		WithArgs(cutoff, sqlmock.AnyArg(), fixedNow, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id"}).AddRow("sess-9", "u3"))

	n, err := f.svc.ReapStale(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.Len(t, f.publisher.sessions, 1)
	assert.Equal(t, "sess-9", f.publisher.sessions[0].SessionID)
	assert.Equal(t, models.SessionFailed, f.publisher.sessions[0].Status)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBuildCriteria(t *testing.T) {
	c := BuildCriteria(readyProfile())
	assert.Equal(t, []string{"Backend Engineer"}, c.Keywords)
	assert.Equal(t, []string{"Berlin"}, c.Locations)
	assert.Equal(t, []string{"remote"}, c.WorkTypes)
	assert.Equal(t, 70000, c.SalaryMin)

	p := &models.UserProfile{Skills: []string{"a", "b", "c", "d", "e", "f"}}
	c = BuildCriteria(p)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, c.Keywords)
	assert.Equal(t, []string{}, c.Locations)
	assert.Equal(t, []string{}, c.JobTypes)
}

func TestZeebePublisher(t *testing.T) {
	var got struct {
		name, key string
		vars      map[string]interface{}
	}
	pub := NewZeebePublisher(publishFunc(func(_ context.Context, name, key string, vars interface{}) error {
		got.name, got.key = name, key
		got.vars = vars.(map[string]interface{})
		return nil
	}))

	s := storedSession(models.SessionCompleted)
	s.Results.JobsSaved = 4
	require.NoError(t, pub.SessionFinished(context.Background(), &s))
	assert.Equal(t, SessionFinishedMessage, got.name)
	assert.Equal(t, "sess-1", got.key)
	assert.Equal(t, 4, got.vars["jobsSaved"])
	assert.Equal(t, models.SessionCompleted, got.vars["status"])
}

type publishFunc func(ctx context.Context, name, key string, vars interface{}) error

func (f publishFunc) PublishMessage(ctx context.Context, name, key string, vars interface{}) error {
	return f(ctx, name, key, vars)
}

// internal/scraping/service.go
package scraping

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/database"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/common/metrics"
	"autoapply-backend/internal/common/observability"
	"autoapply-backend/internal/jobs"
	"autoapply-backend/internal/models"
	"autoapply-backend/internal/profiles"

	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
)

// Ingester stores the postings of one session.
type Ingester interface {
	Ingest(ctx context.Context, userID, sessionID string, postings []models.RawPosting) (*jobs.IngestResult, error)
}

// CompletionPublisher is told about every session that reaches a terminal state.
type CompletionPublisher interface {
	SessionFinished(ctx context.Context, session *models.ScrapingSession) error
}

type TriggerResult struct {
	SessionID string `json:"sessionId,omitempty"`
	Initiated bool   `json:"initiated"`
	Reason    string `json:"reason,omitempty"`
}

const (
	defaultMaxConcurrent = 4
	defaultScrapeTimeout = 5 * time.Minute
	defaultHistoryLimit  = 20
	maxHistoryLimit      = 100
	defaultTier          = "free"
	writeTimeout         = 10 * time.Second
	maxDefaultKeywords   = 5
)

type Service struct {
	db        *sql.DB
	sess      *dbr.Session
	profiles  profiles.Provider
	scraper   Scraper
	ingester  Ingester
	publisher CompletionPublisher
	obs       *observability.Observability
	cfg       config.ScraperConfig
	packages  map[string]config.PackageConfig
	logger    logger.Logger

	sem     chan struct{}
	baseCtx context.Context
	stopAll context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// NewService builds the session orchestrator. obs may be nil.
func NewService(
	db *sql.DB,
	provider profiles.Provider,
	scraper Scraper,
	ingester Ingester,
	cfg config.ScraperConfig,
	packages map[string]config.PackageConfig,
	obs *observability.Observability,
	log logger.Logger,
) *Service {
	if cfg.MaxConcurrentSessions <= 0 {
		cfg.MaxConcurrentSessions = defaultMaxConcurrent
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Service{
		db:       db,
		sess:     database.NewDBRSession(db),
		profiles: provider,
		scraper:  scraper,
		ingester: ingester,
		obs:      obs,
		cfg:      cfg,
		packages: packages,
		logger:   log.WithFields(map[string]interface{}{"component": "scraping"}),
		sem:      make(chan struct{}, cfg.MaxConcurrentSessions),
		baseCtx:  baseCtx,
		stopAll:  stop,
		running:  make(map[string]context.CancelFunc),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

func (s *Service) SetPublisher(p CompletionPublisher) {
	s.publisher = p
}

// Trigger starts a scraping session for userID when the user is eligible.
// An ineligible user is not an error: the result carries the reason and
// nothing is written. The session runs in the background; Trigger returns as
// soon as the session row exists.
func (s *Service) Trigger(ctx context.Context, actor models.Actor, userID string) (*TriggerResult, error) {
	if userID == "" {
		userID = actor.ID
	}
	if !actor.IsAdmin() && !actor.Owns(userID) {
		return nil, errors.NewForbiddenError("cannot start a scraping session for another user")
	}
	if s.isClosed() {
		return nil, errors.NewInvalidStateError("scraping service is shutting down")
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(map[string]interface{}{"userId": userID})
	pkg := s.packageFor(profile.PackageTier)
	reason, err := s.eligibility(ctx, profile, pkg)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		log.Info("scraping session not initiated", map[string]interface{}{
			"reason":       reason,
			"tier":         profile.PackageTier,
			"completeness": profiles.Completeness(profile),
		})
		return &TriggerResult{Initiated: false, Reason: reason}, nil
	}

	now := s.now()
	session := &models.ScrapingSession{
		SessionID:       s.newID(),
		UserID:          userID,
		Status:          models.SessionInitiated,
		SearchCriteria:  BuildCriteria(profile),
		PlatformResults: []models.PlatformResult{},
		Timing:          models.SessionTiming{StartedAt: now},
		ErrorDetails:    []models.SessionError{},
		JobsCreated:     []string{},
	}
	if _, err := s.db.ExecContext(ctx, insertSession,
		session.SessionID, session.UserID, session.Status, mustJSON(session.SearchCriteria), now,
	); err != nil {
		return nil, errors.NewDatabaseError("insert scraping session", err)
	}

	log.Info("scraping session initiated", map[string]interface{}{
		"sessionId": session.SessionID,
		"actor":     actor.ID,
		"platforms": s.platformsFor(pkg),
	})
	s.launch(session, profile, pkg)
	return &TriggerResult{SessionID: session.SessionID, Initiated: true}, nil
}

func (s *Service) eligibility(ctx context.Context, p *models.UserProfile, pkg config.PackageConfig) (string, error) {
	if !p.OnboardingCompleted {
		return "onboarding not completed", nil
	}
	if pkg.MaxSessionsPerDay > 0 {
		var today int
		dayStart := s.now().UTC().Truncate(24 * time.Hour)
		if err := s.db.QueryRowContext(ctx, countSessionsSince, p.UserID, dayStart).Scan(&today); err != nil {
			return "", errors.NewDatabaseError("count scraping sessions", err)
		}
		if today >= pkg.MaxSessionsPerDay {
			return fmt.Sprintf("daily session limit of %d reached", pkg.MaxSessionsPerDay), nil
		}
	}
	return "", nil
}

func (s *Service) packageFor(tier string) config.PackageConfig {
	if pkg, ok := s.packages[tier]; ok {
		return pkg
	}
	return s.packages[defaultTier]
}

func (s *Service) platformsFor(pkg config.PackageConfig) []string {
	if len(pkg.Platforms) > 0 {
		return pkg.Platforms
	}
	return s.cfg.Platforms
}

// BuildCriteria snapshots the profile's search preferences. Desired roles
// drive the keywords; without any, the leading skills stand in.
func BuildCriteria(p *models.UserProfile) models.SearchCriteria {
	c := models.SearchCriteria{
		Keywords:        append([]string{}, p.Preferences.DesiredRoles...),
		Locations:       append([]string{}, p.Preferences.PreferredLocations...),
		JobTypes:        append([]string{}, p.Preferences.PreferredJobTypes...),
		WorkTypes:       append([]string{}, p.Preferences.PreferredWorkTypes...),
		ExperienceLevel: p.ExperienceLevel,
		SalaryMin:       p.Preferences.SalaryRange.Min,
		SalaryMax:       p.Preferences.SalaryRange.Max,
	}
	if len(c.Keywords) == 0 {
		for i, skill := range p.Skills {
			if i == maxDefaultKeywords {
				break
			}
			c.Keywords = append(c.Keywords, skill)
		}
	}
	if len(c.Locations) == 0 && p.Location != "" {
		c.Locations = []string{p.Location}
	}
	return c
}

func (s *Service) request(session *models.ScrapingSession, p *models.UserProfile, pkg config.PackageConfig) ScrapeRequest {
	maxJobs := pkg.MaxJobsPerPlatform
	if maxJobs <= 0 {
		maxJobs = s.cfg.MaxJobsPerPlatform
	}
	return ScrapeRequest{
		SessionID: session.SessionID,
		UserID:    session.UserID,
		Criteria:  session.SearchCriteria,
		ProfileSummary: ProfileSummary{
			Skills:          append([]string{}, p.Skills...),
			ExperienceLevel: p.ExperienceLevel,
			Location:        p.Location,
		},
		Settings: ScrapeSettings{
			MaxJobsPerPlatform: maxJobs,
			Platforms:          s.platformsFor(pkg),
			TimeoutMs:          int(s.scrapeTimeout().Milliseconds()),
		},
	}
}

func (s *Service) scrapeTimeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return time.Duration(s.cfg.Timeout) * time.Millisecond
	}
	return defaultScrapeTimeout
}

func (s *Service) launch(session *models.ScrapingSession, p *models.UserProfile, pkg config.PackageConfig) {
	runCtx, cancel := context.WithCancel(s.baseCtx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		s.finishFailed(s.logger.WithFields(map[string]interface{}{"sessionId": session.SessionID}),
			session, interruptedError(s.now(), stderrors.New("service shutting down")))
		return
	}
	s.running[session.SessionID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()
	metrics.ScrapingSessionsActive.Inc()

	go func() {
		defer s.wg.Done()
		defer metrics.ScrapingSessionsActive.Dec()
		defer s.release(session.SessionID)
		s.run(runCtx, session, p, pkg)
	}()
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.running[sessionID]; ok {
		cancel()
		delete(s.running, sessionID)
	}
}

// run owns the session's terminal write. Every terminal write is conditional
// on the session still being live, so a concurrent Cancel always wins.
func (s *Service) run(ctx context.Context, session *models.ScrapingSession, p *models.UserProfile, pkg config.PackageConfig) {
	ctx, span := s.obs.StartSpan(ctx, "scraping.session",
		attribute.String("session.id", session.SessionID),
		attribute.String("user.id", session.UserID),
	)
	defer span.End()

	log := s.logger.WithFields(map[string]interface{}{
		"sessionId": session.SessionID,
		"userId":    session.UserID,
	})

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		s.finishFailed(log, session, interruptedError(s.now(), ctx.Err()))
		return
	}

	started, err := s.markInProgress(session.SessionID)
	if err != nil {
		log.Error("failed to mark session in progress", map[string]interface{}{"error": err.Error()})
		s.finishFailed(log, session, sessionError(s.now(), err))
		return
	}
	if !started {
		log.Info("session no longer initiated, skipping scrape", nil)
		return
	}
	session.Status = models.SessionInProgress

	callCtx, cancel := context.WithTimeout(ctx, s.scrapeTimeout())
	resp, err := s.scraper.ScrapeJobs(callCtx, s.request(session, p, pkg))
	cancel()
	if err != nil {
		span.RecordError(err)
		entry := models.SessionError{
			Timestamp: s.now(),
			Code:      string(errors.ErrCodeUpstreamFailure),
			Message:   err.Error(),
		}
		if ctx.Err() != nil {
			entry = interruptedError(s.now(), ctx.Err())
		}
		log.Warn("scraper call failed", map[string]interface{}{"error": err.Error()})
		s.finishFailed(log, session, entry)
		return
	}

	result, err := s.ingester.Ingest(ctx, session.UserID, session.SessionID, resp.Jobs)
	if err != nil {
		span.RecordError(err)
		log.Warn("ingest aborted", map[string]interface{}{"error": err.Error()})
		s.finishFailed(log, session, interruptedError(s.now(), err))
		return
	}

	s.finishCompleted(log, session, resp, result)
}

func (s *Service) markInProgress(sessionID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, markInProgress, sessionID, s.now())
	if err != nil {
		return false, errors.NewDatabaseError("start scraping session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewDatabaseError("start scraping session", err)
	}
	return n == 1, nil
}

func (s *Service) finishCompleted(log logger.Logger, session *models.ScrapingSession, resp *ScrapeResponse, result *jobs.IngestResult) {
	now := s.now()

	total := resp.TotalJobsFound
	if total == 0 {
		total = len(resp.Jobs)
	}
	errorCount := len(result.Errors)
	accounted := result.JobsSaved + result.DuplicatesSkipped + errorCount
	if accounted != total {
		log.Warn("scraping totals do not reconcile", map[string]interface{}{
			"totalJobsFound":    total,
			"jobsSaved":         result.JobsSaved,
			"duplicatesSkipped": result.DuplicatesSkipped,
			"errors":            errorCount,
		})
	}

	// Platform errors stay in errorDetails only; errorCount counts postings that failed ingest.
	details := []models.SessionError{}
	for _, e := range resp.Errors {
		details = append(details, models.SessionError{
			Timestamp: now,
			Code:      string(errors.ErrCodeUpstreamFailure),
			Message:   e.Message,
			Platform:  e.Platform,
		})
	}
	for _, e := range result.Errors {
		details = append(details, models.SessionError{
			Timestamp: now,
			Code:      string(errors.ErrCodePartialIngestFailure),
			Message:   fmt.Sprintf("%s: %s", e.Code, e.Message),
			Posting:   postingLabel(e),
		})
	}
	platforms := resp.PlatformResults
	if platforms == nil {
		platforms = []models.PlatformResult{}
	}

	session.Results = models.SessionResults{
		TotalJobsFound:    total,
		JobsSaved:         result.JobsSaved,
		DuplicatesSkipped: result.DuplicatesSkipped,
		ErrorCount:        errorCount,
	}
	session.PlatformResults = platforms
	session.ErrorDetails = details
	session.JobsCreated = result.JobIDs
	duration := now.Sub(session.Timing.StartedAt).Milliseconds()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, completeSession,
		session.SessionID, total, result.JobsSaved, result.DuplicatesSkipped, errorCount,
		mustJSON(platforms), mustJSON(details), pq.Array(result.JobIDs),
		now, duration, pq.Array(activeStatuses),
	)
	if !s.applied(log, res, err) {
		return
	}

	session.Status = models.SessionCompleted
	session.Timing.CompletedAt = &now
	session.Timing.DurationMs = duration
	if len(result.Errors) > 0 {
		log.Warn("session completed with ingest failures", map[string]interface{}{
			"error": errors.NewPartialIngestError(len(result.Errors), total).Error(),
		})
	}
	s.afterFinish(log, session)
}

func (s *Service) finishFailed(log logger.Logger, session *models.ScrapingSession, entry models.SessionError) {
	now := s.now()
	duration := now.Sub(session.Timing.StartedAt).Milliseconds()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	res, err := s.db.ExecContext(ctx, failSession,
		session.SessionID, mustJSON([]models.SessionError{entry}), now, duration, pq.Array(activeStatuses),
	)
	if !s.applied(log, res, err) {
		return
	}

	session.Status = models.SessionFailed
	session.ErrorDetails = append(session.ErrorDetails, entry)
	session.Results.ErrorCount++
	session.Timing.CompletedAt = &now
	session.Timing.DurationMs = duration
	s.afterFinish(log, session)
}

// applied reports whether a guarded terminal write changed the row.
func (s *Service) applied(log logger.Logger, res sql.Result, err error) bool {
	if err != nil {
		log.Error("failed to record session outcome", map[string]interface{}{"error": err.Error()})
		return false
	}
	n, err := res.RowsAffected()
	if err != nil {
		log.Error("failed to record session outcome", map[string]interface{}{"error": err.Error()})
		return false
	}
	if n == 0 {
		log.Info("session already terminal, outcome discarded", nil)
		return false
	}
	return true
}

func (s *Service) afterFinish(log logger.Logger, session *models.ScrapingSession) {
	metrics.ScrapingSessions.WithLabelValues(string(session.Status)).Inc()
	metrics.ScrapingDuration.Observe(float64(session.Timing.DurationMs) / 1000)
	log.Info("scraping session finished", map[string]interface{}{
		"status":            session.Status,
		"totalJobsFound":    session.Results.TotalJobsFound,
		"jobsSaved":         session.Results.JobsSaved,
		"duplicatesSkipped": session.Results.DuplicatesSkipped,
		"errorCount":        session.Results.ErrorCount,
		"duration_ms":       session.Timing.DurationMs,
	})
	s.publish(log, session)
}

func (s *Service) publish(log logger.Logger, session *models.ScrapingSession) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.publisher.SessionFinished(ctx, session); err != nil {
		log.Warn("failed to publish session completion", map[string]interface{}{"error": err.Error()})
	}
}

func sessionError(at time.Time, err error) models.SessionError {
	return models.SessionError{
		Timestamp: at,
		Code:      string(errors.CodeOf(err)),
		Message:   err.Error(),
	}
}

func interruptedError(at time.Time, err error) models.SessionError {
	return models.SessionError{
		Timestamp: at,
		Code:      string(errors.ErrCodeTimeout),
		Message:   "session interrupted: " + err.Error(),
	}
}

func postingLabel(e jobs.IngestError) string {
	switch {
	case e.Title != "" && e.Company != "":
		return e.Title + " @ " + e.Company
	case e.Title != "":
		return e.Title
	default:
		return fmt.Sprintf("#%d", e.Index)
	}
}

// Cancel stops a live session. The cancelled row is written here; the
// in-flight run, if any, is interrupted and its own terminal write is dropped.
func (s *Service) Cancel(ctx context.Context, actor models.Actor, sessionID string) (*models.ScrapingSession, error) {
	current, err := s.Get(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, errors.NewInvalidStateError(fmt.Sprintf("session is already %s", current.Status))
	}

	now := s.now()
	row := s.db.QueryRowContext(ctx, cancelSession,
		sessionID, now, now.Sub(current.Timing.StartedAt).Milliseconds(), pq.Array(activeStatuses))
	session, err := scanSession(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewInvalidStateError("session finished before it could be cancelled")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("cancel scraping session", err)
	}

	s.mu.Lock()
	if cancel, ok := s.running[sessionID]; ok {
		cancel()
	}
	s.mu.Unlock()

	s.afterFinish(s.logger.WithFields(map[string]interface{}{
		"sessionId": sessionID,
		"userId":    session.UserID,
		"actor":     actor.ID,
	}), session)
	return session, nil
}

// Get returns a session visible to actor. Sessions of other users read as not found.
func (s *Service) Get(ctx context.Context, actor models.Actor, sessionID string) (*models.ScrapingSession, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM scraping_sessions WHERE session_id = $1", sessionID)
	session, err := scanSession(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("scraping session", sessionID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("load scraping session", err)
	}
	if !actor.IsAdmin() && !actor.Owns(session.UserID) {
		return nil, errors.NewNotFoundError("scraping session", sessionID)
	}
	return session, nil
}

// History lists sessions newest first. Admins may pass an empty userID to see everyone.
func (s *Service) History(ctx context.Context, actor models.Actor, userID string, limit int) ([]models.ScrapingSession, error) {
	if userID == "" && !actor.IsAdmin() {
		userID = actor.ID
	}
	if userID != "" && !actor.IsAdmin() && !actor.Owns(userID) {
		return nil, errors.NewForbiddenError("cannot read another user's scraping history")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	stmt := s.sess.Select(sessionColumns...).From("scraping_sessions")
	if userID != "" {
		stmt = stmt.Where(dbr.Eq("user_id", userID))
	}
	rows, err := stmt.
		OrderDir("started_at", false).
		OrderDir("session_id", true).
		Limit(uint64(limit)).
		RowsContext(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("list scraping sessions", err)
	}
	sessions, err := scanSessions(rows)
	if err != nil {
		return nil, errors.NewDatabaseError("list scraping sessions", err)
	}
	return sessions, nil
}

// ReapStale fails sessions stuck in a live state since before cutoff that are
// not running in this process, e.g. after a crash. Returns the number reaped.
func (s *Service) ReapStale(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	live := make([]string, 0, len(s.running))
	for id := range s.running {
		live = append(live, id)
	}
	s.mu.Unlock()

	now := s.now()
	entry := models.SessionError{
		Timestamp: now,
		Code:      string(errors.ErrCodeTimeout),
		Message:   "session abandoned before reaching a terminal state",
	}
	rows, err := s.db.QueryContext(ctx, reapSessions,
		cutoff, mustJSON([]models.SessionError{entry}), now, pq.Array(activeStatuses), pq.Array(live))
	if err != nil {
		return 0, errors.NewDatabaseError("reap stale sessions", err)
	}
	defer rows.Close()

	var reaped []*models.ScrapingSession
	for rows.Next() {
		session := &models.ScrapingSession{Status: models.SessionFailed, ErrorDetails: []models.SessionError{entry}}
		if err := rows.Scan(&session.SessionID, &session.UserID); err != nil {
			return 0, errors.NewDatabaseError("reap stale sessions", err)
		}
		session.Timing.CompletedAt = &now
		reaped = append(reaped, session)
	}
	if err := rows.Err(); err != nil {
		return 0, errors.NewDatabaseError("reap stale sessions", err)
	}

	for _, session := range reaped {
		metrics.ScrapingSessions.WithLabelValues(string(models.SessionFailed)).Inc()
		s.logger.Warn("reaped stale scraping session", map[string]interface{}{
			"sessionId": session.SessionID,
			"userId":    session.UserID,
		})
		s.publish(s.logger, session)
	}
	return int64(len(reaped)), nil
}

// Shutdown stops accepting sessions and waits for in-flight ones. When ctx
// expires first the remaining runs are interrupted and recorded as failed.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.stopAll()
		return nil
	case <-ctx.Done():
		s.stopAll()
		select {
		case <-done:
		case <-time.After(writeTimeout):
		}
		return ctx.Err()
	}
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// internal/jobs/service.go
package jobs

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/database"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/matching"
	"autoapply-backend/internal/models"
	"autoapply-backend/internal/profiles"

	"github.com/google/uuid"
)

// Indexer mirrors job writes into a secondary search index.
type Indexer interface {
	Index(ctx context.Context, job *models.Job) error
	MarkStatus(ctx context.Context, ids []string, status models.JobStatus) error
}

// Service owns the jobs table: ingestion, visibility, review and rescoring.
type Service struct {
	db       *sql.DB
	profiles profiles.Provider
	searcher Searcher
	indexer  Indexer
	cfg      config.SearchConfig
	logger   logger.Logger
	now      func() time.Time
	newID    func() string
}

// NewService wires the job manager. indexer may be nil when no search index is configured.
func NewService(db *sql.DB, provider profiles.Provider, searcher Searcher, indexer Indexer, cfg config.SearchConfig, log logger.Logger) *Service {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	return &Service{
		db:       db,
		profiles: provider,
		searcher: searcher,
		indexer:  indexer,
		cfg:      cfg,
		logger:   log.WithFields(map[string]interface{}{"component": "jobs"}),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// currentProfile reads past the profile cache when the provider allows it, so
// scores follow the latest profile.
func (s *Service) currentProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	if c, ok := s.profiles.(profiles.CurrentProvider); ok {
		return c.CurrentProfile(ctx, userID)
	}
	return s.profiles.GetProfile(ctx, userID)
}

// Get returns the job when it is visible to actor, NOT_FOUND otherwise.
func (s *Service) Get(ctx context.Context, actor models.Actor, id string) (*models.Job, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(actor, job) {
		return nil, errors.NewNotFoundError("job", id)
	}
	return job, nil
}

func visible(actor models.Actor, job *models.Job) bool {
	if actor.IsAdmin() {
		return true
	}
	return actor.Owns(job.TargetUserID) && job.IsApplicable()
}

func (s *Service) load(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM jobs WHERE id = $1", id)
	job, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get job", err)
	}
	return job, nil
}

// Search applies visibility rules and pagination limits before delegating to the configured backend.
func (s *Service) Search(ctx context.Context, actor models.Actor, p SearchParams) (*SearchResult, error) {
	if !actor.IsAdmin() {
		p.TargetUserID = actor.ID
		p.Status = models.JobStatusActive
		p.ReviewStatus = models.ReviewApproved
	}
	if p.Limit <= 0 {
		p.Limit = s.cfg.DefaultLimit
	}
	if p.Limit > s.cfg.MaxLimit {
		p.Limit = s.cfg.MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if err := normalizeSort(&p); err != nil {
		return nil, err
	}
	return s.searcher.Search(ctx, p)
}

const reviewJob = `
	UPDATE jobs
	SET admin_review_status = $2, admin_notes = $3, reviewed_by = $4, reviewed_at = $5, updated_at = $5
	WHERE id = $1
	RETURNING `

// Review records an admin decision. Re-reviewing overwrites notes and timestamp.
func (s *Service) Review(ctx context.Context, actor models.Actor, id string, decision models.ReviewStatus, notes string) (*models.Job, error) {
	if !actor.IsAdmin() {
		return nil, errors.NewForbiddenError("only admins can review jobs")
	}
	if decision != models.ReviewApproved && decision != models.ReviewRejected {
		return nil, errors.NewValidationError(fmt.Sprintf("review decision must be approved or rejected, got %q", decision))
	}

	row := s.db.QueryRowContext(ctx, reviewJob+selectColumns, id, string(decision), notes, actor.ID, s.now())
	job, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("review job", err)
	}

	s.logger.Info("job reviewed", map[string]interface{}{"jobId": id, "decision": decision, "reviewedBy": actor.ID})
	s.mirror(ctx, job)
	return job, nil
}

// SetStatus changes the lifecycle status of a job. Jobs are never deleted.
func (s *Service) SetStatus(ctx context.Context, actor models.Actor, id string, status models.JobStatus) (*models.Job, error) {
	if !actor.IsAdmin() {
		return nil, errors.NewForbiddenError("only admins can change job status")
	}
	switch status {
	case models.JobStatusActive, models.JobStatusExpired, models.JobStatusFilled, models.JobStatusRemoved:
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown job status %q", status))
	}

	row := s.db.QueryRowContext(ctx,
		"UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1 RETURNING "+selectColumns,
		id, string(status), s.now())
	job, err := scanJob(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("set job status", err)
	}
	s.mirror(ctx, job)
	return job, nil
}

const expireJobs = `
	UPDATE jobs SET status = 'expired', updated_at = $1
	WHERE status = 'active' AND expiry_date IS NOT NULL AND expiry_date < $1
	RETURNING id`

// ExpireStale marks active jobs whose expiry date has passed as expired.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	rows, err := s.db.QueryContext(ctx, expireJobs, now)
	if err != nil {
		return 0, errors.NewDatabaseError("expire jobs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, errors.NewDatabaseError("expire jobs", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, errors.NewDatabaseError("expire jobs", err)
	}

	if len(ids) > 0 && s.indexer != nil {
		if err := s.indexer.MarkStatus(ctx, ids, models.JobStatusExpired); err != nil {
			s.logger.Warn("search index expiry sync failed", map[string]interface{}{"count": len(ids), "error": err.Error()})
		}
	}
	return int64(len(ids)), nil
}

// RefreshScores recomputes match scores for the user's active jobs and returns how many changed.
func (s *Service) RefreshScores(ctx context.Context, actor models.Actor, userID string) (int, error) {
	if !actor.IsAdmin() && !actor.Owns(userID) {
		return 0, errors.NewForbiddenError("cannot refresh scores for another user")
	}

	profile, err := s.currentProfile(ctx, userID)
	if err != nil {
		return 0, err
	}

	var changed []*models.Job
	err = database.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT "+selectColumns+" FROM jobs WHERE target_user_id = $1 AND status = 'active' FOR UPDATE", userID)
		if err != nil {
			return err
		}
		current, err := scanJobs(rows)
		if err != nil {
			return err
		}

		now := s.now()
		for i := range current {
			job := &current[i]
			score, ok := matching.Rescore(job, profile)
			if !ok || score == job.MatchScore {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE jobs SET match_score = $2, updated_at = $3 WHERE id = $1", job.ID, score, now); err != nil {
				return err
			}
			job.MatchScore = score
			job.UpdatedAt = now
			changed = append(changed, job)
		}
		return nil
	})
	if err != nil {
		return 0, errors.NewDatabaseError("refresh match scores", err)
	}

	for _, job := range changed {
		s.mirror(ctx, job)
	}
	s.logger.Info("match scores refreshed", map[string]interface{}{"userId": userID, "changed": len(changed)})
	return len(changed), nil
}

// mirror pushes a job to the search index. Failures are logged only.
func (s *Service) mirror(ctx context.Context, job *models.Job) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, job); err != nil {
		s.logger.Warn("search index update failed", map[string]interface{}{"jobId": job.ID, "error": err.Error()})
	}
}

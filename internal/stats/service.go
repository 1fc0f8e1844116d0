// internal/stats/service.go
package stats

import (
	"context"
	"database/sql"
	"time"

	"autoapply-backend/internal/common/database"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/models"

	"github.com/gocraft/dbr/v2"
)

const (
	defaultWindowDays = 30
	maxWindowDays     = 365
)

// Service runs the GROUP BY reads behind the dashboard summaries.
type Service struct {
	sess *dbr.Session
	now  func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{
		sess: database.NewDBRSession(db),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// scope resolves whose data the actor may aggregate. Admins may pass an empty
// userID to aggregate across all users.
func scope(actor models.Actor, userID string) (string, error) {
	if actor.IsAdmin() {
		return userID, nil
	}
	if userID == "" {
		userID = actor.ID
	}
	if !actor.Owns(userID) {
		return "", errors.NewForbiddenError("cannot read another user's statistics")
	}
	return userID, nil
}

func (s *Service) ApplicationStats(ctx context.Context, actor models.Actor, userID string) (*ApplicationSummary, error) {
	userID, err := scope(actor, userID)
	if err != nil {
		return nil, err
	}

	stmt := s.sess.Select("status", "COUNT(*)").From("applications").GroupBy("status")
	if userID != "" {
		stmt = stmt.Where(dbr.Eq("user_id", userID))
	}
	rows, err := stmt.RowsContext(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("application stats", err)
	}
	defer rows.Close()

	counts := map[models.ApplicationStatus]int{}
	for rows.Next() {
		var (
			status models.ApplicationStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.NewDatabaseError("application stats", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("application stats", err)
	}
	return SummarizeApplications(counts), nil
}

func (s *Service) JobStats(ctx context.Context, actor models.Actor, userID string) (*JobSummary, error) {
	userID, err := scope(actor, userID)
	if err != nil {
		return nil, err
	}

	stmt := s.sess.Select("admin_review_status", "status", "COUNT(*)", "COALESCE(SUM(match_score), 0)").
		From("jobs").
		GroupBy("admin_review_status", "status")
	if userID != "" {
		stmt = stmt.Where(dbr.Eq("target_user_id", userID))
	}
	rows, err := stmt.RowsContext(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("job stats", err)
	}
	defer rows.Close()

	var counts []JobCount
	for rows.Next() {
		var c JobCount
		if err := rows.Scan(&c.ReviewStatus, &c.Status, &c.Count, &c.ScoreSum); err != nil {
			return nil, errors.NewDatabaseError("job stats", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("job stats", err)
	}
	return SummarizeJobs(counts), nil
}

// ScrapingStats summarises sessions started in the last days days.
func (s *Service) ScrapingStats(ctx context.Context, actor models.Actor, userID string, days int) (*ScrapingSummary, error) {
	userID, err := scope(actor, userID)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultWindowDays
	}
	if days > maxWindowDays {
		days = maxWindowDays
	}
	since := s.now().AddDate(0, 0, -days)

	stmt := s.sess.Select("status", "COUNT(*)", "COALESCE(SUM(jobs_saved), 0)").
		From("scraping_sessions").
		Where(dbr.Gte("started_at", since)).
		GroupBy("status")
	if userID != "" {
		stmt = stmt.Where(dbr.Eq("user_id", userID))
	}
	rows, err := stmt.RowsContext(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("scraping stats", err)
	}
	defer rows.Close()

	var counts []SessionCount
	for rows.Next() {
		var c SessionCount
		if err := rows.Scan(&c.Status, &c.Count, &c.JobsSaved); err != nil {
			return nil, errors.NewDatabaseError("scraping stats", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("scraping stats", err)
	}
	return SummarizeScraping(counts, days), nil
}

// internal/scraping/store.go
package scraping

import (
	"database/sql"
	"encoding/json"
	"strings"

	"autoapply-backend/internal/models"

	"github.com/lib/pq"
)

var sessionColumns = []string{
	"session_id", "user_id", "status", "search_criteria", "total_jobs_found", "jobs_saved",
	"duplicates_skipped", "error_count", "platform_results", "error_details", "jobs_created",
	"started_at", "completed_at", "duration_ms",
}

var selectColumns = strings.Join(sessionColumns, ", ")

// activeStatuses guards every terminal write: only a live session may finish.
var activeStatuses = []string{string(models.SessionInitiated), string(models.SessionInProgress)}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.ScrapingSession, error) {
	var (
		s                                models.ScrapingSession
		criteria, platforms, errorDetail []byte
		jobsCreated                      pq.StringArray
		completedAt                      sql.NullTime
	)
	err := row.Scan(
		&s.SessionID, &s.UserID, &s.Status, &criteria, &s.Results.TotalJobsFound, &s.Results.JobsSaved,
		&s.Results.DuplicatesSkipped, &s.Results.ErrorCount, &platforms, &errorDetail, &jobsCreated,
		&s.Timing.StartedAt, &completedAt, &s.Timing.DurationMs,
	)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		s.Timing.CompletedAt = &t
	}
	if len(criteria) > 0 {
		if err := json.Unmarshal(criteria, &s.SearchCriteria); err != nil {
			return nil, err
		}
	}
	s.PlatformResults = []models.PlatformResult{}
	if len(platforms) > 0 {
		if err := json.Unmarshal(platforms, &s.PlatformResults); err != nil {
			return nil, err
		}
	}
	s.ErrorDetails = []models.SessionError{}
	if len(errorDetail) > 0 {
		if err := json.Unmarshal(errorDetail, &s.ErrorDetails); err != nil {
			return nil, err
		}
	}
	s.JobsCreated = []string(jobsCreated)
	if s.JobsCreated == nil {
		s.JobsCreated = []string{}
	}
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]models.ScrapingSession, error) {
	defer rows.Close()
	out := []models.ScrapingSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

const insertSession = `
	INSERT INTO scraping_sessions (session_id, user_id, status, search_criteria, started_at, updated_at)
	VALUES ($1, $2, $3, $4::jsonb, $5, $5)`

const countSessionsSince = `
	SELECT COUNT(*) FROM scraping_sessions WHERE user_id = $1 AND started_at >= $2`

const markInProgress = `
	UPDATE scraping_sessions SET status = 'in_progress', updated_at = $2
	WHERE session_id = $1 AND status = 'initiated'`

const completeSession = `
	UPDATE scraping_sessions SET
		status = 'completed',
		total_jobs_found = $2, jobs_saved = $3, duplicates_skipped = $4, error_count = $5,
		platform_results = $6::jsonb, error_details = $7::jsonb, jobs_created = $8,
		completed_at = $9, duration_ms = $10, updated_at = $9
	WHERE session_id = $1 AND status = ANY($11)`

const failSession = `
	UPDATE scraping_sessions SET
		status = 'failed',
		error_count = error_count + 1,
		error_details = error_details || $2::jsonb,
		completed_at = $3, duration_ms = $4, updated_at = $3
	WHERE session_id = $1 AND status = ANY($5)`

var cancelSession = `
	UPDATE scraping_sessions SET
		status = 'cancelled', completed_at = $2, duration_ms = $3, updated_at = $2
	WHERE session_id = $1 AND status = ANY($4)
	RETURNING ` + selectColumns

// reapSessions fails sessions that have been live since before the cutoff and
// are not running in this process.
const reapSessions = `
	UPDATE scraping_sessions SET
		status = 'failed',
		error_count = error_count + 1,
		error_details = error_details || $2::jsonb,
		completed_at = $3,
		duration_ms = (EXTRACT(EPOCH FROM ($3 - started_at)) * 1000)::bigint,
		updated_at = $3
	WHERE status = ANY($4) AND started_at < $1 AND NOT (session_id = ANY($5))
	RETURNING session_id, user_id`

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}

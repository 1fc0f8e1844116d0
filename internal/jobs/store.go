// internal/jobs/store.go
package jobs

import (
	"database/sql"
	"strings"
	"time"

	"autoapply-backend/internal/models"

	"github.com/lib/pq"
)

// jobColumns is the column order read by scanJob.
var jobColumns = []string{
	"id", "target_user_id", "title", "company", "location", "work_type", "job_type",
	"salary_min", "salary_max", "salary_currency", "salary_period", "skills", "description",
	"apply_url", "platform", "original_id", "scraped_at", "session_id", "match_score", "status",
	"admin_review_status", "admin_notes", "reviewed_by", "reviewed_at", "application_status",
	"posted_date", "expiry_date", "created_at", "updated_at",
}

var selectColumns = strings.Join(jobColumns, ", ")

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j                                  models.Job
		reviewedAt, postedDate, expiryDate sql.NullTime
	)
	err := row.Scan(
		&j.ID, &j.TargetUserID, &j.Title, &j.Company, &j.Location, &j.WorkType, &j.JobType,
		&j.Salary.Min, &j.Salary.Max, &j.Salary.Currency, &j.Salary.Period, pq.Array(&j.Skills), &j.Description,
		&j.ApplyURL, &j.ScrapedFrom.Platform, &j.ScrapedFrom.OriginalID, &j.ScrapedFrom.ScrapedAt, &j.SessionID,
		&j.MatchScore, &j.Status, &j.AdminReviewStatus, &j.AdminNotes, &j.ReviewedBy, &reviewedAt,
		&j.ApplicationStatus, &postedDate, &expiryDate, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.ReviewedAt = timePtr(reviewedAt)
	j.PostedDate = timePtr(postedDate)
	j.ExpiryDate = timePtr(expiryDate)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]models.Job, error) {
	defer rows.Close()
	out := []models.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

const insertJob = `
	INSERT INTO jobs (
		id, target_user_id, title, company, location, work_type, job_type,
		salary_min, salary_max, salary_currency, salary_period, skills, description,
		apply_url, platform, original_id, scraped_at, session_id, match_score, status,
		admin_review_status, application_status, posted_date, expiry_date, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $25
	)
	ON CONFLICT ON CONSTRAINT jobs_dedup_key DO NOTHING
	RETURNING id`

func insertArgs(j *models.Job) []interface{} {
	return []interface{}{
		j.ID, j.TargetUserID, j.Title, j.Company, j.Location, string(j.WorkType), string(j.JobType),
		j.Salary.Min, j.Salary.Max, j.Salary.Currency, j.Salary.Period, pq.Array(j.Skills), j.Description,
		j.ApplyURL, j.ScrapedFrom.Platform, j.ScrapedFrom.OriginalID, j.ScrapedFrom.ScrapedAt, j.SessionID,
		j.MatchScore, string(j.Status), string(j.AdminReviewStatus), string(j.ApplicationStatus),
		j.PostedDate, j.ExpiryDate, j.CreatedAt,
	}
}

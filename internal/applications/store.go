// internal/applications/store.go
package applications

import (
	"database/sql"
	"encoding/json"
	"strings"

	"autoapply-backend/internal/models"
)

var applicationColumns = []string{
	"id", "user_id", "job_id", "status", "match_score", "application_method", "cover_letter",
	"admin_notes", "user_notes", "reviewed_by", "reviewed_at", "applied_by", "applied_at",
	"interview", "offer", "timeline", "priority", "is_starred", "is_archived", "version",
	"created_at", "updated_at",
}

var selectColumns = strings.Join(applicationColumns, ", ")

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		a                          models.Application
		reviewedAt, appliedAt      sql.NullTime
		interview, offer, timeline []byte
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.JobID, &a.Status, &a.MatchScore, &a.ApplicationMethod, &a.CoverLetter,
		&a.AdminNotes, &a.UserNotes, &a.ReviewedBy, &reviewedAt, &a.AppliedBy, &appliedAt,
		&interview, &offer, &timeline, &a.Priority, &a.IsStarred, &a.IsArchived, &a.Version,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.ReviewedAt = &t
	}
	if appliedAt.Valid {
		t := appliedAt.Time
		a.AppliedAt = &t
	}
	if hasJSON(interview) {
		a.Interview = &models.InterviewDetails{}
		if err := json.Unmarshal(interview, a.Interview); err != nil {
			return nil, err
		}
	}
	if hasJSON(offer) {
		a.Offer = &models.OfferDetails{}
		if err := json.Unmarshal(offer, a.Offer); err != nil {
			return nil, err
		}
	}
	a.Timeline = []models.TimelineEntry{}
	if hasJSON(timeline) {
		if err := json.Unmarshal(timeline, &a.Timeline); err != nil {
			return nil, err
		}
	}
	return &a, nil
}

func scanApplications(rows *sql.Rows) ([]models.Application, error) {
	defer rows.Close()
	out := []models.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func hasJSON(b []byte) bool {
	return len(b) > 0 && string(b) != "null"
}

// nullableJSON marshals v, storing SQL NULL for nil pointers.
func nullableJSON(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case *models.InterviewDetails:
		if t == nil {
			return nil, nil
		}
	case *models.OfferDetails:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

const insertApplication = `
	INSERT INTO applications (
		id, user_id, job_id, status, match_score, application_method, cover_letter,
		priority, timeline, version, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, 1, $10, $10)
	ON CONFLICT ON CONSTRAINT applications_user_job_key DO NOTHING
	RETURNING id`

const updateTransition = `
	UPDATE applications SET
		status = $2,
		admin_notes = $3,
		reviewed_by = $4,
		reviewed_at = $5,
		applied_by = $6,
		applied_at = $7,
		application_method = $8,
		interview = $9::jsonb,
		offer = $10::jsonb,
		timeline = timeline || $11::jsonb,
		version = version + 1,
		updated_at = $12
	WHERE id = $1 AND version = $13`

const updateUserFields = `
	UPDATE applications SET
		user_notes = $2,
		is_starred = $3,
		is_archived = $4,
		priority = $5,
		updated_at = $6
	WHERE id = $1`

const mirrorJobStatus = `UPDATE jobs SET application_status = $2, updated_at = $3 WHERE id = $1`

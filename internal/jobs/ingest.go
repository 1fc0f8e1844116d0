// internal/jobs/ingest.go
package jobs

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/metrics"
	"autoapply-backend/internal/matching"
	"autoapply-backend/internal/models"
)

// IngestError describes one posting that was not stored.
type IngestError struct {
	Index   int              `json:"index"`
	Title   string           `json:"title,omitempty"`
	Company string           `json:"company,omitempty"`
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

type IngestResult struct {
	JobsSaved         int           `json:"jobsSaved"`
	DuplicatesSkipped int           `json:"duplicatesSkipped"`
	Errors            []IngestError `json:"errors"`
	JobIDs            []string      `json:"jobIds"`
}

// Ingest validates, scores and stores raw postings for userID. A posting that
// matches an existing (user, title, company, location) is skipped as a duplicate.
// Per-posting failures are collected and the batch continues; only a cancelled
// context aborts it.
func (s *Service) Ingest(ctx context.Context, userID, sessionID string, postings []models.RawPosting) (*IngestResult, error) {
	result := &IngestResult{Errors: []IngestError{}, JobIDs: []string{}}
	log := s.logger.WithFields(map[string]interface{}{"userId": userID, "sessionId": sessionID})

	profile, err := s.currentProfile(ctx, userID)
	if err != nil {
		log.Warn("profile unavailable, scoring jobs as 0", map[string]interface{}{"error": err.Error()})
		profile = nil
	}

	var saved []*models.Job
	for i := range postings {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		job, verr := s.buildJob(userID, sessionID, &postings[i], profile)
		if verr != nil {
			metrics.JobsIngested.WithLabelValues("invalid").Inc()
			result.Errors = append(result.Errors, ingestError(i, &postings[i], verr))
			continue
		}

		var id string
		err := s.db.QueryRowContext(ctx, insertJob, insertArgs(job)...).Scan(&id)
		switch {
		case err == nil:
			metrics.JobsIngested.WithLabelValues("saved").Inc()
			metrics.MatchScores.Observe(float64(job.MatchScore))
			result.JobsSaved++
			result.JobIDs = append(result.JobIDs, id)
			saved = append(saved, job)
		case stderrors.Is(err, sql.ErrNoRows):
			metrics.JobsIngested.WithLabelValues("duplicate").Inc()
			result.DuplicatesSkipped++
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			metrics.JobsIngested.WithLabelValues("error").Inc()
			log.Warn("failed to store posting", map[string]interface{}{"index": i, "error": err.Error()})
			result.Errors = append(result.Errors, ingestError(i, &postings[i], errors.NewDatabaseError("insert job", err)))
		}
	}

	for _, job := range saved {
		s.mirror(ctx, job)
	}

	log.Info("postings ingested", map[string]interface{}{
		"received":   len(postings),
		"saved":      result.JobsSaved,
		"duplicates": result.DuplicatesSkipped,
		"errors":     len(result.Errors),
	})
	return result, nil
}

func (s *Service) buildJob(userID, sessionID string, p *models.RawPosting, profile *models.UserProfile) (*models.Job, error) {
	title := strings.TrimSpace(p.Title)
	company := strings.TrimSpace(p.Company)
	switch {
	case title == "":
		return nil, errors.NewValidationError("posting has no title")
	case company == "":
		return nil, errors.NewValidationError("posting has no company")
	}

	now := s.now()
	job := &models.Job{
		ID:           s.newID(),
		TargetUserID: userID,
		Title:        title,
		Company:      company,
		Location:     strings.TrimSpace(p.Location),
		WorkType:     parseWorkType(p.WorkType),
		JobType:      parseJobType(p.JobType),
		Skills:       p.Skills,
		Description:  p.Description,
		ApplyURL:     p.ApplyURL,
		ScrapedFrom: models.ScrapedFrom{
			Platform:   p.Platform,
			OriginalID: p.OriginalID,
			ScrapedAt:  now,
		},
		SessionID:         sessionID,
		Status:            models.JobStatusActive,
		AdminReviewStatus: models.ReviewPending,
		ApplicationStatus: models.JobNotApplied,
		PostedDate:        p.PostedDate,
		ExpiryDate:        p.ExpiryDate,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if job.Skills == nil {
		job.Skills = []string{}
	}
	if p.Salary != nil {
		job.Salary = *p.Salary
	}
	if profile != nil {
		job.MatchScore = matching.Score(job, profile)
	}
	return job, nil
}

func ingestError(i int, p *models.RawPosting, err error) IngestError {
	std := errors.Normalize(err)
	return IngestError{
		Index:   i,
		Title:   p.Title,
		Company: p.Company,
		Code:    std.Code,
		Message: std.Details,
	}
}

func canonical(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

func parseWorkType(s string) models.WorkType {
	switch canonical(s) {
	case "remote":
		return models.WorkTypeRemote
	case "hybrid":
		return models.WorkTypeHybrid
	case "onsite", "on_site", "office", "in_office":
		return models.WorkTypeOnsite
	}
	return ""
}

func parseJobType(s string) models.JobType {
	switch canonical(s) {
	case "full_time", "fulltime":
		return models.JobTypeFullTime
	case "part_time", "parttime":
		return models.JobTypePartTime
	case "contract", "contractor":
		return models.JobTypeContract
	case "freelance":
		return models.JobTypeFreelance
	case "internship", "intern":
		return models.JobTypeInternship
	}
	return ""
}

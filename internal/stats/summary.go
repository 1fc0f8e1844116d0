// internal/stats/summary.go
package stats

import (
	"math"

	"autoapply-backend/internal/models"
)

type ApplicationSummary struct {
	ByStatus    map[models.ApplicationStatus]int `json:"byStatus"`
	Total       int                              `json:"total"`
	Offers      int                              `json:"offers"`
	SuccessRate float64                          `json:"successRate"` // percent
}

type JobSummary struct {
	ByReviewStatus map[models.ReviewStatus]int `json:"byReviewStatus"`
	ByStatus       map[models.JobStatus]int    `json:"byStatus"`
	Total          int                         `json:"total"`
	AverageScore   float64                     `json:"averageScore"`
}

type ScrapingSummary struct {
	TotalSessions  int                          `json:"totalSessions"`
	ByStatus       map[models.SessionStatus]int `json:"byStatus"`
	SuccessRate    float64                      `json:"successRate"` // percent
	TotalJobsSaved int                          `json:"totalJobsSaved"`
	WindowDays     int                          `json:"windowDays"`
}

// offerStatuses count as a successful outcome.
var offerStatuses = []models.ApplicationStatus{
	models.StatusOfferReceived,
	models.StatusOfferAccepted,
	models.StatusOfferRejected,
}

// SummarizeApplications derives totals and the offer rate from per-status counts.
func SummarizeApplications(counts map[models.ApplicationStatus]int) *ApplicationSummary {
	s := &ApplicationSummary{ByStatus: map[models.ApplicationStatus]int{}}
	for status, n := range counts {
		s.ByStatus[status] = n
		s.Total += n
	}
	for _, status := range offerStatuses {
		s.Offers += counts[status]
	}
	s.SuccessRate = percent(s.Offers, s.Total)
	return s
}

// JobCount is one (review status, status) partition of a user's jobs.
type JobCount struct {
	ReviewStatus models.ReviewStatus
	Status       models.JobStatus
	Count        int
	ScoreSum     int64
}

func SummarizeJobs(rows []JobCount) *JobSummary {
	s := &JobSummary{
		ByReviewStatus: map[models.ReviewStatus]int{},
		ByStatus:       map[models.JobStatus]int{},
	}
	var scoreSum int64
	for _, r := range rows {
		s.ByReviewStatus[r.ReviewStatus] += r.Count
		s.ByStatus[r.Status] += r.Count
		s.Total += r.Count
		scoreSum += r.ScoreSum
	}
	if s.Total > 0 {
		s.AverageScore = round2(float64(scoreSum) / float64(s.Total))
	}
	return s
}

// SessionCount is one status partition of scraping sessions in the window.
type SessionCount struct {
	Status    models.SessionStatus
	Count     int
	JobsSaved int
}

func SummarizeScraping(rows []SessionCount, windowDays int) *ScrapingSummary {
	s := &ScrapingSummary{ByStatus: map[models.SessionStatus]int{}, WindowDays: windowDays}
	for _, r := range rows {
		s.ByStatus[r.Status] += r.Count
		s.TotalSessions += r.Count
		s.TotalJobsSaved += r.JobsSaved
	}
	s.SuccessRate = percent(s.ByStatus[models.SessionCompleted], s.TotalSessions)
	return s
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

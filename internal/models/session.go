package models

import "time"

type SessionStatus string

const (
	SessionInitiated  SessionStatus = "initiated"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
	SessionCancelled  SessionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// SearchCriteria is the profile-derived query snapshot sent to the scraper.
type SearchCriteria struct {
	Keywords        []string `json:"keywords"`
	Locations       []string `json:"locations"`
	JobTypes        []string `json:"jobTypes"`
	WorkTypes       []string `json:"workTypes"`
	ExperienceLevel string   `json:"experienceLevel,omitempty"`
	SalaryMin       int      `json:"salaryMin,omitempty"`
	SalaryMax       int      `json:"salaryMax,omitempty"`
}

type SessionResults struct {
	TotalJobsFound    int `json:"totalJobsFound"`
	JobsSaved         int `json:"jobsSaved"`
	DuplicatesSkipped int `json:"duplicatesSkipped"`
	ErrorCount        int `json:"errorCount"`
}

type PlatformResult struct {
	Platform  string `json:"platform"`
	JobsFound int    `json:"jobsFound"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type SessionError struct {
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Platform  string    `json:"platform,omitempty"`
	Posting   string    `json:"posting,omitempty"`
}

type SessionTiming struct {
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  int64      `json:"durationMs,omitempty"`
}

// ScrapingSession records one invocation of the external scraper for one user.
type ScrapingSession struct {
	SessionID       string           `json:"sessionId"`
	UserID          string           `json:"userId"`
	Status          SessionStatus    `json:"status"`
	SearchCriteria  SearchCriteria   `json:"searchCriteria"`
	Results         SessionResults   `json:"results"`
	PlatformResults []PlatformResult `json:"platformResults"`
	Timing          SessionTiming    `json:"timing"`
	ErrorDetails    []SessionError   `json:"errorDetails"`
	JobsCreated     []string         `json:"jobsCreated"`
}

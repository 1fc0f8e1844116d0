// internal/models/job.go
package models

import "time"

type WorkType string

const (
	WorkTypeRemote WorkType = "remote"
	WorkTypeHybrid WorkType = "hybrid"
	WorkTypeOnsite WorkType = "onsite"
)

type JobType string

const (
	JobTypeFullTime   JobType = "full_time"
	JobTypePartTime   JobType = "part_time"
	JobTypeContract   JobType = "contract"
	JobTypeFreelance  JobType = "freelance"
	JobTypeInternship JobType = "internship"
)

type JobStatus string

const (
	JobStatusActive  JobStatus = "active"
	JobStatusExpired JobStatus = "expired"
	JobStatusFilled  JobStatus = "filled"
	JobStatusRemoved JobStatus = "removed"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// JobApplicationStatus is the coarse application state mirrored onto a Job.
type JobApplicationStatus string

const (
	JobNotApplied JobApplicationStatus = "not_applied"
	JobApplied    JobApplicationStatus = "applied"
	JobRejected   JobApplicationStatus = "rejected"
	JobInterview  JobApplicationStatus = "interview"
	JobOffer      JobApplicationStatus = "offer"
)

type Salary struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Currency string `json:"currency"`
	Period   string `json:"period"`
}

type ScrapedFrom struct {
	Platform   string    `json:"platform"`
	OriginalID string    `json:"originalId"`
	ScrapedAt  time.Time `json:"scrapedAt"`
}

// Job is one scraped posting owned by exactly one target user.
type Job struct {
	ID                string               `json:"id" db:"id"`
	TargetUserID      string               `json:"targetUser" db:"target_user_id"`
	Title             string               `json:"title" db:"title"`
	Company           string               `json:"company" db:"company"`
	Location          string               `json:"location" db:"location"`
	WorkType          WorkType             `json:"workType" db:"work_type"`
	JobType           JobType              `json:"jobType" db:"job_type"`
	Salary            Salary               `json:"salary"`
	Skills            []string             `json:"skills"`
	Description       string               `json:"description" db:"description"`
	ApplyURL          string               `json:"applyUrl" db:"apply_url"`
	ScrapedFrom       ScrapedFrom          `json:"scrapedFrom"`
	SessionID         string               `json:"sessionId,omitempty" db:"session_id"`
	MatchScore        int                  `json:"matchScore" db:"match_score"`
	Status            JobStatus            `json:"status" db:"status"`
	AdminReviewStatus ReviewStatus         `json:"adminReviewStatus" db:"admin_review_status"`
	AdminNotes        string               `json:"adminNotes,omitempty" db:"admin_notes"`
	ReviewedBy        string               `json:"reviewedBy,omitempty" db:"reviewed_by"`
	ReviewedAt        *time.Time           `json:"reviewedAt,omitempty" db:"reviewed_at"`
	ApplicationStatus JobApplicationStatus `json:"applicationStatus" db:"application_status"`
	PostedDate        *time.Time           `json:"postedDate,omitempty" db:"posted_date"`
	ExpiryDate        *time.Time           `json:"expiryDate,omitempty" db:"expiry_date"`
	CreatedAt         time.Time            `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time            `json:"updatedAt" db:"updated_at"`
}

// IsApplicable reports whether the job may receive an application.
func (j *Job) IsApplicable() bool {
	return j.Status == JobStatusActive && j.AdminReviewStatus == ReviewApproved
}

// RawPosting is a posting as returned by the external scraper.
type RawPosting struct {
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	WorkType    string     `json:"workType"`
	JobType     string     `json:"jobType"`
	Salary      *Salary    `json:"salary,omitempty"`
	Skills      []string   `json:"skills"`
	Description string     `json:"description"`
	ApplyURL    string     `json:"applyUrl"`
	Platform    string     `json:"platform"`
	OriginalID  string     `json:"originalId"`
	PostedDate  *time.Time `json:"postedDate,omitempty"`
	ExpiryDate  *time.Time `json:"expiryDate,omitempty"`
}

// internal/models/application.go
package models

import "time"

type ApplicationStatus string

const (
	StatusPendingReview      ApplicationStatus = "pending_review"
	StatusApproved           ApplicationStatus = "approved"
	StatusRejected           ApplicationStatus = "rejected"
	StatusApplied            ApplicationStatus = "applied"
	StatusApplicationSent    ApplicationStatus = "application_sent"
	StatusViewed             ApplicationStatus = "viewed"
	StatusInterviewRequested ApplicationStatus = "interview_requested"
	StatusInterviewScheduled ApplicationStatus = "interview_scheduled"
	StatusInterviewCompleted ApplicationStatus = "interview_completed"
	StatusOfferReceived      ApplicationStatus = "offer_received"
	StatusOfferAccepted      ApplicationStatus = "offer_accepted"
	StatusOfferRejected      ApplicationStatus = "offer_rejected"
	StatusRejectedByEmployer ApplicationStatus = "rejected_by_employer"
	StatusWithdrawn          ApplicationStatus = "withdrawn"
)

type ApplicationMethod string

const (
	MethodManual ApplicationMethod = "manual"
	MethodAuto   ApplicationMethod = "auto"
)

type TimelineEntry struct {
	Status    ApplicationStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Note      string            `json:"note,omitempty"`
	UpdatedBy string            `json:"updatedBy"`
}

type InterviewDetails struct {
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	Location    string     `json:"location,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type OfferDetails struct {
	Amount     int        `json:"amount,omitempty"`
	Currency   string     `json:"currency,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	ReceivedAt *time.Time `json:"receivedAt,omitempty"`
}

// Application tracks one user's submission to one job.
type Application struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user"`
	JobID             string            `json:"job"`
	Status            ApplicationStatus `json:"status"`
	MatchScore        int               `json:"matchScore"`
	ApplicationMethod ApplicationMethod `json:"applicationMethod"`
	CoverLetter       string            `json:"coverLetter,omitempty"`
	AdminNotes        string            `json:"adminNotes,omitempty"`
	UserNotes         string            `json:"userNotes,omitempty"`
	ReviewedBy        string            `json:"reviewedBy,omitempty"`
	ReviewedAt        *time.Time        `json:"reviewedAt,omitempty"`
	AppliedBy         string            `json:"appliedBy,omitempty"`
	AppliedAt         *time.Time        `json:"appliedAt,omitempty"`
	Interview         *InterviewDetails `json:"interview,omitempty"`
	Offer             *OfferDetails     `json:"offer,omitempty"`
	Timeline          []TimelineEntry   `json:"timeline"`
	Priority          string            `json:"priority"`
	IsStarred         bool              `json:"isStarred"`
	IsArchived        bool              `json:"isArchived"`
	Version           int               `json:"version"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// internal/models/notification.go
package models

import "time"

// ApplicationEvent is emitted after a status transition of interest.
type ApplicationEvent struct {
	ApplicationID string            `json:"applicationId"`
	UserID        string            `json:"userId"`
	JobID         string            `json:"jobId"`
	Status        ApplicationStatus `json:"status"`
	Note          string            `json:"note,omitempty"`
	UpdatedBy     string            `json:"updatedBy"`
	OccurredAt    time.Time         `json:"occurredAt"`
}

type Notification struct {
	ID            string                 `json:"id"`
	RecipientID   string                 `json:"recipientId"`
	ApplicationID string                 `json:"applicationId"`
	Type          string                 `json:"type"`    // application status that triggered it
	Channel       string                 `json:"channel"` // "email", "sms", "event"
	Status        string                 `json:"status"`  // "sent", "failed", "disabled"
	Payload       map[string]interface{} `json:"payload,omitempty"`
	SentAt        time.Time              `json:"sentAt"`
}

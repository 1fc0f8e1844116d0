// internal/workers/application/send-application-notification/models.go
package sendapplicationnotification

type Input struct {
	ApplicationID string `json:"applicationId"`
	UserID        string `json:"userId"`
	JobID         string `json:"jobId,omitempty"`
	Status        string `json:"status"` // application status that triggered the notification
	Note          string `json:"note,omitempty"`
	UpdatedBy     string `json:"updatedBy,omitempty"`
}

type Output struct {
	NotificationIDs []string          `json:"notificationIds"`
	Status          string            `json:"status"`   // "sent", "failed", "disabled"
	Channels        map[string]string `json:"channels"` // channel -> status
	SentAt          string            `json:"sentAt"`   // ISO 8601
}

// internal/workers/application/advance-application-status/models.go
package advanceapplicationstatus

import "autoapply-backend/internal/models"

type Input struct {
	ApplicationID string                   `json:"applicationId"`
	Status        string                   `json:"status"`
	Note          string                   `json:"note,omitempty"`
	Interview     *models.InterviewDetails `json:"interview,omitempty"`
	Offer         *models.OfferDetails     `json:"offer,omitempty"`

	// ActorID and ActorRole identify who reported the stage. Both empty means the system actor.
	ActorID   string `json:"actorId,omitempty"`
	ActorRole string `json:"actorRole,omitempty"`
}

type Output struct {
	ApplicationID  string `json:"applicationId"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	Version        int    `json:"version"`
}

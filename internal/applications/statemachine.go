// internal/applications/statemachine.go
package applications

import (
	"fmt"
	"time"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/models"
)

var terminalStatuses = map[models.ApplicationStatus]bool{
	models.StatusWithdrawn:          true,
	models.StatusOfferRejected:      true,
	models.StatusRejectedByEmployer: true,
	models.StatusRejected:           true,
}

// downstreamStatuses are the employer-side stages an admin may record once an application is out.
var downstreamStatuses = map[models.ApplicationStatus]bool{
	models.StatusApplicationSent:    true,
	models.StatusViewed:             true,
	models.StatusInterviewRequested: true,
	models.StatusInterviewScheduled: true,
	models.StatusInterviewCompleted: true,
	models.StatusOfferReceived:      true,
	models.StatusOfferAccepted:      true,
	models.StatusOfferRejected:      true,
	models.StatusRejectedByEmployer: true,
}

// notifyStatuses trigger the notification hook after commit.
var notifyStatuses = map[models.ApplicationStatus]bool{
	models.StatusApplied:            true,
	models.StatusInterviewScheduled: true,
	models.StatusOfferReceived:      true,
	models.StatusRejectedByEmployer: true,
}

func IsTerminal(s models.ApplicationStatus) bool { return terminalStatuses[s] }

func IsDownstream(s models.ApplicationStatus) bool { return downstreamStatuses[s] }

func IsKnown(s models.ApplicationStatus) bool {
	switch s {
	case models.StatusPendingReview, models.StatusApproved, models.StatusRejected, models.StatusApplied, models.StatusWithdrawn:
		return true
	}
	return downstreamStatuses[s]
}

// CanTransition validates a status change for a caller of the given role.
// Terminal sources are checked first so every attempt to leave them is INVALID_STATE.
// Downstream targets accept any non-terminal source.
func CanTransition(from, to models.ApplicationStatus, role models.Role) error {
	if !IsKnown(to) {
		return errors.NewValidationError(fmt.Sprintf("unknown application status %q", to))
	}
	if IsTerminal(from) {
		return errors.NewInvalidStateError(fmt.Sprintf("application is %s and cannot change", from))
	}

	switch {
	case to == models.StatusPendingReview:
		return errors.NewInvalidStateError("pending_review is only the initial status")

	case to == models.StatusWithdrawn:
		if role != models.RoleUser {
			return errors.NewForbiddenError("only the applicant can withdraw")
		}

	case to == models.StatusApproved || to == models.StatusRejected:
		if role != models.RoleAdmin {
			return errors.NewForbiddenError("only admins can review applications")
		}
		if from != models.StatusPendingReview {
			return errors.NewInvalidStateError(fmt.Sprintf("cannot review an application in status %s", from))
		}

	case to == models.StatusApplied:
		if role != models.RoleAdmin {
			return errors.NewForbiddenError("only admins can apply on behalf of a user")
		}
		if from != models.StatusApproved {
			return errors.NewInvalidStateError(fmt.Sprintf("application must be approved before applying, is %s", from))
		}

	case IsDownstream(to):
		if role != models.RoleAdmin {
			return errors.NewForbiddenError("only admins can advance application status")
		}
	}
	return nil
}

func newTimelineEntry(status models.ApplicationStatus, note, updatedBy string, at time.Time) models.TimelineEntry {
	return models.TimelineEntry{
		Status:    status,
		Timestamp: at,
		Note:      note,
		UpdatedBy: updatedBy,
	}
}

// jobApplicationStatus is the coarse status mirrored onto the job row.
func jobApplicationStatus(s models.ApplicationStatus) (models.JobApplicationStatus, bool) {
	switch s {
	case models.StatusApplied, models.StatusApplicationSent, models.StatusViewed:
		return models.JobApplied, true
	case models.StatusInterviewRequested, models.StatusInterviewScheduled, models.StatusInterviewCompleted:
		return models.JobInterview, true
	case models.StatusOfferReceived, models.StatusOfferAccepted:
		return models.JobOffer, true
	case models.StatusRejected, models.StatusRejectedByEmployer, models.StatusOfferRejected:
		return models.JobRejected, true
	case models.StatusWithdrawn:
		return models.JobNotApplied, true
	}
	return "", false
}

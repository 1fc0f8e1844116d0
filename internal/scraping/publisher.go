// internal/scraping/publisher.go
package scraping

import (
	"context"

	"autoapply-backend/internal/models"
)

// SessionFinishedMessage is correlated on the session id by waiting process instances.
const SessionFinishedMessage = "scraping-session-finished"

// MessagePublisher is satisfied by camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey string, variables interface{}) error
}

// ZeebePublisher reports terminal sessions as Zeebe messages.
type ZeebePublisher struct {
	client MessagePublisher
}

func NewZeebePublisher(client MessagePublisher) *ZeebePublisher {
	return &ZeebePublisher{client: client}
}

func (p *ZeebePublisher) SessionFinished(ctx context.Context, session *models.ScrapingSession) error {
	return p.client.PublishMessage(ctx, SessionFinishedMessage, session.SessionID, map[string]interface{}{
		"sessionId":         session.SessionID,
		"userId":            session.UserID,
		"status":            session.Status,
		"totalJobsFound":    session.Results.TotalJobsFound,
		"jobsSaved":         session.Results.JobsSaved,
		"duplicatesSkipped": session.Results.DuplicatesSkipped,
		"errorCount":        session.Results.ErrorCount,
		"jobsCreated":       session.JobsCreated,
	})
}

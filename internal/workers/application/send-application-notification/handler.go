// internal/workers/application/send-application-notification/handler.go
package sendapplicationnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"autoapply-backend/internal/applications"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/models"
	"autoapply-backend/internal/notify"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "send-application-notification"
)

type Sender interface {
	Send(ctx context.Context, event models.ApplicationEvent) []models.Notification
}

type Handler struct {
	config *Config
	sender Sender
	errors *errors.ErrorHandler
	logger logger.Logger
	now    func() time.Time
}

func NewHandler(config *Config, sender Sender, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		sender: sender,
		errors: errors.NewErrorHandler(log),
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// execute delivers the event on every channel. Channel failures complete the job with
// status "failed" so the process decides whether to retry.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicationID == "" || input.UserID == "" {
		return nil, errors.NewValidationError("applicationId and userId are required")
	}
	status := models.ApplicationStatus(input.Status)
	if !applications.IsKnown(status) {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown application status %q", input.Status))
	}

	updatedBy := input.UpdatedBy
	if updatedBy == "" {
		updatedBy = models.SystemActorID
	}

	sent := h.sender.Send(ctx, models.ApplicationEvent{
		ApplicationID: input.ApplicationID,
		UserID:        input.UserID,
		JobID:         input.JobID,
		Status:        status,
		Note:          input.Note,
		UpdatedBy:     updatedBy,
		OccurredAt:    h.now(),
	})

	output := &Output{
		NotificationIDs: make([]string, 0, len(sent)),
		Status:          summarize(sent),
		Channels:        make(map[string]string, len(sent)),
		SentAt:          h.now().Format(time.RFC3339),
	}
	for _, n := range sent {
		output.NotificationIDs = append(output.NotificationIDs, n.ID)
		output.Channels[n.Channel] = n.Status
	}

	if output.Status == notify.StatusFailed {
		h.logger.Warn("notification delivery failed", map[string]interface{}{
			"applicationId": input.ApplicationID,
			"channels":      output.Channels,
		})
	}
	return output, nil
}

// summarize reports failed if any channel failed, sent if any channel delivered,
// and disabled otherwise.
func summarize(sent []models.Notification) string {
	status := notify.StatusDisabled
	for _, n := range sent {
		switch n.Status {
		case notify.StatusFailed:
			return notify.StatusFailed
		case notify.StatusSent:
			status = notify.StatusSent
		}
	}
	return status
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, errors.NewInternalError(err))
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
		return
	}
	h.logger.Info("notification job completed", map[string]interface{}{"jobKey": job.Key, "status": output.Status})
}

// Execute runs the task logic without a Zeebe job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

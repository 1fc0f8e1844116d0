// internal/workers/scraping/trigger-scraping-session/handler.go
package triggerscrapingsession

import (
	"context"
	"encoding/json"
	"fmt"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/models"
	"autoapply-backend/internal/scraping"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "trigger-scraping-session"
)

type Trigger interface {
	Trigger(ctx context.Context, actor models.Actor, userID string) (*scraping.TriggerResult, error)
}

type Handler struct {
	config  *Config
	service Trigger
	errors  *errors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, service Trigger, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:  config,
		service: service,
		errors:  errors.NewErrorHandler(log),
		logger:  log,
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

// execute starts a session on behalf of the process. An ineligible user is a normal
// outcome the process routes on, not a job failure.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.UserID == "" {
		return nil, errors.NewValidationError("userId is required")
	}

	result, err := h.service.Trigger(ctx, models.SystemActor(), input.UserID)
	if err != nil {
		return nil, err
	}
	if !result.Initiated {
		h.logger.Info("scraping session not initiated", map[string]interface{}{
			"userId": input.UserID,
			"reason": result.Reason,
		})
	}

	return &Output{
		SessionID: result.SessionID,
		Initiated: result.Initiated,
		Reason:    result.Reason,
	}, nil
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
	h.logger.Info("job completed", map[string]interface{}{"jobKey": job.Key, "sessionId": output.SessionID})
}

// Execute runs the task logic without a Zeebe job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

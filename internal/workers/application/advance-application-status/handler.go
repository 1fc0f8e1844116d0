// internal/workers/application/advance-application-status/handler.go
package advanceapplicationstatus

import (
	"context"
	"encoding/json"
	"fmt"

	"autoapply-backend/internal/applications"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "advance-application-status"
)

type Advancer interface {
	Advance(ctx context.Context, actor models.Actor, id string, in applications.AdvanceInput) (*models.Application, error)
}

type Handler struct {
	config  *Config
	service Advancer
	errors  *errors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, service Advancer, log logger.Logger) *Handler {
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

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, errors.NewInternalError(err))
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{"jobKey": job.Key, "error": err.Error()})
	}
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.ApplicationID == "" {
		return nil, errors.NewValidationError("applicationId is required")
	}
	actor, err := actorOf(input)
	if err != nil {
		return nil, err
	}

	app, err := h.service.Advance(ctx, actor, input.ApplicationID, applications.AdvanceInput{
		Status:    models.ApplicationStatus(input.Status),
		Note:      input.Note,
		Interview: input.Interview,
		Offer:     input.Offer,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		ApplicationID:  app.ID,
		Status:         string(app.Status),
		PreviousStatus: previousStatus(app),
		Version:        app.Version,
	}, nil
}

func actorOf(input *Input) (models.Actor, error) {
	if input.ActorID == "" && input.ActorRole == "" {
		return models.SystemActor(), nil
	}
	if input.ActorID == "" {
		return models.Actor{}, errors.NewValidationError("actorId is required when actorRole is set")
	}
	role := models.RoleUser
	if input.ActorRole != "" {
		r, ok := models.ParseRole(input.ActorRole)
		if !ok {
			return models.Actor{}, errors.NewValidationError(fmt.Sprintf("unknown actorRole %q", input.ActorRole))
		}
		role = r
	}
	return models.Actor{ID: input.ActorID, Role: role}, nil
}

// previousStatus is the state recorded just before the newest timeline entry.
func previousStatus(app *models.Application) string {
	if n := len(app.Timeline); n > 1 {
		return string(app.Timeline[n-2].Status)
	}
	return ""
}

// Execute runs the task logic without a Zeebe job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

// internal/workers/application/apply-on-behalf/handler.go
package applyonbehalf

import (
	"context"
	"encoding/json"
	"fmt"

	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "apply-on-behalf"
)

type Applier interface {
	ApplyOnBehalf(ctx context.Context, actor models.Actor, id, note string) (*models.Application, error)
}

type Handler struct {
	config  *Config
	service Applier
	errors  *errors.ErrorHandler
	logger  logger.Logger
}

func NewHandler(config *Config, service Applier, log logger.Logger) *Handler {
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

	actor := models.SystemActor()
	if input.AdminID != "" {
		actor = models.Actor{ID: input.AdminID, Role: models.RoleAdmin}
	}

	app, err := h.service.ApplyOnBehalf(ctx, actor, input.ApplicationID, input.Note)
	if err != nil {
		return nil, err
	}

	h.logger.Info("applied on behalf of user", map[string]interface{}{
		"applicationId": app.ID,
		"userId":        app.UserID,
		"appliedBy":     app.AppliedBy,
	})

	return &Output{
		ApplicationID: app.ID,
		Status:        string(app.Status),
		AppliedBy:     app.AppliedBy,
		AppliedAt:     app.AppliedAt,
	}, nil
}

// Execute runs the task logic without a Zeebe job.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

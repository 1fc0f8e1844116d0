// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"strings"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/common/metrics"
	"autoapply-backend/internal/common/observability"
	"autoapply-backend/internal/common/validation"
	"autoapply-backend/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.opentelemetry.io/otel/attribute"
)

// Instrumentation wraps job handlers with input validation, metrics and spans.
type Instrumentation struct {
	Obs       *observability.Observability
	Validator *validation.Validator
	Errors    *errors.ErrorHandler
	Log       logger.Logger
}

// Wrap returns a handler that validates job variables against the registered input schema
// before delegating. Invalid input is thrown as a VALIDATION_FAILED BPMN error.
func (in *Instrumentation) Wrap(taskType string, next worker.JobHandler) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		start := time.Now()
		metrics.WorkerJobsActive.WithLabelValues(taskType).Inc()
		defer metrics.WorkerJobsActive.WithLabelValues(taskType).Dec()

		ctx, span := in.Obs.StartSpan(context.Background(), "zeebe.job "+taskType,
			attribute.Int64("zeebe.job_key", job.Key),
			attribute.Int64("zeebe.process_instance_key", job.ProcessInstanceKey),
		)
		defer span.End()

		if err := in.validateVariables(taskType, job.Variables); err != nil {
			metrics.WorkerJobsFailed.WithLabelValues(taskType, string(errors.ErrCodeValidationFailed)).Inc()
			in.Obs.RecordJobProcessed(ctx, taskType, "invalid")
			span.RecordError(err)
			if in.Errors != nil {
				in.Errors.HandleJobError(ctx, client, job, err)
			}
			return
		}

		next(client, job)

		elapsed := time.Since(start)
		metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(elapsed.Seconds())
		in.Obs.RecordJobDuration(ctx, taskType, elapsed, "handled")
		in.Obs.RecordJobProcessed(ctx, taskType, "handled")
	}
}

func (in *Instrumentation) validateVariables(taskType, variables string) error {
	name := registry.InputSchemaName(taskType)
	if in.Validator == nil || !in.Validator.Has(name) {
		return nil
	}
	if strings.TrimSpace(variables) == "" {
		variables = "{}"
	}

	result, err := in.Validator.Validate(name, []byte(variables))
	if err != nil {
		return errors.NewValidationError(err.Error())
	}
	if !result.Valid {
		return errors.NewValidationError(strings.Join(result.GetErrorMessages(), "; "))
	}
	return nil
}

// Open starts a job worker for taskType. Disabled workers return nil.
func Open(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler worker.JobHandler, log logger.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	jw := client.NewJobWorker().
		JobType(taskType).
		Handler(handler).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return jw
}

// internal/applications/service.go
package applications

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"autoapply-backend/internal/common/database"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/common/metrics"
	"autoapply-backend/internal/common/observability"
	"autoapply-backend/internal/models"

	"github.com/gocraft/dbr/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Notifier receives application events after a transition commits.
type Notifier interface {
	Notify(ctx context.Context, event models.ApplicationEvent) error
}

// JobIndex receives the job's mirrored application status after a transition commits.
type JobIndex interface {
	SetApplicationStatus(ctx context.Context, jobID string, status models.JobApplicationStatus) error
}

type CreateInput struct {
	JobID       string                   `json:"jobId"`
	Method      models.ApplicationMethod `json:"applicationMethod"`
	CoverLetter string                   `json:"coverLetter"`
	Note        string                   `json:"note"`
	Priority    string                   `json:"priority"`
}

type AdvanceInput struct {
	Status    models.ApplicationStatus `json:"status"`
	Note      string                   `json:"note"`
	Interview *models.InterviewDetails `json:"interview,omitempty"`
	Offer     *models.OfferDetails     `json:"offer,omitempty"`
}

// UserUpdate carries the applicant-owned fields. Nil fields are left unchanged.
type UserUpdate struct {
	UserNotes  *string `json:"userNotes,omitempty"`
	IsStarred  *bool   `json:"isStarred,omitempty"`
	IsArchived *bool   `json:"isArchived,omitempty"`
	Priority   *string `json:"priority,omitempty"`
}

type ListFilter struct {
	UserID          string
	Status          models.ApplicationStatus
	IncludeArchived bool
	Limit           int
	Offset          int
}

const (
	defaultListLimit     = 20
	maxListLimit         = 100
	defaultNotifyTimeout = 10 * time.Second
	defaultPriority      = "medium"
)

type Service struct {
	db            *sql.DB
	sess          *dbr.Session
	notifier      Notifier
	index         JobIndex
	obs           *observability.Observability
	logger        logger.Logger
	notifyTimeout time.Duration
	now           func() time.Time
	newID         func() string
	wg            sync.WaitGroup
}

// NewService builds the application state machine. notifier and obs may be nil.
func NewService(db *sql.DB, notifier Notifier, obs *observability.Observability, log logger.Logger) *Service {
	return &Service{
		db:            db,
		sess:          database.NewDBRSession(db),
		notifier:      notifier,
		obs:           obs,
		logger:        log.WithFields(map[string]interface{}{"component": "applications"}),
		notifyTimeout: defaultNotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         func() string { return uuid.New().String() },
	}
}

// SetNotifyTimeout bounds each notification dispatch.
func (s *Service) SetNotifyTimeout(d time.Duration) {
	if d > 0 {
		s.notifyTimeout = d
	}
}

// SetJobIndex mirrors job application status changes into the search index.
func (s *Service) SetJobIndex(index JobIndex) {
	s.index = index
}

// Wait blocks until in-flight notifications have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func validPriority(p string) bool {
	return p == "low" || p == "medium" || p == "high"
}

// Create opens an application for the actor on one of their own eligible jobs.
func (s *Service) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.Application, error) {
	if actor.Role != models.RoleUser || actor.ID == "" {
		return nil, errors.NewForbiddenError("only users can create applications")
	}
	if in.Method == "" {
		in.Method = models.MethodManual
	}
	if in.Method != models.MethodManual && in.Method != models.MethodAuto {
		return nil, errors.NewValidationError(fmt.Sprintf("unknown application method %q", in.Method))
	}
	if in.Priority == "" {
		in.Priority = defaultPriority
	}
	if !validPriority(in.Priority) {
		return nil, errors.NewValidationError("priority must be low, medium or high")
	}

	now := s.now()
	app := &models.Application{
		ID:                s.newID(),
		UserID:            actor.ID,
		JobID:             in.JobID,
		Status:            models.StatusPendingReview,
		ApplicationMethod: in.Method,
		CoverLetter:       in.CoverLetter,
		Priority:          in.Priority,
		Timeline:          []models.TimelineEntry{newTimelineEntry(models.StatusPendingReview, in.Note, actor.ID, now)},
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := database.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		var (
			owner        string
			status       models.JobStatus
			reviewStatus models.ReviewStatus
		)
		err := tx.QueryRowContext(ctx,
			"SELECT target_user_id, status, admin_review_status, match_score FROM jobs WHERE id = $1 FOR SHARE",
			in.JobID,
		).Scan(&owner, &status, &reviewStatus, &app.MatchScore)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewNotFoundError("job", in.JobID)
		}
		if err != nil {
			return errors.NewDatabaseError("load job", err)
		}
		job := models.Job{TargetUserID: owner, Status: status, AdminReviewStatus: reviewStatus}
		if owner != actor.ID || !job.IsApplicable() {
			return errors.NewNotFoundError("job", in.JobID)
		}

		timeline, err := json.Marshal(app.Timeline)
		if err != nil {
			return errors.NewInternalError(err)
		}

		var id string
		err = tx.QueryRowContext(ctx, insertApplication,
			app.ID, app.UserID, app.JobID, string(app.Status), app.MatchScore, string(app.ApplicationMethod),
			app.CoverLetter, app.Priority, string(timeline), now,
		).Scan(&id)
		if stderrors.Is(err, sql.ErrNoRows) {
			return errors.NewConflictError("an application for this job already exists")
		}
		if err != nil {
			if database.IsUniqueViolation(err) {
				return errors.NewConflictError("an application for this job already exists")
			}
			return errors.NewDatabaseError("insert application", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ApplicationsCreated.Inc()
	s.logger.Info("application created", map[string]interface{}{
		"applicationId": app.ID,
		"userId":        app.UserID,
		"jobId":         app.JobID,
		"matchScore":    app.MatchScore,
	})
	return app, nil
}

// Withdraw lets the applicant retract a non-terminal application.
func (s *Service) Withdraw(ctx context.Context, actor models.Actor, id, note string) (*models.Application, error) {
	return s.transition(ctx, actor, id, models.StatusWithdrawn, note, func(app *models.Application) error {
		if !actor.Owns(app.UserID) {
			return errors.NewForbiddenError("only the applicant can withdraw")
		}
		return nil
	}, nil)
}

// Review records the admin decision on a pending application.
func (s *Service) Review(ctx context.Context, actor models.Actor, id string, decision models.ApplicationStatus, notes string) (*models.Application, error) {
	if decision != models.StatusApproved && decision != models.StatusRejected {
		return nil, errors.NewValidationError("review decision must be approved or rejected")
	}
	return s.transition(ctx, actor, id, decision, notes, nil, func(app *models.Application, now time.Time) {
		app.ReviewedBy = actor.ID
		app.ReviewedAt = &now
		app.AdminNotes = notes
	})
}

// ApplyOnBehalf submits an approved application for the user.
func (s *Service) ApplyOnBehalf(ctx context.Context, actor models.Actor, id, note string) (*models.Application, error) {
	return s.transition(ctx, actor, id, models.StatusApplied, note, nil, func(app *models.Application, now time.Time) {
		app.AppliedBy = actor.ID
		app.AppliedAt = &now
		app.ApplicationMethod = models.MethodAuto
	})
}

// Advance records an employer-side stage.
func (s *Service) Advance(ctx context.Context, actor models.Actor, id string, in AdvanceInput) (*models.Application, error) {
	if !IsDownstream(in.Status) {
		return nil, errors.NewValidationError(fmt.Sprintf("%q is not a downstream status", in.Status))
	}
	return s.transition(ctx, actor, id, in.Status, in.Note, nil, func(app *models.Application, now time.Time) {
		if in.Interview != nil {
			app.Interview = in.Interview
		}
		if in.Offer != nil {
			offer := *in.Offer
			if offer.ReceivedAt == nil && in.Status == models.StatusOfferReceived {
				offer.ReceivedAt = &now
			}
			app.Offer = &offer
		}
	})
}

// transition runs one status change: lock, authorize, validate, write status with its
// timeline entry and mirror the job, all in one transaction.
func (s *Service) transition(
	ctx context.Context,
	actor models.Actor,
	id string,
	to models.ApplicationStatus,
	note string,
	authorize func(*models.Application) error,
	apply func(*models.Application, time.Time),
) (*models.Application, error) {
	ctx, span := s.obs.StartSpan(ctx, "applications.transition",
		attribute.String("application.id", id),
		attribute.String("application.to", string(to)),
	)
	defer span.End()

	var (
		app  *models.Application
		from models.ApplicationStatus
	)
	err := database.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		var err error
		app, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() && !actor.Owns(app.UserID) {
			return errors.NewNotFoundError("application", id)
		}
		if IsTerminal(app.Status) {
			return CanTransition(app.Status, to, actor.Role)
		}
		if authorize != nil {
			if err := authorize(app); err != nil {
				return err
			}
		}
		if err := CanTransition(app.Status, to, actor.Role); err != nil {
			return err
		}

		from = app.Status
		now := s.now()
		entry := newTimelineEntry(to, note, actor.ID, now)
		if apply != nil {
			apply(app, now)
		}
		return s.writeTransition(ctx, tx, app, entry, now)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	metrics.ApplicationTransitions.WithLabelValues(string(from), string(to)).Inc()
	s.logger.Info("application status changed", map[string]interface{}{
		"applicationId": app.ID,
		"from":          from,
		"to":            to,
		"actor":         actor.ID,
	})

	if jobStatus, ok := jobApplicationStatus(to); ok && s.index != nil {
		if err := s.index.SetApplicationStatus(ctx, app.JobID, jobStatus); err != nil {
			s.logger.Warn("job index update failed", map[string]interface{}{"jobId": app.JobID, "error": err.Error()})
		}
	}
	if notifyStatuses[to] {
		s.dispatch(app, note, actor.ID)
	}
	return app, nil
}

func (s *Service) lock(ctx context.Context, tx *sql.Tx, id string) (*models.Application, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM applications WHERE id = $1 FOR UPDATE", id)
	app, err := scanApplication(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("application", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("load application", err)
	}
	return app, nil
}

func (s *Service) writeTransition(ctx context.Context, tx *sql.Tx, app *models.Application, entry models.TimelineEntry, now time.Time) error {
	appended, err := json.Marshal([]models.TimelineEntry{entry})
	if err != nil {
		return errors.NewInternalError(err)
	}
	interview, err := nullableJSON(app.Interview)
	if err != nil {
		return errors.NewInternalError(err)
	}
	offer, err := nullableJSON(app.Offer)
	if err != nil {
		return errors.NewInternalError(err)
	}

	res, err := tx.ExecContext(ctx, updateTransition,
		app.ID, string(entry.Status), app.AdminNotes, app.ReviewedBy, app.ReviewedAt,
		app.AppliedBy, app.AppliedAt, string(app.ApplicationMethod), interview, offer,
		string(appended), now, app.Version,
	)
	if err != nil {
		return errors.NewDatabaseError("update application", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("update application", err)
	}
	if n == 0 {
		return errors.NewConflictError("application was modified concurrently")
	}

	if jobStatus, ok := jobApplicationStatus(entry.Status); ok {
		if _, err := tx.ExecContext(ctx, mirrorJobStatus, app.JobID, string(jobStatus), now); err != nil {
			return errors.NewDatabaseError("mirror job application status", err)
		}
	}

	app.Status = entry.Status
	app.Timeline = append(app.Timeline, entry)
	app.Version++
	app.UpdatedAt = now
	return nil
}

// dispatch notifies in the background. Failures never reach the caller.
func (s *Service) dispatch(app *models.Application, note, updatedBy string) {
	if s.notifier == nil {
		return
	}
	event := models.ApplicationEvent{
		ApplicationID: app.ID,
		UserID:        app.UserID,
		JobID:         app.JobID,
		Status:        app.Status,
		Note:          note,
		UpdatedBy:     updatedBy,
		OccurredAt:    app.UpdatedAt,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()

		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("application notification failed", map[string]interface{}{
				"applicationId": event.ApplicationID,
				"status":        event.Status,
				"error":         err.Error(),
			})
		}
	}()
}

// UpdateUserFields changes applicant-owned fields without touching status or timeline.
func (s *Service) UpdateUserFields(ctx context.Context, actor models.Actor, id string, upd UserUpdate) (*models.Application, error) {
	if upd.Priority != nil && !validPriority(*upd.Priority) {
		return nil, errors.NewValidationError("priority must be low, medium or high")
	}

	var app *models.Application
	err := database.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		var err error
		app, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if !actor.Owns(app.UserID) {
			if actor.IsAdmin() {
				return errors.NewForbiddenError("only the applicant can edit these fields")
			}
			return errors.NewNotFoundError("application", id)
		}

		if upd.UserNotes != nil {
			app.UserNotes = *upd.UserNotes
		}
		if upd.IsStarred != nil {
			app.IsStarred = *upd.IsStarred
		}
		if upd.IsArchived != nil {
			app.IsArchived = *upd.IsArchived
		}
		if upd.Priority != nil {
			app.Priority = *upd.Priority
		}
		app.UpdatedAt = s.now()

		if _, err := tx.ExecContext(ctx, updateUserFields,
			app.ID, app.UserNotes, app.IsStarred, app.IsArchived, app.Priority, app.UpdatedAt); err != nil {
			return errors.NewDatabaseError("update application", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Get returns the application to its owner or an admin; anyone else gets NOT_FOUND.
func (s *Service) Get(ctx context.Context, actor models.Actor, id string) (*models.Application, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM applications WHERE id = $1", id)
	app, err := scanApplication(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("application", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get application", err)
	}
	if !actor.IsAdmin() && !actor.Owns(app.UserID) {
		return nil, errors.NewNotFoundError("application", id)
	}
	return app, nil
}

// List returns applications newest first. Non-admins only ever see their own.
func (s *Service) List(ctx context.Context, actor models.Actor, f ListFilter) ([]models.Application, error) {
	if !actor.IsAdmin() {
		f.UserID = actor.ID
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	stmt := s.sess.Select(applicationColumns...).From("applications")
	if f.UserID != "" {
		stmt = stmt.Where(dbr.Eq("user_id", f.UserID))
	}
	if f.Status != "" {
		stmt = stmt.Where(dbr.Eq("status", string(f.Status)))
	}
	if !f.IncludeArchived {
		stmt = stmt.Where(dbr.Eq("is_archived", false))
	}
	stmt = stmt.OrderDir("created_at", false).OrderDir("id", true).
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	rows, err := stmt.RowsContext(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("list applications", err)
	}
	apps, err := scanApplications(rows)
	if err != nil {
		return nil, errors.NewDatabaseError("scan applications", err)
	}
	return apps, nil
}

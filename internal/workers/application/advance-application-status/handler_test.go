// internal/workers/application/advance-application-status/handler_test.go
package advanceapplicationstatus

import (
	"context"
	"testing"
	"time"

	"autoapply-backend/internal/applications"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockAdvancer struct {
	mock.Mock
}

func (m *MockAdvancer) Advance(ctx context.Context, actor models.Actor, id string, in applications.AdvanceInput) (*models.Application, error) {
	args := m.Called(ctx, actor, id, in)
	if a := args.Get(0); a != nil {
		return a.(*models.Application), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestHandler(t *testing.T, svc Advancer) *Handler {
	return NewHandler(&Config{Timeout: time.Second}, svc, logger.NewTestLogger(t))
}

// ==========================
// Execute
// ==========================

func TestExecute_AdvancesWithInterview(t *testing.T) {
	at := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	interview := &models.InterviewDetails{ScheduledAt: &at, Location: "video"}

	svc := new(MockAdvancer)
	svc.On("Advance", mock.Anything, models.SystemActor(), "app-1", applications.AdvanceInput{
		Status:    models.StatusInterviewScheduled,
		Note:      "recruiter call",
		Interview: interview,
	}).Return(&models.Application{
		ID:      "app-1",
		Status:  models.StatusInterviewScheduled,
		Version: 5,
		Timeline: []models.TimelineEntry{
			{Status: models.StatusPendingReview},
			{Status: models.StatusInterviewRequested},
			{Status: models.StatusInterviewScheduled},
		},
	}, nil)

	out, err := newTestHandler(t, svc).Execute(context.Background(), &Input{
		ApplicationID: "app-1",
		Status:        "interview_scheduled",
		Note:          "recruiter call",
		Interview:     interview,
	})
	require.NoError(t, err)
	assert.Equal(t, &Output{
		ApplicationID:  "app-1",
		Status:         "interview_scheduled",
		PreviousStatus: "interview_requested",
		Version:        5,
	}, out)
	svc.AssertExpectations(t)
}

func TestExecute_ActorFromVariables(t *testing.T) {
	svc := new(MockAdvancer)
	svc.On("Advance", mock.Anything, models.Actor{ID: "user-1", Role: models.RoleUser}, "app-1", mock.Anything).
		Return(&models.Application{ID: "app-1", Status: models.StatusViewed}, nil)

	out, err := newTestHandler(t, svc).Execute(context.Background(), &Input{
		ApplicationID: "app-1",
		Status:        "viewed",
		ActorID:       "user-1",
	})
	require.NoError(t, err)
	assert.Empty(t, out.PreviousStatus)
	svc.AssertExpectations(t)
}

func TestExecute_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
	}{
		{"missing application", &Input{Status: "viewed"}},
		{"role without id", &Input{ApplicationID: "app-1", Status: "viewed", ActorRole: "admin"}},
		{"unknown role", &Input{ApplicationID: "app-1", Status: "viewed", ActorID: "x", ActorRole: "root"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAdvancer)
			_, err := newTestHandler(t, svc).Execute(context.Background(), tt.input)
			assert.Equal(t, errors.ErrCodeValidationFailed, errors.CodeOf(err))
			svc.AssertNotCalled(t, "Advance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExecute_PropagatesInvalidState(t *testing.T) {
	svc := new(MockAdvancer)
	svc.On("Advance", mock.Anything, mock.Anything, "app-1", mock.Anything).
		Return(nil, errors.NewInvalidStateError("application is withdrawn"))

	_, err := newTestHandler(t, svc).Execute(context.Background(), &Input{ApplicationID: "app-1", Status: "viewed"})
	assert.True(t, errors.IsInvalidState(err))
}

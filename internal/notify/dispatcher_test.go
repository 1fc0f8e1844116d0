package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type mockEmail struct {
	sendFunc func(ctx context.Context, to, subject, body string) (string, error)
	calls    int
}

func (m *mockEmail) SendEmail(ctx context.Context, to, subject, body string) (string, error) {
	m.calls++
	return m.sendFunc(ctx, to, subject, body)
}

type mockSMS struct {
	sendFunc func(ctx context.Context, phone, message string) (string, error)
	calls    int
}

func (m *mockSMS) SendSMS(ctx context.Context, phone, message string) (string, error) {
	m.calls++
	return m.sendFunc(ctx, phone, message)
}

type stubProfiles struct {
	profile *models.UserProfile
}

func (s stubProfiles) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	if s.profile == nil {
		return nil, errors.NewNotFoundError("profile", userID)
	}
	return s.profile, nil
}

func enabledConfig() config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.Enabled = true
	cfg.Email.Enabled = true
	cfg.SMS.Enabled = true
	return cfg
}

var profile = &models.UserProfile{UserID: "u1", FullName: "Ada", Email: "ada@example.com", Phone: "+15550001111"}

func event(status models.ApplicationStatus) models.ApplicationEvent {
	return models.ApplicationEvent{
		ApplicationID: "app-1",
		UserID:        "u1",
		JobID:         "j1",
		Status:        status,
		Note:          "see portal",
		OccurredAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func byChannel(ns []models.Notification) map[string]string {
	out := map[string]string{}
	for _, n := range ns {
		out[n.Channel] = n.Status
	}
	return out
}

// ==========================
// Tests
// ==========================

func TestSend_AllChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "application-events")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	var gotSubject, gotBody string
	email := &mockEmail{sendFunc: func(_ context.Context, to, subject, body string) (string, error) {
		assert.Equal(t, "ada@example.com", to)
		gotSubject, gotBody = subject, body
		return "msg-1", nil
	}}
	sms := &mockSMS{sendFunc: func(_ context.Context, phone, _ string) (string, error) {
		assert.Equal(t, "+15550001111", phone)
		return "sms-1", nil
	}}

	d := NewDispatcher(enabledConfig(), rdb, email, sms, stubProfiles{profile: profile}, logger.NewTestLogger(t))
	sent := d.Send(ctx, event(models.StatusOfferReceived))

	assert.Equal(t, map[string]string{ChannelEvent: StatusSent, ChannelEmail: StatusSent, ChannelSMS: StatusSent}, byChannel(sent))
	assert.Equal(t, "You received an offer", gotSubject)
	assert.Equal(t, "Congratulations Ada! Application app-1 resulted in an offer. see portal", gotBody)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var published models.ApplicationEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &published))
	assert.Equal(t, "app-1", published.ApplicationID)
	assert.Equal(t, models.StatusOfferReceived, published.Status)
}

func TestSend_SMSOnlyForHighPriority(t *testing.T) {
	email := &mockEmail{sendFunc: func(context.Context, string, string, string) (string, error) { return "m", nil }}
	sms := &mockSMS{sendFunc: func(context.Context, string, string) (string, error) { return "s", nil }}

	d := NewDispatcher(enabledConfig(), nil, email, sms, stubProfiles{profile: profile}, logger.NewNoOpLogger())
	sent := d.Send(context.Background(), event(models.StatusApplied))

	assert.Equal(t, StatusSent, byChannel(sent)[ChannelEmail])
	assert.Equal(t, StatusDisabled, byChannel(sent)[ChannelSMS])
	assert.Equal(t, 0, sms.calls)
}

func TestSend_DisabledChannelsAreSkipped(t *testing.T) {
	email := &mockEmail{sendFunc: func(context.Context, string, string, string) (string, error) { return "m", nil }}

	d := NewDispatcher(config.NotificationConfig{}, nil, email, nil, stubProfiles{profile: profile}, logger.NewNoOpLogger())
	sent := d.Send(context.Background(), event(models.StatusInterviewScheduled))

	assert.Equal(t, StatusDisabled, byChannel(sent)[ChannelEmail])
	assert.Equal(t, 0, email.calls)
}

func TestSend_MissingProfileSkipsDirectChannels(t *testing.T) {
	email := &mockEmail{sendFunc: func(context.Context, string, string, string) (string, error) { return "m", nil }}

	d := NewDispatcher(enabledConfig(), nil, email, nil, stubProfiles{}, logger.NewNoOpLogger())
	sent := d.Send(context.Background(), event(models.StatusApplied))

	assert.Equal(t, StatusDisabled, byChannel(sent)[ChannelEmail])
	assert.Equal(t, 0, email.calls)
}

func TestNotify_ReportsFailedChannels(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.SetError("READONLY")
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	email := &mockEmail{sendFunc: func(context.Context, string, string, string) (string, error) {
		return "", stderrors.New("MessageRejected")
	}}

	d := NewDispatcher(enabledConfig(), rdb, email, nil, stubProfiles{profile: profile}, logger.NewNoOpLogger())
	err := d.Notify(context.Background(), event(models.StatusRejectedByEmployer))

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotificationSendFailed, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "event,email")
}

func TestRender(t *testing.T) {
	got := render("Hi {{name}}, {{applicationId}} is {{status}}. {{missing}}", map[string]interface{}{
		"name":          "Ada",
		"applicationId": "a1",
		"status":        "viewed",
	})
	assert.Equal(t, "Hi Ada, a1 is viewed.", got)
}

func TestRender_ValuesAreNotExpanded(t *testing.T) {
	data := map[string]interface{}{
		"name":          "Ada",
		"applicationId": "a1",
		"note":          "see {{applicationId}} and {{name}}",
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "Hi Ada: see {{applicationId}} and {{name}}", render("Hi {{name}}: {{note}}", data))
	}
	assert.Equal(t, "open {{ brace", render("open {{ brace", nil))
}

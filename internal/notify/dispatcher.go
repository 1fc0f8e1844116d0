// internal/notify/dispatcher.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"autoapply-backend/internal/common/config"
	"autoapply-backend/internal/common/errors"
	"autoapply-backend/internal/common/logger"
	"autoapply-backend/internal/common/metrics"
	"autoapply-backend/internal/models"
	"autoapply-backend/internal/profiles"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	ChannelEvent = "event"
	ChannelEmail = "email"
	ChannelSMS   = "sms"

	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)

const defaultEventsChannel = "application-events"

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

// Dispatcher fans an application event out to Redis pub/sub, email and SMS.
type Dispatcher struct {
	rdb      redis.Cmdable
	channel  string
	email    EmailSender
	sms      SMSSender
	profiles profiles.Provider
	logger   logger.Logger
	now      func() time.Time
}

// NewDispatcher wires the channels. email and sms are only used when enabled in cfg; rdb may be nil.
func NewDispatcher(cfg config.NotificationConfig, rdb redis.Cmdable, email EmailSender, sms SMSSender, provider profiles.Provider, log logger.Logger) *Dispatcher {
	d := &Dispatcher{
		rdb:      rdb,
		channel:  cfg.EventsChannel,
		profiles: provider,
		logger:   log.WithFields(map[string]interface{}{"component": "notify"}),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if d.channel == "" {
		d.channel = defaultEventsChannel
	}
	if cfg.Email.Enabled {
		d.email = email
	}
	if cfg.SMS.Enabled {
		d.sms = sms
	}
	return d
}

// Notify implements the application notifier. Channel failures are logged and
// summarised in the returned error; callers treat it as informational.
func (d *Dispatcher) Notify(ctx context.Context, event models.ApplicationEvent) error {
	sent := d.Send(ctx, event)

	var failed []string
	for _, n := range sent {
		if n.Status == StatusFailed {
			failed = append(failed, n.Channel)
		}
	}
	if len(failed) > 0 {
		return errors.NewNotificationSendFailedError(strings.Join(failed, ","), fmt.Errorf("%d of %d channels failed", len(failed), len(sent)))
	}
	return nil
}

// Send delivers the event on every channel and reports one record per channel.
func (d *Dispatcher) Send(ctx context.Context, event models.ApplicationEvent) []models.Notification {
	log := d.logger.WithFields(map[string]interface{}{
		"applicationId": event.ApplicationID,
		"status":        event.Status,
	})

	out := []models.Notification{d.publish(ctx, event, log)}

	var profile *models.UserProfile
	if d.email != nil || d.sms != nil {
		p, err := d.profiles.GetProfile(ctx, event.UserID)
		if err != nil {
			log.Warn("recipient profile unavailable", map[string]interface{}{"userId": event.UserID, "error": err.Error()})
		} else {
			profile = p
		}
	}

	tmpl := templateFor(event.Status)
	data := map[string]interface{}{
		"applicationId": event.ApplicationID,
		"jobId":         event.JobID,
		"status":        string(event.Status),
		"note":          event.Note,
	}
	if profile != nil {
		data["name"] = profile.FullName
	}
	subject := render(tmpl.Subject, data)
	body := render(tmpl.Body, data)

	emailRecord := d.record(event, ChannelEmail)
	if d.email != nil && profile != nil && profile.Email != "" {
		if _, err := d.email.SendEmail(ctx, profile.Email, subject, body); err != nil {
			log.Error("email send failed", map[string]interface{}{"error": err.Error()})
			emailRecord.Status = StatusFailed
		} else {
			emailRecord.Status = StatusSent
		}
	}
	out = append(out, d.count(emailRecord))

	smsRecord := d.record(event, ChannelSMS)
	if d.sms != nil && highPriority[event.Status] && profile != nil && profile.Phone != "" {
		if _, err := d.sms.SendSMS(ctx, profile.Phone, body); err != nil {
			log.Error("SMS send failed", map[string]interface{}{"error": err.Error()})
			smsRecord.Status = StatusFailed
		} else {
			smsRecord.Status = StatusSent
		}
	}
	out = append(out, d.count(smsRecord))

	return out
}

func (d *Dispatcher) publish(ctx context.Context, event models.ApplicationEvent, log logger.Logger) models.Notification {
	n := d.record(event, ChannelEvent)
	if d.rdb == nil {
		return d.count(n)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.Status = StatusFailed
		return d.count(n)
	}
	if err := d.rdb.Publish(ctx, d.channel, payload).Err(); err != nil {
		log.Warn("event publish failed", map[string]interface{}{"channel": d.channel, "error": err.Error()})
		n.Status = StatusFailed
		return d.count(n)
	}
	n.Status = StatusSent
	return d.count(n)
}

func (d *Dispatcher) record(event models.ApplicationEvent, channel string) models.Notification {
	return models.Notification{
		ID:            uuid.New().String(),
		RecipientID:   event.UserID,
		ApplicationID: event.ApplicationID,
		Type:          string(event.Status),
		Channel:       channel,
		Status:        StatusDisabled,
		SentAt:        d.now(),
	}
}

func (d *Dispatcher) count(n models.Notification) models.Notification {
	metrics.NotificationsSent.WithLabelValues(n.Channel, n.Status).Inc()
	return n
}

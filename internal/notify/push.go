// Package notify sends Expo push notifications for domain events and keeps
// the device tokens they are sent to.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/events"
	"lifecoach/backend/internal/store"
)

const previewLen = 120

// *expo.PushClient satisfies pushClient.
type pushClient interface {
	Publish(message *expo.PushMessage) (expo.PushResponse, error)
}

type AdminLister interface {
	ListAdmins(ctx context.Context) ([]domain.User, error)
}

// Pusher is an events.Publisher that turns selected events into push
// notifications. Other events are ignored.
type Pusher struct {
	client  pushClient
	devices store.DeviceRepository
	admins  AdminLister
	log     *slog.Logger
}

func NewPusher(client pushClient, devices store.DeviceRepository, admins AdminLister, log *slog.Logger) *Pusher {
	if client == nil {
		client = expo.NewPushClient(nil)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pusher{
		client:  client,
		devices: devices,
		admins:  admins,
		log:     log.With(slog.String("component", "notify")),
	}
}

func (p *Pusher) Publish(ctx context.Context, key string, payload any) error {
	switch key {
	case events.MessageSent:
		ev, ok := payload.(events.MessageEvent)
		if !ok {
			return fmt.Errorf("notify: unexpected payload %T for %s", payload, key)
		}
		return p.send(ctx, []string{ev.Message.ReceiverID}, "New message", preview(ev.Message), map[string]string{
			"type":           key,
			"conversationId": ev.Message.ConversationID,
			"messageId":      ev.Message.ID,
		})

	case events.AppointmentCreated:
		ev, ok := payload.(events.AppointmentEvent)
		if !ok {
			return fmt.Errorf("notify: unexpected payload %T for %s", payload, key)
		}
		admins, err := p.admins.ListAdmins(ctx)
		if err != nil {
			return fmt.Errorf("notify: list admins: %w", err)
		}
		ids := make([]string, 0, len(admins))
		for _, a := range admins {
			ids = append(ids, a.ID.String())
		}
		body := fmt.Sprintf("%s on %s at %s", ev.Appointment.Title, ev.Appointment.Date, ev.Appointment.StartTime.Format("15:04"))
		return p.send(ctx, ids, "New booking", body, map[string]string{
			"type":          key,
			"appointmentId": ev.Appointment.ID.String(),
		})
	}
	return nil
}

func (p *Pusher) send(ctx context.Context, userIDs []string, title, body string, data map[string]string) error {
	if len(userIDs) == 0 {
		return nil
	}
	tokens, err := p.devices.DeviceTokens(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("notify: load device tokens: %w", err)
	}

	var to []expo.ExponentPushToken
	for _, t := range tokens {
		pt, err := expo.NewExponentPushToken(t)
		if err != nil {
			p.log.WarnContext(ctx, "skipping malformed push token", slog.Any("err", err))
			continue
		}
		to = append(to, pt)
	}
	if len(to) == 0 {
		return nil
	}

	resp, err := p.client.Publish(&expo.PushMessage{
		To:       to,
		Title:    title,
		Body:     body,
		Data:     data,
		Sound:    "default",
		Priority: expo.DefaultPriority,
	})
	if err != nil {
		return fmt.Errorf("notify: publish push: %w", err)
	}
	if err := resp.ValidateResponse(); err != nil {
		return fmt.Errorf("notify: push rejected: %w", err)
	}
	p.log.DebugContext(ctx, "push sent", slog.Int("devices", len(to)), slog.String("type", data["type"]))
	return nil
}

func preview(m domain.Message) string {
	if m.Type != domain.MessageText {
		return "Sent you a " + string(m.Type)
	}
	r := []rune(strings.TrimSpace(m.Content))
	if len(r) <= previewLen {
		return string(r)
	}
	return string(r[:previewLen-1]) + "…"
}

// Devices registers push tokens for signed-in users.
type Devices struct {
	repo store.DeviceRepository
}

func NewDevices(repo store.DeviceRepository) *Devices {
	return &Devices{repo: repo}
}

func (d *Devices) RegisterDevice(ctx context.Context, userID, token string) (domain.Device, error) {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)
	if userID == "" {
		return domain.Device{}, apperr.Validation("user_id is required")
	}
	if _, err := expo.NewExponentPushToken(token); err != nil {
		return domain.Device{}, apperr.Validation("token must be an Expo push token")
	}
	dev, err := d.repo.UpsertDevice(ctx, domain.Device{UserID: userID, Token: token})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Device{}, err
		}
		return domain.Device{}, apperr.Remote("register device", err)
	}
	return dev, nil
}

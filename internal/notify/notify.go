// Package notify fans timeline events out to in-app notifications and
// external channels (email, webhooks). Delivery is best-effort.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"disputehub/internal/domain"
	"disputehub/internal/logging"
	"disputehub/internal/metrics"
	"disputehub/internal/repo"
)

const DefaultWindow = time.Hour

// Notice is one notifiable event addressed to the case owner.
type Notice struct {
	CaseID            string
	UserID            string
	Email             string
	Type              string
	Message           string
	EventID           int64
	RelatedDocumentID *string
	OccurredAt        string
}

// Channel delivers a notice outside the database.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notice) error
}

// Dispatcher writes the in-app notification and then attempts every channel.
// A notice suppressed by the dedup window is not sent to channels either.
type Dispatcher struct {
	Repo     repo.Repo
	Deduper  Deduper
	Window   time.Duration
	Channels []Channel
	Metrics  *metrics.Recorder
	Logger   *zap.Logger
	Now      func() time.Time
}

func (d Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dispatcher) logger() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

func (d Dispatcher) window() time.Duration {
	if d.Window > 0 {
		return d.Window
	}
	return DefaultWindow
}

// Notify reports whether the notice was recorded. Channel failures are
// logged and counted, never returned.
func (d Dispatcher) Notify(ctx context.Context, n Notice) (bool, error) {
	if n.CaseID == "" || n.UserID == "" || n.Type == "" {
		return false, errors.New("notice requires case, user and type")
	}
	now := d.now().UTC()
	row := domain.Notification{
		ID:        uuid.NewString(),
		CaseID:    n.CaseID,
		UserID:    n.UserID,
		Type:      n.Type,
		Message:   n.Message,
		CreatedAt: now.Format(time.RFC3339),
	}
	recorded, err := d.record(ctx, row, now)
	if err != nil {
		d.Metrics.Notification("in_app", "error")
		return false, err
	}
	log := d.logger().With(zap.String("case_id", n.CaseID), zap.String("type", n.Type), logging.UserID(n.UserID))
	if !recorded {
		d.Metrics.Notification("in_app", "deduplicated")
		log.Debug("notification suppressed by dedup window")
		return false, nil
	}
	d.Metrics.Notification("in_app", "sent")
	for _, ch := range d.Channels {
		if err := ch.Send(ctx, n); err != nil {
			d.Metrics.Notification(ch.Name(), "error")
			log.Warn("notification channel failed", zap.String("channel", ch.Name()), zap.Error(err))
			continue
		}
		d.Metrics.Notification(ch.Name(), "sent")
	}
	return true, nil
}

func (d Dispatcher) record(ctx context.Context, row domain.Notification, now time.Time) (bool, error) {
	if d.Deduper == nil {
		since := now.Add(-d.window()).Format(time.RFC3339)
		return d.Repo.InsertNotificationIfQuiet(ctx, row, since)
	}
	ok, err := d.Deduper.Claim(ctx, row.CaseID, row.Type, d.window())
	if err != nil {
		d.logger().Warn("dedup claim failed, falling back to database window", zap.Error(err))
		since := now.Add(-d.window()).Format(time.RFC3339)
		return d.Repo.InsertNotificationIfQuiet(ctx, row, since)
	}
	if !ok {
		return false, nil
	}
	return true, d.Repo.InsertNotification(ctx, row)
}

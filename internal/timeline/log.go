// Package timeline is the append-only case history. Writes go through Log so
// that notifiable events fan out after the write has committed.
package timeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"disputehub/internal/config"
	"disputehub/internal/domain"
	"disputehub/internal/notify"
	"disputehub/internal/repo"
)

// Notifier is satisfied by notify.Dispatcher.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notice) (bool, error)
}

type Log struct {
	Repo     repo.Repo
	Notifier Notifier
	Policy   config.Notifications
	Logger   *zap.Logger
	Now      func() time.Time
}

// Entry is an event before it is written. A zero OccurredAt means now.
type Entry struct {
	CaseID            string
	Type              string
	Description       string
	RelatedDocumentID *string
	OccurredAt        time.Time
}

var validTypes = map[string]bool{
	domain.EventStrategyFinalised:        true,
	domain.EventDocumentPlanCreated:      true,
	domain.EventDocumentsGenerating:      true,
	domain.EventDocumentGenerated:        true,
	domain.EventDocumentGenerationFailed: true,
	domain.EventDocumentSent:             true,
	domain.EventFollowUpGenerated:        true,
	domain.EventDeadlineMissed:           true,
	domain.EventCaseClosed:               true,
	domain.EventStrategyReset:            true,
}

func (l Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l Log) logger() *zap.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return zap.NewNop()
}

// AppendTx writes the event inside tx. The caller dispatches the returned
// event once tx has committed.
func (l Log) AppendTx(ctx context.Context, tx *sql.Tx, e Entry) (domain.TimelineEvent, error) {
	if e.CaseID == "" {
		return domain.TimelineEvent{}, errors.New("case_id required")
	}
	if !validTypes[e.Type] {
		return domain.TimelineEvent{}, fmt.Errorf("unknown timeline event type %q", e.Type)
	}
	now := l.now().UTC()
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	ev := domain.TimelineEvent{
		CaseID:            e.CaseID,
		Type:              e.Type,
		Description:       e.Description,
		RelatedDocumentID: e.RelatedDocumentID,
		OccurredAt:        occurred.UTC().Format(time.RFC3339),
		CreatedAt:         now.Format(time.RFC3339),
	}
	id, err := l.Repo.InsertTimelineEvent(ctx, tx, ev)
	if err != nil {
		return domain.TimelineEvent{}, fmt.Errorf("append %s: %w", e.Type, err)
	}
	ev.ID = id
	return ev, nil
}

// Append writes one event outside any transaction and dispatches it.
func (l Log) Append(ctx context.Context, e Entry) (domain.TimelineEvent, error) {
	ev, err := l.AppendTx(ctx, nil, e)
	if err != nil {
		return ev, err
	}
	l.Dispatch(ctx, ev)
	return ev, nil
}

// Dispatch sends notifications for the committed events whose type is
// configured as notifiable. DOCUMENT_GENERATED only goes out through
// NotifyDocumentGenerated. Failures are logged, never returned.
func (l Log) Dispatch(ctx context.Context, events ...domain.TimelineEvent) {
	for _, ev := range events {
		if ev.Type == domain.EventDocumentGenerated || !l.Policy.Notifies(ev.Type) {
			continue
		}
		l.send(ctx, ev, messageFor(ev))
	}
}

// NotifyDocumentGenerated tells the case owner a document completed.
func (l Log) NotifyDocumentGenerated(ctx context.Context, doc domain.GeneratedDocument) {
	if doc.Status != domain.DocumentCompleted || !l.Policy.Notifies(domain.EventDocumentGenerated) {
		return
	}
	id := doc.ID
	ev := domain.TimelineEvent{
		CaseID:            doc.CaseID,
		Type:              domain.EventDocumentGenerated,
		RelatedDocumentID: &id,
		OccurredAt:        doc.UpdatedAt,
	}
	l.send(ctx, ev, fmt.Sprintf("Your %s is ready to review.", doc.Title))
}

func (l Log) send(ctx context.Context, ev domain.TimelineEvent, message string) {
	if l.Notifier == nil {
		return
	}
	log := l.logger().With(zap.String("case_id", ev.CaseID), zap.String("type", ev.Type))
	c, err := l.Repo.GetCase(ctx, ev.CaseID)
	if err != nil {
		log.Warn("notification skipped: case lookup failed", zap.Error(err))
		return
	}
	n := notify.Notice{
		CaseID:            c.ID,
		UserID:            c.UserID,
		Type:              ev.Type,
		Message:           message,
		EventID:           ev.ID,
		RelatedDocumentID: ev.RelatedDocumentID,
		OccurredAt:        ev.OccurredAt,
	}
	if u, err := l.Repo.GetUser(ctx, c.UserID); err == nil {
		n.Email = u.Email
	}
	if _, err := l.Notifier.Notify(ctx, n); err != nil {
		log.Warn("notification failed", zap.Error(err))
	}
}

var messages = map[string]string{
	domain.EventDocumentSent:      "Your document has been marked as sent. We will remind you when the response period ends.",
	domain.EventDeadlineMissed:    "The response deadline for your case has passed without a reply.",
	domain.EventFollowUpGenerated: "A follow-up letter has been prepared for your case.",
	domain.EventCaseClosed:        "Your case has been closed.",
}

func messageFor(ev domain.TimelineEvent) string {
	if m, ok := messages[ev.Type]; ok {
		return m
	}
	return ev.Description
}

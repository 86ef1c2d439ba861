package repo

import (
	"context"
	"database/sql"

	"disputehub/internal/domain"
)

// Timeline rows are insert-only. A trigger rejects updates and no delete path
// exists outside case deletion.

func (r Repo) InsertTimelineEvent(ctx context.Context, tx *sql.Tx, ev domain.TimelineEvent) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO timeline_events(case_id,type,description,related_document_id,occurred_at,created_at) VALUES (?,?,?,?,?,?)`,
		ev.CaseID, ev.Type, ev.Description, nullableStringPtr(ev.RelatedDocumentID), ev.OccurredAt, ev.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListTimeline returns events after the cursor in append order.
func (r Repo) ListTimeline(ctx context.Context, caseID string, after int64, limit int) ([]domain.TimelineEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,case_id,type,description,related_document_id,occurred_at,created_at
FROM timeline_events WHERE case_id=? AND id>? ORDER BY id ASC LIMIT ?`, caseID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.TimelineEvent{}
	for rows.Next() {
		var ev domain.TimelineEvent
		var related sql.NullString
		if err := rows.Scan(&ev.ID, &ev.CaseID, &ev.Type, &ev.Description, &related, &ev.OccurredAt, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.RelatedDocumentID = stringPtr(related)
		res = append(res, ev)
	}
	return res, rows.Err()
}

func (r Repo) CountTimelineByType(ctx context.Context, caseID, evtType string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM timeline_events WHERE case_id=? AND type=?`, caseID, evtType).Scan(&n)
	return n, err
}

// InsertNotification stores an in-app notification unconditionally.
func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,case_id,user_id,type,message,created_at) VALUES (?,?,?,?,?,?)`,
		n.ID, n.CaseID, n.UserID, n.Type, n.Message, n.CreatedAt)
	return err
}

// InsertNotificationIfQuiet stores the notification unless one with the same
// case and type was created at or after since. The check and insert are one
// statement.
func (r Repo) InsertNotificationIfQuiet(ctx context.Context, n domain.Notification, since string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(id,case_id,user_id,type,message,created_at)
SELECT ?,?,?,?,?,? WHERE NOT EXISTS (SELECT 1 FROM notifications WHERE case_id=? AND type=? AND created_at>=?)`,
		n.ID, n.CaseID, n.UserID, n.Type, n.Message, n.CreatedAt, n.CaseID, n.Type, since)
	if err != nil {
		return false, err
	}
	return affected(res)
}

func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,case_id,user_id,type,message,read_at,created_at FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Notification{}
	for rows.Next() {
		var n domain.Notification
		var readAt sql.NullString
		if err := rows.Scan(&n.ID, &n.CaseID, &n.UserID, &n.Type, &n.Message, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ReadAt = stringPtr(readAt)
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, userID, id, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=COALESCE(read_at, ?) WHERE id=? AND user_id=?`, now, id, userID)
	if err != nil {
		return err
	}
	if ok, _ := affected(res); !ok {
		return ErrNotFound
	}
	return nil
}

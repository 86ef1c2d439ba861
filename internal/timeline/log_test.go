package timeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputehub/internal/config"
	"disputehub/internal/db"
	"disputehub/internal/domain"
	"disputehub/internal/migrate"
	"disputehub/internal/notify"
	"disputehub/internal/repo"
)

const ts = "2026-03-01T12:00:00Z"

type fakeNotifier struct {
	mu      sync.Mutex
	err     error
	notices []notify.Notice
}

func (f *fakeNotifier) Notify(_ context.Context, n notify.Notice) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return f.err == nil, f.err
}

func setup(t *testing.T) (Log, *fakeNotifier) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	require.NoError(t, r.EnsureUser(ctx, nil, domain.User{ID: "user-1", Email: "jo@example.com", CreatedAt: ts}))
	require.NoError(t, r.InsertCase(ctx, nil, domain.Case{
		ID: "case-1", UserID: "user-1", Title: "Unpaid wages",
		Phase: domain.PhaseIntake, ChatState: domain.ChatStateGathering, LifecycleStatus: domain.LifecycleActive,
		CreatedAt: ts, UpdatedAt: ts,
	}))
	n := &fakeNotifier{}
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return Log{Repo: r, Notifier: n, Policy: config.Default().Notifications, Now: func() time.Time { return fixed }}, n
}

func TestAppendWritesAndNotifies(t *testing.T) {
	l, n := setup(t)
	ctx := context.Background()

	ev, err := l.Append(ctx, Entry{CaseID: "case-1", Type: domain.EventDocumentSent, Description: "Letter before claim sent"})
	require.NoError(t, err)
	assert.NotZero(t, ev.ID)
	assert.Equal(t, "2026-03-02T09:00:00Z", ev.OccurredAt)

	require.Len(t, n.notices, 1)
	got := n.notices[0]
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, "jo@example.com", got.Email)
	assert.Equal(t, ev.ID, got.EventID)
	assert.Equal(t, domain.EventDocumentSent, got.Type)
}

func TestSilentEventsDoNotNotify(t *testing.T) {
	l, n := setup(t)
	ctx := context.Background()
	for _, typ := range []string{domain.EventStrategyFinalised, domain.EventDocumentPlanCreated, domain.EventDocumentsGenerating, domain.EventDocumentGenerated} {
		_, err := l.Append(ctx, Entry{CaseID: "case-1", Type: typ, Description: typ})
		require.NoError(t, err)
	}
	assert.Empty(t, n.notices)

	events, err := l.Repo.ListTimeline(ctx, "case-1", 0, 10)
	require.NoError(t, err)
	assert.Len(t, events, 4)
}

func TestNotifierFailureDoesNotFailAppend(t *testing.T) {
	l, n := setup(t)
	n.err = errors.New("smtp down")
	_, err := l.Append(context.Background(), Entry{CaseID: "case-1", Type: domain.EventCaseClosed, Description: "closed"})
	require.NoError(t, err)
	assert.Len(t, n.notices, 1)

	count, err := l.Repo.CountTimelineByType(context.Background(), "case-1", domain.EventCaseClosed)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAppendTxRollsBackWithCaller(t *testing.T) {
	l, n := setup(t)
	ctx := context.Background()
	tx, err := l.Repo.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = l.AppendTx(ctx, tx, Entry{CaseID: "case-1", Type: domain.EventStrategyFinalised, Description: "locked"})
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	events, err := l.Repo.ListTimeline(ctx, "case-1", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, n.notices)
}

func TestAppendRejectsUnknownType(t *testing.T) {
	l, _ := setup(t)
	_, err := l.Append(context.Background(), Entry{CaseID: "case-1", Type: "SOMETHING_ELSE"})
	assert.Error(t, err)
}

func TestNotifyDocumentGeneratedOnlyOnSuccess(t *testing.T) {
	l, n := setup(t)
	ctx := context.Background()
	doc := domain.GeneratedDocument{ID: "doc-1", CaseID: "case-1", Title: "Letter before claim", Status: domain.DocumentFailed}
	l.NotifyDocumentGenerated(ctx, doc)
	assert.Empty(t, n.notices)

	doc.Status = domain.DocumentCompleted
	l.NotifyDocumentGenerated(ctx, doc)
	require.Len(t, n.notices, 1)
	assert.Equal(t, domain.EventDocumentGenerated, n.notices[0].Type)
	require.NotNil(t, n.notices[0].RelatedDocumentID)
	assert.Equal(t, "doc-1", *n.notices[0].RelatedDocumentID)
	assert.Contains(t, n.notices[0].Message, "Letter before claim")
}

func TestDispatchHonoursConfiguredEvents(t *testing.T) {
	l, n := setup(t)
	l.Policy.Events = []string{domain.EventCaseClosed}
	ctx := context.Background()
	_, err := l.Append(ctx, Entry{CaseID: "case-1", Type: domain.EventDocumentSent, Description: "sent"})
	require.NoError(t, err)
	assert.Empty(t, n.notices)
	_, err = l.Append(ctx, Entry{CaseID: "case-1", Type: domain.EventCaseClosed, Description: "closed"})
	require.NoError(t, err)
	assert.Len(t, n.notices, 1)
}

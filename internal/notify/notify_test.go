package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputehub/internal/db"
	"disputehub/internal/domain"
	"disputehub/internal/migrate"
	"disputehub/internal/repo"
)

const ts = "2026-03-01T12:00:00Z"

func setupRepo(t *testing.T) repo.Repo {
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
	return r
}

type recordingChannel struct {
	mu   sync.Mutex
	name string
	err  error
	sent []Notice
}

func (c *recordingChannel) Name() string { return c.name }

func (c *recordingChannel) Send(_ context.Context, n Notice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func notice() Notice {
	return Notice{CaseID: "case-1", UserID: "user-1", Email: "jo@example.com", Type: domain.EventDocumentSent, Message: "Letter sent"}
}

func TestDispatcherDedupWindow(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ch := &recordingChannel{name: "test"}
	d := Dispatcher{Repo: r, Channels: []Channel{ch}, Now: clk.now}

	ok, err := d.Notify(ctx, notice())
	require.NoError(t, err)
	assert.True(t, ok)

	clk.t = clk.t.Add(59 * time.Minute)
	ok, err = d.Notify(ctx, notice())
	require.NoError(t, err)
	assert.False(t, ok)

	other := notice()
	other.Type = domain.EventCaseClosed
	ok, err = d.Notify(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok, "dedup is per type")

	clk.t = clk.t.Add(2 * time.Minute)
	ok, err = d.Notify(ctx, notice())
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := r.ListNotifications(ctx, "user-1", false, 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Len(t, ch.sent, 3)
}

func TestDispatcherSwallowsChannelErrors(t *testing.T) {
	r := setupRepo(t)
	failing := &recordingChannel{name: "broken", err: errors.New("boom")}
	ok := &recordingChannel{name: "ok"}
	d := Dispatcher{Repo: r, Channels: []Channel{failing, ok}}

	recorded, err := d.Notify(context.Background(), notice())
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Len(t, failing.sent, 1)
	assert.Len(t, ok.sent, 1)
}

func TestDispatcherRejectsIncompleteNotice(t *testing.T) {
	d := Dispatcher{Repo: setupRepo(t)}
	_, err := d.Notify(context.Background(), Notice{CaseID: "case-1"})
	assert.Error(t, err)
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (m *memDeduper) Claim(_ context.Context, caseID, notifType string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	key := caseID + ":" + notifType
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func TestDispatcherUsesDeduper(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()
	d := Dispatcher{Repo: r, Deduper: &memDeduper{seen: map[string]bool{}}}

	first, err := d.Notify(ctx, notice())
	require.NoError(t, err)
	second, err := d.Notify(ctx, notice())
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)

	broken := Dispatcher{Repo: r, Deduper: &memDeduper{err: errors.New("redis down")}}
	fallback, err := broken.Notify(ctx, notice())
	require.NoError(t, err)
	assert.False(t, fallback, "database window still applies when the deduper fails")
}

func TestSendGridMailer(t *testing.T) {
	var got sgMailSend
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/mail/send", r.URL.Path)
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m, err := NewSendGridMailer(SendGridConfig{APIKey: "sg-key", BaseURL: srv.URL, From: "cases@disputehub.test"})
	require.NoError(t, err)
	err = EmailChannel{Mailer: m}.Send(context.Background(), notice())
	require.NoError(t, err)

	assert.Equal(t, "Bearer sg-key", auth)
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "jo@example.com", got.Personalizations[0].To[0].Email)
	assert.Equal(t, "Your document has been sent", got.Subject)
	assert.Equal(t, "Letter sent", got.Content[0].Value)
}

func TestSendGridMailerReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad key"}]}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m, err := NewSendGridMailer(SendGridConfig{APIKey: "sg-key", BaseURL: srv.URL, From: "cases@disputehub.test"})
	require.NoError(t, err)
	err = m.Send(context.Background(), Email{To: "jo@example.com", Subject: "s", Text: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = NewSendGridMailer(SendGridConfig{From: "x@y"})
	assert.Error(t, err)
}

func TestEmailChannelSkipsMissingAddress(t *testing.T) {
	n := notice()
	n.Email = ""
	assert.NoError(t, EmailChannel{Mailer: LogMailer{}}.Send(context.Background(), n))
}

func TestWebhookChannel(t *testing.T) {
	var mu sync.Mutex
	var headers []http.Header
	var payload webhookEvent
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		headers = append(headers, r.Header.Clone())
		_ = json.NewDecoder(r.Body).Decode(&payload)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	ch := NewWebhookChannel([]string{ok.URL, " ", bad.URL}, "s3cret")
	require.Len(t, ch.URLs, 2)
	n := notice()
	n.EventID = 42
	err := ch.Send(context.Background(), n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	require.Len(t, headers, 1)
	assert.Equal(t, domain.EventDocumentSent, headers[0].Get("X-DisputeHub-Event"))
	assert.Equal(t, "42", headers[0].Get("X-DisputeHub-Delivery"))
	assert.Equal(t, "s3cret", headers[0].Get("X-DisputeHub-Secret"))
	assert.Equal(t, "case-1", payload.CaseID)
	assert.Equal(t, "Letter sent", payload.Message)
}

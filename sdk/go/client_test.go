package disputehubsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputehub/internal/config"
	"disputehub/internal/db"
	"disputehub/internal/docgen"
	"disputehub/internal/engine"
	"disputehub/internal/migrate"
	"disputehub/internal/server"
	disputehubsdk "disputehub/sdk/go"
)

func newClient(t *testing.T, user string) *disputehubsdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	gen := docgen.Service{Drafter: docgen.TemplateDrafter{}, Store: docgen.LocalStore{Root: t.TempDir()}}
	e, err := engine.New(conn, config.Default(), gen)
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v1", Auth: server.AuthConfig{DevHeaders: true}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	c := disputehubsdk.New(srv.URL + "/v1")
	c.DevUserID = user
	return c
}

func str(s string) *string { return &s }

func TestClientDrivesCaseToDocuments(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, "user-1")

	created, err := c.CreateCase(ctx, "Unpaid wages")
	require.NoError(t, err)
	assert.Equal(t, "user-1", created.UserID)
	assert.False(t, created.StrategyLocked)

	check, err := c.CheckGate(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, check.ShouldTrigger)
	assert.NotEmpty(t, check.Completeness.Missing)

	turn, err := c.ProcessTurn(ctx, created.ID, &disputehubsdk.StrategyDelta{
		DisputeType: str("employment"),
		AddFacts: []string{
			"I worked for Acme Ltd as a warehouse operative",
			"My employer is Acme Ltd",
			"I was paid weekly by bank transfer",
			"My last shift was on 14 February",
			"They did not pay my final week",
			"The unpaid amount is £133",
			"I asked my manager twice",
			"He refused to answer my emails",
		},
		AddEvidence:    []string{"photo of timesheet"},
		DesiredOutcome: str("I want full repayment of £133 in unpaid wages owed to me"),
	}, "Thanks, I have what I need to prepare your letter.")
	require.NoError(t, err)
	assert.Equal(t, "surface", turn.Action)
	assert.True(t, turn.Verdict.Allowed)
	require.NotNil(t, turn.Gate)
	assert.True(t, turn.Gate.Executed)
	assert.True(t, turn.Case.StrategyLocked)

	docs, err := c.Documents(ctx, created.ID, "COMPLETED")
	require.NoError(t, err)
	require.Len(t, docs, turn.Gate.Documents)
	assert.Equal(t, 1, docs[0].Position)

	again, err := c.ExecuteGate(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, again.Executed)
	assert.Equal(t, "strategy_locked", again.Reason)

	sent, err := c.MarkSent(ctx, created.ID, docs[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, sent.SentAt)

	page, err := c.Timeline(ctx, created.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "STRATEGY_FINALISED", page.Items[0].Type)
	assert.Equal(t, "DOCUMENT_PLAN_CREATED", page.Items[1].Type)
	require.NotZero(t, page.NextCursor)

	rest, err := c.Timeline(ctx, created.ID, page.NextCursor, 0)
	require.NoError(t, err)
	require.NotEmpty(t, rest.Items)
	assert.Greater(t, rest.Items[0].ID, page.NextCursor)
}

func TestClientReportsAPIErrors(t *testing.T) {
	ctx := context.Background()
	owner := newClient(t, "user-1")
	created, err := owner.CreateCase(ctx, "Deposit")
	require.NoError(t, err)

	_, err = owner.GetCase(ctx, "missing")
	var apiErr *disputehubsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	stranger := disputehubsdk.New(owner.BaseURL)
	stranger.DevUserID = "user-2"
	_, err = stranger.GetCase(ctx, created.ID)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	anonymous := disputehubsdk.New(owner.BaseURL)
	_, err = anonymous.GetCase(ctx, created.ID)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

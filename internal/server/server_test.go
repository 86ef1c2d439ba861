package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputehub/internal/config"
	"disputehub/internal/db"
	"disputehub/internal/docgen"
	"disputehub/internal/domain"
	"disputehub/internal/engine"
	"disputehub/internal/metrics"
	"disputehub/internal/migrate"
	"disputehub/internal/repo"
)

const (
	testSecret = "test-secret"
	adminKey   = "dh_test_admin_key"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	gen := docgen.Service{Drafter: docgen.TemplateDrafter{}, Store: docgen.LocalStore{Root: t.TempDir()}}
	e, err := engine.New(conn, config.Default(), gen)
	require.NoError(t, err)
	e.Metrics = metrics.New()

	require.NoError(t, e.Repo.InsertAPIKey(context.Background(), domain.APIKey{
		ID:        "key-1",
		ActorID:   "ops",
		Name:      "ops tooling",
		Role:      domain.RoleAdmin,
		KeyHash:   repo.HashAPIKey(adminKey),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}))

	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret, DevHeaders: true},
		Metrics:  e.Metrics.Handler(),
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	return &testServer{URL: srv.URL, Engine: e, client: srv.Client()}
}

func bearer(t *testing.T, userID string, roles ...string) map[string]string {
	t.Helper()
	token, err := IssueToken(testSecret, userID, roles, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := s.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func completeTurn() map[string]any {
	return map[string]any{
		"delta": map[string]any{
			"dispute_type": "employment",
			"add_facts": []string{
				"I worked for Acme Ltd as a warehouse operative",
				"My employer is Acme Ltd",
				"I was paid weekly by bank transfer",
				"My last shift was on 14 February",
				"They did not pay my final week",
				"The unpaid amount is £133",
				"I asked my manager twice",
				"He refused to answer my emails",
			},
			"add_evidence":    []string{"photo of timesheet"},
			"desired_outcome": "I want full repayment of £133 in unpaid wages owed to me",
		},
		"response": "Thanks, I have what I need to prepare your letter.",
	}
}

func TestHealthAndAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	res, _ := srv.do(t, http.MethodGet, "/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, data := srv.do(t, http.MethodGet, "/v1/cases", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodGet, "/v1/cases", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "invalid_credentials", decode[errorEnvelope](t, data).Error.Code)

	res, _ = srv.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestTurnTriggersGateAndLocksStrategy(t *testing.T) {
	srv := newTestServer(t)
	owner := bearer(t, "user-1")

	res, data := srv.do(t, http.MethodPost, "/v1/cases", map[string]any{"id": "case-1", "title": "Unpaid wages"}, owner)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	created := decode[domain.Case](t, data)
	assert.Equal(t, "user-1", created.UserID)

	res, data = srv.do(t, http.MethodGet, "/v1/cases/case-1/gate", nil, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	check := decode[TriggerResponse](t, data)
	assert.False(t, check.ShouldTrigger)
	assert.Equal(t, engine.ReasonIncomplete, check.Reason)

	res, data = srv.do(t, http.MethodPost, "/v1/cases/case-1/turns", completeTurn(), owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	turn := decode[engine.TurnResult](t, data)
	assert.Equal(t, engine.ActionSurface, turn.Action)
	require.NotNil(t, turn.Gate)
	assert.True(t, turn.Gate.Executed)
	assert.True(t, turn.Case.StrategyLocked)

	res, data = srv.do(t, http.MethodGet, "/v1/cases/case-1/plan", nil, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	plan := decode[domain.DocumentPlan](t, data)
	require.NotEmpty(t, plan.Documents)
	for _, d := range plan.Documents {
		assert.Equal(t, domain.DocumentCompleted, d.Status)
	}

	res, data = srv.do(t, http.MethodGet, "/v1/cases/case-1/timeline", nil, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	page := decode[paginatedTimeline](t, data)
	require.NotEmpty(t, page.Items)
	assert.Equal(t, domain.EventStrategyFinalised, page.Items[0].Type)

	res, data = srv.do(t, http.MethodPatch, "/v1/cases/case-1/strategy", map[string]any{"add_facts": []string{"late"}}, owner)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	assert.Equal(t, "strategy_locked", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodPost, "/v1/cases/case-1/gate/execute", nil, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	gate := decode[engine.GateResult](t, data)
	assert.False(t, gate.Executed)
	assert.Equal(t, engine.ReasonLocked, gate.Reason)

	res, data = srv.do(t, http.MethodPost, "/v1/cases/case-1/documents/"+plan.Documents[0].ID+"/retry", nil, owner)
	require.Equal(t, http.StatusUnprocessableEntity, res.StatusCode, string(data))
	assert.Equal(t, "retry_not_allowed", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodPost, "/v1/cases/case-1/documents/"+plan.Documents[0].ID+"/sent", nil, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodGet, "/v1/notifications", nil, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.Empty(t, decode[listNotifications](t, data).Items, "no notifier is wired in this server")
}

func TestForbiddenPhraseAsksForRegeneration(t *testing.T) {
	srv := newTestServer(t)
	owner := bearer(t, "user-1")
	res, data := srv.do(t, http.MethodPost, "/v1/cases", map[string]any{"id": "case-1", "title": "Deposit"}, owner)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodPost, "/v1/cases/case-1/turns", map[string]any{
		"response": "I've reviewed the evidence and this looks strong.",
	}, owner)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	turn := decode[engine.TurnResult](t, data)
	assert.Equal(t, engine.ActionRegenerate, turn.Action)
	assert.NotEmpty(t, turn.Verdict.Violations)
	assert.Nil(t, turn.Gate)
}

func TestCaseAccessIsScopedToOwner(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodPost, "/v1/cases", map[string]any{"id": "case-1", "title": "Parking"}, bearer(t, "user-1"))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	other := bearer(t, "user-2")
	res, data = srv.do(t, http.MethodGet, "/v1/cases/case-1", nil, other)
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	res, data = srv.do(t, http.MethodGet, "/v1/cases", nil, other)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, decode[listCases](t, data).Items)

	res, data = srv.do(t, http.MethodPut, "/v1/cases/case-1/restricted", map[string]any{"restricted": true}, bearer(t, "user-1"))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))

	apiKey := map[string]string{"X-Api-Key": adminKey}
	res, data = srv.do(t, http.MethodPut, "/v1/cases/case-1/restricted", map[string]any{"restricted": true}, apiKey)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	assert.True(t, decode[domain.Case](t, data).Restricted)

	res, data = srv.do(t, http.MethodGet, "/v1/cases/missing", nil, apiKey)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Equal(t, "not_found", decode[errorEnvelope](t, data).Error.Code)

	res, data = srv.do(t, http.MethodPost, "/v1/cases/case-1/strategy/reset", nil, bearer(t, "boss", "admin"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestEvidenceWithDevHeaders(t *testing.T) {
	srv := newTestServer(t)
	dev := map[string]string{"X-User-Id": "user-1"}
	res, data := srv.do(t, http.MethodPost, "/v1/cases", map[string]any{"id": "case-1", "title": "Refund"}, dev)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	var ids []string
	for _, title := range []string{"Receipt", "Emails", "Photos"} {
		res, data := srv.do(t, http.MethodPost, "/v1/cases/case-1/evidence", map[string]any{
			"file_ref": "local://" + strings.ToLower(title), "title": title,
		}, dev)
		require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
		item := decode[domain.EvidenceItem](t, data)
		assert.Equal(t, "user-1", item.UploadedBy)
		ids = append(ids, item.ID)
	}
	res, _ = srv.do(t, http.MethodDelete, "/v1/cases/case-1/evidence/"+ids[1], nil, dev)
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, data = srv.do(t, http.MethodPost, "/v1/cases/case-1/evidence", map[string]any{"file_ref": "local://letter", "title": "Letter"}, dev)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	assert.Equal(t, 4, decode[domain.EvidenceItem](t, data).Index)

	res, data = srv.do(t, http.MethodPatch, "/v1/cases/case-1/evidence/"+ids[0], map[string]any{"evidence_date": "last week"}, dev)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = srv.do(t, http.MethodGet, "/v1/cases/case-1/evidence", nil, dev)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, decode[listEvidence](t, data).Items, 3)
}

func TestComplexityScore(t *testing.T) {
	srv := newTestServer(t)
	res, data := srv.do(t, http.MethodPost, "/v1/complexity/score", map[string]any{
		"dispute_type":    "parking",
		"key_facts":       []string{"ticket issued at 10:02"},
		"desired_outcome": "cancel",
	}, bearer(t, "user-1"))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out struct {
		Level                string   `json:"level"`
		RecommendedDocuments []string `json:"recommended_documents"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "LOW", out.Level)
	assert.NotEmpty(t, out.RecommendedDocuments)

	res, data = srv.do(t, http.MethodPost, "/v1/complexity/score", map[string]any{
		"dispute_type":   "employment",
		"evidence_count": 10001,
	}, bearer(t, "user-1"))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
}

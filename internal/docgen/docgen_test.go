package docgen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputehub/internal/domain"
)

func request() Request {
	return Request{
		DocumentID: "doc-1",
		Type:       "LETTER_BEFORE_CLAIM",
		Title:      "Letter before claim",
		CaseID:     "case-1",
		Position:   2,
		Total:      4,
		Strategy: domain.Strategy{
			DisputeType:       "employment",
			KeyFacts:          []string{"I worked at Acme Ltd", "", "They owe me £133"},
			EvidenceMentioned: []string{"timesheet"},
			DesiredOutcome:    "Full repayment of £133 in unpaid wages",
		},
		Routing:  domain.Routing{Jurisdiction: "England and Wales", Forum: "Employment Tribunal", TimeLimit: "3 months less one day"},
		Evidence: []domain.EvidenceItem{{Index: 1, Title: "Timesheet photo"}},
	}
}

func TestTemplateDraft(t *testing.T) {
	text, err := TemplateDrafter{}.Draft(context.Background(), request())
	require.NoError(t, err)
	assert.Contains(t, text, "# Letter before claim")
	assert.Contains(t, text, "Document 2 of 4")
	assert.Contains(t, text, "1. I worked at Acme Ltd\n2. They owe me £133")
	assert.Contains(t, text, "Exhibit 1: Timesheet photo")
	assert.Contains(t, text, "Full repayment of £133")
}

func TestServiceStoresDraft(t *testing.T) {
	root := t.TempDir()
	svc := Service{Drafter: TemplateDrafter{}, Store: LocalStore{Root: root}}
	out, err := svc.Generate(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "local://cases/case-1/02-letter_before_claim-doc-1.md", out.FileRef)

	data, err := os.ReadFile(filepath.Join(root, "cases", "case-1", "02-letter_before_claim-doc-1.md"))
	require.NoError(t, err)
	assert.Equal(t, out.Content+"\n", string(data))
}

type stubDrafter struct {
	text string
	err  error
}

func (s stubDrafter) Name() string { return "stub" }

func (s stubDrafter) Draft(context.Context, Request) (string, error) { return s.text, s.err }

func TestServiceErrors(t *testing.T) {
	store := LocalStore{Root: t.TempDir()}
	_, err := Service{Drafter: stubDrafter{err: errors.New("rate limited")}, Store: store}.Generate(context.Background(), request())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")

	_, err = Service{Drafter: stubDrafter{text: "  \n"}, Store: store}.Generate(context.Background(), request())
	assert.ErrorIs(t, err, ErrEmptyDraft)

	_, err = Service{}.Generate(context.Background(), request())
	assert.Error(t, err)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	_, err := LocalStore{Root: t.TempDir()}.Put(context.Background(), "../escape.md", []byte("x"))
	assert.Error(t, err)
}

func TestOpenAIDrafter(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"test-model","choices":[{"index":0,"message":{"role":"assistant","content":"Dear Acme Ltd"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	d := NewOpenAIDrafter("test-key", srv.URL, "test-model")
	text, err := d.Draft(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "Dear Acme Ltd", text)
	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "Exhibit 1: Timesheet photo")
	assert.Contains(t, got.Messages[1].Content, "document 2 of 4")
}

func TestOpenAIDrafterNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIDrafter("test-key", srv.URL, "").Draft(context.Background(), request())
	assert.Error(t, err)
}

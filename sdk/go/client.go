package disputehubsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal DisputeHub HTTP API client. BaseURL includes the API
// base path, e.g. http://localhost:8080/v1.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// DevUserID is sent as X-User-Id when no credentials are set. Only
	// servers started with dev headers accept it.
	DevUserID  string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 30 * time.Second,
	}
}

// Case represents the API case model (partial).
type Case struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	Title           string  `json:"title"`
	StrategyLocked  bool    `json:"strategy_locked"`
	Restricted      bool    `json:"restricted"`
	Phase           string  `json:"phase"`
	ChatState       string  `json:"chat_state"`
	LifecycleStatus string  `json:"lifecycle_status"`
	WaitingUntil    *string `json:"waiting_until,omitempty"`
}

// StrategyDelta is one turn's extracted strategy changes.
type StrategyDelta struct {
	DisputeType    *string  `json:"dispute_type,omitempty"`
	AddFacts       []string `json:"add_facts,omitempty"`
	AddEvidence    []string `json:"add_evidence,omitempty"`
	DesiredOutcome *string  `json:"desired_outcome,omitempty"`
}

// Gate reports one decision gate run.
type Gate struct {
	CaseID          string `json:"case_id"`
	Executed        bool   `json:"executed"`
	Reason          string `json:"reason,omitempty"`
	PlanID          string `json:"plan_id,omitempty"`
	PlanCreated     bool   `json:"plan_created"`
	Documents       int    `json:"documents"`
	Completed       int    `json:"completed"`
	Failed          int    `json:"failed"`
	GenerationError string `json:"generation_error,omitempty"`
	Shared          bool   `json:"shared,omitempty"`
}

// Completeness is the missing-requirements report for a strategy.
type Completeness struct {
	Complete bool     `json:"complete"`
	Missing  []string `json:"missing"`
}

// TriggerCheck says whether the gate would run now.
type TriggerCheck struct {
	CaseID        string       `json:"case_id"`
	ShouldTrigger bool         `json:"should_trigger"`
	Reason        string       `json:"reason,omitempty"`
	Completeness  Completeness `json:"completeness"`
}

// Turn is the outcome of a processed conversation turn (partial).
type Turn struct {
	Action  string `json:"action"`
	Verdict struct {
		Allowed    bool `json:"allowed"`
		Violations []struct {
			Kind  string `json:"kind"`
			Rule  string `json:"rule"`
			Match string `json:"match"`
		} `json:"violations"`
	} `json:"verdict"`
	Case Case  `json:"case"`
	Gate *Gate `json:"gate,omitempty"`
}

// Document is a generated document.
type Document struct {
	ID         string  `json:"id"`
	PlanID     string  `json:"plan_id"`
	CaseID     string  `json:"case_id"`
	Type       string  `json:"type"`
	Title      string  `json:"title"`
	Position   int     `json:"position"`
	Status     string  `json:"status"`
	RetryCount int     `json:"retry_count"`
	LastError  *string `json:"last_error,omitempty"`
	FileRef    *string `json:"file_ref,omitempty"`
	SentAt     *string `json:"sent_at,omitempty"`
}

// Event is a timeline entry.
type Event struct {
	ID                int64   `json:"id"`
	CaseID            string  `json:"case_id"`
	Type              string  `json:"type"`
	Description       string  `json:"description"`
	RelatedDocumentID *string `json:"related_document_id,omitempty"`
	OccurredAt        string  `json:"occurred_at"`
}

// PaginatedEvents wraps timeline listings. Pass NextCursor as after.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor int64   `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCase opens a case owned by the caller.
func (c *Client) CreateCase(ctx context.Context, title string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodPost, "cases", map[string]any{"title": title}, &resp)
	return resp, err
}

// GetCase fetches a case.
func (c *Client) GetCase(ctx context.Context, caseID string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, casePath(caseID, ""), nil, &resp)
	return resp, err
}

// ProcessTurn sends one conversation turn: the extracted delta and the
// candidate response.
func (c *Client) ProcessTurn(ctx context.Context, caseID string, delta *StrategyDelta, response string) (Turn, error) {
	body := map[string]any{"response": response}
	if delta != nil {
		body["delta"] = delta
	}
	var resp Turn
	err := c.do(ctx, http.MethodPost, casePath(caseID, "turns"), body, &resp)
	return resp, err
}

// CheckGate evaluates the trigger predicate without running the gate.
func (c *Client) CheckGate(ctx context.Context, caseID string) (TriggerCheck, error) {
	var resp TriggerCheck
	err := c.do(ctx, http.MethodGet, casePath(caseID, "gate"), nil, &resp)
	return resp, err
}

// ExecuteGate runs the decision gate.
func (c *Client) ExecuteGate(ctx context.Context, caseID string) (Gate, error) {
	var resp Gate
	err := c.do(ctx, http.MethodPost, casePath(caseID, "gate/execute"), nil, &resp)
	return resp, err
}

// Documents lists generated documents, optionally filtered by status.
func (c *Client) Documents(ctx context.Context, caseID, status string) ([]Document, error) {
	endpoint := casePath(caseID, "documents")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Document `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// RetryDocument requeues and regenerates a failed document.
func (c *Client) RetryDocument(ctx context.Context, caseID, documentID string) (Document, error) {
	var resp Document
	endpoint := casePath(caseID, fmt.Sprintf("documents/%s/retry", url.PathEscape(documentID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// MarkSent records that a document was sent.
func (c *Client) MarkSent(ctx context.Context, caseID, documentID string) (Document, error) {
	var resp Document
	endpoint := casePath(caseID, fmt.Sprintf("documents/%s/sent", url.PathEscape(documentID)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Timeline returns timeline events after the given event id.
func (c *Client) Timeline(ctx context.Context, caseID string, after int64, limit int) (PaginatedEvents, error) {
	q := url.Values{}
	if after > 0 {
		q.Set("after", fmt.Sprint(after))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := casePath(caseID, "timeline")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.DevUserID != "":
		req.Header.Set("X-User-Id", c.DevUserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func casePath(caseID, p string) string {
	base := "cases/" + url.PathEscape(caseID)
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

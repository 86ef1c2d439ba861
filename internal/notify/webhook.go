package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookChannel posts each notice as JSON to every configured URL.
type WebhookChannel struct {
	URLs   []string
	Secret string
	Client *http.Client
}

func NewWebhookChannel(urls []string, secret string) *WebhookChannel {
	clean := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			clean = append(clean, u)
		}
	}
	return &WebhookChannel{URLs: clean, Secret: secret, Client: &http.Client{Timeout: defaultWebhookTimeout}}
}

func (c *WebhookChannel) Name() string { return "webhook" }

type webhookEvent struct {
	EventID           int64   `json:"event_id,omitempty"`
	Type              string  `json:"type"`
	CaseID            string  `json:"case_id"`
	UserID            string  `json:"user_id"`
	Message           string  `json:"message"`
	RelatedDocumentID *string `json:"related_document_id,omitempty"`
	OccurredAt        string  `json:"occurred_at,omitempty"`
}

// Send attempts every URL and joins the failures.
func (c *WebhookChannel) Send(ctx context.Context, n Notice) error {
	data, err := json.Marshal(webhookEvent{
		EventID:           n.EventID,
		Type:              n.Type,
		CaseID:            n.CaseID,
		UserID:            n.UserID,
		Message:           n.Message,
		RelatedDocumentID: n.RelatedDocumentID,
		OccurredAt:        n.OccurredAt,
	})
	if err != nil {
		return err
	}
	var errs []error
	for _, u := range c.URLs {
		if err := c.post(ctx, u, n, data); err != nil {
			errs = append(errs, fmt.Errorf("deliver to %s: %w", u, err))
		}
	}
	return errors.Join(errs...)
}

func (c *WebhookChannel) post(ctx context.Context, url string, n Notice, data []byte) error {
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-DisputeHub-Event", n.Type)
	req.Header.Set("X-DisputeHub-Case", n.CaseID)
	if n.EventID > 0 {
		req.Header.Set("X-DisputeHub-Delivery", fmt.Sprintf("%d", n.EventID))
	}
	if strings.TrimSpace(c.Secret) != "" {
		req.Header.Set("X-DisputeHub-Secret", c.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

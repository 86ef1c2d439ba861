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

	"go.uber.org/zap"

	"disputehub/internal/logging"
)

// Email is a single plain-text message.
type Email struct {
	To      string
	Subject string
	Text    string
}

type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// LogMailer records outgoing mail in the log instead of sending it.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(_ context.Context, msg Email) error {
	if m.Logger == nil {
		return nil
	}
	m.Logger.Info("email (log only)", logging.Email(msg.To), zap.String("subject", msg.Subject))
	return nil
}

type SendGridConfig struct {
	APIKey   string
	BaseURL  string
	From     string
	FromName string
	Timeout  time.Duration
}

// SendGridMailer posts to the SendGrid v3 mail send endpoint.
type SendGridMailer struct {
	cfg    SendGridConfig
	client *http.Client
}

func NewSendGridMailer(cfg SendGridConfig) (*SendGridMailer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("missing sendgrid api key")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("missing sendgrid from address")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SendGridMailer{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgMailSend struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

func (m *SendGridMailer) Send(ctx context.Context, msg Email) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("sendgrid: recipient required")
	}
	if strings.TrimSpace(msg.Subject) == "" || strings.TrimSpace(msg.Text) == "" {
		return errors.New("sendgrid: subject and text required")
	}
	wire := sgMailSend{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: to}}}},
		From:             sgAddress{Email: m.cfg.From, Name: m.cfg.FromName},
		Subject:          strings.TrimSpace(msg.Subject),
		Content:          []sgContent{{Type: "text/plain", Value: msg.Text}},
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	res, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// EmailChannel turns notices into mail for the case owner.
type EmailChannel struct {
	Mailer Mailer
}

func (c EmailChannel) Name() string { return "email" }

func (c EmailChannel) Send(ctx context.Context, n Notice) error {
	if strings.TrimSpace(n.Email) == "" {
		return nil
	}
	return c.Mailer.Send(ctx, Email{
		To:      n.Email,
		Subject: subjectFor(n.Type),
		Text:    n.Message,
	})
}

var subjects = map[string]string{
	"DOCUMENT_SENT":       "Your document has been sent",
	"DEADLINE_MISSED":     "A response deadline has passed",
	"FOLLOW_UP_GENERATED": "A follow-up letter is ready",
	"CASE_CLOSED":         "Your case has been closed",
	"DOCUMENT_GENERATED":  "A document is ready",
}

func subjectFor(eventType string) string {
	if s, ok := subjects[eventType]; ok {
		return s
	}
	return "Update on your case"
}

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"disputehub/internal/complexity"
	"disputehub/internal/domain"
	"disputehub/internal/policy"
	"disputehub/internal/sufficiency"
)

// Config models disputehub.yml, the case progression policy.
type Config struct {
	Completeness  policy.CompletenessPolicy `yaml:"completeness" json:"completeness"`
	Sufficiency   sufficiency.Settings      `yaml:"sufficiency" json:"sufficiency"`
	Complexity    complexity.Settings       `yaml:"complexity" json:"complexity"`
	Generation    Generation                `yaml:"generation" json:"generation"`
	Notifications Notifications             `yaml:"notifications" json:"notifications"`
}

type Generation struct {
	// MaxRetries bounds retry_count for both single and batch retries.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

type Notifications struct {
	DedupWindow  string   `yaml:"dedup_window" json:"dedup_window"`
	FollowUpDays int      `yaml:"follow_up_days" json:"follow_up_days"`
	Email        bool     `yaml:"email" json:"email"`
	Events       []string `yaml:"events" json:"events"`
}

// Window parses DedupWindow. Validate guarantees it parses.
func (n Notifications) Window() time.Duration {
	d, err := time.ParseDuration(n.DedupWindow)
	if err != nil {
		return time.Hour
	}
	return d
}

// Notifies reports whether an event type fans out to notifications.
func (n Notifications) Notifies(eventType string) bool {
	for _, t := range n.Events {
		if t == eventType {
			return true
		}
	}
	return false
}

var notifiableEvents = map[string]bool{
	domain.EventDocumentSent:      true,
	domain.EventDeadlineMissed:    true,
	domain.EventFollowUpGenerated: true,
	domain.EventCaseClosed:        true,
	domain.EventDocumentGenerated: true,
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := c.Completeness.Validate(); err != nil {
		return err
	}
	if err := c.Sufficiency.Validate(); err != nil {
		return err
	}
	if c.Complexity.ScoreBoost < -100 || c.Complexity.ScoreBoost > 100 {
		return fmt.Errorf("complexity.score_boost must be between -100 and 100")
	}
	if c.Generation.MaxRetries < 1 {
		return fmt.Errorf("generation.max_retries must be >= 1")
	}
	d, err := time.ParseDuration(c.Notifications.DedupWindow)
	if err != nil {
		return fmt.Errorf("notifications.dedup_window: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("notifications.dedup_window must not be negative")
	}
	if c.Notifications.FollowUpDays < 1 {
		return fmt.Errorf("notifications.follow_up_days must be >= 1")
	}
	for _, evt := range c.Notifications.Events {
		if !notifiableEvents[evt] {
			return fmt.Errorf("notifications.events: %s is not a notifiable event", evt)
		}
	}
	return nil
}

// Path returns the policy file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "disputehub.yml")
}

// GenerateDefault returns default policy YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns nil,nil if the policy file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in policy.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Sections left out
// of the document keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `# Final-lock gate. A strategy is complete only when every rule holds.
completeness:
  min_key_facts: 8
  min_outcome_chars: 30
  min_evidence_mentioned: 1

# Per-turn conversational checks, versioned separately from completeness.
sufficiency:
  min_outcome_chars: 15
  classifier_min_key_facts: 5
  evidence_required_keywords:
    [employment, landlord, consumer, parking, debt, contract, payment, unpaid, wage, salary, deposit, refund, invoice, owed]
  forbidden_phrases:
    - "i've reviewed the evidence"
    - "i have reviewed the evidence"
    - "having reviewed your evidence"
    - "based on the evidence you uploaded"
    - "i've looked at your documents"
    - "i've seen your evidence"
    - "ready to proceed"
    - "we're ready to generate"
    - "i'll now generate your documents"
    - "your documents are being prepared"
  lawyer_questions:
    - 'why do you (believe|think|feel)'
    - 'can you (prove|justify|explain why)'
    - 'what (legal )?basis'
    - 'on what grounds'
    - 'how do you know'
    - 'what makes you (think|believe)'

complexity:
  score_boost: 0

generation:
  max_retries: 3

notifications:
  dedup_window: 1h
  follow_up_days: 14
  email: true
  events: [DOCUMENT_SENT, DEADLINE_MISSED, FOLLOW_UP_GENERATED, CASE_CLOSED, DOCUMENT_GENERATED]
`

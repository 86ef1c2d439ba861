package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Runtime holds process settings: where to listen, which providers to use and
// their credentials. Policy lives in Config and is stored in the database.
type Runtime struct {
	Workspace       string
	Addr            string
	BasePath        string
	JWTSecret       string
	DevHeaders      bool
	LogMode         string
	Generator       string
	OpenAIKey       string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicKey    string
	AnthropicModel  string
	Store           string
	GCSBucket       string
	GCSCredentials  string
	SendGridKey     string
	SendGridFrom    string
	SendGridBaseURL string
	RedisURL        string
	WebhookURLs     []string
	WebhookSecret   string
}

// Runtime defaults, keyed the way flags and DISPUTEHUB_* env vars name them.
var runtimeDefaults = map[string]any{
	"workspace":         ".",
	"addr":              "127.0.0.1:8080",
	"base-path":         "/v1",
	"dev-headers":       false,
	"log-mode":          "production",
	"generator":         "template",
	"openai-model":      "gpt-4o-mini",
	"anthropic-model":   "claude-3-5-haiku-latest",
	"store":             "local",
	"sendgrid-base-url": "https://api.sendgrid.com",
}

// SetDefaults registers runtime defaults and env binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix("DISPUTEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for k, val := range runtimeDefaults {
		v.SetDefault(k, val)
	}
}

// LoadRuntime reads runtime settings from v.
func LoadRuntime(v *viper.Viper) (Runtime, error) {
	rt := Runtime{
		Workspace:       v.GetString("workspace"),
		Addr:            v.GetString("addr"),
		BasePath:        v.GetString("base-path"),
		JWTSecret:       v.GetString("jwt-secret"),
		DevHeaders:      v.GetBool("dev-headers"),
		LogMode:         v.GetString("log-mode"),
		Generator:       strings.ToLower(v.GetString("generator")),
		OpenAIKey:       v.GetString("openai-api-key"),
		OpenAIBaseURL:   v.GetString("openai-base-url"),
		OpenAIModel:     v.GetString("openai-model"),
		AnthropicKey:    v.GetString("anthropic-api-key"),
		AnthropicModel:  v.GetString("anthropic-model"),
		Store:           strings.ToLower(v.GetString("store")),
		GCSBucket:       v.GetString("gcs-bucket"),
		GCSCredentials:  v.GetString("gcs-credentials"),
		SendGridKey:     v.GetString("sendgrid-api-key"),
		SendGridFrom:    v.GetString("sendgrid-from"),
		SendGridBaseURL: v.GetString("sendgrid-base-url"),
		RedisURL:        v.GetString("redis-url"),
		WebhookSecret:   v.GetString("webhook-secret"),
	}
	for _, u := range strings.Split(v.GetString("webhook-urls"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			rt.WebhookURLs = append(rt.WebhookURLs, u)
		}
	}
	return rt, rt.Validate()
}

// Validate checks provider selections and their required credentials.
func (rt Runtime) Validate() error {
	switch rt.Generator {
	case "template":
	case "openai":
		if rt.OpenAIKey == "" {
			return fmt.Errorf("generator openai requires openai-api-key")
		}
	case "anthropic":
		if rt.AnthropicKey == "" {
			return fmt.Errorf("generator anthropic requires anthropic-api-key")
		}
	default:
		return fmt.Errorf("unknown generator %q (template|openai|anthropic)", rt.Generator)
	}
	switch rt.Store {
	case "local":
	case "gcs":
		if rt.GCSBucket == "" {
			return fmt.Errorf("store gcs requires gcs-bucket")
		}
	default:
		return fmt.Errorf("unknown store %q (local|gcs)", rt.Store)
	}
	if rt.SendGridKey != "" && rt.SendGridFrom == "" {
		return fmt.Errorf("sendgrid-api-key set without sendgrid-from")
	}
	return nil
}

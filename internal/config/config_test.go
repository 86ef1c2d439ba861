package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disputehub/internal/domain"
	"disputehub/internal/policy"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, policy.DefaultCompleteness(), cfg.Completeness)
	assert.Equal(t, 15, cfg.Sufficiency.MinOutcomeChars)
	assert.Equal(t, 5, cfg.Sufficiency.ClassifierMinKeyFacts)
	assert.Len(t, cfg.Sufficiency.ForbiddenPhrases, 10)
	assert.Equal(t, 3, cfg.Generation.MaxRetries)
	assert.Equal(t, 0, cfg.Complexity.ScoreBoost)
	assert.Equal(t, time.Hour, cfg.Notifications.Window())
	assert.True(t, cfg.Notifications.Notifies(domain.EventCaseClosed))
	assert.False(t, cfg.Notifications.Notifies(domain.EventStrategyFinalised))
}

func TestFromYAMLOverridesOnlyGivenSections(t *testing.T) {
	cfg, err := FromYAML([]byte("complexity:\n  score_boost: 15\ngeneration:\n  max_retries: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Complexity.ScoreBoost)
	assert.Equal(t, 2, cfg.Generation.MaxRetries)
	assert.Equal(t, 8, cfg.Completeness.MinKeyFacts)
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"zero facts":   "completeness:\n  min_key_facts: 0\n",
		"bad window":   "notifications:\n  dedup_window: soon\n",
		"bad event":    "notifications:\n  events: [STRATEGY_FINALISED]\n",
		"zero retries": "generation:\n  max_retries: 0\n",
		"bad regex":    "sufficiency:\n  lawyer_questions: ['(oops']\n",
		"not yaml":     "completeness: [",
	} {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestFromFileAndLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "disputehub.yml"), []byte(GenerateDefault()), 0o644))
	cfg, err = LoadOptional(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, Default(), cfg)

	_, err = FromFile(filepath.Join(dir, "missing.yml"))
	assert.Error(t, err)
}

func TestLoadRuntime(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("webhook-urls", "https://a.example/hook, ,https://b.example/hook")
	rt, err := LoadRuntime(v)
	require.NoError(t, err)
	assert.Equal(t, "template", rt.Generator)
	assert.Equal(t, "local", rt.Store)
	assert.Equal(t, "/v1", rt.BasePath)
	assert.Equal(t, []string{"https://a.example/hook", "https://b.example/hook"}, rt.WebhookURLs)
}

func TestLoadRuntimeFromEnv(t *testing.T) {
	t.Setenv("DISPUTEHUB_GENERATOR", "openai")
	t.Setenv("DISPUTEHUB_OPENAI_API_KEY", "sk-test")
	v := viper.New()
	SetDefaults(v)
	rt, err := LoadRuntime(v)
	require.NoError(t, err)
	assert.Equal(t, "openai", rt.Generator)
	assert.Equal(t, "sk-test", rt.OpenAIKey)
}

func TestRuntimeValidate(t *testing.T) {
	assert.Error(t, Runtime{Generator: "anthropic", Store: "local"}.Validate())
	assert.Error(t, Runtime{Generator: "template", Store: "gcs"}.Validate())
	assert.Error(t, Runtime{Generator: "carrier-pigeon", Store: "local"}.Validate())
	assert.Error(t, Runtime{Generator: "template", Store: "local", SendGridKey: "k"}.Validate())
	assert.NoError(t, Runtime{Generator: "template", Store: "gcs", GCSBucket: "docs"}.Validate())
}

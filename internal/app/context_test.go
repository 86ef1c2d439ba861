package app

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"disputehub/internal/config"
	"disputehub/internal/db"
	"disputehub/internal/migrate"
	"disputehub/internal/notify"
	"disputehub/internal/repo"
)

func openRepo(t *testing.T, workspace string) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func TestResolveConfigSeedsDefault(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	r := openRepo(t, ws)

	cfg, err := ResolveConfig(ctx, ws, r)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Completeness.MinKeyFacts)

	stored, err := r.GetPolicyConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.Completeness, stored.Completeness)
}

func TestResolveConfigPrefersWorkspaceFile(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	r := openRepo(t, ws)
	require.NoError(t, os.WriteFile(config.Path(ws), []byte("generation:\n  max_retries: 5\n"), 0o644))

	cfg, err := ResolveConfig(ctx, ws, r)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Generation.MaxRetries)
	assert.Equal(t, 8, cfg.Completeness.MinKeyFacts)

	require.NoError(t, os.Remove(config.Path(ws)))
	cfg, err = ResolveConfig(ctx, ws, r)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Generation.MaxRetries)
}

func TestBuildWiresTemplateGeneratorAndChannels(t *testing.T) {
	ws := t.TempDir()
	r := openRepo(t, ws)
	rt := config.Runtime{
		Workspace:     ws,
		Generator:     "template",
		Store:         "local",
		WebhookURLs:   []string{"http://127.0.0.1:1/hook"},
		WebhookSecret: "s3cret",
	}
	svc, err := Build(context.Background(), r.DB, config.Default(), rt, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	require.NotNil(t, svc.Engine.Generator)
	d, ok := svc.Engine.Timeline.Notifier.(notify.Dispatcher)
	require.True(t, ok)
	assert.Nil(t, d.Deduper)
	var names []string
	for _, ch := range d.Channels {
		names = append(names, ch.Name())
	}
	assert.Equal(t, []string{"email", "webhook"}, names)
	assert.Same(t, svc.Metrics, svc.Engine.Metrics)
}

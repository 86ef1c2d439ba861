package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"disputehub/internal/config"
	"disputehub/internal/docgen"
	"disputehub/internal/engine"
	"disputehub/internal/metrics"
	"disputehub/internal/notify"
	"disputehub/internal/repo"
)

// ResolveConfig returns the active policy. A disputehub.yml in the workspace
// wins and becomes the stored policy. Otherwise the stored policy is used,
// seeding the built-in default on first run.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", config.Path(workspace), err)
	}
	if fileCfg != nil {
		if err := r.UpsertPolicyConfig(ctx, fileCfg, now); err != nil {
			return nil, fmt.Errorf("store workspace policy: %w", err)
		}
		return fileCfg, nil
	}
	cfg, err := r.GetPolicyConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg = config.Default()
	if err := r.UpsertPolicyConfig(ctx, cfg, now); err != nil {
		return nil, fmt.Errorf("seed policy: %w", err)
	}
	return cfg, nil
}

// Services is a fully wired engine plus the resources it holds open.
type Services struct {
	Engine  engine.Engine
	Metrics *metrics.Recorder
	closers []func() error
}

// Close releases provider clients. The database is owned by the caller.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// Build wires the engine for the runtime settings: document generator and
// store, notification channels and metrics.
func Build(ctx context.Context, conn *sql.DB, cfg *config.Config, rt config.Runtime, logger *zap.Logger) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Services{Metrics: metrics.New()}

	gen, err := s.generator(ctx, rt, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	eng, err := engine.New(conn, cfg, gen)
	if err != nil {
		s.Close()
		return nil, err
	}
	eng.Metrics = s.Metrics
	eng.Logger = logger

	dispatcher, err := s.dispatcher(ctx, rt, cfg, eng.Repo, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	eng.Timeline.Notifier = dispatcher
	eng.Timeline.Logger = logger.Named("timeline")
	s.Engine = eng
	return s, nil
}

func (s *Services) generator(ctx context.Context, rt config.Runtime, logger *zap.Logger) (docgen.Generator, error) {
	svc := docgen.Service{Metrics: s.Metrics, Logger: logger.Named("docgen")}
	switch rt.Generator {
	case "openai":
		svc.Drafter = docgen.NewOpenAIDrafter(rt.OpenAIKey, rt.OpenAIBaseURL, rt.OpenAIModel)
	case "anthropic":
		svc.Drafter = docgen.NewAnthropicDrafter(rt.AnthropicKey, "", rt.AnthropicModel)
	default:
		svc.Drafter = docgen.TemplateDrafter{}
	}
	switch rt.Store {
	case "gcs":
		store, err := docgen.NewGCSStore(ctx, rt.GCSBucket, rt.GCSCredentials)
		if err != nil {
			return nil, fmt.Errorf("gcs store: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		svc.Store = store
	default:
		svc.Store = docgen.LocalStore{Root: filepath.Join(rt.Workspace, ".disputehub", "documents")}
	}
	logger.Info("document generation configured", zap.String("drafter", svc.Drafter.Name()), zap.String("store", rt.Store))
	return svc, nil
}

func (s *Services) dispatcher(ctx context.Context, rt config.Runtime, cfg *config.Config, r repo.Repo, logger *zap.Logger) (notify.Dispatcher, error) {
	log := logger.Named("notify")
	d := notify.Dispatcher{
		Repo:    r,
		Window:  cfg.Notifications.Window(),
		Metrics: s.Metrics,
		Logger:  log,
	}
	dedup, err := notify.NewRedisDeduper(ctx, rt.RedisURL)
	if err != nil {
		return d, fmt.Errorf("redis: %w", err)
	}
	if dedup != nil {
		s.closers = append(s.closers, dedup.Close)
		d.Deduper = dedup
	}
	if cfg.Notifications.Email {
		var mailer notify.Mailer = notify.LogMailer{Logger: log}
		if rt.SendGridKey != "" {
			sg, err := notify.NewSendGridMailer(notify.SendGridConfig{
				APIKey:   rt.SendGridKey,
				BaseURL:  rt.SendGridBaseURL,
				From:     rt.SendGridFrom,
				FromName: "DisputeHub",
			})
			if err != nil {
				return d, err
			}
			mailer = sg
		}
		d.Channels = append(d.Channels, notify.EmailChannel{Mailer: mailer})
	}
	if len(rt.WebhookURLs) > 0 {
		d.Channels = append(d.Channels, notify.NewWebhookChannel(rt.WebhookURLs, rt.WebhookSecret))
	}
	return d, nil
}

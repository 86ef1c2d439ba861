package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"disputehub/internal/app"
	"disputehub/internal/config"
	"disputehub/internal/db"
	"disputehub/internal/engine"
	"disputehub/internal/logging"
	"disputehub/internal/migrate"
	"disputehub/internal/repo"
	"disputehub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "disputehub",
	Short: "DisputeHub case progression CLI",
	Long: `DisputeHub moves a dispute from conversation to documents.
- Strategy: facts, evidence mentions and the desired outcome gathered by the assistant.
- Decision gate: once the strategy is complete it is locked, a document plan is created and documents are generated.
- Evidence: uploaded items keep a permanent index (Exhibit N) even after deletions.
- Timeline: append-only case history; some events notify the case owner.
Settings come from flags or DISPUTEHUB_* environment variables. Policy lives in the database
and can be overridden by disputehub.yml in the workspace.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults(viper.GetViper())
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-mode", "production", "log mode (production|development)")
	rootCmd.PersistentFlags().String("generator", "template", "document drafter (template|openai|anthropic)")
	rootCmd.PersistentFlags().String("store", "local", "document store (local|gcs)")
	for _, name := range []string{"workspace", "json", "log-mode", "generator", "store"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(strategyCmd())
	rootCmd.AddCommand(gateCmd())
	rootCmd.AddCommand(evidenceCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(docsCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(deadlinesCmd())
	rootCmd.AddCommand(policyCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(dbCmd())
}

func serveCmd() *cobra.Command {
	var sweepEvery time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, s *app.Services, rt config.Runtime, log *zap.Logger) error {
				if rt.JWTSecret == "" && !rt.DevHeaders {
					return fmt.Errorf("DISPUTEHUB_JWT_SECRET is required for bearer auth (or enable --dev-headers)")
				}
				handler, err := server.New(server.Config{
					Engine:   s.Engine,
					BasePath: rt.BasePath,
					Auth:     server.AuthConfig{JWTSecret: rt.JWTSecret, DevHeaders: rt.DevHeaders},
					Metrics:  s.Metrics.Handler(),
					Logger:   log,
				})
				if err != nil {
					return err
				}
				if sweepEvery > 0 {
					go sweepLoop(ctx, s.Engine, sweepEvery, log.Named("sweep"))
				}
				srv := &http.Server{Addr: rt.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				if rt.DevHeaders {
					log.Warn("dev headers enabled: X-User-Id is trusted without credentials")
				}
				log.Info("serving DisputeHub API", zap.String("addr", rt.Addr), zap.String("base_path", rt.BasePath))
				fmt.Printf("Serving DisputeHub API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", rt.Addr, rt.BasePath, rt.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().String("base-path", "/v1", "API base path")
	cmd.Flags().Bool("dev-headers", false, "trust X-User-Id headers (development only)")
	cmd.Flags().DurationVar(&sweepEvery, "sweep-interval", time.Hour, "deadline sweep interval (0 disables)")
	for _, name := range []string{"addr", "base-path", "dev-headers"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func sweepLoop(ctx context.Context, e engine.Engine, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			res, err := e.SweepDeadlines(ctx, 0)
			if err != nil {
				log.Error("deadline sweep failed", zap.Error(err))
				continue
			}
			if len(res.Missed) > 0 {
				log.Info("deadlines missed", zap.Int("cases", len(res.Missed)))
			}
		}
	}
}

// --- helpers ---

func openDB(ctx context.Context) (*repo.Repo, func(), error) {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return &repo.Repo{DB: conn}, func() { conn.Close() }, nil
}

func withServices(ctx context.Context, fn func(context.Context, *app.Services, config.Runtime, *zap.Logger) error) error {
	rt, err := config.LoadRuntime(viper.GetViper())
	if err != nil {
		return err
	}
	log, err := logging.New(rt.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()
	r, closeDB, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	cfg, err := app.ResolveConfig(ctx, rt.Workspace, *r)
	if err != nil {
		return err
	}
	s, err := app.Build(ctx, r.DB, cfg, rt, log)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s, rt, log)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withServices(ctx, func(ctx context.Context, s *app.Services, _ config.Runtime, _ *zap.Logger) error {
		return fn(ctx, s.Engine)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	r, closeDB, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(ctx, *r)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

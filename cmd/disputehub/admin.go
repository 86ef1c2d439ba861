package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"disputehub/internal/app"
	"disputehub/internal/config"
	"disputehub/internal/domain"
	"disputehub/internal/migrate"
	"disputehub/internal/repo"
	"disputehub/internal/server"
)

func policyCmd() *cobra.Command {
	p := &cobra.Command{Use: "policy", Short: "Case progression policy"}
	p.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective policy as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ResolveConfig(ctx, viper.GetString("workspace"), r)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cfg)
				}
				out, err := yaml.Marshal(cfg)
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	})
	p.AddCommand(policyImportCmd())
	p.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the built-in policy YAML",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(config.GenerateDefault())
		},
	})
	return p
}

func policyImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import policy from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertPolicyConfig(ctx, cfg, time.Now().UTC().Format(time.RFC3339)); err != nil {
					return err
				}
				if _, err := os.Stat(config.Path(viper.GetString("workspace"))); err == nil {
					fmt.Fprintln(os.Stderr, "note: disputehub.yml in the workspace overrides the stored policy")
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML policy")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	var actor string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	list.Flags().StringVar(&actor, "user", "", "filter by user")
	k.AddCommand(list)
	k.AddCommand(&cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	})
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var user, name, role string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if role != domain.RoleAdmin && role != domain.RoleUser {
				return fmt.Errorf("role must be %s or %s", domain.RoleUser, domain.RoleAdmin)
			}
			buf := make([]byte, 24)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			secret := "dh_" + hex.EncodeToString(buf)
			key := domain.APIKey{
				ID:        uuid.NewString(),
				ActorID:   user,
				Name:      name,
				Role:      role,
				KeyHash:   repo.HashAPIKey(secret),
				CreatedAt: time.Now().UTC().Format(time.RFC3339),
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "user_id": user, "role": role, "key": secret})
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	cmd.Flags().StringVar(&role, "role", domain.RoleUser, "role (user|admin)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		user  string
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := config.LoadRuntime(viper.GetViper())
			if err != nil {
				return err
			}
			if rt.JWTSecret == "" {
				return fmt.Errorf("DISPUTEHUB_JWT_SECRET is required")
			}
			tok, err := server.IssueToken(rt.JWTSecret, user, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject user id")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles to embed")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func dbCmd() *cobra.Command {
	d := &cobra.Command{Use: "db", Short: "Database maintenance"}
	d.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				applied, err := migrate.Status(ctx, r.DB)
				if err != nil {
					return err
				}
				return printJSONOrTable(applied)
			})
		},
	})
	return d
}

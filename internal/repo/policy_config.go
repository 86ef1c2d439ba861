package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"disputehub/internal/config"
)

// UpsertPolicyConfig validates and stores the active policy.
func (r Repo) UpsertPolicyConfig(ctx context.Context, cfg *config.Config, now string) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO policy_config(id,config_json,created_at,updated_at) VALUES (1,?,?,?)
ON CONFLICT(id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, string(payload), now, now)
	return err
}

func (r Repo) GetPolicyConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM policy_config WHERE id=1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	if err := json.Unmarshal([]byte(payload), cfg); err != nil {
		return nil, fmt.Errorf("stored policy: %w", err)
	}
	return cfg, cfg.Validate()
}

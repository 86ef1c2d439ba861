package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
)

// New builds a JSON logger for "prod"/"production" and a console logger otherwise.
func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// UserID logs a user id as a short hash so log lines can be
// correlated without storing the raw identifier.
func UserID(id string) zap.Field {
	if id == "" {
		return zap.String("user_id", "")
	}
	sum := sha256.Sum256([]byte(id))
	return zap.String("user_id", "hash:"+hex.EncodeToString(sum[:])[:12])
}

// Email logs only the domain part of an address.
func Email(addr string) zap.Field {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return zap.String("email_domain", addr[i+1:])
	}
	return zap.String("email_domain", "")
}

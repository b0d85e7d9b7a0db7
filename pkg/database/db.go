package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Config struct {
	DSN            string
	MaxConns       int
	Timeout        time.Duration
	TimeZone       string
	ClientEncoding string
}

// Connect opens a postgres pool wrapped in sqlx and verifies connectivity with a ping.
// TimeZone and ClientEncoding are sent as startup parameters so every pooled
// connection carries them.
func Connect(cfg Config) (*sqlx.DB, error) {
	dsn, err := withRuntimeParams(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// withRuntimeParams adds the optional session settings to the DSN. Both the
// URL form and the key=value form accepted by lib/pq are handled.
func withRuntimeParams(cfg Config) (string, error) {
	params := runtimeParams(cfg)
	if len(params) == 0 {
		return cfg.DSN, nil
	}
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		u, err := url.Parse(cfg.DSN)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		q := u.Query()
		for _, p := range params {
			q.Set(p[0], p[1])
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	var b strings.Builder
	b.WriteString(strings.TrimSpace(cfg.DSN))
	for _, p := range params {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p[0] + "=" + quoteLiteral(p[1]))
	}
	return b.String(), nil
}

func runtimeParams(cfg Config) [][2]string {
	var out [][2]string
	if cfg.TimeZone != "" {
		out = append(out, [2]string{"timezone", cfg.TimeZone})
	}
	// lib/pq only accepts UTF8 here
	if cfg.ClientEncoding != "" {
		out = append(out, [2]string{"client_encoding", cfg.ClientEncoding})
	}
	return out
}

// quoteLiteral quotes a value for the key=value DSN form, escaping
// backslashes and single quotes.
func quoteLiteral(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

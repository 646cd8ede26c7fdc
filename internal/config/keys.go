package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "etl.chunk_size", typ: kInt, env: "CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.ETL.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.ETL.ChunkSize },
	},
	{
		key: "etl.state_storage", typ: kString, env: "ETL_STATE_STORAGE",
		apply:   func(cfg *Config, v any) { cfg.ETL.StateStorage = v.(string) },
		extract: func(cfg Config) any { return cfg.ETL.StateStorage },
	},
	{
		key: "etl.state_key", typ: kString, env: "ETL_STATE_KEY",
		apply:   func(cfg *Config, v any) { cfg.ETL.StateKey = v.(string) },
		extract: func(cfg Config) any { return cfg.ETL.StateKey },
	},
	{
		key: "etl.poll_interval", typ: kDuration, env: "ETL_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.ETL.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.ETL.PollInterval },
	},
	{
		key: "etl.max_cycle_retries", typ: kInt, env: "ETL_MAX_CYCLE_RETRIES",
		apply:   func(cfg *Config, v any) { cfg.ETL.MaxCycleRetries = v.(int) },
		extract: func(cfg Config) any { return cfg.ETL.MaxCycleRetries },
	},
	{
		key: "etl.drain_timeout", typ: kDuration, env: "ETL_DRAIN_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.ETL.DrainTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.ETL.DrainTimeout },
	},
	{
		key: "db.driver", typ: kString, env: "DB_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.DB.Driver = v.(string) },
		extract: func(cfg Config) any { return cfg.DB.Driver },
	},
	{
		key: "db.host", typ: kString, env: "DB_HOST",
		apply:   func(cfg *Config, v any) { cfg.DB.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.DB.Host },
	},
	{
		key: "db.port", typ: kInt, env: "DB_PORT",
		apply:   func(cfg *Config, v any) { cfg.DB.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.DB.Port },
	},
	{
		key: "db.name", typ: kString, env: "DB_NAME",
		apply:   func(cfg *Config, v any) { cfg.DB.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.DB.Name },
	},
	{
		key: "db.user", typ: kString, env: "DB_USER",
		apply:   func(cfg *Config, v any) { cfg.DB.User = v.(string) },
		extract: func(cfg Config) any { return cfg.DB.User },
	},
	{
		key: "db.password", typ: kString, env: "DB_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.DB.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.DB.Password },
	},
	{
		key: "db.schema", typ: kString, env: "DB_SCHEMA",
		apply:   func(cfg *Config, v any) { cfg.DB.Schema = v.(string) },
		extract: func(cfg Config) any { return cfg.DB.Schema },
	},
	{
		key: "db.dsn", typ: kString, env: "DB_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.DB.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.DB.DSN },
	},
	{
		key: "db.connect_attempts", typ: kInt, env: "DB_CONNECT_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.DB.ConnectAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.DB.ConnectAttempts },
	},
	{
		key: "index.backend", typ: kString, env: "INDEX_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Index.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Backend },
	},
	{
		key: "index.url", typ: kString, env: "ES_MOVIES_URL",
		apply:   func(cfg *Config, v any) { cfg.Index.URL = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.URL },
	},
	{
		key: "index.name", typ: kString, env: "ES_INDEX",
		apply:   func(cfg *Config, v any) { cfg.Index.Name = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.Name },
	},
	{
		key: "index.bulk_size", typ: kInt, env: "ES_BULK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Index.BulkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Index.BulkSize },
	},
	{
		key: "index.sqlite_path", typ: kString, env: "INDEX_SQLITE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Index.SQLitePath = v.(string) },
		extract: func(cfg Config) any { return cfg.Index.SQLitePath },
	},
	{
		key: "http.addr", typ: kString, env: "OPS_HTTP_ADDR",
		apply:   func(cfg *Config, v any) { cfg.HTTP.Addr = v.(string) },
		extract: func(cfg Config) any { return cfg.HTTP.Addr },
	},
	{
		key: "http.token", typ: kString, env: "OPS_HTTP_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.HTTP.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.HTTP.Token },
	},
	{
		key: "log.level", typ: kString, env: "LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
}

// applyEnv overlays every variable lookup knows about. origin only names the
// layer in warnings.
func applyEnv(cfg *Config, lookup func(string) (string, bool), origin string) {
	for _, s := range specs {
		raw, ok := lookup(s.env)
		if !ok || raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from %s %s=%q: %v. Using default value.\n", origin, s.env, raw, err)
			}
		case kDuration:
			if d, err := parseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from %s %s=%q: %v. Using default value.\n", origin, s.env, raw, err)
			}
		}
	}
}

// parseDuration accepts Go duration syntax or a bare number of seconds.
func parseDuration(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

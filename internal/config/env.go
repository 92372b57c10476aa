package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LookupFunc reads one variable; ok is false when it is unset.
type LookupFunc func(key string) (value string, ok bool)

// Environment variables understood by ApplyEnv.
const (
	EnvURL            = "HARVEST_URL"
	EnvDelay          = "HARVEST_DELAY"
	EnvPageSize       = "HARVEST_PAGE_SIZE"
	EnvMaxPages       = "HARVEST_MAX_PAGES"
	EnvTimeout        = "HARVEST_TIMEOUT"
	EnvUserAgent      = "HARVEST_USER_AGENT"
	EnvOutput         = "HARVEST_OUTPUT"
	EnvMetricsBackend = "METRICS_BACKEND"
	EnvMetricsTags    = "METRICS_TAGS"
)

// LoadDotEnv reads KEY=VALUE pairs from path without touching the process
// environment. A missing file yields an empty map and no error.
func LoadDotEnv(path string) (map[string]string, error) {
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return vals, nil
}

// Chain looks keys up in the process environment first, then in each map in
// order. Use it to let real env vars win over a .env file.
func Chain(maps ...map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		for _, m := range maps {
			if v, ok := m[key]; ok {
				return v, true
			}
		}
		return "", false
	}
}

// ApplyEnv overlays set, non-empty variables onto cfg. Malformed values are
// reported together; valid ones are still applied.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var errs []error
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	setInt := func(dst *int, key string) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	setDur := func(dst *Duration, key string) {
		if v, ok := get(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
				return
			}
			*dst = Duration(d)
		}
	}

	if v, ok := get(EnvURL); ok {
		cfg.Source.URL = v
	}
	setDur(&cfg.Harvest.Delay, EnvDelay)
	setInt(&cfg.Source.PageSize, EnvPageSize)
	setInt(&cfg.Harvest.MaxPages, EnvMaxPages)
	setDur(&cfg.HTTP.Timeout, EnvTimeout)
	if v, ok := get(EnvUserAgent); ok {
		cfg.HTTP.UserAgent = v
	}
	if v, ok := get(EnvOutput); ok {
		cfg.Output.Path = v
	}
	if v, ok := get(EnvMetricsBackend); ok {
		cfg.Metrics.Backend = strings.ToLower(v)
	}
	if v, ok := get(EnvMetricsTags); ok {
		cfg.Metrics.Tags = splitCSV(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: environment: %w", errors.Join(errs...))
	}
	return nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"realty/internal/paging"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// minPoliteDelay is the delay below which Validate warns.
const minPoliteDelay = time.Second

// Validate checks cfg and returns every issue found, errors first in field order.
func Validate(cfg Config) []Issue {
	var out []Issue
	errf := func(path, format string, args ...any) {
		out = append(out, Issue{SeverityError, path, fmt.Sprintf(format, args...)})
	}
	warnf := func(path, format string, args ...any) {
		out = append(out, Issue{SeverityWarning, path, fmt.Sprintf(format, args...)})
	}

	if _, err := paging.Parse(cfg.Source.URL, cfg.Source.PageSize); err != nil {
		errf("source.url", "%v", err)
	}
	if cfg.Source.PageSize <= 0 {
		errf("source.page_size", "must be > 0, got %d", cfg.Source.PageSize)
	}
	if u, err := url.Parse(cfg.Source.Site); err != nil || u.Scheme == "" || u.Host == "" {
		errf("source.site", "must be an absolute URL, got %q", cfg.Source.Site)
	}
	if strings.TrimSpace(cfg.Source.RecordsKey) == "" {
		errf("source.records_key", "must not be empty")
	}

	switch d := cfg.Harvest.Delay.D(); {
	case d < 0:
		errf("harvest.delay", "must be >= 0, got %s", d)
	case d < minPoliteDelay:
		warnf("harvest.delay", "%s between pages may get the client blocked", d)
	}
	if cfg.Harvest.MaxPages < 1 {
		errf("harvest.max_pages", "must be >= 1, got %d", cfg.Harvest.MaxPages)
	}

	if cfg.HTTP.Timeout.D() <= 0 {
		errf("http.timeout", "must be > 0, got %s", cfg.HTTP.Timeout.D())
	}

	switch cfg.Metrics.Backend {
	case "", "none":
	case "datadog":
		if cfg.Metrics.FlushEvery.D() < 0 {
			errf("metrics.flush_every", "must be >= 0, got %s", cfg.Metrics.FlushEvery.D())
		}
	default:
		errf("metrics.backend", "unknown backend %q (want none or datadog)", cfg.Metrics.Backend)
	}

	if strings.TrimSpace(cfg.Output.Path) == "" {
		errf("output.path", `must not be empty (use "-" for stdout)`)
	}

	switch cfg.Log.Format {
	case "console", "json":
	default:
		errf("log.format", "unknown format %q (want console or json)", cfg.Log.Format)
	}

	return out
}

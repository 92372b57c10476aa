// Package config holds the harvester configuration and the layers it is
// built from.
//
// Precedence, low to high: Default(), a YAML/JSON config file, a .env file,
// process environment variables, explicit CLI flags (applied by cmd/harvest).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"realty/internal/paging"
	parserjson "realty/internal/parser/json"
	"realty/internal/session"
	"realty/internal/transformer/builtin"

	yaml "gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "5s" or "1m30s" in config files.
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(b), err)
	}
	*d = Duration(v)
	return nil
}

type SourceConfig struct {
	// URL is the page URL template with {page} and optional {cnt}.
	URL        string `yaml:"url" json:"url"`
	Site       string `yaml:"site" json:"site"`
	PageSize   int    `yaml:"page_size" json:"page_size"`
	RecordsKey string `yaml:"records_key" json:"records_key"`
	Complex    string `yaml:"complex" json:"complex"`
}

type HarvestConfig struct {
	Delay    Duration `yaml:"delay" json:"delay"`
	MaxPages int      `yaml:"max_pages" json:"max_pages"`
}

type HTTPConfig struct {
	Timeout   Duration `yaml:"timeout" json:"timeout"`
	UserAgent string   `yaml:"user_agent" json:"user_agent"`
}

type MetricsConfig struct {
	// Backend is "none" or "datadog".
	Backend    string   `yaml:"backend" json:"backend"`
	Job        string   `yaml:"job" json:"job"`
	Tags       []string `yaml:"tags" json:"tags"`
	FlushEvery Duration `yaml:"flush_every" json:"flush_every"`
}

type OutputConfig struct {
	// Path of the JSON output; "-" is stdout.
	Path string `yaml:"path" json:"path"`
}

type LogConfig struct {
	// Format is "console" or "json".
	Format  string `yaml:"format" json:"format"`
	Verbose bool   `yaml:"verbose" json:"verbose"`
}

// Config is the full harvester configuration.
type Config struct {
	Source  SourceConfig  `yaml:"source" json:"source"`
	Harvest HarvestConfig `yaml:"harvest" json:"harvest"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Log     LogConfig     `yaml:"log" json:"log"`
}

// Default returns the built-in configuration for the dom-dostigenie source.
func Default() Config {
	return Config{
		Source: SourceConfig{
			URL:        paging.DefaultTemplate,
			Site:       builtin.DefaultSiteURL,
			PageSize:   paging.DefaultPageSize,
			RecordsKey: parserjson.DefaultRecordsKey,
			Complex:    builtin.DefaultComplexName,
		},
		Harvest: HarvestConfig{
			Delay:    Duration(5 * time.Second),
			MaxPages: 999,
		},
		HTTP: HTTPConfig{
			Timeout:   Duration(30 * time.Second),
			UserAgent: session.DefaultUserAgent,
		},
		Metrics: MetricsConfig{
			Backend:    "none",
			Job:        "harvest",
			FlushEvery: Duration(60 * time.Second),
		},
		Output: OutputConfig{Path: "-"},
		Log:    LogConfig{Format: "console"},
	}
}

// LoadFile overlays the YAML or JSON file at path onto cfg. Fields the file
// does not mention keep their current value.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("config: parse yaml %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, cfg); err != nil {
			return fmt.Errorf("config: parse json %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config: %s: unsupported extension %q (want .yaml, .yml or .json)", path, ext)
	}
	return nil
}

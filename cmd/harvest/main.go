// Command harvest pages through the listing endpoint, normalizes every unit
// into the canonical schema and writes one JSON array.
//
// Usage:
//
//	harvest -o flats.json
//	harvest -config harvest.yaml -metrics_backend datadog -dd_tags env:prod
//	harvest -url "https://example.test/ajax/flats/?page={page}&cnt={cnt}" -delay 2s
//
// List the rule set:
//
//	harvest -list_rules
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"realty/internal/config"
	"realty/internal/harvest"
	"realty/internal/metrics"
	"realty/internal/metrics/datadog"
	"realty/internal/paging"
	parserjson "realty/internal/parser/json"
	"realty/internal/session"
	"realty/internal/sink"
	"realty/internal/transformer"
	"realty/internal/transformer/builtin"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, http.DefaultClient)
	stop()
	os.Exit(code)
}

// run is split out from main so the command can be tested in-process.
//
// Exit codes:
//   - 0 success
//   - 1 runtime failure (output with the records harvested so far is still written)
//   - 2 usage or config error
func run(ctx context.Context, args []string, stdout, stderr io.Writer, client *http.Client) int {
	def := config.Default()

	fs := flag.NewFlagSet("harvest", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath     = fs.String("config", "", "config file (.yaml, .yml or .json)")
		envFile     = fs.String("env_file", ".env", "dotenv file; missing file is ignored")
		urlTmpl     = fs.String("url", def.Source.URL, "page URL template with {page} and optional {cnt}")
		site        = fs.String("site", def.Source.Site, "site base URL for relative plan links")
		pageSize    = fs.Int("page_size", def.Source.PageSize, "units per page, substituted for {cnt}")
		delay       = fs.Duration("delay", def.Harvest.Delay.D(), "wait after every non-empty page")
		maxPages    = fs.Int("max_pages", def.Harvest.MaxPages, "page ceiling")
		timeout     = fs.Duration("timeout", def.HTTP.Timeout.D(), "per-request timeout")
		userAgent   = fs.String("user_agent", def.HTTP.UserAgent, "User-Agent header")
		outPath     = fs.String("o", def.Output.Path, `output path ("-" for stdout)`)
		backendName = fs.String("metrics_backend", def.Metrics.Backend, "metrics backend: none or datadog")
		ddTags      = fs.String("dd_tags", "", "extra Datadog tags, comma separated")
		logFormat   = fs.String("log_format", def.Log.Format, "log format: console or json")
		verbose     = fs.Bool("v", false, "debug logging")
		listRules   = fs.Bool("list_rules", false, "print the rule set and exit")
	)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return 2
	}

	cfg := def
	if *cfgPath != "" {
		if err := config.LoadFile(*cfgPath, &cfg); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 2
		}
	}
	dotenv, err := config.LoadDotEnv(*envFile)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}
	if err := config.ApplyEnv(&cfg, config.Chain(dotenv)); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	// Explicit flags win over every other layer.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.Source.URL = *urlTmpl
		case "site":
			cfg.Source.Site = *site
		case "page_size":
			cfg.Source.PageSize = *pageSize
		case "delay":
			cfg.Harvest.Delay = config.Duration(*delay)
		case "max_pages":
			cfg.Harvest.MaxPages = *maxPages
		case "timeout":
			cfg.HTTP.Timeout = config.Duration(*timeout)
		case "user_agent":
			cfg.HTTP.UserAgent = *userAgent
		case "o":
			cfg.Output.Path = *outPath
		case "metrics_backend":
			cfg.Metrics.Backend = strings.ToLower(*backendName)
		case "dd_tags":
			cfg.Metrics.Tags = datadog.ParseTagsCSV(*ddTags)
		case "log_format":
			cfg.Log.Format = *logFormat
		case "v":
			cfg.Log.Verbose = *verbose
		}
	})

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.String())
	}
	if config.HasErrors(issues) {
		return 2
	}

	log := newLogger(stderr, cfg.Log)

	reg, err := builtin.NewRegistry(builtin.Options{
		SiteURL:     cfg.Source.Site,
		ComplexName: cfg.Source.Complex,
	})
	if err != nil {
		fmt.Fprintf(stderr, "rules: %v\n", err)
		return 2
	}
	if *listRules {
		printRules(stdout, reg)
		return 0
	}

	tmpl, err := paging.Parse(cfg.Source.URL, cfg.Source.PageSize)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	closeMetrics := setupMetrics(cfg.Metrics, log)
	defer closeMetrics()

	sess := session.New(client, session.Options{
		Timeout:   cfg.HTTP.Timeout.D(),
		UserAgent: cfg.HTTP.UserAgent,
		Job:       cfg.Metrics.Job,
	})
	h := harvest.New(harvest.Options{
		Pages:    tmpl,
		Delay:    cfg.Harvest.Delay.D(),
		MaxPages: cfg.Harvest.MaxPages,
		JobName:  cfg.Metrics.Job,
	}, sess, parserjson.Decoder{RecordsKey: cfg.Source.RecordsKey}, transformer.NewTranslator(transformer.NewNormalizer(reg)))
	h.Logger = log

	log.Debug().
		Str("url", tmpl.String()).
		Int("page_size", tmpl.PageSize()).
		Dur("delay", cfg.Harvest.Delay.D()).
		Int("max_pages", cfg.Harvest.MaxPages).
		Str("output", cfg.Output.Path).
		Msg("harvest config")

	res, runErr := h.Run(ctx)

	if err := writeOutput(stdout, cfg.Output.Path, res); err != nil {
		log.Error().Err(err).Msg("write output failed")
		return 1
	}
	if runErr != nil {
		log.Error().Err(runErr).Str("stop", string(res.Stop)).Int("records", len(res.Records)).Msg("harvest failed")
		return 1
	}
	return 0
}

func newLogger(w io.Writer, lc config.LogConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	if lc.Verbose {
		level = zerolog.DebugLevel
	}

	out := w
	if lc.Format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: !isTerminal(w)}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// setupMetrics installs the configured backend and returns its shutdown func.
// A backend that fails to initialize leaves metrics disabled; the run goes on.
func setupMetrics(mc config.MetricsConfig, log zerolog.Logger) func() {
	switch mc.Backend {
	case "datadog":
		// Not the run context: Close must still flush after SIGINT.
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    mc.Job,
			Tags:       mc.Tags,
			FlushEvery: mc.FlushEvery.D(),
		})
		if err != nil {
			log.Warn().Err(err).Msg("metrics: datadog init failed; using nop")
			return func() {}
		}
		log.Info().Str("backend", "datadog").Str("job", mc.Job).Strs("tags", mc.Tags).Msg("metrics enabled")
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and submits what is still buffered.
			if err := b.Close(); err != nil {
				log.Warn().Err(err).Msg("metrics: datadog close/flush error")
			}
			metrics.SetBackend(nil)
		}

	default:
		log.Debug().Str("backend", mc.Backend).Msg("metrics disabled")
		return func() {}
	}
}

func writeOutput(stdout io.Writer, path string, res harvest.Result) error {
	if path == "-" {
		return sink.WriteJSONArray(stdout, res.Records)
	}
	return sink.WriteFile(path, res.Records)
}

func printRules(w io.Writer, reg *transformer.Registry) {
	for _, r := range reg.Rules() {
		fields := "-"
		if len(r.Fields) > 0 {
			fields = strings.Join(r.Fields, ",")
		}
		fmt.Fprintf(w, "%-20s %s\n", r.Name, fields)
	}
}

// Package harvest drives the pagination loop: fetch page n, decode it,
// translate it and accumulate the canonical records until the source runs
// dry.
//
// The loop has two states. While RUNNING it fetches pages 1, 2, 3, ... one
// at a time and waits a fixed delay after every non-empty page. It moves to
// DONE when a page translates to nothing or the fetcher reports no content.
// A page ceiling and a repeated-page check guard against a source that never
// signals the end.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"realty/internal/metrics"
	"realty/internal/session"
	"realty/internal/transformer"
	"realty/pkg/records"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxPages bounds a run when Options.MaxPages is not set.
const DefaultMaxPages = 999

var (
	// ErrPageLimit means the run reached Options.MaxPages without the source
	// signaling the end. Records harvested so far are still returned.
	ErrPageLimit = errors.New("harvest: page limit reached")

	// ErrRepeatedPage means a page decoded to exactly the previous page: the
	// source ignores the page parameter.
	ErrRepeatedPage = errors.New("harvest: page repeats the previous page")

	// ErrFirstPageNotFound means page 1 answered 404/410: the URL template
	// or the endpoint is wrong, not an empty listing.
	ErrFirstPageNotFound = errors.New("harvest: first page not found")
)

// Fetcher returns the body of one page. An error matching
// session.ErrNoContent ends the run cleanly, except a not-found first page;
// any other error is fatal.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Decoder turns a page body into raw records. An empty slice means no more
// data; an error is fatal to the run.
type Decoder interface {
	Decode(body string) ([]records.Record, error)
}

// Pager yields the URL of a 1-based page.
type Pager interface {
	URL(page int) string
}

// Options configures a run.
type Options struct {
	Pages Pager

	// Delay is the fixed wait after every non-empty page.
	Delay time.Duration

	// MaxPages caps the number of pages fetched. <= 0 means DefaultMaxPages.
	MaxPages int

	// JobName labels metrics.
	JobName string
}

// StopReason says why a run ended.
type StopReason string

const (
	StopExhausted   StopReason = "exhausted"     // a page translated to nothing
	StopNoContent   StopReason = "no_content"    // the fetcher reported no content
	StopPageLimit   StopReason = "page_limit"    // MaxPages reached
	StopRepeated    StopReason = "repeated_page" // page equals the previous one
	StopFetchError  StopReason = "fetch_error"
	StopDecodeError StopReason = "decode_error"
	StopCanceled    StopReason = "canceled"
)

// Result is the outcome of one run.
type Result struct {
	RunID string

	// Records holds every canonical record in page order, then within-page order.
	Records []records.Record

	Pages   int // non-empty pages appended
	Fetches int
	Delays  int // completed delays
	Stop    StopReason

	Started  time.Time
	Finished time.Time
}

// Harvester runs the pagination loop. Configure the exported seams before
// calling Run; a Harvester is not safe for concurrent runs.
type Harvester struct {
	opts  Options
	fetch Fetcher
	dec   Decoder
	tr    *transformer.Translator

	Logger   zerolog.Logger
	Sleep    func(ctx context.Context, d time.Duration) error
	Now      func() time.Time
	NewRunID func() string
}

func New(opts Options, fetch Fetcher, dec Decoder, tr *transformer.Translator) *Harvester {
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.JobName == "" {
		opts.JobName = "harvest"
	}
	return &Harvester{
		opts:     opts,
		fetch:    fetch,
		dec:      dec,
		tr:       tr,
		Logger:   zerolog.Nop(),
		Sleep:    sleepContext,
		Now:      time.Now,
		NewRunID: uuid.NewString,
	}
}

// Run harvests pages until the source runs dry.
//
// It returns a non-nil error for every abnormal end (fetch or decode failure,
// page limit, repeated page, cancellation); Result still carries the records
// accumulated before it. A run that ends on no content or an empty page
// returns a nil error.
func (h *Harvester) Run(ctx context.Context) (Result, error) {
	if h.opts.Pages == nil || h.fetch == nil || h.dec == nil || h.tr == nil {
		return Result{}, errors.New("harvest: harvester is missing a page source, fetcher, decoder or translator")
	}

	res := Result{RunID: h.NewRunID(), Started: h.Now()}
	log := h.Logger.With().Str("run_id", res.RunID).Logger()
	log.Info().
		Dur("delay", h.opts.Delay).
		Int("max_pages", h.opts.MaxPages).
		Msg("harvest started")

	var (
		prev    Fingerprint
		hasPrev bool
	)

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return h.finish(log, res, StopCanceled, fmt.Errorf("harvest: before page %d: %w", page, err))
		}

		url := h.opts.Pages.URL(page)
		plog := log.With().Int("page", page).Logger()
		start := h.Now()

		body, err := h.fetch.Fetch(ctx, url)
		res.Fetches++
		if err != nil {
			var nc *session.NoContentError
			switch {
			case page == 1 && errors.As(err, &nc) && nc.NotFound():
				metrics.RecordPage(h.opts.JobName, "error", h.Now().Sub(start))
				return h.finish(log, res, StopFetchError, fmt.Errorf("%w: %w", ErrFirstPageNotFound, err))
			case errors.Is(err, session.ErrNoContent):
				metrics.RecordPage(h.opts.JobName, "no_content", h.Now().Sub(start))
				plog.Info().Str("url", url).Msg("no content; harvest done")
				return h.finish(log, res, StopNoContent, nil)
			case ctx.Err() != nil:
				return h.finish(log, res, StopCanceled, fmt.Errorf("harvest: fetch page %d: %w", page, ctx.Err()))
			default:
				metrics.RecordPage(h.opts.JobName, "error", h.Now().Sub(start))
				return h.finish(log, res, StopFetchError, fmt.Errorf("harvest: fetch page %d: %w", page, err))
			}
		}

		raw, err := h.dec.Decode(body)
		if err != nil {
			metrics.RecordPage(h.opts.JobName, "error", h.Now().Sub(start))
			return h.finish(log, res, StopDecodeError, fmt.Errorf("harvest: decode page %d: %w", page, err))
		}

		canon, ok := h.translate(plog, raw)
		if !ok {
			metrics.RecordPage(h.opts.JobName, "empty", h.Now().Sub(start))
			plog.Info().Str("url", url).Msg("empty page; harvest done")
			return h.finish(log, res, StopExhausted, nil)
		}

		fp := PageFingerprint(raw)
		if hasPrev && fp == prev {
			metrics.RecordPage(h.opts.JobName, "error", h.Now().Sub(start))
			return h.finish(log, res, StopRepeated, fmt.Errorf("%w: page %d", ErrRepeatedPage, page))
		}
		prev, hasPrev = fp, true

		res.Records = append(res.Records, canon...)
		res.Pages++

		took := h.Now().Sub(start)
		metrics.RecordPage(h.opts.JobName, "ok", took)
		metrics.RecordRecords(h.opts.JobName, "raw", len(raw))
		metrics.RecordRecords(h.opts.JobName, "canonical", len(canon))
		plog.Info().
			Str("url", url).
			Int("raw", len(raw)).
			Int("records", len(canon)).
			Int("total", len(res.Records)).
			Dur("took", took).
			Msg("page harvested")

		if page >= h.opts.MaxPages {
			return h.finish(log, res, StopPageLimit, fmt.Errorf("%w: %d pages", ErrPageLimit, h.opts.MaxPages))
		}

		if err := h.Sleep(ctx, h.opts.Delay); err != nil {
			return h.finish(log, res, StopCanceled, fmt.Errorf("harvest: delay after page %d: %w", page, err))
		}
		res.Delays++
	}
}

// translate runs the translator with a report hook that logs and counts rule
// failures, chaining any hook the caller installed.
func (h *Harvester) translate(log zerolog.Logger, raw []records.Record) ([]records.Record, bool) {
	tr := *h.tr
	next := h.tr.OnReport
	tr.OnReport = func(i int, rep transformer.Report) {
		for _, f := range rep.Failures {
			metrics.RecordRuleFailure(h.opts.JobName, f.Rule)
			log.Debug().Int("index", i).Str("rule", f.Rule).Err(f.Err).Msg("rule failed")
		}
		for _, c := range rep.Collisions {
			log.Warn().
				Int("index", i).
				Str("field", c.Field).
				Str("earlier", c.Earlier).
				Str("later", c.Later).
				Msg("rules wrote the same field; later rule wins")
		}
		if next != nil {
			next(i, rep)
		}
	}
	return tr.Translate(raw)
}

func (h *Harvester) finish(log zerolog.Logger, res Result, stop StopReason, err error) (Result, error) {
	res.Stop = stop
	res.Finished = h.Now()
	metrics.RecordRun(h.opts.JobName, string(stop))

	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("stop", string(stop)).
		Int("pages", res.Pages).
		Int("fetches", res.Fetches).
		Int("records", len(res.Records)).
		Dur("elapsed", res.Finished.Sub(res.Started)).
		Msg("harvest finished")
	return res, err
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

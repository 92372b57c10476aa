// Package datadog implements a Datadog backend for the internal/metrics package.
//
// NOTE ABOUT FLUSHING:
// A harvest of a few hundred pages at a 5s delay runs for many minutes.
// Submitting only once at process exit would turn that into a single spike, so
// the backend:
//   - buffers metrics in-memory (lock-protected)
//   - periodically Flush()es on a ticker (default: once per minute)
//   - Flush()es one final time on Close()
//
// Concurrency model:
//   - the harvester and HTTP session call IncCounter/ObserveHistogram at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
//
// Only the metric names in counterDefs/histogramDefs are forwarded; anything
// else is dropped so the harvester can add metrics without breaking dashboards.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"realty/internal/metrics"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "harvest".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "service:harvest"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend needs.
// Tests replace it with a fake so no HTTP is done.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// seriesDef maps an internal metric name to its Datadog series.
type seriesDef struct {
	name string

	// tag is the label forwarded as a Datadog tag.
	tag string

	// required drops events whose tag label is empty; otherwise it becomes "unknown".
	required bool
}

var counterDefs = map[string]seriesDef{
	metrics.RunsTotal:         {name: "harvest.runs.total", tag: "stop"},
	metrics.PagesTotal:        {name: "harvest.pages.total", tag: "status"},
	metrics.RecordsTotal:      {name: "harvest.records.total", tag: "kind", required: true},
	metrics.RuleFailuresTotal: {name: "harvest.rule_failures.total", tag: "rule", required: true},
	metrics.HTTPRequestsTotal: {name: "harvest.http.requests.total", tag: "status"},
	metrics.HTTPErrorsTotal:   {name: "harvest.http.errors.total", tag: "status"},
}

var histogramDefs = map[string]seriesDef{
	metrics.PageDurationSeconds: {name: "harvest.page.duration_seconds", tag: "status"},
	metrics.HTTPRequestDuration: {name: "harvest.http.request_duration_seconds", tag: "status"},
	metrics.HTTPDownloadBytes:   {name: "harvest.http.download_bytes", tag: "status"},
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	// Keyed by Datadog series name, then by tag value.
	counts  map[string]map[string]float64
	samples map[string]map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// It must be called once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// NewBackend constructs a Datadog backend using the official client and
// starts its flush loop.
//
// Credentials and site come from the client's usual environment
// (DD_API_KEY, DD_SITE). Environment tag selection uses ENV then DD_ENV,
// otherwise env:unknown. Network errors surface from Flush, not here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	if parent == nil {
		return nil, wrapInitErr(fmt.Errorf("nil context"))
	}

	job := opts.JobName
	if job == "" {
		job = "harvest"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		client := dd.NewAPIClient(dd.NewConfiguration())
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counts:     make(map[string]map[string]float64),
		samples:    make(map[string]map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func tagValue(def seriesDef, labels metrics.Labels) (string, bool) {
	v := strings.TrimSpace(labels[def.tag])
	if v == "" {
		if def.required {
			return "", false
		}
		v = "unknown"
	}
	return v, true
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	def, ok := counterDefs[name]
	if !ok {
		return
	}
	v, ok := tagValue(def, labels)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.counts[def.name]
	if m == nil {
		m = make(map[string]float64)
		b.counts[def.name] = m
	}
	m[v] += delta
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	def, ok := histogramDefs[name]
	if !ok {
		return
	}
	v, ok := tagValue(def, labels)
	if !ok {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.samples[def.name]
	if m == nil {
		m = make(map[string][]float64)
		b.samples[def.name] = m
	}
	m[v] = append(m[v], value)
}

// snapshot is the detached buffer state of one collection window.
type snapshot struct {
	counts  map[string]map[string]float64
	samples map[string]map[string][]float64
}

func (s snapshot) isEmpty() bool {
	return len(s.counts) == 0 && len(s.samples) == 0
}

// snapshotAndReset grabs the buffers and starts a new collection window.
func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counts: b.counts, samples: b.samples}
	b.counts = make(map[string]map[string]float64)
	b.samples = make(map[string]map[string][]float64)
	return s
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Buffers are reset even if submission fails; delivery is at most once.
// Returns nil without a request when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := b.buildSeries(snap, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit %d series: %w", len(series), err)
	}
	return nil
}

// buildSeries constructs Datadog series for a snapshot at a fixed timestamp.
// Output order is deterministic: series name, then tag value.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	var series []datadogV2.MetricSeries

	for _, def := range sortedDefs(counterDefs) {
		byTag := s.counts[def.name]
		for _, v := range sortedKeys(byTag) {
			if byTag[v] == 0 {
				continue
			}
			tags := withTags(b.baseTags, def.tag+":"+v)
			series = append(series, countSeries(def.name, byTag[v], tags, nowUnix))
		}
	}

	for _, def := range sortedDefs(histogramDefs) {
		byTag := s.samples[def.name]
		for _, v := range sortedKeys(byTag) {
			tags := withTags(b.baseTags, def.tag+":"+v)
			addPercentiles(&series, tags, def.name, byTag[v], nowUnix)
		}
	}

	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges for samples.
// It sorts a copy; samples is not modified. Empty samples add nothing.
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series,
		gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix),
		gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix),
		gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix),
		gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix),
		gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix),
		gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix),
	)
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func sortedDefs(m map[string]seriesDef) []seriesDef {
	out := make([]seriesDef, 0, len(m))
	for _, d := range m {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:harvest".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func wrapInitErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("datadog metrics init: %w", err)
}

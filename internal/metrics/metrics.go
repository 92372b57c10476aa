// Package metrics is the process-wide metrics facade used by the harvester.
//
// Core code records through the helpers below and never imports a concrete
// backend. cmd/harvest selects a backend at startup (nop by default, or the
// Datadog backend in internal/metrics/datadog) with SetBackend.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are metric dimensions. Backends may ignore labels they do not know.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Metric names.
const (
	RunsTotal           = "harvest_runs_total"
	PagesTotal          = "harvest_pages_total"
	RecordsTotal        = "harvest_records_total"
	RuleFailuresTotal   = "harvest_rule_failures_total"
	PageDurationSeconds = "harvest_page_duration_seconds"
	HTTPRequestsTotal   = "harvest_http_requests_total"
	HTTPErrorsTotal     = "harvest_http_errors_total"
	HTTPRequestDuration = "harvest_http_request_duration_seconds"
	HTTPDownloadBytes   = "harvest_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. nil restores the nop backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// RecordRun counts one finished harvest run by stop reason.
func RecordRun(job, stop string) {
	current().IncCounter(RunsTotal, 1, Labels{"job": job, "stop": stop})
}

// RecordPage counts one processed page and its end-to-end duration.
// status is the page outcome: "ok", "empty", "no_content" or "error".
func RecordPage(job, status string, d time.Duration) {
	b := current()
	l := Labels{"job": job, "status": status}
	b.IncCounter(PagesTotal, 1, l)
	b.ObserveHistogram(PageDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts n records of kind ("raw" or "canonical").
func RecordRecords(job, kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(n), Labels{"job": job, "kind": kind})
}

// RecordRuleFailure counts one failed extraction rule on one record.
func RecordRuleFailure(job, rule string) {
	current().IncCounter(RuleFailuresTotal, 1, Labels{"job": job, "rule": rule})
}

// RecordHTTP records one HTTP request.
//
// status is the response status code, or 0 when no response was received
// (err describes the transport failure). Non-2xx statuses and transport
// errors are also counted as errors.
func RecordHTTP(job string, status int, err error, dur time.Duration, size int64) {
	b := current()
	st := "error"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	l := Labels{"job": job, "status": st}

	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status < 200 || status >= 300 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	b.ObserveHistogram(HTTPRequestDuration, dur.Seconds(), l)
	if size >= 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(size), l)
	}
}

// Package metrics exposes scan counters as a minimal Prometheus-compatible
// text endpoint.
package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Collector accumulates counters across scans. All methods are safe for
// concurrent use and safe on a nil receiver.
type Collector struct {
	startedAt time.Time

	scansTotal    atomic.Uint64
	scanFailures  atomic.Uint64
	prefixesTotal atomic.Uint64

	lastScanMicros atomic.Int64
}

func New() *Collector {
	return &Collector{startedAt: time.Now().UTC()}
}

// ObserveScan records one completed scan attempt.
func (c *Collector) ObserveScan(prefixes int, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.scansTotal.Add(1)
	if err != nil {
		c.scanFailures.Add(1)
		return
	}
	c.prefixesTotal.Add(uint64(prefixes))
	c.lastScanMicros.Store(d.Microseconds())
}

func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, "# HELP acpipe_up Whether the acpipe server is running.\n")
		fmt.Fprint(w, "# TYPE acpipe_up gauge\n")
		fmt.Fprint(w, "acpipe_up 1\n")

		fmt.Fprint(w, "# HELP acpipe_scans_total Total process-table scans attempted.\n")
		fmt.Fprint(w, "# TYPE acpipe_scans_total counter\n")
		fmt.Fprintf(w, "acpipe_scans_total %d\n", c.scansTotal.Load())

		fmt.Fprint(w, "# HELP acpipe_scan_failures_total Scans that failed at snapshot acquisition.\n")
		fmt.Fprint(w, "# TYPE acpipe_scan_failures_total counter\n")
		fmt.Fprintf(w, "acpipe_scan_failures_total %d\n", c.scanFailures.Load())

		fmt.Fprint(w, "# HELP acpipe_pipe_prefixes_total AppContainer pipe prefixes emitted across all scans.\n")
		fmt.Fprint(w, "# TYPE acpipe_pipe_prefixes_total counter\n")
		fmt.Fprintf(w, "acpipe_pipe_prefixes_total %d\n", c.prefixesTotal.Load())

		fmt.Fprint(w, "# HELP acpipe_last_scan_duration_seconds Duration of the most recent successful scan.\n")
		fmt.Fprint(w, "# TYPE acpipe_last_scan_duration_seconds gauge\n")
		fmt.Fprintf(w, "acpipe_last_scan_duration_seconds %g\n", float64(c.lastScanMicros.Load())/1e6)

		fmt.Fprint(w, "# HELP acpipe_uptime_seconds Seconds since the collector was created.\n")
		fmt.Fprint(w, "# TYPE acpipe_uptime_seconds gauge\n")
		fmt.Fprintf(w, "acpipe_uptime_seconds %g\n", time.Since(c.startedAt).Seconds())
	})
}

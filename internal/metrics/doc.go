// Package metrics provides the fire-and-forget metrics sink used by workers
// and the orchestrator, plus an in-process recorder for end-of-run summaries.
//
// # Sinks
//
// A [Sink] exposes counters, timings and gauges:
//
//	sink.Increment("actions")
//	sink.Timing("action.duration", elapsed)
//	sink.Gauge("clients", 12)
//
// [NewStatsD] sends every call as a StatsD datagram over UDP, decorated with
// the configured prefix, suffix and global tags. [Nop] discards everything and
// [Multi] fans one call out to several sinks.
//
// # Recorder
//
// The [Recorder] is also a Sink. It keeps counters and gauges in memory and
// tracks timings in HDR histograms, so percentiles are exact to three
// significant figures:
//
//	rec := metrics.NewRecorder()
//	rec.Timing("action.duration", 120*time.Millisecond)
//	summary := rec.Summary(elapsed)
//	p95 := summary.Timings["action.duration"].P95Ms
//
// All sinks in this package are safe for concurrent use.
package metrics

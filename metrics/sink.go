// Package metrics defines the opaque counter/gauge sink the gorilla and
// segment packages report diagnostics through. The concrete backend is an
// external collaborator by design — this package only pins down the
// interface and supplies a no-op default.
package metrics

// Gauge is an additive, settable metric updated from any goroutine.
type Gauge interface {
	Set(value float64, tags ...string)
}

// Counter is a monotonically-accumulated metric updated from any goroutine.
type Counter interface {
	Add(delta float64, tags ...string)
}

// Sink resolves named gauges and counters. Implementations are expected to
// memoize the returned handles; callers may call Gauge/Counter on every
// update without caching the result themselves.
type Sink interface {
	Gauge(name string) Gauge
	Counter(name string) Counter
}

// Noop is a Sink whose gauges and counters discard every update. It is the
// default for callers that have not wired a real metrics backend.
var Noop Sink = noopSink{}

type noopSink struct{}

func (noopSink) Gauge(string) Gauge     { return noopGauge{} }
func (noopSink) Counter(string) Counter { return noopCounter{} }

type noopGauge struct{}

func (noopGauge) Set(float64, ...string) {}

type noopCounter struct{}

func (noopCounter) Add(float64, ...string) {}

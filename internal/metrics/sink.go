package metrics

import (
	"errors"
	"time"
)

// Sink receives metric updates. Implementations must not block the caller
// on network I/O failures.
type Sink interface {
	Increment(name string)
	Timing(name string, d time.Duration)
	Gauge(name string, value float64)
	Close() error
}

// Nop discards every update.
type Nop struct{}

func (Nop) Increment(string)             {}
func (Nop) Timing(string, time.Duration) {}
func (Nop) Gauge(string, float64)        {}
func (Nop) Close() error                 { return nil }

type multi []Sink

// Multi returns a Sink that forwards every update to each non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Increment(name string) {
	for _, s := range m {
		s.Increment(name)
	}
}

func (m multi) Timing(name string, d time.Duration) {
	for _, s := range m {
		s.Timing(name, d)
	}
}

func (m multi) Gauge(name string, value float64) {
	for _, s := range m {
		s.Gauge(name, value)
	}
}

func (m multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

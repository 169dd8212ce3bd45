package metrics

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

const defaultStatsDPort = 8125

// StatsDConfig describes where and how StatsD datagrams are sent. It travels
// to worker processes inside the InitializeClient command.
type StatsDConfig struct {
	Host       string            `json:"host"`
	Port       int               `json:"port,omitempty"`
	Prefix     string            `json:"prefix,omitempty"`
	Suffix     string            `json:"suffix,omitempty"`
	GlobalTags map[string]string `json:"global_tags,omitempty"`
}

// Enabled reports whether a host is configured.
func (c StatsDConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

// Address returns host:port, defaulting the port to 8125.
func (c StatsDConfig) Address() string {
	port := c.Port
	if port <= 0 {
		port = defaultStatsDPort
	}
	return net.JoinHostPort(strings.TrimSpace(c.Host), strconv.Itoa(port))
}

// StatsD ships metrics through a buffered DogStatsD client. Counters and
// gauges are aggregated client side and datagrams are batched, so the
// per-request inspector metrics do not cost one write each.
type StatsD struct {
	client *statsd.Client
	suffix string
	once   sync.Once
	err    error
}

// NewStatsD creates the client. UDP does not contact the server, so an
// unreachable collector only results in dropped datagrams.
func NewStatsD(cfg StatsDConfig) (*StatsD, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("statsd: host is required")
	}
	client, err := statsd.New(cfg.Address(),
		statsd.WithNamespace(cfg.Prefix),
		statsd.WithTags(globalTags(cfg.GlobalTags)),
		statsd.WithoutTelemetry(),
		statsd.WithoutOriginDetection(),
	)
	if err != nil {
		return nil, fmt.Errorf("statsd %s: %w", cfg.Address(), err)
	}
	return &StatsD{client: client, suffix: cfg.Suffix}, nil
}

func (s *StatsD) Increment(name string) {
	_ = s.client.Incr(name+s.suffix, nil, 1)
}

func (s *StatsD) Timing(name string, d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)
	_ = s.client.TimeInMilliseconds(name+s.suffix, ms, nil, 1)
}

func (s *StatsD) Gauge(name string, value float64) {
	_ = s.client.Gauge(name+s.suffix, value, nil, 1)
}

// Close flushes pending metrics and closes the client. Later calls return
// the first result.
func (s *StatsD) Close() error {
	s.once.Do(func() {
		flushErr := s.client.Flush()
		closeErr := s.client.Close()
		if closeErr != nil {
			s.err = closeErr
		} else {
			s.err = flushErr
		}
	})
	return s.err
}

// globalTags renders tags as "k:v", sorted by key. An empty value yields a
// bare key.
func globalTags(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := tags[k]; v != "" {
			out = append(out, k+":"+v)
		} else {
			out = append(out, k)
		}
	}
	return out
}

package metrics_test

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/torosent/symphoner/internal/metrics"
)

func listenUDP(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

// readLines collects metric lines until want lines arrived or the deadline
// passes. The client batches several lines into one datagram.
func readLines(t *testing.T, conn *net.UDPConn, want int) []string {
	t.Helper()
	var lines []string
	buf := make([]byte, 65535)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(lines) < want {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			t.Fatalf("read datagram after %d lines %v: %v", len(lines), lines, err)
		}
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

func TestStatsDFormats(t *testing.T) {
	conn, port := listenUDP(t)

	sink, err := metrics.NewStatsD(metrics.StatsDConfig{
		Host:       "127.0.0.1",
		Port:       port,
		Prefix:     "load.",
		Suffix:     ".total",
		GlobalTags: map[string]string{"region": "eu", "env": "ci"},
	})
	if err != nil {
		t.Fatalf("NewStatsD() error = %v", err)
	}

	sink.Increment("actions")
	sink.Increment("actions")
	sink.Timing("action.duration", 1500*time.Microsecond)
	sink.Gauge("clients", 7)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	lines := readLines(t, conn, 3)
	want := map[string]bool{
		"load.actions.total:2|c|#env:ci,region:eu":            false,
		"load.action.duration.total:1.5|ms|#env:ci,region:eu": false,
		"load.clients.total:7|g|#env:ci,region:eu":            false,
	}
	for _, line := range lines {
		if _, ok := want[line]; ok {
			want[line] = true
		}
	}
	for line, seen := range want {
		if !seen {
			t.Errorf("missing %q in %q", line, lines)
		}
	}
}

func TestStatsDRequiresHost(t *testing.T) {
	if _, err := metrics.NewStatsD(metrics.StatsDConfig{}); err == nil {
		t.Fatal("expected error without host")
	}
}

func TestStatsDAddressDefaultsPort(t *testing.T) {
	cfg := metrics.StatsDConfig{Host: "metrics.internal"}
	if got := cfg.Address(); got != "metrics.internal:8125" {
		t.Fatalf("expected default port, got %s", got)
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := metrics.NewRecorder(), metrics.NewRecorder()
	sink := metrics.Multi(a, nil, b)

	sink.Increment("actions")
	sink.Timing("action.duration", time.Millisecond)
	sink.Gauge("clients", 2)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for i, r := range []*metrics.Recorder{a, b} {
		s := r.Summary(time.Second)
		if s.Counter("actions") != 1 || s.Timings["action.duration"].Count != 1 || s.Gauges["clients"] != 2 {
			t.Errorf("recorder %d missed updates: %+v", i, s)
		}
	}
}

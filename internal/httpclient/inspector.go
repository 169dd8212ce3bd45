package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptrace"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/symphoner/internal/metrics"
)

// Inspector is a RoundTripper that reports per-request phase timings and
// outcome counters to a metrics sink.
//
// Timings: request.queueing, request.connecting, request.waiting,
// request.downloading and request.total. Counters: requests.<status>,
// requests.error, requests.timeout and requests.abort. The running number of
// body bytes read is reported as the request.bytes.read gauge.
type Inspector struct {
	next      http.RoundTripper
	sink      metrics.Sink
	bytesRead atomic.Int64
}

func NewInspector(next http.RoundTripper, sink metrics.Sink) *Inspector {
	if next == nil {
		next = http.DefaultTransport
	}
	if sink == nil {
		sink = metrics.Nop{}
	}
	return &Inspector{next: next, sink: sink}
}

type requestTrace struct {
	start        time.Time
	connectStart time.Time
	connected    time.Time
	wroteRequest time.Time
	firstByte    time.Time
}

func (i *Inspector) RoundTrip(req *http.Request) (*http.Response, error) {
	rt := &requestTrace{start: time.Now()}
	trace := &httptrace.ClientTrace{
		GetConn: func(string) {},
		GotConn: func(httptrace.GotConnInfo) {
			if rt.connected.IsZero() {
				rt.connected = time.Now()
			}
		},
		ConnectStart: func(string, string) {
			if rt.connectStart.IsZero() {
				rt.connectStart = time.Now()
			}
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			rt.wroteRequest = time.Now()
		},
		GotFirstResponseByte: func() {
			rt.firstByte = time.Now()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := i.next.RoundTrip(req)
	if err != nil {
		i.recordFailure(err)
		return nil, err
	}

	i.recordHeaders(rt)
	i.sink.Increment("requests." + strconv.Itoa(resp.StatusCode))
	resp.Body = &inspectedBody{ReadCloser: resp.Body, inspector: i, trace: rt}
	return resp, nil
}

func (i *Inspector) recordHeaders(rt *requestTrace) {
	if !rt.connectStart.IsZero() {
		i.sink.Timing("request.queueing", rt.connectStart.Sub(rt.start))
		if !rt.connected.IsZero() {
			i.sink.Timing("request.connecting", rt.connected.Sub(rt.connectStart))
		}
	} else if !rt.connected.IsZero() {
		// Reused connection.
		i.sink.Timing("request.queueing", rt.connected.Sub(rt.start))
		i.sink.Timing("request.connecting", 0)
	}
	if !rt.firstByte.IsZero() {
		from := rt.wroteRequest
		if from.IsZero() {
			from = rt.start
		}
		i.sink.Timing("request.waiting", rt.firstByte.Sub(from))
	}
}

func (i *Inspector) recordFailure(err error) {
	switch {
	case errors.Is(err, context.Canceled):
		i.sink.Increment("requests.abort")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded), isTimeout(err):
		i.sink.Increment("requests.timeout")
	default:
		i.sink.Increment("requests.error")
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

type inspectedBody struct {
	io.ReadCloser
	inspector *Inspector
	trace     *requestTrace
	once      sync.Once
}

func (b *inspectedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		total := b.inspector.bytesRead.Add(int64(n))
		b.inspector.sink.Gauge("request.bytes.read", float64(total))
	}
	if err == io.EOF {
		b.finish()
	}
	return n, err
}

func (b *inspectedBody) Close() error {
	b.finish()
	return b.ReadCloser.Close()
}

func (b *inspectedBody) finish() {
	b.once.Do(func() {
		now := time.Now()
		if !b.trace.firstByte.IsZero() {
			b.inspector.sink.Timing("request.downloading", now.Sub(b.trace.firstByte))
		}
		b.inspector.sink.Timing("request.total", now.Sub(b.trace.start))
	})
}

var (
	installOnce sync.Once
	installed   atomic.Pointer[Inspector]
)

// Install routes http.DefaultTransport and every client built by NewClient
// through an Inspector reporting to sink. Only the first call has effect.
func Install(sink metrics.Sink) {
	installOnce.Do(func() {
		inspector := NewInspector(http.DefaultTransport, sink)
		installed.Store(inspector)
		http.DefaultTransport = inspector
	})
}

func installedSink() metrics.Sink {
	if i := installed.Load(); i != nil {
		return i.sink
	}
	return nil
}

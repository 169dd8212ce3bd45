package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// RequestSpec describes one templated HTTP request.
type RequestSpec struct {
	Method   string
	URL      string
	Headers  map[string]string
	Body     string
	BodyFile string
}

// RequestBuilder builds requests from a RequestSpec, replacing {{name}}
// placeholders with values from the run settings.
type RequestBuilder struct {
	method  string
	target  string
	headers http.Header
	body    BodySource
}

func NewRequestBuilder(spec RequestSpec) (*RequestBuilder, error) {
	target := strings.TrimSpace(spec.URL)
	if target == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.TrimSpace(spec.Method)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	body, err := NewBodySource(spec.Body, spec.BodyFile)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for key, value := range spec.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: headers,
		body:    body,
	}, nil
}

// Build creates a request bound to ctx.
func (b *RequestBuilder) Build(ctx context.Context, settings map[string]interface{}) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.NewReader()
	if err != nil {
		return nil, err
	}

	length, known := b.body.ContentLength()
	if len(settings) > 0 {
		raw, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			return nil, fmt.Errorf("read body for substitution: %w", err)
		}
		substituted := ApplyPlaceholders(string(raw), settings)
		reader = io.NopCloser(strings.NewReader(substituted))
		length, known = int64(len(substituted)), true
	}

	req, err := http.NewRequestWithContext(ctx, b.method, ApplyPlaceholders(b.target, settings), reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}
	if known {
		req.ContentLength = length
	}

	req.Header = make(http.Header, len(b.headers))
	for key, values := range b.headers {
		for _, val := range values {
			req.Header.Add(key, ApplyPlaceholders(val, settings))
		}
	}
	return req, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// ApplyPlaceholders replaces {{key}} with fmt.Sprint(values[key]). Unknown
// keys are left untouched.
func ApplyPlaceholders(s string, values map[string]interface{}) string {
	if len(values) == 0 || !strings.Contains(s, "{{") {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		val, ok := values[key]
		if !ok {
			val, ok = values[strings.ToLower(key)]
		}
		if !ok {
			return match
		}
		return fmt.Sprint(val)
	})
}

// NewClient returns a client tuned for load generation. Requests go through
// the process-wide Inspector when one has been installed.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	var rt http.RoundTripper = transport
	if sink := installedSink(); sink != nil {
		rt = NewInspector(transport, sink)
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

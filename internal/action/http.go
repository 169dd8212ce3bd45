package action

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/symphoner/internal/httpclient"
	"github.com/torosent/symphoner/internal/tracing"
)

const maxExpectBody = 1 << 20

type httpAction struct {
	builder *httpclient.RequestBuilder
	client  *http.Client
	expect  Expectation
}

func newHTTPAction(def Definition) (Action, error) {
	if def.Request == nil {
		return nil, fmt.Errorf("http action requires a request section")
	}
	req := def.Request

	bodyFile := req.BodyFile
	if bodyFile != "" && !filepath.IsAbs(bodyFile) && def.Dir != "" {
		bodyFile = filepath.Join(def.Dir, bodyFile)
	}

	builder, err := httpclient.NewRequestBuilder(httpclient.RequestSpec{
		Method:   req.Method,
		URL:      req.URL,
		Headers:  req.Headers,
		Body:     req.Body,
		BodyFile: bodyFile,
	})
	if err != nil {
		return nil, err
	}

	return &httpAction{
		builder: builder,
		client:  httpclient.NewClient(def.Timeout),
		expect:  req.Expect,
	}, nil
}

func (a *httpAction) Invoke(ctx context.Context, cfg Config) *Result {
	return Completed(a.do(ctx, cfg))
}

func (a *httpAction) do(ctx context.Context, cfg Config) error {
	req, err := a.builder.Build(ctx, cfg.Settings)
	if err != nil {
		return err
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExpectBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if cfg.Metrics != nil {
		cfg.Metrics.Timing("http.response", time.Since(start))
	}

	return a.check(resp.StatusCode, body)
}

func (a *httpAction) check(status int, body []byte) error {
	if a.expect.Status != 0 {
		if status != a.expect.Status {
			return fmt.Errorf("status %d, expected %d", status, a.expect.Status)
		}
	} else if status >= 400 {
		return fmt.Errorf("status %d", status)
	}

	if len(a.expect.JSON) == 0 {
		return nil
	}
	if !gjson.ValidBytes(body) {
		return fmt.Errorf("response is not valid JSON")
	}
	for path, want := range a.expect.JSON {
		got := gjson.GetBytes(body, path)
		if !got.Exists() {
			return fmt.Errorf("response missing %s", path)
		}
		if want != "" && got.String() != want {
			return fmt.Errorf("response %s = %q, expected %q", path, truncate(got.String()), want)
		}
	}
	return nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

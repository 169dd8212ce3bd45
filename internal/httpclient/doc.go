// Package httpclient builds templated HTTP requests for actions and reports
// request-level timings through an instrumented RoundTripper.
//
// Use [NewRequestBuilder] with a [RequestSpec]; placeholders of the form
// {{key}} in the URL, headers and body are filled from the run settings:
//
//	builder, err := httpclient.NewRequestBuilder(spec)
//	if err != nil {
//		return err
//	}
//	req, err := builder.Build(ctx, settings)
//
// Workers call [Install] once with their metrics sink so that every request
// made through [NewClient] or http.DefaultTransport is measured.
package httpclient

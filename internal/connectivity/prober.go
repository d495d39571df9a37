package connectivity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HTTPProber checks reachability with a HEAD request to a trivial resource.
// Any HTTP response, whatever its status, means reachable; only transport
// errors and timeouts count as failures.
type HTTPProber struct {
	url    string
	client *http.Client
	now    func() time.Time
	tracer trace.Tracer
}

// ProberOption configures an HTTPProber.
type ProberOption func(*HTTPProber)

// WithHTTPClient sets the client used for probes.
func WithHTTPClient(c *http.Client) ProberOption {
	return func(p *HTTPProber) {
		p.client = c
	}
}

// NewHTTPProber creates a prober for rawURL.
func NewHTTPProber(rawURL string, opts ...ProberOption) (*HTTPProber, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("probe url: %w", err)
	}
	p := &HTTPProber{
		url:    rawURL,
		client: http.DefaultClient,
		now:    time.Now,
		tracer: otel.Tracer("claimwiz/connectivity"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) (err error) {
	ctx, span := p.tracer.Start(ctx, "connectivity.probe", trace.WithAttributes(
		attribute.String("probe.url", p.url),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	u, err := url.Parse(p.url)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	// Cache-busting query so intermediaries cannot answer for the origin.
	q := u.Query()
	q.Set("_", strconv.FormatInt(p.now().UnixNano(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return nil
}

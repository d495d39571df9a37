package queue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/claimwiz/internal/store"
)

// Dispatcher delivers one envelope to the submission endpoint.
// A nil error means the server accepted it.
type Dispatcher interface {
	Dispatch(ctx context.Context, env store.Envelope) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, env store.Envelope) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, env store.Envelope) error {
	return f(ctx, env)
}

// DeliveryError is a failed delivery. Transport is true when no HTTP
// response was received at all.
type DeliveryError struct {
	ID         string
	StatusCode int
	Transport  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Transport {
		return fmt.Sprintf("deliver %s: transport: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("deliver %s: server returned %d", e.ID, e.StatusCode)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err is a delivery that never reached the
// server.
func IsTransportError(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Transport
	}
	return false
}

// HTTPDispatcher POSTs the envelope payload as JSON. Any 2xx response is a
// successful delivery.
type HTTPDispatcher struct {
	url    string
	client *http.Client
	tracer trace.Tracer
}

// NewHTTPDispatcher creates a dispatcher for the endpoint url.
// A nil client uses http.DefaultClient.
func NewHTTPDispatcher(url string, client *http.Client) *HTTPDispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDispatcher{
		url:    url,
		client: client,
		tracer: otel.Tracer("claimwiz/queue"),
	}
}

// Dispatch implements Dispatcher.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, env store.Envelope) (err error) {
	ctx, span := d.tracer.Start(ctx, "queue.dispatch", trace.WithAttributes(
		attribute.String("submission.id", env.ID),
		attribute.Int("submission.attempts", env.Attempts),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(env.Payload))
	if err != nil {
		return &DeliveryError{ID: env.ID, Transport: true, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Submission-Id", env.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("deliver %s: %w", env.ID, cerr)
		}
		return &DeliveryError{ID: env.ID, Transport: true, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{ID: env.ID, StatusCode: resp.StatusCode}
	}
	return nil
}

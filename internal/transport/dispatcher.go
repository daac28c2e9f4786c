// Package transport is the storefront client's API session layer: every
// authenticated request goes out through the Dispatcher, which injects the
// current bearer token and routes authorization failures to the refresh
// Coordinator. Bypassing the dispatcher breaks the refresh guarantee.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/StorefrontGo/internal/session"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
	"github.com/utafrali/StorefrontGo/pkg/httpclient"
	"github.com/utafrali/StorefrontGo/pkg/tracing"
)

// Doer is the interface for executing HTTP requests. Both httpclient.Client
// and httpclient.CircuitBreakerClient satisfy this.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Request describes one API call. Body, when non-nil, is marshaled to JSON;
// it is re-marshaled on replay, so a request stays safe to re-issue after a
// token refresh.
type Request struct {
	Method string
	Path   string
	// Name is the route template for metrics and spans, e.g.
	// "/cart/items/{id}" when Path carries a concrete product ID. Routes
	// without path parameters can leave it empty; Path is used then.
	// Concrete IDs must never reach a metric label.
	Name  string
	Query url.Values
	Body  any

	// retried marks a request that has already been replayed once with a
	// refreshed token. A second 401 is terminal.
	retried bool
	// sentToken is the bearer token attached on the last send, so the
	// refresh path knows which credential was rejected.
	sentToken string
}

// route returns the template label for metrics and spans.
func (r *Request) route() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Path
}

// Dispatcher executes API requests with the session's bearer token attached.
type Dispatcher struct {
	client Doer
	store  *session.Store
	coord  *Coordinator
	base   string
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher. All components share one underlying
// HTTP client so the refresh cookie jar is common to every call.
func NewDispatcher(client Doer, store *session.Store, coord *Coordinator, baseURL string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		store:  store,
		coord:  coord,
		base:   baseURL,
		logger: logger,
	}
}

// Do executes the request and decodes a 2xx JSON response into out (ignored
// when out is nil).
//
// 401 routing:
//   - on the login endpoint: terminal, the credentials were wrong;
//   - on a request already replayed once: terminal, the session is exhausted;
//   - otherwise: the caller is handed to the Coordinator (joining any refresh
//     already in flight) and the request is replayed once with the new token.
//
// Every other failure propagates to the caller untouched.
func (d *Dispatcher) Do(ctx context.Context, req *Request, out any) error {
	ctx, span := tracing.Tracer().Start(ctx, req.Method+" "+req.route())
	defer span.End()

	httpReq, err := d.buildRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(ctx, httpReq)
	if err != nil {
		apiRequestsTotal.WithLabelValues(req.Method, req.route(), "error").Inc()
		span.RecordError(err)
		return fmt.Errorf("call %s %s: %w", req.Method, req.Path, err)
	}

	apiRequestsTotal.WithLabelValues(req.Method, req.route(), strconv.Itoa(resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		return d.handleUnauthorized(ctx, req, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpclient.ParseResponseError(resp, req.Path)
	}

	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func (d *Dispatcher) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	u := d.base + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body *bytes.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s request: %w", req.Method, req.Path, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	// The token is read from the store at send time, never cached: a replay
	// after refresh automatically picks up the new credential.
	req.sentToken = d.store.Token()
	if req.sentToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.sentToken)
	}

	return httpReq, nil
}

func (d *Dispatcher) handleUnauthorized(ctx context.Context, req *Request, out any) error {
	// A 401 from the login endpoint means the credentials were wrong, not
	// that a token expired. Refreshing would be meaningless.
	if req.Path == LoginPath {
		d.coord.Invalidate(ctx, "login rejected")
		return apperrors.InvalidCredentials("email or password is incorrect")
	}

	// The refreshed token was rejected too: terminal, no second refresh.
	if req.retried {
		d.coord.Invalidate(ctx, "replayed request rejected")
		return apperrors.SessionExpired("session expired, please log in again")
	}

	d.logger.DebugContext(ctx, "authorization failed, entering refresh path",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
	)

	if _, err := d.coord.Refresh(ctx, req.sentToken); err != nil {
		return err
	}

	req.retried = true
	return d.Do(ctx, req, out)
}

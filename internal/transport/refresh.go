package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/session"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
)

// Backend auth endpoints. The refresh endpoint authenticates with the
// HTTP-only cookie carried by the shared client's jar, not with the bearer
// token being replaced.
const (
	LoginPath   = "/login"
	RefreshPath = "/refresh-token"
	LogoutPath  = "/logout"
)

// refreshResponse is the body of a successful POST /refresh-token call.
type refreshResponse struct {
	AccessToken string      `json:"accessToken"`
	User        domain.User `json:"user"`
}

// Coordinator owns the token refresh path. It is the only component that
// mutates the session store when authorization fails, and it guarantees that
// at most one refresh call is outstanding no matter how many requests fail
// concurrently: later arrivals attach to the in-flight call and share its
// outcome.
type Coordinator struct {
	store    *session.Store
	client   Doer
	baseURL  string
	maxTries int
	logger   *slog.Logger

	group singleflight.Group

	mu         sync.Mutex
	refreshing bool
}

// NewCoordinator creates a refresh coordinator. maxTries bounds the retry of
// the refresh call itself on transport errors; a rejection by the backend is
// never retried.
func NewCoordinator(store *session.Store, client Doer, baseURL string, maxTries int, logger *slog.Logger) *Coordinator {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Coordinator{
		store:    store,
		client:   client,
		baseURL:  baseURL,
		maxTries: maxTries,
		logger:   logger,
	}
}

// Refreshing reports whether a refresh call is currently in flight.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Refresh obtains a fresh access token, starting a backend refresh call only
// if none is in flight; otherwise the caller joins the in-flight one and
// shares its outcome. staleToken is the token the caller saw rejected: if the
// store already holds a different one, another caller's refresh has finished
// in the meantime and that token is returned without touching the backend.
// On success the new session is already installed in the store when Refresh
// returns. On failure the store has been cleared and every joined caller
// receives the same error.
func (c *Coordinator) Refresh(ctx context.Context, staleToken string) (string, error) {
	if tok := c.store.Token(); tok != "" && tok != staleToken {
		return tok, nil
	}
	if c.Refreshing() {
		tokenRefreshWaiters.Inc()
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		if tok := c.store.Token(); tok != "" && tok != staleToken {
			return tok, nil
		}

		c.setRefreshing(true)
		defer c.setRefreshing(false)

		// The call is shared by every waiter, so it must not die with the
		// first caller's context.
		token, err := c.doRefresh(context.WithoutCancel(ctx))
		if err != nil {
			tokenRefreshTotal.WithLabelValues("failure").Inc()
			c.store.Clear()
			c.logger.WarnContext(ctx, "token refresh failed, session cleared",
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		tokenRefreshTotal.WithLabelValues("success").Inc()
		c.logger.InfoContext(ctx, "access token refreshed")
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate is the terminal sign-out used when a replayed request is
// rejected again or a login attempt fails: the session is cleared and nothing
// is retried.
func (c *Coordinator) Invalidate(ctx context.Context, reason string) {
	c.store.Clear()
	c.logger.InfoContext(ctx, "session invalidated", slog.String("reason", reason))
}

func (c *Coordinator) setRefreshing(v bool) {
	c.mu.Lock()
	c.refreshing = v
	c.mu.Unlock()
}

// doRefresh performs the POST /refresh-token call with bounded retry on
// transport errors and installs the resulting session in the store.
func (c *Coordinator) doRefresh(ctx context.Context) (string, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxInterval = 2 * time.Second

	payload, err := backoff.Retry(ctx, func() (refreshResponse, error) {
		return c.callRefresh(ctx)
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(uint(c.maxTries)))
	if err != nil {
		return "", err
	}

	if err := c.store.Set(payload.User, payload.AccessToken); err != nil {
		return "", fmt.Errorf("install refreshed session: %w", err)
	}
	return payload.AccessToken, nil
}

func (c *Coordinator) callRefresh(ctx context.Context) (refreshResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RefreshPath, http.NoBody)
	if err != nil {
		return refreshResponse{}, backoff.Permanent(fmt.Errorf("create refresh request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		// Transport errors are worth another try.
		return refreshResponse{}, fmt.Errorf("call refresh endpoint: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var payload refreshResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return refreshResponse{}, backoff.Permanent(fmt.Errorf("decode refresh response: %w", err))
		}
		return payload, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return refreshResponse{}, backoff.Permanent(apperrors.SessionExpired("refresh token rejected"))
	case resp.StatusCode >= 500:
		return refreshResponse{}, fmt.Errorf("refresh endpoint returned status %d", resp.StatusCode)
	default:
		return refreshResponse{}, backoff.Permanent(fmt.Errorf("refresh endpoint returned status %d", resp.StatusCode))
	}
}

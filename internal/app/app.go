// Package app wires the storefront client together: session store, refresh
// coordinator, dispatcher, guest buffer, the typed API services and the ops
// HTTP surface.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/StorefrontGo/internal/api"
	"github.com/utafrali/StorefrontGo/internal/config"
	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/guest"
	"github.com/utafrali/StorefrontGo/internal/reconcile"
	"github.com/utafrali/StorefrontGo/internal/session"
	"github.com/utafrali/StorefrontGo/internal/transport"
	"github.com/utafrali/StorefrontGo/pkg/health"
	"github.com/utafrali/StorefrontGo/pkg/httpclient"
	"github.com/utafrali/StorefrontGo/pkg/logger"
	"github.com/utafrali/StorefrontGo/pkg/tracing"
)

const (
	// refreshLead is how long before token expiry the background loop
	// refreshes proactively.
	refreshLead = 60 * time.Second
	// refreshPollInterval bounds how often the loop re-checks expiry.
	refreshPollInterval = 30 * time.Second
)

// Client is the storefront client facade. The exported services share one
// session store, one cookie jar and one dispatcher, so the refresh rules
// hold across every call regardless of which service made it.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger

	redis  *redis.Client
	store  *session.Store
	buffer *guest.Buffer
	coord  *transport.Coordinator

	Auth     *api.AuthService
	Cart     *api.CartService
	Wishlist *api.WishlistService
	Catalog  *api.CatalogService
	Orders   *api.OrderService

	reconciler *reconcile.Reconciler

	health          *health.Handler
	opsServer       *http.Server
	unsubscribe     func()
	tracingShutdown func(context.Context) error
}

// New builds a fully wired client from config.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	httpClient := httpclient.New(httpclient.Config{
		Timeout:         time.Duration(cfg.HTTPTimeoutSec) * time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: 100,
		Jar:             jar,
	})
	breaker := httpclient.NewCircuitBreakerClient(
		httpClient,
		httpclient.DefaultCircuitBreakerConfig("storefront-api"),
		logger,
	)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	store := session.New()
	buffer := guest.NewBuffer(redisClient, time.Duration(cfg.GuestBufferTTL)*time.Hour)
	coord := transport.NewCoordinator(store, breaker, cfg.APIBaseURL, cfg.RefreshMaxTries, logger)
	dispatcher := transport.NewDispatcher(breaker, store, coord, cfg.APIBaseURL, logger)

	cart := api.NewCartService(dispatcher)
	wishlist := api.NewWishlistService(dispatcher)

	c := &Client{
		cfg:        cfg,
		logger:     logger,
		redis:      redisClient,
		store:      store,
		buffer:     buffer,
		coord:      coord,
		Auth:       api.NewAuthService(dispatcher, coord, store, logger),
		Cart:       cart,
		Wishlist:   wishlist,
		Catalog:    api.NewCatalogService(dispatcher),
		Orders:     api.NewOrderService(dispatcher),
		reconciler: reconcile.New(buffer, cart, wishlist, logger),
		health:     health.NewHandler("storefront-client"),
	}

	// Cached account state must not outlive the session it belongs to.
	c.unsubscribe = store.Subscribe(func(s domain.Session) {
		if !s.Authenticated() {
			cart.Reset()
			wishlist.Reset()
		}
	})

	c.health.Register("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	// Any HTTP answer counts as reachable; a 404 from the backend still
	// means the network path and the backend process are fine.
	c.health.Register("backend", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIBaseURL+"/health", http.NoBody)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(ctx, req)
		if err != nil {
			return fmt.Errorf("storefront backend unreachable: %w", err)
		}
		return resp.Body.Close()
	})

	shutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.OTELEndpoint,
		Environment: cfg.Environment,
		SampleRate:  cfg.OTELSampleRate,
		Enabled:     cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	c.tracingShutdown = shutdown

	c.opsServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           NewRouter(logger, c.health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return c, nil
}

// Session returns the shared session store, for callers that want to
// subscribe to login state changes.
func (c *Client) Session() *session.Store {
	return c.store
}

// Login authenticates and then reconciles any guest-held cart and wishlist
// into the account. A merge failure never fails the login: the guest buffer
// stays intact and the merge is retried on the next login.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := c.Auth.Login(ctx, api.LoginInput{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	if err := c.reconciler.MergeOnLogin(ctx); err != nil {
		c.logger.WarnContext(ctx, "guest state reconciliation incomplete",
			slog.String("error", err.Error()),
		)
	}
	return user, nil
}

// Logout signs out and drops the cached account state.
func (c *Client) Logout(ctx context.Context) error {
	return c.Auth.Logout(ctx)
}

// Restore rehydrates a previous session from the refresh cookie. Unlike
// Login it never triggers reconciliation.
func (c *Client) Restore(ctx context.Context) (*domain.User, error) {
	return c.Auth.Restore(ctx)
}

// AddItem puts a product in whichever cart currently applies: the account
// cart when signed in, the guest buffer when anonymous. For a guest add the
// returned cart is nil; the line lives in the buffer until login.
func (c *Client) AddItem(ctx context.Context, productID string, quantity int, price int64) (*domain.Cart, error) {
	if c.store.Authenticated() {
		return c.Cart.AddItem(ctx, productID, quantity, price)
	}

	ctx, log, err := c.guestScope(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.buffer.AddLine(ctx, productID, quantity, price); err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "guest cart line buffered",
		slog.String("product_id", productID),
		slog.Int("quantity", quantity),
	)
	return nil, nil
}

// AddToWishlist routes the same way AddItem does.
func (c *Client) AddToWishlist(ctx context.Context, productID string) (*domain.Wishlist, error) {
	if c.store.Authenticated() {
		return c.Wishlist.Add(ctx, productID)
	}

	ctx, log, err := c.guestScope(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.buffer.AddWishlistProduct(ctx, productID); err != nil {
		return nil, err
	}
	log.DebugContext(ctx, "guest wishlist product buffered",
		slog.String("product_id", productID),
	)
	return nil, nil
}

// guestScope tags the context with the guest identity and returns a logger
// whose entries carry it.
func (c *Client) guestScope(ctx context.Context) (context.Context, *slog.Logger, error) {
	id, err := c.buffer.Identity(ctx)
	if err != nil {
		return ctx, nil, err
	}
	ctx = logger.WithGuestID(ctx, id)
	return ctx, logger.WithContext(ctx, c.logger), nil
}

// GuestLines returns the buffered guest cart, for rendering while anonymous.
func (c *Client) GuestLines(ctx context.Context) ([]domain.CartItem, error) {
	return c.buffer.Lines(ctx)
}

// Run serves the ops endpoints and keeps the access token fresh until ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("ops server listening", slog.String("addr", c.opsServer.Addr))
		if err := c.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	go c.refreshLoop(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Shutdown(shutdownCtx)
}

// refreshLoop refreshes the access token shortly before its exp claim so
// requests rarely hit a 401 at all. The reactive 401 path stays in place as
// the fallback.
func (c *Client) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !c.store.Authenticated() {
			continue
		}
		expiry, ok := c.store.ExpiresAt()
		if !ok || time.Until(expiry) > refreshLead {
			continue
		}

		if _, err := c.coord.Refresh(ctx, c.store.Token()); err != nil {
			c.logger.WarnContext(ctx, "proactive token refresh failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// Shutdown stops the ops server and releases resources.
func (c *Client) Shutdown(ctx context.Context) error {
	var firstErr error

	if err := c.opsServer.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("shutdown ops server: %w", err)
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.tracingShutdown != nil {
		if err := c.tracingShutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("shutdown tracing: %w", err)
		}
	}
	if err := c.redis.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close redis: %w", err)
	}
	return firstErr
}

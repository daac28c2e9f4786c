package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/session"
	apperrors "github.com/utafrali/StorefrontGo/pkg/errors"
	"github.com/utafrali/StorefrontGo/pkg/httpclient"
)

func newCoordinator(t *testing.T, handler http.HandlerFunc, maxTries int) (*Coordinator, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := httpclient.New(httpclient.Config{
		Timeout:         5 * time.Second,
		MaxRetries:      0,
		MaxConnsPerHost: 10,
	})
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := session.New()
	return NewCoordinator(store, client, srv.URL, maxTries, logger), store
}

func writeRefreshPayload(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accessToken": token,
		"user":        domain.User{ID: "user-1", Email: "shopper@example.com", Role: "customer"},
	})
}

func TestCoordinator_RefreshInstallsSession(t *testing.T) {
	coord, store := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, RefreshPath, r.URL.Path)
		writeRefreshPayload(w, "fresh-token")
	}, 1)

	require.NoError(t, store.Set(domain.User{ID: "user-1", Role: "customer"}, "old-token"))

	token, err := coord.Refresh(context.Background(), "old-token")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, "fresh-token", store.Token())
	require.NotNil(t, store.Current().User)
	assert.Equal(t, "user-1", store.Current().User.ID)
}

func TestCoordinator_RetriesTransportErrorsUpToMaxTries(t *testing.T) {
	var calls atomic.Int32
	coord, store := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeRefreshPayload(w, "fresh-token")
	}, 3)

	token, err := coord.Refresh(context.Background(), "old-token")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, store.Authenticated())
}

func TestCoordinator_ExhaustedRetriesClearsSession(t *testing.T) {
	var calls atomic.Int32
	coord, store := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, 2)

	require.NoError(t, store.Set(domain.User{ID: "user-1", Role: "customer"}, "old-token"))

	_, err := coord.Refresh(context.Background(), "old-token")
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, store.Authenticated())
}

func TestCoordinator_RejectionIsNeverRetried(t *testing.T) {
	var calls atomic.Int32
	coord, store := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, 5)

	require.NoError(t, store.Set(domain.User{ID: "user-1", Role: "customer"}, "old-token"))

	_, err := coord.Refresh(context.Background(), "old-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
	// The backend said no: retrying with the same cookie cannot help.
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, store.Authenticated())
}

func TestCoordinator_StaleTokenShortCircuit(t *testing.T) {
	var calls atomic.Int32
	coord, store := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeRefreshPayload(w, "fresh-token")
	}, 1)

	// Another caller already refreshed: the store holds a token newer than
	// the one this caller saw fail.
	require.NoError(t, store.Set(domain.User{ID: "user-1", Role: "customer"}, "fresh-token"))

	token, err := coord.Refresh(context.Background(), "old-token")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Zero(t, calls.Load())
}

func TestCoordinator_RefreshingFlag(t *testing.T) {
	release := make(chan struct{})
	coord, _ := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeRefreshPayload(w, "fresh-token")
	}, 1)

	assert.False(t, coord.Refreshing())

	done := make(chan error, 1)
	go func() {
		_, err := coord.Refresh(context.Background(), "old-token")
		done <- err
	}()

	require.Eventually(t, coord.Refreshing, time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-done)
	assert.False(t, coord.Refreshing())
}

func TestCoordinator_SurvivesCallerCancellation(t *testing.T) {
	coord, store := newCoordinator(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		writeRefreshPayload(w, "fresh-token")
	}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		coord.Refresh(ctx, "old-token")
	}()
	// Cancel the initiating caller while the call is in flight. The shared
	// refresh keeps going so other waiters can still benefit.
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	assert.Eventually(t, func() bool {
		return store.Token() == "fresh-token"
	}, time.Second, 5*time.Millisecond)
}

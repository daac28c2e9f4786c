// Package api holds the typed wrappers for the storefront backend's
// endpoints. Every call goes through the transport dispatcher, so bearer
// injection and the refresh-on-401 rules apply uniformly.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/utafrali/StorefrontGo/internal/domain"
	"github.com/utafrali/StorefrontGo/internal/session"
	"github.com/utafrali/StorefrontGo/internal/transport"
	"github.com/utafrali/StorefrontGo/pkg/validator"
)

// LoginInput carries the credentials for a login attempt.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginResponse struct {
	AccessToken string      `json:"accessToken"`
	User        domain.User `json:"user"`
}

// AuthService owns the session lifecycle endpoints: login, logout and the
// cookie-based restore at startup.
type AuthService struct {
	dispatcher *transport.Dispatcher
	coord      *transport.Coordinator
	store      *session.Store
	logger     *slog.Logger
}

func NewAuthService(dispatcher *transport.Dispatcher, coord *transport.Coordinator, store *session.Store, logger *slog.Logger) *AuthService {
	return &AuthService{
		dispatcher: dispatcher,
		coord:      coord,
		store:      store,
		logger:     logger,
	}
}

// Login authenticates with the backend and installs the resulting session.
// A 401 from the login endpoint surfaces as ErrInvalidCredentials and is
// never routed through the refresh path. The backend sets the HTTP-only
// refresh cookie on the shared client's jar as a side effect.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	var resp loginResponse
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   transport.LoginPath,
		Body:   input,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if err := s.store.Set(resp.User, resp.AccessToken); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login succeeded", slog.String("user_id", resp.User.ID))
	return s.store.Current().User, nil
}

// Logout tells the backend to drop the refresh cookie and clears the local
// session. The local session is cleared even when the backend call fails:
// from the caller's point of view logout always signs the user out.
func (s *AuthService) Logout(ctx context.Context) error {
	err := s.dispatcher.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		Path:   transport.LogoutPath,
	}, nil)

	s.store.Clear()
	if err != nil {
		s.logger.WarnContext(ctx, "logout call failed, session cleared locally",
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.InfoContext(ctx, "logged out")
	return nil
}

// Restore rehydrates a session from an existing refresh cookie at startup.
// It is a refresh, not a login: no guest-state reconciliation follows it.
// With no valid cookie present it returns the coordinator's error and the
// client simply stays anonymous.
func (s *AuthService) Restore(ctx context.Context) (*domain.User, error) {
	if s.store.Authenticated() {
		return s.store.Current().User, nil
	}

	if _, err := s.coord.Refresh(ctx, ""); err != nil {
		return nil, err
	}
	return s.store.Current().User, nil
}

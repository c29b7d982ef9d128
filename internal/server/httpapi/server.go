// Package httpapi exposes the identity and access-control operations over
// HTTP: credential endpoints, API-key management, and the caregiver
// invitation lifecycle.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/carecircle/carecircle/internal/logging"
	"github.com/carecircle/carecircle/internal/server/models"
	"github.com/carecircle/carecircle/internal/server/services"
)

const shutdownTimeout = 30 * time.Second

// CredentialService is the credential surface the HTTP layer depends on.
type CredentialService interface {
	Register(ctx context.Context, email, password, name string) (*models.Caregiver, *services.TokenPair, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	ChangePassword(ctx context.Context, caregiverID, oldPassword, newPassword string) error
	UpdateProfile(ctx context.Context, caregiverID, name string) (*models.Caregiver, error)
}

// APIKeyService is the API-key surface the HTTP layer depends on.
type APIKeyService interface {
	Create(ctx context.Context, ownerID, name string, expiresAt *time.Time) (*models.APIKey, error)
	List(ctx context.Context, ownerID string) ([]services.APIKeySummary, error)
	Revoke(ctx context.Context, ownerID, keyID string) error
	Validate(ctx context.Context, secret string) (*models.Caregiver, error)
}

// InvitationService is the invitation surface the HTTP layer depends on.
type InvitationService interface {
	Create(ctx context.Context, inviterID, babyID, inviteeEmail string) (*models.Invitation, error)
	Validate(ctx context.Context, token string) (*services.ValidationResult, error)
	Accept(ctx context.Context, callerID, token string) (*models.Invitation, error)
	Revoke(ctx context.Context, callerID, invitationID string) error
	ListPendingForEmail(ctx context.Context, email string) ([]*models.Invitation, error)
	ListForBaby(ctx context.Context, callerID, babyID string) ([]*models.Invitation, error)
}

// Server owns the chi router and the HTTP listener.
type Server struct {
	addr         string
	router       chi.Router
	credentials  CredentialService
	apiKeys      APIKeyService
	invitations  InvitationService
	accessSecret []byte
	log          logging.Logger
	httpServer   *http.Server
}

// New wires up routes and middleware and returns a Server ready to run.
func New(addr string, credentials CredentialService, apiKeys APIKeyService, invitations InvitationService, accessSecret []byte, log logging.Logger) *Server {
	s := &Server{
		addr:         addr,
		credentials:  credentials,
		apiKeys:      apiKeys,
		invitations:  invitations,
		accessSecret: accessSecret,
		log:          log,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(requestLogger(s.log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		// Public endpoints.
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Get("/invitations/validate", s.handleValidateInvitation)

		// Everything else requires an authenticated caregiver.
		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Put("/me", s.handleUpdateProfile)
			r.Post("/me/password", s.handleChangePassword)

			r.Get("/keys", s.handleListAPIKeys)
			r.Post("/keys", s.handleCreateAPIKey)
			r.Delete("/keys/{keyID}", s.handleRevokeAPIKey)

			r.Post("/babies/{babyID}/invitations", s.handleCreateInvitation)
			r.Get("/babies/{babyID}/invitations", s.handleListInvitations)

			r.Post("/invitations/accept", s.handleAcceptInvitation)
			r.Delete("/invitations/{invitationID}", s.handleRevokeInvitation)
			r.Get("/invitations/pending", s.handleListPendingInvitations)
		})
	})

	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Run starts the listener and blocks until ctx is cancelled, then drains
// in-flight requests before returning.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "http server starting", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.log.Info(ctx, "shutdown requested, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.log.Info(context.Background(), "http server stopped")
	return nil
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

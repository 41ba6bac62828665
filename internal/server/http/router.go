// Package http exposes the verification flow over a JSON HTTP API.
package http

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storefeedback/qrverify/internal/logging"
	"github.com/storefeedback/qrverify/internal/server/models"
	"github.com/storefeedback/qrverify/internal/server/services"
)

// Verifier is the part of the coordinator the handlers call.
type Verifier interface {
	HandleScan(ctx context.Context, req services.ScanRequest) (*services.ScanResult, error)
	HandleSubmission(ctx context.Context, token string, sub services.Submission, expected *services.ExpectedTransaction, client services.ClientInfo) (*services.SubmissionResult, error)
	SessionDetails(ctx context.Context, token string) (*services.SessionDetails, error)
	GetVerification(ctx context.Context, id string) (*models.Verification, error)
}

// Sweeper runs one expiry sweep on demand.
type Sweeper interface {
	CleanupExpiredSessions(ctx context.Context) (int64, error)
}

// Handler binds the HTTP routes to the verification services.
type Handler struct {
	verifier       Verifier
	sweeper        Sweeper
	secretKey      []byte
	trustedProxies []netip.Prefix
	log            logging.Logger
}

// NewHandler builds the handler set. Requests from trustedProxies may name the
// client through X-Forwarded-For and the scan body; everyone else is taken at
// their socket address.
func NewHandler(verifier Verifier, sweeper Sweeper, secretKey []byte, trustedProxies []netip.Prefix, log logging.Logger) *Handler {
	return &Handler{
		verifier:       verifier,
		sweeper:        sweeper,
		secretKey:      secretKey,
		trustedProxies: trustedProxies,
		log:            log.With("module", "http"),
	}
}

// NewRouter registers the public and operator routes with the middleware stack.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Post("/qr/verify/{storeId}", h.scan)
	r.Route("/verification", func(r chi.Router) {
		r.Post("/submit", h.submit)
		r.Get("/session/{sessionToken}", h.session)
		r.Get("/status/{verificationId}", h.status)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.operatorMiddleware)
		r.Post("/sessions/cleanup", h.cleanup)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

// NewServer wraps the router in an http.Server with conservative timeouts.
func NewServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

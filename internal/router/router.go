package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/account"
	"github.com/ovaphlow/pitchfork/service-account/internal/auth"
)

const basePath = "/pitchfork-api-account"

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeaders holds the header values that differ per deployment.
type SecurityHeaders struct {
	// ContentSecurityPolicy is left untouched when a handler already set one.
	ContentSecurityPolicy string
	// HSTSMaxAge is sent on TLS requests only; zero disables the header.
	HSTSMaxAge time.Duration
}

// DefaultSecurityHeaders suits a JSON API that serves no documents.
func DefaultSecurityHeaders() SecurityHeaders {
	return SecurityHeaders{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:            30 * 24 * time.Hour,
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware(cfg SecurityHeaders) func(http.Handler) http.Handler {
	var hsts string
	if cfg.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(cfg.HSTSMaxAge/time.Second), 10) + "; includeSubDomains"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			if cfg.ContentSecurityPolicy != "" && h.Get("Content-Security-Policy") == "" {
				h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
			}
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin rejects requests without a valid admin bearer token.
func RequireAdmin(verifier *auth.AdminVerifier, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := auth.BearerToken(r)
			if err != nil {
				http.Error(w, "missing_token", http.StatusUnauthorized)
				return
			}
			claims, err := verifier.Verify(tok)
			if err != nil {
				logger.Debugw("admin token rejected", "err", err)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			logger.Infow("admin request", "sub", claims.Subject, "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes mounts the account endpoints on a chi router.
func RegisterRoutes(logger *zap.SugaredLogger, accounts *account.Handler, verifier *auth.AdminVerifier, headers SecurityHeaders) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(logger))
	r.Use(SecurityHeadersMiddleware(headers))

	r.Route(basePath, func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})

		r.Post("/accounts", accounts.Register)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(verifier, logger))
			r.Post("/approval-digest", accounts.ApprovalDigest)
			r.Get("/accounts/{id}", accounts.Get)
			r.Post("/accounts/{id}/approve", accounts.Approve)
			r.Post("/accounts/{id}/reset-password", accounts.ResetPassword)
		})
	})
	return r
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"searchsync/internal/auth"
	"searchsync/internal/handlers/indices"
	"searchsync/internal/idempotency"
	"searchsync/internal/json"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// healthCheck reports one dependency's status.
type healthCheck func(ctx context.Context) error

// adminGuard configures access to the admin routes.
type adminGuard struct {
	// authenticate is nil when the API runs without authentication.
	authenticate   func(http.Handler) http.Handler
	allowedOrigins []string
}

// mount builds the admin router.
func mount(svc indices.IndexService, store idempotency.Store, checks map[string]healthCheck, guard adminGuard) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(guard.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: guard.allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotency.Header},
			MaxAge:         300,
		}))
	}

	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", healthHandler(checks))

	r.Group(func(r chi.Router) {
		if guard.authenticate != nil {
			r.Use(guard.authenticate)
		}
		r.Use(idempotency.Middleware(store))
		indices.NewIndicesHandler(svc).Routes(r)
	})

	return r
}

// healthHandler provides a simple /healthz endpoint
func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.WarnContext(ctx, "Health check failed", "dependency", name, "error", err)
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			json.Write(w, http.StatusServiceUnavailable, status)
			return
		}
		json.Write(w, http.StatusOK, status)
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	// Create a deadline to wait for active requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (app *application) healthChecks() map[string]healthCheck {
	checks := map[string]healthCheck{
		"database": app.conn.Ping,
	}
	if app.cache != nil {
		checks["redis"] = app.cache.Ping
	}
	if app.eventBus != nil {
		checks["nats"] = func(context.Context) error {
			if !app.eventBus.Connected() {
				return errors.New("disconnected")
			}
			return nil
		}
	}
	return checks
}

func (app *application) idempotencyStore() idempotency.Store {
	if app.cache == nil {
		app.logger.Warn("No Redis configured, idempotency keys are kept in memory")
		return idempotency.NewInMemoryStore()
	}
	return idempotency.NewRedisStore(app.cache, idempotency.DefaultDataTTL)
}

func (app *application) adminGuard(ctx context.Context) (adminGuard, error) {
	guard := adminGuard{allowedOrigins: app.config.Admin.AllowedOrigins}

	if app.config.Admin.IssuerURL == "" {
		app.logger.Warn("No authorization issuer configured, admin API is unauthenticated")
		return guard, nil
	}

	app.logger.Info("Connecting to authorization service", "url", app.config.Admin.IssuerURL)
	authenticator, err := auth.NewAuthenticator(ctx, app.config.Admin.IssuerURL, app.config.Admin.ClientID, app.config.Admin.Role)
	if err != nil {
		return guard, err
	}
	guard.authenticate = authenticator.Middleware
	return guard, nil
}

func (app *application) runAPI(ctx context.Context) error {
	guard, err := app.adminGuard(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         app.config.AdminAddr,
		Handler:      mount(app.service, app.idempotencyStore(), app.healthChecks(), guard),
		WriteTimeout: time.Second * 60,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute * 1,
	}
	return serve(ctx, srv, app.logger)
}

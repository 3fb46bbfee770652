// Package idempotency replays the recorded response of an admin request
// retried with the same Idempotency-Key, so a retried reindex does not
// schedule its batches twice.
package idempotency

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"time"

	apperrors "searchsync/internal/errors"
)

const Header = "Idempotency-Key"

var ignoredHeaders = map[string]bool{
	"Date":           true,
	"Content-Length": true,
	"Connection":     true,
}

func Middleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			header := r.Header.Get(Header)
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			// Keys are scoped to the route they were sent to.
			key := r.Method + " " + r.URL.Path + " " + header

			acquired, err := store.Lock(ctx, key)
			if err != nil {
				apperrors.RespondError(w, r, apperrors.New(apperrors.ErrInternal, "Idempotency store unavailable", err))
				return
			}

			if !acquired {
				cached, found, err := store.GetResponse(ctx, key)
				if err != nil {
					apperrors.RespondError(w, r, apperrors.New(apperrors.ErrInternal, "Idempotency store unavailable", err))
					return
				}

				if found && cached != nil {
					for k, v := range cached.Headers {
						if ignoredHeaders[k] {
							continue
						}
						for _, val := range v {
							w.Header().Add(k, val)
						}
					}
					w.Header().Set("X-Idempotency-Hit", "true")
					w.WriteHeader(cached.StatusCode)
					w.Write(cached.Body)
					return
				}

				// Locked without a response: the first request is still running.
				w.Header().Set("Retry-After", "1")
				apperrors.RespondError(w, r, apperrors.New(apperrors.ErrConflict, "Request is currently being processed", nil))
				return
			}

			recorder := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(recorder, r)

			// The request outlives the client here, so use a detached context.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()

			// Server errors release the key so the client can retry.
			if recorder.statusCode >= http.StatusInternalServerError {
				slog.WarnContext(ctx, "Server error, releasing idempotency key", "key", key, "status", recorder.statusCode)
				_ = store.Delete(saveCtx, key)
				return
			}

			headers := make(http.Header)
			for k, v := range recorder.Header() {
				if !ignoredHeaders[k] {
					headers[k] = v
				}
			}
			resp := Response{StatusCode: recorder.statusCode, Headers: headers, Body: recorder.body.Bytes()}
			if err := store.SaveResponse(saveCtx, key, resp); err != nil {
				slog.ErrorContext(ctx, "Failed to save idempotency response", "key", key, "error", err)
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Package server exposes a built catalog over HTTP for browsing: the
// collection documents, their item documents and service metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/stacforge/internal/observability"
	"github.com/example/stacforge/internal/store"
)

// Handler builds the router over one catalog store.
func Handler(logger *slog.Logger, cat *store.Catalog) http.Handler {
	r := chi.NewRouter()
	r.Use(recoverer(logger))
	r.Use(timing)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/collections", listCollections(logger, cat))
	r.Get("/collections/{id}", getCollection(logger, cat))
	r.Get("/documents/*", getDocument(logger, cat))
	return r
}

// Run serves the catalog until the context is cancelled.
func Run(ctx context.Context, addr string, logger *slog.Logger, cat *store.Catalog) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(logger, cat),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func listCollections(logger *slog.Logger, cat *store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := cat.ListCollections(r.Context())
		if err != nil {
			logger.Error("list collections", "err", err.Error())
			http.Error(w, "list collections failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"collections":[`))
		for i, key := range keys {
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			doc, err := cat.ReadDocument(r.Context(), key)
			if err != nil {
				logger.Warn("unreadable collection document", "key", key, "err", err.Error())
				continue
			}
			_, _ = w.Write(doc)
		}
		_, _ = w.Write([]byte(`]}`))
	}
}

func getCollection(logger *slog.Logger, cat *store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Grouped builds store each sub-collection under its own
		// prefix; a single build stores one document at the root.
		doc, err := cat.ReadDocument(r.Context(), id+"/"+store.CollectionKey)
		if err != nil {
			doc, err = cat.ReadDocument(r.Context(), store.CollectionKey)
		}
		if err != nil {
			http.Error(w, "collection not found", http.StatusNotFound)
			return
		}
		col, perr := store.DecodeCollection(doc)
		if perr != nil || col.ID != id {
			http.Error(w, "collection not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}
}

func getDocument(logger *slog.Logger, cat *store.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "*")
		if key == "" || strings.Contains(key, "..") {
			http.Error(w, "bad document key", http.StatusBadRequest)
			return
		}
		doc, err := cat.ReadDocument(r.Context(), key)
		if err != nil {
			http.Error(w, "document not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}
}

func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic in handler", "path", r.URL.Path, "panic", rec)
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)
		observability.ObserveHTTP(r.Method, routePattern(r), sw.code, time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

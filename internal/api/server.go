package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"pricefeed/internal/metrics"
	"pricefeed/internal/oracle"
	"pricefeed/internal/storage"
)

// FeedReader is the read side of the feed store.
type FeedReader interface {
	LoadPrice(ctx context.Context, symbol string) (storage.PriceRecord, error)
	LoadHistory(ctx context.Context, symbol string) (oracle.History, error)
}

// Server exposes stored feed values over HTTP.
type Server struct {
	feed    FeedReader
	symbols map[string]struct{}
	logger  zerolog.Logger
}

// NewServer serves the given symbols only.
func NewServer(feed FeedReader, symbols []string, logger zerolog.Logger) *Server {
	set := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		set[strings.ToLower(s)] = struct{}{}
	}
	return &Server{
		feed:    feed,
		symbols: set,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.instrument("healthz", s.handleHealth))
	r.Handle("/metrics", metrics.Handler())
	r.Route("/prices/{symbol}", func(r chi.Router) {
		r.Get("/", s.instrument("price", s.handlePrice))
		r.Get("/normalized", s.instrument("normalized", s.handleNormalized))
		r.Get("/record", s.instrument("record", s.handleRecord))
		r.Get("/history", s.instrument("history", s.handleHistory))
	})
	return r
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("listen", addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.RecordHTTPRequest(route, strconv.Itoa(rec.status))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePrice writes the bare float, the format consumers of the original feed read.
func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	writeText(w, strconv.FormatFloat(rec.PriceFloat, 'g', -1, 64))
}

func (s *Server) handleNormalized(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	writeText(w, rec.PriceNormalized)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol, ok := s.symbol(w, r)
	if !ok {
		return
	}
	history, err := s.feed.LoadHistory(r.Context(), symbol)
	if err != nil {
		s.logger.Error().Err(err).Str("token", symbol).Msg("load history")
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) symbol(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol := strings.ToLower(chi.URLParam(r, "symbol"))
	if _, ok := s.symbols[symbol]; !ok {
		writeError(w, http.StatusNotFound, "unknown token")
		return "", false
	}
	return symbol, true
}

func (s *Server) loadRecord(w http.ResponseWriter, r *http.Request) (storage.PriceRecord, bool) {
	symbol, ok := s.symbol(w, r)
	if !ok {
		return storage.PriceRecord{}, false
	}
	rec, err := s.feed.LoadPrice(r.Context(), symbol)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no price recorded yet")
		return storage.PriceRecord{}, false
	}
	if err != nil {
		s.logger.Error().Err(err).Str("token", symbol).Msg("load price")
		writeError(w, http.StatusInternalServerError, "price unavailable")
		return storage.PriceRecord{}, false
	}
	return rec, true
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Package web serves the monitoring endpoints: Prometheus metrics, the
// current rate snapshot and SSE streams over the journal.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/storage/journal"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
)

type journalReader interface {
	RateUpdatesAfter(index uint64) ([]journal.Record[journal.RateUpdate], error)
	TradesAfter(index uint64) ([]journal.Record[journal.Trade], error)
}

type ratesReader interface {
	GetRates() domain.RateSnapshot
	IsStale() bool
}

// Server exposes HTTP endpoints for monitoring a running shell.
type Server struct {
	Addr     string
	Gatherer prometheus.Gatherer
	Journal  journalReader
	Rates    ratesReader
	Logger   *zap.Logger

	pollInterval time.Duration
}

// NewServer creates a new web server instance. Nil dependencies disable
// their endpoints with 503.
func NewServer(addr string, gatherer prometheus.Gatherer, j journalReader, rates ratesReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Addr:         addr,
		Gatherer:     gatherer,
		Journal:      j,
		Rates:        rates,
		Logger:       logger,
		pollInterval: journalPollInterval,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/rates", s.handleRates)
	mux.HandleFunc("/journal/rates/stream", s.handleRateUpdateStream)
	mux.HandleFunc("/journal/trades/stream", s.handleTradeStream)
	return mux
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.Logger.Info("web server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type ratePayload struct {
	Pair      string    `json:"pair"`
	Rate      string    `json:"rate"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ratesPayload struct {
	LastRefresh *time.Time    `json:"last_refresh"`
	Stale       bool          `json:"stale"`
	Pairs       []ratePayload `json:"pairs"`
}

func (s *Server) handleRates(w http.ResponseWriter, _ *http.Request) {
	if s.Rates == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "rates not available")
		return
	}

	snap := s.Rates.GetRates()
	out := ratesPayload{Stale: s.Rates.IsStale(), Pairs: make([]ratePayload, 0, len(snap.Pairs))}
	if !snap.LastRefresh.IsZero() {
		at := snap.LastRefresh
		out.LastRefresh = &at
	}
	for pair, rec := range snap.Pairs {
		out.Pairs = append(out.Pairs, ratePayload{
			Pair:      pair.String(),
			Rate:      rec.Rate.String(),
			Source:    rec.Source,
			UpdatedAt: rec.FetchedAt,
		})
	}
	sort.Slice(out.Pairs, func(i, j int) bool { return out.Pairs[i].Pair < out.Pairs[j].Pair })

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.Logger.Warn("encode rates", zap.Error(err))
	}
}

func (s *Server) handleRateUpdateStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "journal not available")
		return
	}
	stream(s, w, r, "rates", s.Journal.RateUpdatesAfter)
}

func (s *Server) handleTradeStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "journal not available")
		return
	}
	stream(s, w, r, "trade", s.Journal.TradesAfter)
}

// stream replays journal entries of one kind and then polls for new ones
// until the client disconnects.
func stream[T any](s *Server, w http.ResponseWriter, r *http.Request, event string, after func(uint64) ([]journal.Record[T], error)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastIndex := uint64(0)
	send := func() error {
		records, err := after(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Entry)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: %s\n", event)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			lastIndex = record.Index
		}
		flusher.Flush()
		return nil
	}

	// headers must be set before the first write
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if err := send(); err != nil {
		http.Error(w, "failed to load journal", http.StatusInternalServerError)
		s.Logger.Error("journal stream initial load", zap.String("event", event), zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	poll := time.NewTicker(s.pollInterval)
	defer poll.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-poll.C:
			if err := send(); err != nil {
				s.Logger.Warn("journal stream poll", zap.String("event", event), zap.Error(err))
			}
		}
	}
}

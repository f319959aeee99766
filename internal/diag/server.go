// Package diag serves the optional diagnostics listener: Prometheus
// metrics, a health probe and the channel list currently presented.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
	"github.com/olivier-w/csvtv/internal/source"
)

const shutdownTimeout = 5 * time.Second

// Snapshot returns the latest channel list and whether one has loaded.
type Snapshot func() (source.Result, bool)

// Server is the diagnostics HTTP server.
type Server struct {
	addr     string
	snapshot Snapshot
	started  time.Time
	logger   zerolog.Logger
}

// New creates a server listening on addr.
func New(addr string, snapshot Snapshot) *Server {
	return &Server{
		addr:     addr,
		snapshot: snapshot,
		started:  time.Now(),
		logger:   log.WithComponent("diag"),
	}
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	router.HandleFunc("/channels", s.handleChannels).Methods("GET")
	router.HandleFunc("/channels/{group}", s.handleGroup).Methods("GET")
	return router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("diagnostics listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Loaded   bool   `json:"loaded"`
	Level    string `json:"level,omitempty"`
	Channels int    `json:"channels"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res, ok := s.snapshot()
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Loaded: ok,
	}
	if ok {
		resp.Level = res.Level.String()
		resp.Channels = len(res.Channels)
	}
	writeJSON(w, http.StatusOK, resp)
}

type channelResponse struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

type rowResponse struct {
	Group    string            `json:"group"`
	Channels []channelResponse `json:"channels"`
}

type listResponse struct {
	Locator string        `json:"locator,omitempty"`
	Level   string        `json:"level"`
	Error   string        `json:"error,omitempty"`
	Rows    []rowResponse `json:"rows"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	res, ok := s.snapshot()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "channel list not loaded yet"})
		return
	}
	resp := listResponse{
		Locator: log.SafeURL(res.Locator),
		Level:   res.Level.String(),
		Rows:    make([]rowResponse, 0, len(res.Rows)),
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	for _, row := range res.Rows {
		if row.IsSettings() {
			continue
		}
		resp.Rows = append(resp.Rows, toRow(row))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]
	res, ok := s.snapshot()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "channel list not loaded yet"})
		return
	}
	for _, row := range res.Rows {
		if !row.IsSettings() && strings.EqualFold(row.Header, group) {
			writeJSON(w, http.StatusOK, toRow(row))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such group: " + group})
}

func toRow(row source.Row) rowResponse {
	out := rowResponse{Group: row.Header, Channels: make([]channelResponse, 0, len(row.Channels))}
	for _, c := range row.Channels {
		if source.IsPlaceholder(c) {
			continue
		}
		out.Channels = append(out.Channels, channelResponse{
			Title:        c.Title,
			URL:          log.SafeURL(c.URL),
			ThumbnailURL: c.ThumbnailURL,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

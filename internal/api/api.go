// Package api provides the HTTP server for MoodPipe.
//
// It accepts activities over JSON, receives Twilio webhooks and exposes
// read-only views of stored state and transcripts.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MoodPipe/internal/messaging"
	"github.com/BTreeMap/MoodPipe/internal/store"
)

// Server timeouts and limits.
const (
	DefaultAddr         = ":8080"
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 30 * time.Second
	ShutdownTimeout     = 10 * time.Second
	// MaxRequestBodyBytes bounds activity payloads.
	MaxRequestBodyBytes = 64 << 10
	// HTTPChannelID is stamped on activities that arrive without a channel.
	HTTPChannelID = "http"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr   string
	Twilio *messaging.TwilioService
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTwilio mounts the Twilio webhook handler at /webhook/twilio.
func WithTwilio(svc *messaging.TwilioService) Option {
	return func(o *Opts) { o.Twilio = svc }
}

// Server serves the MoodPipe HTTP API.
type Server struct {
	handler messaging.TurnHandler
	st      store.Store
	twilio  *messaging.TwilioService
	addr    string
}

// NewServer creates a Server that runs turns through handler and reads from st.
func NewServer(handler messaging.TurnHandler, st store.Store, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{handler: handler, st: st, twilio: cfg.Twilio, addr: cfg.Addr}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/messages", s.messagesHandler)
	mux.HandleFunc("/state", s.stateHandler)
	mux.HandleFunc("/transcript", s.transcriptHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	if s.twilio != nil {
		mux.HandleFunc("/webhook/twilio", s.twilioHandler)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: MoodPipe API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Server.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown failed: %w", err)
		}
		return nil
	}
}

func (s *Server) twilioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.twilio.TwilioWebhookHandler(w, r)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Package server exposes the audio engine as an HTTP JSON API: record
// generation and lifecycle, provider validation and listing, runtime
// configuration, and the unauthenticated player surface.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AudioPress/audiopress/config"
	"github.com/AudioPress/audiopress/engine"
	"github.com/AudioPress/audiopress/player"
	"github.com/AudioPress/audiopress/profiles"
	"github.com/AudioPress/audiopress/records"
	"github.com/AudioPress/audiopress/tts"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultReadTimeout is the max duration for reading the entire request.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the max duration before timing out writes.
	defaultWriteTimeout = 60 * time.Second

	// defaultIdleTimeout is the max time to wait for the next request
	// when keep-alives are enabled.
	defaultIdleTimeout = 120 * time.Second

	// defaultMaxBodySize limits request body size to 10 MB. Generate
	// requests may carry inline episode artwork.
	defaultMaxBodySize = 10 << 20

	// defaultAddr is the listen address when none is configured.
	defaultAddr = ":8080"
)

// requestIDHeader carries the per-request correlation ID.
const requestIDHeader = "X-Request-Id"

// Option configures the server.
type Option func(*Server)

// WithAddr sets the listen address. Default: ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithAuthenticator sets an authenticator for API requests. Health,
// player and metrics endpoints stay open.
func WithAuthenticator(auth Authenticator) Option {
	return func(s *Server) { s.authenticator = auth }
}

// WithReadTimeout sets the maximum duration for reading the entire
// request, including the body. Default: 30s.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout sets the maximum duration before timing out
// writes of the response. Default: 60s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// WithIdleTimeout sets the maximum amount of time to wait for the next
// request when keep-alives are enabled. Default: 120s.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) { s.idleTimeout = d }
}

// WithMaxBodySize sets the maximum allowed request body size in bytes.
// Default: 10 MB.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) { s.maxBodySize = n }
}

// WithProfiles makes named voice profiles available to generate
// requests and the profile endpoints.
func WithProfiles(registry *profiles.Registry) Option {
	return func(s *Server) { s.profiles = registry }
}

// Server is the HTTP front end for the audio engine.
type Server struct {
	engine        *engine.Engine
	store         records.Store
	providers     *tts.Registry
	config        *config.Manager
	profiles      *profiles.Registry
	authenticator Authenticator

	addr      string
	httpSrv   *http.Server
	httpSrvMu sync.Mutex

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration
	maxBodySize  int64
}

// NewServer creates an HTTP server around the engine. The records store
// and provider registry serve the read endpoints directly; the config
// manager backs the config endpoints and player settings.
func NewServer(
	eng *engine.Engine,
	store records.Store,
	providers *tts.Registry,
	cfg *config.Manager,
	opts ...Option,
) (*Server, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if store == nil {
		return nil, errors.New("records store is required")
	}
	if providers == nil {
		return nil, errors.New("provider registry is required")
	}
	if cfg == nil {
		return nil, errors.New("config manager is required")
	}

	s := &Server{
		engine:       eng,
		store:        store,
		providers:    providers,
		config:       cfg,
		addr:         defaultAddr,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		idleTimeout:  defaultIdleTimeout,
		maxBodySize:  defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns an http.Handler for the full API surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("POST /v1/tts/generate", s.authed(s.handleGenerate))
	mux.HandleFunc("POST /v1/tts/validate-provider", s.authed(s.handleValidateProvider))
	mux.HandleFunc("GET /v1/tts/{content_id}", s.authed(s.handleGetRecord))
	mux.HandleFunc("PUT /v1/tts/{content_id}", s.authed(s.handleUpdateRecord))
	mux.HandleFunc("DELETE /v1/tts/{content_id}/audio", s.authed(s.handleDeleteAudio))

	mux.HandleFunc("GET /v1/providers", s.authed(s.handleListProviders))
	mux.HandleFunc("GET /v1/providers/{name}/voices", s.authed(s.handleProviderVoices))

	mux.HandleFunc("GET /v1/profiles", s.authed(s.handleListProfiles))
	mux.HandleFunc("GET /v1/profiles/{name}", s.authed(s.handleGetProfile))

	mux.HandleFunc("GET /v1/config", s.authed(s.handleGetConfig))
	mux.HandleFunc("PUT /v1/config", s.authed(s.handleSetConfig))

	// The player surface is embedded in public pages and ships no
	// credentials, so it stays unauthenticated.
	mux.HandleFunc("GET /v1/player/{content_id}/config", s.handlePlayerConfig)
	mux.HandleFunc("GET /v1/player/{content_id}/embed", s.handlePlayerEmbed)
	mux.HandleFunc("POST /v1/player/{content_id}/played", s.handlePlayerPlayed)

	return otelhttp.NewHandler(s.withRequestID(s.withRecovery(mux)), "audiopress-server")
}

// ListenAndServe starts the HTTP server on the configured address.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
	}

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.Serve(ln)
}

// Shutdown gracefully shuts down the server, draining in-flight
// requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// playerSettings reads the current player settings from config, so
// config updates take effect without a restart.
func (s *Server) playerSettings() player.Settings {
	defaults := player.DefaultSettings()
	return player.Settings{
		Theme:        s.config.GetString("player.theme", defaults.Theme),
		Autoplay:     s.config.GetBool("player.autoplay", defaults.Autoplay),
		Preload:      s.config.GetString("player.preload", defaults.Preload),
		ShowDownload: s.config.GetBool("player.show_download", defaults.ShowDownload),
	}
}

// decodeJSON reads a size-limited JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"evidencevault/internal/evidence"
)

const (
	// Without EVV_API_TOKEN the actor headers are trusted as sent. Actor
	// defaults never grant ADMIN; see actor.go.
	apiTokenEnvKey    = "EVV_API_TOKEN"
	adminTokenEnvKey  = "EVV_ADMIN_TOKEN"
	allowRemoteEnvKey = "EVV_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 15 * time.Second

	defaultUploadMaxBody     = 512 << 20 // 512 MiB
	defaultMultipartMemory   = 8 << 20   // 8 MiB
	uploadConcurrencyLimit   = 4
	downloadConcurrencyLimit = 16
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes transport limits.
type Options struct {
	MaxUploadBytes     int64
	MultipartMaxMemory int64
	UploadLimit        int
	DownloadLimit      int
}

// Server exposes the evidence service over HTTP.
type Server struct {
	addr            string
	service         *evidence.Service
	health          Pinger
	logger          *slog.Logger
	apiToken        string
	adminToken      string
	maxUploadBytes  int64
	multipartMemory int64
	uploadLimiter   chan struct{}
	downloadLimiter chan struct{}
}

// New creates a new server instance.
func New(addr string, service *evidence.Service, health Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:       addr,
		service:    service,
		health:     health,
		logger:     logger,
		apiToken:   strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
	s.Configure(Options{})
	return s
}

// Configure applies transport limits. Zero values keep the defaults.
func (s *Server) Configure(opts Options) {
	s.maxUploadBytes = opts.MaxUploadBytes
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultUploadMaxBody
	}
	s.multipartMemory = opts.MultipartMaxMemory
	if s.multipartMemory <= 0 {
		s.multipartMemory = defaultMultipartMemory
	}
	uploads := opts.UploadLimit
	if uploads <= 0 {
		uploads = uploadConcurrencyLimit
	}
	downloads := opts.DownloadLimit
	if downloads <= 0 {
		downloads = downloadConcurrencyLimit
	}
	s.uploadLimiter = make(chan struct{}, uploads)
	s.downloadLimiter = make(chan struct{}, downloads)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

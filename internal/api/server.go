package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/datasetcutter/datasetcutter/internal/dataset"
	"github.com/datasetcutter/datasetcutter/internal/library"
	"github.com/datasetcutter/datasetcutter/internal/settings"
)

// ErrNoFreePort is returned when every port in the scan window is taken.
var ErrNoFreePort = errors.New("no free port available")

type DatasetService interface {
	ExportClip(ctx context.Context, req dataset.ClipRequest) (*dataset.Export, error)
	Undo(ctx context.Context) (*dataset.UndoResult, error)
	History(ctx context.Context, n int) ([]*dataset.UndoEntry, error)
	Labels(ctx context.Context) ([]string, error)
	LabelStats(ctx context.Context, threshold int) (*dataset.Report, error)
}

type VideoLibrary interface {
	Save(ctx context.Context, name string, r io.Reader) (*library.StoredVideo, error)
	List() ([]string, error)
}

type SettingsStore interface {
	Get() settings.Settings
	Update(p settings.Patch) (settings.Settings, error)
}

type VideoServer interface {
	ServeVideo(w http.ResponseWriter, r *http.Request, name string)
}

type ServerConfig struct {
	Host     string
	Port     int
	PortScan int

	Dataset  DatasetService
	Library  VideoLibrary
	Settings SettingsStore
	Videos   VideoServer

	LabelThreshold int
	MaxUploadBytes int64
	// OnQuit runs after /api/quit has answered.
	OnQuit func()
	Logger *slog.Logger
}

type Server struct {
	httpServer *http.Server
	listener   net.Listener
	cfg        ServerConfig
	logger     *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.PortScan <= 0 {
		cfg.PortScan = 1
	}
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Handler: router,
			// Uploads and video streams are long-lived, so only the
			// header read is bounded.
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Listen binds the first free port in [Port, Port+PortScan).
func (s *Server) Listen() error {
	ln, err := ListenFree(s.cfg.Host, s.cfg.Port, s.cfg.PortScan)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer.Addr = ln.Addr().String()
	return nil
}

// Start serves until Shutdown. Listen is called first if needed.
func (s *Server) Start() error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.Serve(s.listener)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// URL is the address the browser should open.
func (s *Server) URL() string {
	return "http://" + s.httpServer.Addr
}

// ListenFree tries each port in [port, port+attempts) on host.
func ListenFree(host string, port, attempts int) (net.Listener, error) {
	var lastErr error
	for p := port; p < port+attempts; p++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			return ln, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w in %d-%d: %v", ErrNoFreePort, port, port+attempts-1, lastErr)
}

// WaitReady polls /api/ping until the server answers or ctx ends.
func WaitReady(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: time.Second}
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/ping", nil)
		if err != nil {
			return err
		}
		if resp, err := client.Do(req); err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Package config provides configuration management for Dataset Cutter.
// Configuration is loaded from environment variables with sensible defaults;
// command-line flags may override individual values afterwards.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// Default values
	DefaultPort           = 8000
	DefaultPortScan       = 20
	DefaultLogLevel       = "info"
	DefaultBaseDir        = "DatasetCutter"
	DefaultUndoDepth      = 20
	DefaultLabelThreshold = 50

	// Environment variable names
	EnvPort           = "DATASETCUTTER_PORT"
	EnvPortLegacy     = "PORT"
	EnvLogLevel       = "DATASETCUTTER_LOG_LEVEL"
	EnvBaseDir        = "DATASETCUTTER_BASE_DIR"
	EnvFFmpegBinary   = "FFMPEG_BINARY"
	EnvHeadless       = "DATASETCUTTER_HEADLESS"
	EnvNoBrowser      = "DATASETCUTTER_NO_BROWSER"
	EnvUndoDepth      = "DATASETCUTTER_UNDO_DEPTH"
	EnvLabelThreshold = "DATASETCUTTER_LABEL_THRESHOLD"

	DBFilename       = "datasetcutter.db"
	SettingsFilename = "settings.toml"
	LogFilename      = "server.log"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	BaseDir() string
	DataDir() string
	VideosDir() string
	TrashDir() string
	DBPath() string
	SettingsPath() string
	LogPath() string
	DefaultDatasetRoot() string
	UserBinDir() string
	FFmpegBinary() string
	Headless() bool
	NoBrowser() bool
	UndoDepth() int
	LabelThreshold() int
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port           int
	logLevel       string
	baseDir        string
	ffmpegBinary   string
	headless       bool
	noBrowser      bool
	undoDepth      int
	labelThreshold int
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		baseDir:        defaultBaseDir(),
		undoDepth:      DefaultUndoDepth,
		labelThreshold: DefaultLabelThreshold,
	}

	// DATASETCUTTER_PORT wins over the bare PORT variable
	for _, name := range []string{EnvPortLegacy, EnvPort} {
		p := os.Getenv(name)
		if p == "" {
			continue
		}
		port, err := ParsePort(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, err)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if bd := os.Getenv(EnvBaseDir); bd != "" {
		cfg.baseDir = bd
	}

	cfg.ffmpegBinary = os.Getenv(EnvFFmpegBinary)
	cfg.headless = envBool(EnvHeadless)
	cfg.noBrowser = envBool(EnvNoBrowser)

	if v := os.Getenv(EnvUndoDepth); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvUndoDepth)
		}
		cfg.undoDepth = n
	}

	if v := os.Getenv(EnvLabelThreshold); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid %s: must be a non-negative integer", EnvLabelThreshold)
		}
		cfg.labelThreshold = n
	}

	return cfg, nil
}

// ParsePort validates a TCP port string.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port must be between 1 and 65535")
	}
	return port, nil
}

// SetPort overrides the configured port (used by --port).
func (c *EnvConfig) SetPort(port int) {
	c.port = port
}

// SetHeadless overrides tray usage (used by --headless).
func (c *EnvConfig) SetHeadless(v bool) {
	c.headless = v
}

// SetNoBrowser overrides browser launch (used by --no-browser).
func (c *EnvConfig) SetNoBrowser(v bool) {
	c.noBrowser = v
}

// Port returns the first port tried when binding the HTTP server
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// BaseDir returns the user-writable root for all app state
func (c *EnvConfig) BaseDir() string {
	return c.baseDir
}

func (c *EnvConfig) DataDir() string {
	return filepath.Join(c.baseDir, "data")
}

// VideosDir holds uploaded source videos
func (c *EnvConfig) VideosDir() string {
	return filepath.Join(c.DataDir(), "videos")
}

// TrashDir receives clips removed by undo
func (c *EnvConfig) TrashDir() string {
	return filepath.Join(c.DataDir(), "trash")
}

func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.DataDir(), DBFilename)
}

func (c *EnvConfig) SettingsPath() string {
	return filepath.Join(c.DataDir(), SettingsFilename)
}

func (c *EnvConfig) LogPath() string {
	return filepath.Join(c.DataDir(), LogFilename)
}

// DefaultDatasetRoot is where Training/<Label> lives until the user picks another root
func (c *EnvConfig) DefaultDatasetRoot() string {
	return filepath.Join(c.baseDir, "dataset")
}

// UserBinDir may contain a user-installed static ffmpeg
func (c *EnvConfig) UserBinDir() string {
	return filepath.Join(c.baseDir, "bin")
}

func (c *EnvConfig) FFmpegBinary() string {
	return c.ffmpegBinary
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

func (c *EnvConfig) NoBrowser() bool {
	return c.noBrowser
}

// UndoDepth is the maximum number of exports kept on the undo stack
func (c *EnvConfig) UndoDepth() int {
	return c.undoDepth
}

// LabelThreshold is the desired minimum number of clips per label
func (c *EnvConfig) LabelThreshold() int {
	return c.labelThreshold
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// defaultBaseDir returns the default base directory path
func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultBaseDir
	}
	return filepath.Join(home, DefaultBaseDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/noirtty/noirtty/internal/grid"
	"github.com/noirtty/noirtty/internal/session"
	"gopkg.in/yaml.v2"
)

// RuntimeMode represents the execution environment
type RuntimeMode string

const (
	// DockerMode indicates running inside a container, where the server
	// must listen on all interfaces to be reachable.
	DockerMode RuntimeMode = "docker"
	// NativeMode indicates running on the host system
	NativeMode RuntimeMode = "native"
)

const (
	DefaultPort     = 6369
	DefaultQUICPort = 6370
	envPrefix       = "NOIRTTY_"
)

// Config is the server configuration. Values come from defaults, then the
// YAML file, then NOIRTTY_* environment variables, then command-line flags.
type Config struct {
	Mode RuntimeMode `yaml:"-"`

	// HTTP serves the websocket endpoint and the REST API.
	HTTPAddr string `yaml:"http_addr"`
	// TCPAddr and QUICAddr are disabled when empty.
	TCPAddr  string `yaml:"tcp_addr"`
	QUICAddr string `yaml:"quic_addr"`

	// TLS certificate for QUIC. A self-signed certificate is generated when
	// both are empty.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`

	Shell   string   `yaml:"shell"`
	WorkDir string   `yaml:"workdir"`
	Env     []string `yaml:"env"`

	Cols          int           `yaml:"cols"`
	Rows          int           `yaml:"rows"`
	FrameInterval time.Duration `yaml:"frame_interval"`
	GracePeriod   time.Duration `yaml:"grace_period"`
	Scrollback    int           `yaml:"scrollback"` // 0 disables scrollback

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	mode := detectMode()
	host := "127.0.0.1"
	if mode == DockerMode {
		host = "0.0.0.0"
	}
	return &Config{
		Mode:          mode,
		HTTPAddr:      fmt.Sprintf("%s:%d", host, DefaultPort),
		Cols:          session.DefaultCols,
		Rows:          session.DefaultRows,
		FrameInterval: session.DefaultFrameInterval,
		Scrollback:    grid.DefaultScrollback,
		LogLevel:      "info",
	}
}

// detectMode determines if we're running in Docker or natively
func detectMode() RuntimeMode {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return DockerMode
	}
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		if strings.Contains(string(data), "docker") || strings.Contains(string(data), "containerd") {
			return DockerMode
		}
	}
	if os.Getenv(envPrefix+"CONTAINER") == "true" {
		return DockerMode
	}
	return NativeMode
}

// DefaultPath is ~/.noirtty/config.yaml.
func DefaultPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
		if homeDir == "" {
			homeDir = "."
		}
	}
	return filepath.Join(homeDir, ".noirtty", "config.yaml")
}

// Load builds the configuration from defaults, the file at path and the
// environment. A missing file is not an error unless path was given
// explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from NOIRTTY_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"HTTP_ADDR": &c.HTTPAddr,
		"TCP_ADDR":  &c.TCPAddr,
		"QUIC_ADDR": &c.QUICAddr,
		"TLS_CERT":  &c.TLSCert,
		"TLS_KEY":   &c.TLSKey,
		"SHELL":     &c.Shell,
		"WORKDIR":   &c.WorkDir,
		"LOG_LEVEL": &c.LogLevel,
	}
	for name, field := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*field = v
		}
	}

	ints := map[string]*int{
		"COLS":       &c.Cols,
		"ROWS":       &c.Rows,
		"SCROLLBACK": &c.Scrollback,
	}
	for name, field := range ints {
		if v, ok := lookup(envPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*field = n
		}
	}

	durations := map[string]*time.Duration{
		"FRAME_INTERVAL": &c.FrameInterval,
		"GRACE_PERIOD":   &c.GracePeriod,
	}
	for name, field := range durations {
		if v, ok := lookup(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, name, err)
			}
			*field = d
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" && c.TCPAddr == "" && c.QUICAddr == "" {
		return errors.New("no listen address configured")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls_cert and tls_key must be set together")
	}
	if c.Cols < 1 || c.Rows < 1 {
		return fmt.Errorf("invalid default size %dx%d", c.Cols, c.Rows)
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive, got %s", c.FrameInterval)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period must not be negative, got %s", c.GracePeriod)
	}
	if c.Scrollback < 0 {
		return fmt.Errorf("scrollback must not be negative, got %d", c.Scrollback)
	}
	if c.WorkDir != "" {
		info, err := os.Stat(c.WorkDir)
		if err != nil {
			return fmt.Errorf("workdir: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("workdir %s is not a directory", c.WorkDir)
		}
	}
	return nil
}

// SessionConfig is the template every new session starts from.
func (c *Config) SessionConfig() session.Config {
	scrollback := c.Scrollback
	if scrollback == 0 {
		scrollback = session.NoScrollback
	}
	return session.Config{
		Shell:         c.Shell,
		WorkDir:       c.WorkDir,
		Env:           c.Env,
		Cols:          c.Cols,
		Rows:          c.Rows,
		FrameInterval: c.FrameInterval,
		GracePeriod:   c.GracePeriod,
		Scrollback:    scrollback,
	}
}

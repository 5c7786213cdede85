// Package config loads and validates configuration for the lookout
// daemon and CLI from a YAML file, falling back to defaults when no
// file exists.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/siftech/lookout/internal/filesys"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoConfig is returned when the configuration file is not found.
	ErrNoConfig = errors.New("configuration file not found")
)

const (
	// DefaultSocketPath is the default path for the Unix socket.
	DefaultSocketPath = "/var/run/lookoutd.socket"
	// DefaultConfigPath is the default path for the configuration file,
	// relative to the user's home directory.
	DefaultConfigPath = ".lookout/config.yaml"
	// DefaultQueryTimeout bounds a single native DNS exchange.
	DefaultQueryTimeout = 5 * time.Second
	// DefaultRetries is how many additional attempts a query gets.
	DefaultRetries = 2
	// DefaultQueueSize is the event loop's task queue capacity.
	DefaultQueueSize = 128
)

// MaxRetries caps the configurable retry count; beyond this a wedged
// nameserver would stall the daemon's workers for minutes.
const MaxRetries = 10

// Config holds the application configuration.
type Config struct {
	Socket   SocketConfig   `yaml:"socket"`
	Resolver ResolverConfig `yaml:"resolver"`
	Loop     LoopConfig     `yaml:"loop"`
}

// SocketConfig holds socket-related configuration.
type SocketConfig struct {
	Path string `yaml:"path"`
}

// ResolverConfig holds native-resolution configuration. Nameserver
// selection is deliberately absent: lookoutd always follows the
// system resolver configuration.
type ResolverConfig struct {
	QueryTimeout time.Duration `yaml:"query_timeout"`
	Retries      uint          `yaml:"retries"`
}

// LoopConfig holds event-loop configuration.
type LoopConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// Provider defines the interface for loading configuration.
type Provider interface {
	Load() (*Config, error)
}

// FSProvider implements Provider using the local filesystem.
type FSProvider struct {
	fs   filesys.ReadWriteFS
	path string
}

var _ Provider = (*FSProvider)(nil)

// New creates a provider using the default configuration path under
// the user's home directory. If the home directory cannot be
// determined it falls back to the current directory.
func New() Provider {
	home, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not determine home directory: %v\n", err)
		home = ""
	}
	return NewWithPath(filesys.OS(), filepath.Join(home, DefaultConfigPath))
}

// NewWithPath creates a provider reading a specific config path
// through the given filesystem implementation.
func NewWithPath(fs filesys.ReadWriteFS, path string) Provider {
	return &FSProvider{
		fs:   fs,
		path: path,
	}
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Socket: SocketConfig{
			Path: DefaultSocketPath,
		},
		Resolver: ResolverConfig{
			QueryTimeout: DefaultQueryTimeout,
			Retries:      DefaultRetries,
		},
		Loop: LoopConfig{
			QueueSize: DefaultQueueSize,
		},
	}
}

// Load loads the configuration from the provider's path.
func (p *FSProvider) Load() (*Config, error) {
	_ = p.ensureConfigDir()

	cfg, err := p.loadAndParse()
	if err != nil {
		if errors.Is(err, ErrNoConfig) {
			return Default(), nil
		}
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// Validate checks the configuration to ensure all required fields are
// set and within operational bounds.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Socket.Path) == "" {
		return errors.New("socket path cannot be empty")
	}
	if c.Resolver.QueryTimeout < time.Second {
		return errors.New("query timeout must be at least 1 second")
	}
	if c.Resolver.Retries > MaxRetries {
		return fmt.Errorf("retries must be at most %d", MaxRetries)
	}
	if c.Loop.QueueSize < 1 {
		return errors.New("loop queue size must be at least 1")
	}
	return nil
}

func (p *FSProvider) ensureConfigDir() error {
	dir := filepath.Dir(p.path)
	if _, err := p.fs.Stat(dir); os.IsNotExist(err) {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return nil
}

func (p *FSProvider) loadAndParse() (*Config, error) {
	f, err := p.fs.Open(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}

	return &cfg, nil
}

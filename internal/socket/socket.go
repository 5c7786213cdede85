// Package socket provides the Unix domain socket transport shared by
// the lookout CLI and the lookoutd daemon.
package socket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

var (
	// ErrAddressInUse is returned when a live listener already owns the socket path.
	ErrAddressInUse = errors.New("address already in use")
	// ErrDaemonNotRunning is returned when no daemon answers within the startup window.
	ErrDaemonNotRunning = errors.New("daemon not running")
)

// _startupGrace is how long after construction Connect keeps retrying
// without consulting the process table. A freshly spawned daemon may
// not have created its socket yet.
const _startupGrace = 2 * time.Second

// Config controls connection retry behavior and socket file permissions.
type Config struct {
	// StartupTimeout bounds how long Connect waits for the daemon.
	StartupTimeout time.Duration
	// RetryInterval is the pause between connection attempts.
	RetryInterval time.Duration
	// Permissions is applied to the socket file after listening.
	Permissions os.FileMode
	// ProcessName is the daemon executable consulted between retries.
	ProcessName string
}

// DefaultConfig returns the settings the stock CLI and daemon use:
// a five second startup window, 250ms between attempts, OS-appropriate
// permissions, and "lookoutd" as the daemon process name.
func DefaultConfig() *Config {
	return &Config{
		StartupTimeout: 5 * time.Second,
		RetryInterval:  250 * time.Millisecond,
		Permissions:    defaultPermissions(),
		ProcessName:    "lookoutd",
	}
}

// Socket dials and listens on the daemon's Unix domain socket.
type Socket struct {
	config    *Config
	procCheck ProcessChecker
	birth     time.Time
}

// New returns a Socket using cfg, or DefaultConfig() when cfg is nil.
func New(cfg *Config, checker ProcessChecker) *Socket {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Socket{
		config:    cfg,
		procCheck: checker,
		birth:     time.Now(),
	}
}

// ConnectContext dials the daemon socket at path with default settings.
func ConnectContext(ctx context.Context, path string) (net.Conn, error) {
	return New(nil, &PSProcessChecker{}).Connect(ctx, path)
}

// Listen opens a listener at path with default settings.
func Listen(path string) (net.Listener, error) {
	return New(nil, &PSProcessChecker{}).Listen(path)
}

// Connect dials the daemon socket, retrying until the context is
// canceled, the startup window elapses, or a dial succeeds. When the
// daemon never answers, the returned error wraps ErrDaemonNotRunning.
func (s *Socket) Connect(ctx context.Context, path string) (net.Conn, error) {
	deadline := time.Now().Add(s.config.StartupTimeout)

	for {
		conn, err := (&net.Dialer{}).DialContext(ctx, "unix", path)
		if err == nil {
			return conn, nil
		}

		if !s.canRetry(deadline) {
			return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.config.RetryInterval):
		}
	}
}

// Listen opens a Unix domain socket listener at path. It creates the
// parent directory, reclaims a stale socket file left behind by a dead
// daemon, and applies the configured permissions. A live listener on
// the path yields ErrAddressInUse.
func (s *Socket) Listen(path string) (net.Listener, error) {
	if err := s.prepareDirectory(path); err != nil {
		return nil, err
	}
	if err := s.reclaimPath(path); err != nil {
		return nil, err
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("creating socket listener: %w", err)
	}

	if err := os.Chmod(path, s.config.Permissions); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	return listener, nil
}

func (s *Socket) canRetry(deadline time.Time) bool {
	if time.Now().After(deadline) {
		return false
	}
	if time.Since(s.birth) < _startupGrace {
		return true
	}
	return s.procCheck.IsRunning(s.config.ProcessName)
}

func (s *Socket) prepareDirectory(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	// A world-accessible socket needs a traversable parent.
	if s.config.Permissions == 0o666 {
		if fi, err := os.Stat(dir); err == nil && fi.Mode()&0o077 == 0 {
			if err := os.Chmod(dir, 0o755); err != nil {
				return fmt.Errorf("setting directory permissions: %w", err)
			}
		}
	}

	return nil
}

// reclaimPath removes a socket file nobody is listening on.
func (s *Socket) reclaimPath(path string) error {
	conn, err := net.Dial("unix", path)
	if err == nil {
		_ = conn.Close()
		return ErrAddressInUse
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	return nil
}

// defaultPermissions leaves the socket world-writable on platforms
// where peer credentials identify the caller.
func defaultPermissions() os.FileMode {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
		return 0o666
	default:
		return 0o600
	}
}

// Package bridgeconfig loads the bridge server's single TOML config
// file into a typed Config, applying defaults for anything the file
// omits or that the file itself is absent.
package bridgeconfig

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/debugbridge/server/internal/logx"
)

// Config is the full set of bridge server settings, loaded from one
// TOML file (see Default's field-by-field defaults).
type Config struct {
	// ListenPortBase is the first port handed to an owned (server-spawned)
	// adapter; see internal/registry's monotonic allocator.
	ListenPortBase int `toml:"listen_port_base"`

	// ReservedAttachPort is never allocated to an owned session, left
	// free for an externally-started debugpy.
	ReservedAttachPort int `toml:"reserved_attach_port"`

	// DefaultAdapter names the adapter used when a tool call omits one.
	DefaultAdapter string `toml:"default_adapter"`

	// PythonPath overrides interpreter resolution; empty means resolve
	// python3 (falling back to python) from PATH.
	PythonPath string `toml:"python_path"`

	// RequestTimeoutSeconds bounds how long a single DAP request may
	// take before the caller gives up.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`

	// HandshakeRetryAttempts overrides the handshake package's default
	// attempt count for initialize, the attach rendezvous, and
	// configurationDone.
	HandshakeRetryAttempts int `toml:"handshake_retry_attempts"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `toml:"log_level"`
}

// Default returns the config used when no file is present: owned ports
// start at 5679 (5678 reserved for attach), the python adapter, a
// 10-second request timeout, 3 handshake retry attempts, info logging.
func Default() Config {
	return Config{
		ListenPortBase:         5679,
		ReservedAttachPort:     5678,
		DefaultAdapter:         "python",
		RequestTimeoutSeconds:  10,
		HandshakeRetryAttempts: 3,
		LogLevel:               "info",
	}
}

// Load reads path and overlays it onto Default. A missing file is not
// an error: Load returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("bridgeconfig: reading %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ParseError{Path: path, Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded values are usable, independent of where
// they came from.
func (c Config) Validate() error {
	if c.ListenPortBase <= 0 || c.ListenPortBase > 65535 {
		return &ValidationError{Field: "listen_port_base", Message: "must be between 1 and 65535"}
	}
	if c.ReservedAttachPort <= 0 || c.ReservedAttachPort > 65535 {
		return &ValidationError{Field: "reserved_attach_port", Message: "must be between 1 and 65535"}
	}
	if c.ListenPortBase == c.ReservedAttachPort {
		return &ValidationError{Field: "listen_port_base", Message: "must differ from reserved_attach_port"}
	}
	if c.RequestTimeoutSeconds <= 0 {
		return &ValidationError{Field: "request_timeout_seconds", Message: "must be positive"}
	}
	if c.HandshakeRetryAttempts <= 0 {
		return &ValidationError{Field: "handshake_retry_attempts", Message: "must be positive"}
	}
	return nil
}

// LogLevelParsed returns c.LogLevel as a logx.Level.
func (c Config) LogLevelParsed() logx.Level {
	return logx.ParseLevel(c.LogLevel)
}

// ParseError wraps a TOML decode failure with the file path.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bridgeconfig: parse error in %s: %s", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a single out-of-range or conflicting field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bridgeconfig: %s: %s", e.Field, e.Message)
}

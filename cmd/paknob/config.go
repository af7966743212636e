package main

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// authCookieSize is the fixed length of the authentication cookie sent
// during the handshake. Shorter cookie files are zero-padded.
const authCookieSize = 256

// Config is the optional YAML configuration. Everything has a usable
// default, so the tool works with no config file at all; the file and a few
// environment variables exist for unusual setups (remote servers, custom
// cookie locations).
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Logging LoggingConfig `yaml:"logging"`
}

type ServerConfig struct {
	// Address of the sound server. Empty means autodetect the local
	// per-user socket. Accepts a unix socket path, "unix:/path", or
	// "tcp:host[:port]".
	Address string `yaml:"address,omitempty"`

	// CookiePath overrides the authentication cookie location.
	CookiePath string `yaml:"cookie_path,omitempty"`
}

type ClientConfig struct {
	// Name the client registers with the server.
	Name string `yaml:"name"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Client: ClientConfig{
			Name: "paknob",
		},
		Logging: LoggingConfig{
			Level: "error",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// loadConfig assembles the effective configuration: defaults, then the
// config file if one exists, then environment overrides.
//
// PAKNOB_CONFIG points at an alternate config file; when it is set, the
// file must exist. The default file is optional.
func loadConfig() (Config, error) {
	path := os.Getenv("PAKNOB_CONFIG")
	required := path != ""
	if path == "" {
		path = "~/.config/paknob/config.yml"
	}

	cfg := DefaultConfig()
	loaded, err := LoadConfigFile(path)
	switch {
	case err == nil:
		cfg = loaded
	case errors.Is(err, os.ErrNotExist) && !required:
		// No config file is the common case.
	default:
		return Config{}, err
	}

	if server := os.Getenv("PULSE_SERVER"); server != "" {
		cfg.Server.Address = server
	}
	if cookie := os.Getenv("PULSE_COOKIE"); cookie != "" {
		cfg.Server.CookiePath = cookie
	}
	if level := os.Getenv("PAKNOB_LOG"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	if c.Client.Name == "" {
		return errors.New("client.name must not be empty")
	}
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Server.Address != "" {
		if _, _, err := resolveServerAddress(c.Server.Address); err != nil {
			return fmt.Errorf("server.address: %w", err)
		}
	}
	return nil
}

// resolveServerAddress maps a server address to a network and address for
// net.Dial. An empty address resolves to the local per-user socket.
func resolveServerAddress(addr string) (network, address string, err error) {
	switch {
	case addr == "":
		return "unix", defaultSocketPath(), nil
	case strings.HasPrefix(addr, "unix:"):
		path := strings.TrimPrefix(addr, "unix:")
		if path == "" {
			return "", "", errors.New("empty unix socket path")
		}
		return "unix", path, nil
	case strings.HasPrefix(addr, "tcp:"):
		host := strings.TrimPrefix(addr, "tcp:")
		if host == "" {
			return "", "", errors.New("empty tcp address")
		}
		if !strings.Contains(host, ":") {
			host += ":4713"
		}
		return "tcp", host, nil
	case strings.HasPrefix(addr, "/"):
		return "unix", addr, nil
	default:
		return "", "", fmt.Errorf("unrecognized server address %q", addr)
	}
}

// defaultSocketPath locates the per-user native socket the way the server
// publishes it.
func defaultSocketPath() string {
	if dir := os.Getenv("PULSE_RUNTIME_PATH"); dir != "" {
		return filepath.Join(dir, "native")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "pulse", "native")
	}
	return fmt.Sprintf("/run/user/%d/pulse/native", os.Getuid())
}

// loadAuthCookie reads the authentication cookie, fixed at authCookieSize
// bytes. With no explicit path it tries the standard locations; a missing
// cookie yields all zeros, which still works when the socket accepts
// same-uid peer credentials.
func loadAuthCookie(path string, logger *slog.Logger) []byte {
	candidates := []string{path}
	if path == "" {
		candidates = []string{
			"~/.config/pulse/cookie",
			"~/.pulse-cookie",
		}
	}

	cookie := make([]byte, authCookieSize)
	for _, candidate := range candidates {
		b, err := os.ReadFile(ExpandPath(candidate))
		if err != nil {
			continue
		}
		copy(cookie, b)
		return cookie
	}
	logger.Debug("no auth cookie found, relying on peer credentials")
	return cookie
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}

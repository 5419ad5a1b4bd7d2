// Package config loads realmpaint settings from defaults, a TOML file, a
// .env file and the environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/omochice/realm-paint/pkg/codec"
)

const (
	EnvURL  = "REALMPAINT_URL"
	EnvName = "REALMPAINT_NAME"

	DefaultURL = "ws://127.0.0.1:2000"
)

// ReconnectMode selects how the connection manager retries.
type ReconnectMode string

const (
	ReconnectImmediate ReconnectMode = "immediate"
	ReconnectBackoff   ReconnectMode = "backoff"
)

type Server struct {
	URL         string
	DialTimeout time.Duration
}

type Reconnect struct {
	Mode            ReconnectMode
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxElapsed of zero retries forever.
	MaxElapsed time.Duration
}

type Session struct {
	ClearOnDisconnect bool
	TextEncoding      codec.TextEncoding
}

type Render struct {
	CursorRadius int
}

type Identity struct {
	Name string
}

type Metrics struct {
	// Listen is the metrics HTTP address. Empty disables the endpoint.
	Listen string
}

// Config is the resolved client configuration.
type Config struct {
	Server    Server
	Reconnect Reconnect
	Session   Session
	Render    Render
	Identity  Identity
	Metrics   Metrics
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Server: Server{
			URL:         DefaultURL,
			DialTimeout: 5 * time.Second,
		},
		Reconnect: Reconnect{
			Mode:            ReconnectBackoff,
			InitialInterval: 250 * time.Millisecond,
			MaxInterval:     10 * time.Second,
			Multiplier:      2,
		},
		Session: Session{
			TextEncoding: codec.Latin1,
		},
		Render: Render{
			CursorRadius: 5,
		},
	}
}

// realmpaint.toml key mapping.
type fileConfig struct {
	Server struct {
		URL         string `toml:"url"`
		DialTimeout string `toml:"dial_timeout"`
	} `toml:"server"`
	Reconnect struct {
		Mode            string  `toml:"mode"`
		InitialInterval string  `toml:"initial_interval"`
		MaxInterval     string  `toml:"max_interval"`
		Multiplier      float64 `toml:"multiplier"`
		MaxElapsed      string  `toml:"max_elapsed"`
	} `toml:"reconnect"`
	Session struct {
		ClearOnDisconnect bool   `toml:"clear_on_disconnect"`
		TextEncoding      string `toml:"text_encoding"`
	} `toml:"session"`
	Render struct {
		CursorRadius int `toml:"cursor_radius"`
	} `toml:"render"`
	Identity struct {
		Name string `toml:"name"`
	} `toml:"identity"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

// Load resolves the configuration. An empty path skips the TOML file. A
// missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		var err error
		cfg, err = LoadFile(cfg, path)
		if err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the keys present in the TOML file at path onto base.
func LoadFile(base Config, path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	cfg := base
	if meta.IsDefined("server", "url") {
		cfg.Server.URL = strings.TrimSpace(raw.Server.URL)
	}
	if meta.IsDefined("server", "dial_timeout") {
		if cfg.Server.DialTimeout, err = parseDuration("server.dial_timeout", raw.Server.DialTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("reconnect", "mode") {
		cfg.Reconnect.Mode = ReconnectMode(strings.ToLower(strings.TrimSpace(raw.Reconnect.Mode)))
	}
	if meta.IsDefined("reconnect", "initial_interval") {
		if cfg.Reconnect.InitialInterval, err = parseDuration("reconnect.initial_interval", raw.Reconnect.InitialInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("reconnect", "max_interval") {
		if cfg.Reconnect.MaxInterval, err = parseDuration("reconnect.max_interval", raw.Reconnect.MaxInterval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("reconnect", "multiplier") {
		cfg.Reconnect.Multiplier = raw.Reconnect.Multiplier
	}
	if meta.IsDefined("reconnect", "max_elapsed") {
		if cfg.Reconnect.MaxElapsed, err = parseDuration("reconnect.max_elapsed", raw.Reconnect.MaxElapsed); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("session", "clear_on_disconnect") {
		cfg.Session.ClearOnDisconnect = raw.Session.ClearOnDisconnect
	}
	if meta.IsDefined("session", "text_encoding") {
		if cfg.Session.TextEncoding, err = codec.ParseTextEncoding(raw.Session.TextEncoding); err != nil {
			return Config{}, fmt.Errorf("load config: session.text_encoding: %w", err)
		}
	}
	if meta.IsDefined("render", "cursor_radius") {
		cfg.Render.CursorRadius = raw.Render.CursorRadius
	}
	if meta.IsDefined("identity", "name") {
		cfg.Identity.Name = strings.TrimSpace(raw.Identity.Name)
	}
	if meta.IsDefined("metrics", "listen") {
		cfg.Metrics.Listen = strings.TrimSpace(raw.Metrics.Listen)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with REALMPAINT_* variables that are set.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvURL)); v != "" {
		cfg.Server.URL = v
	}
	if v, ok := os.LookupEnv(EnvName); ok {
		cfg.Identity.Name = strings.TrimSpace(v)
	}
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Server.URL == "" {
		return errors.New("config: server.url is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("config: server.url %q must use ws:// or wss://", c.Server.URL)
	}
	switch c.Reconnect.Mode {
	case ReconnectImmediate, ReconnectBackoff:
	default:
		return fmt.Errorf("config: unsupported reconnect.mode %q (expected immediate or backoff)", c.Reconnect.Mode)
	}
	if c.Reconnect.Mode == ReconnectBackoff {
		if c.Reconnect.InitialInterval <= 0 || c.Reconnect.MaxInterval < c.Reconnect.InitialInterval {
			return errors.New("config: reconnect intervals must be positive and max_interval >= initial_interval")
		}
		if c.Reconnect.Multiplier < 1 {
			return fmt.Errorf("config: reconnect.multiplier %v must be >= 1", c.Reconnect.Multiplier)
		}
	}
	if c.Render.CursorRadius < 1 {
		return fmt.Errorf("config: render.cursor_radius %d must be at least 1", c.Render.CursorRadius)
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("load config: %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("load config: %s must not be negative", key)
	}
	return d, nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/ingressd/internal/protocol/frame"
)

const (
	EnvBindAddr   = "BIND_ADDR"
	EnvConfigPath = "INGRESS_CONFIG"
	EnvAdminAddr  = "INGRESS_ADMIN_ADDR"

	DefaultBindAddr   = "0.0.0.0:1883"
	DefaultConfigPath = "config.toml"
)

var (
	ErrAlreadySet     = errors.New("config: settings already initialized")
	ErrNotInitialized = errors.New("config: settings not initialized")
)

// Settings is the immutable runtime configuration resolved once at startup.
type Settings struct {
	MaxConnections int
	RecvBufferSize int
	NoDelay        bool
	MaxFrameSize   int
	AdminAddr      string
}

type fileSettings struct {
	MaxConnections int    `toml:"max_connections"`
	RecvBufferSize int    `toml:"tcp_recv_buf_size"`
	NoDelay        bool   `toml:"tcp_nodelay"`
	MaxFrameSize   int    `toml:"max_frame_size"`
	AdminAddr      string `toml:"admin_addr"`
}

func DefaultSettings() Settings {
	return Settings{
		MaxConnections: 1000,
		RecvBufferSize: 4096,
		NoDelay:        true,
		MaxFrameSize:   frame.DefaultLimits().MaxFrameBytes,
		AdminAddr:      "",
	}
}

// FrameLimits returns the decoder limits derived from MaxFrameSize.
func (s Settings) FrameLimits() frame.Limits {
	return frame.Limits{MaxFrameBytes: s.MaxFrameSize}
}

// LoadSettings reads a TOML file and overlays the keys it defines on top of
// DefaultSettings.
func LoadSettings(path string) (Settings, error) {
	cfg := DefaultSettings()

	var raw fileSettings
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}

	if meta.IsDefined("max_connections") {
		cfg.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("tcp_recv_buf_size") {
		cfg.RecvBufferSize = raw.RecvBufferSize
	}
	if meta.IsDefined("tcp_nodelay") {
		cfg.NoDelay = raw.NoDelay
	}
	if meta.IsDefined("max_frame_size") {
		cfg.MaxFrameSize = raw.MaxFrameSize
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}

	if err := ValidateSettings(cfg); err != nil {
		return Settings{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// LoadSettingsOrDefault never fails; the returned error, when non-nil,
// explains why defaults were used.
func LoadSettingsOrDefault(path string) (Settings, error) {
	cfg, err := LoadSettings(path)
	if err != nil {
		return DefaultSettings(), err
	}
	return cfg, nil
}

func ValidateSettings(cfg Settings) error {
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if cfg.RecvBufferSize < 0 {
		return fmt.Errorf("tcp_recv_buf_size must not be negative")
	}
	if cfg.MaxFrameSize < 0 {
		return fmt.Errorf("max_frame_size must not be negative")
	}
	if cfg.MaxFrameSize > 1+frame.MaxLengthBytes+frame.MaxRemainingLength {
		return fmt.Errorf("max_frame_size exceeds protocol maximum")
	}
	return nil
}

// ApplyEnv overlays environment overrides.
func ApplyEnv(cfg Settings) Settings {
	if v := strings.TrimSpace(os.Getenv(EnvAdminAddr)); v != "" {
		cfg.AdminAddr = v
	}
	return cfg
}

func BindAddr() string {
	if v := strings.TrimSpace(os.Getenv(EnvBindAddr)); v != "" {
		return v
	}
	return DefaultBindAddr
}

func ConfigPath() string {
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v
	}
	return DefaultConfigPath
}

// Once publishes Settings exactly once. The first Set wins.
type Once struct {
	mu       sync.RWMutex
	settings Settings
	set      bool
}

func (o *Once) Set(cfg Settings) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.set {
		return ErrAlreadySet
	}
	o.settings = cfg
	o.set = true
	return nil
}

func (o *Once) Get() (*Settings, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.set {
		return nil, ErrNotInitialized
	}
	cfg := o.settings
	return &cfg, nil
}

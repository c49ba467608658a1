package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/dsh-project/dsh/internal/rsh"
)

// Config holds the dsh configuration.
type Config struct {
	Shell  ShellConfig  `yaml:"shell"`
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	Log    LogConfig    `yaml:"log"`
	Audit  AuditConfig  `yaml:"audit"`
}

// ShellConfig controls the interactive prompt.
type ShellConfig struct {
	Prompt string `yaml:"prompt" validate:"required"`
	// Color is auto, always or never. Auto colours only terminals.
	Color string `yaml:"color" validate:"oneof=auto always never"`
}

// ServerConfig controls the remote shell server.
type ServerConfig struct {
	Interface string `yaml:"interface" validate:"required,ip|hostname_rfc1123"`
	Port      int    `yaml:"port" validate:"gte=1,lte=65535"`
	// Socket, when set, replaces the TCP listener with a unix socket.
	Socket   string `yaml:"socket"`
	Threaded bool   `yaml:"threaded"`
	PIDFile  string `yaml:"pid_file"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Interface, strconv.Itoa(s.Port))
}

// ClientConfig controls the remote shell client.
type ClientConfig struct {
	Address string `yaml:"address" validate:"required,ip|hostname_rfc1123"`
	Port    int    `yaml:"port" validate:"gte=1,lte=65535"`
	Socket  string `yaml:"socket"`
}

// Addr returns the server address to dial.
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// LogConfig controls diagnostic logging on stderr.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// AuditConfig controls the execution audit log. An empty path disables it.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Shell: ShellConfig{
			Prompt: "dsh4> ",
			Color:  "auto",
		},
		Server: ServerConfig{
			Interface: rsh.DefaultServerInterface,
			Port:      rsh.DefaultPort,
		},
		Client: ClientConfig{
			Address: rsh.DefaultClientAddress,
			Port:    rsh.DefaultPort,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Validate checks field constraints. Errors name fields by their YAML keys.
func (c *Config) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
	})
	return validate.Struct(c)
}

// ConfigPath returns the standard config file path.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "dsh", "config.yaml")
}

// Load reads the config from the standard location. A missing file yields
// the defaults.
func Load(fsys afero.Fs) (*Config, error) {
	return LoadFrom(fsys, ConfigPath())
}

// LoadFrom reads and validates the config at path. A missing file yields
// the defaults.
func LoadFrom(fsys afero.Fs, path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Audit.Path = ExpandHome(cfg.Audit.Path)
	cfg.Server.PIDFile = ExpandHome(cfg.Server.PIDFile)
	cfg.Server.Socket = ExpandHome(cfg.Server.Socket)
	cfg.Client.Socket = ExpandHome(cfg.Client.Socket)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Write stores cfg at path, creating parent directories. It refuses to
// replace an existing file.
func Write(fsys afero.Fs, path string, cfg *Config) error {
	if ok, _ := afero.Exists(fsys, path); ok {
		return fmt.Errorf("config %s already exists", path)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return afero.WriteFile(fsys, path, data, 0o644)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the defaults for every command. Flags override it.
type Config struct {
	Server         ServerTarget
	Connections    int
	RotateInterval time.Duration
	Workers        int
	Checksum       string
	MaxSpeed       float64
	OutputDir      string
	// CAFile replaces the system roots for FTPS certificate checks.
	CAFile       string
	KeepAlive    time.Duration
	SocketBuffer int
	DisableEPSV  bool
}

type yamlConfig struct {
	Server struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		TLS      bool   `yaml:"tls"`
		Insecure bool   `yaml:"insecure"`
		Timeout  string `yaml:"timeout"`
		CAFile   string `yaml:"ca_file"`
	} `yaml:"server"`
	Connections    int     `yaml:"connections"`
	RotateInterval string  `yaml:"rotate_interval"`
	Workers        int     `yaml:"workers"`
	Checksum       string  `yaml:"checksum"`
	MaxSpeed       float64 `yaml:"max_speed"`
	OutputDir      string  `yaml:"output_dir"`
	KeepAlive      string  `yaml:"keep_alive"`
	SocketBuffer   int     `yaml:"socket_buffer"`
	DisableEPSV    bool    `yaml:"disable_epsv"`
}

func DefaultConfig() Config {
	return Config{
		Server: ServerTarget{
			Port:     DefaultPort,
			Username: "anonymous",
			Password: "anonymous@",
			Timeout:  DefaultConnectTimeout,
		},
		Connections:    DefaultConnections,
		RotateInterval: DefaultRotateInterval,
		Workers:        1,
		Checksum:       DefaultChecksum,
		OutputDir:      ".",
		KeepAlive:      DefaultKeepAlive,
	}
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/octoftp/config.yaml (or the
// platform equivalent).
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "octoftp", "config.yaml")
}

// LoadConfig reads path on top of DefaultConfig. A missing file at the
// default location is not an error; allowMissing controls that.
func LoadConfig(path string, allowMissing bool) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	if yc.Server.Host != "" {
		cfg.Server.Host = yc.Server.Host
	}
	if yc.Server.Port != 0 {
		cfg.Server.Port = yc.Server.Port
	}
	if yc.Server.User != "" {
		cfg.Server.Username = yc.Server.User
		cfg.Server.Password = ""
	}
	if yc.Server.Password != "" {
		cfg.Server.Password = yc.Server.Password
	}
	cfg.Server.UseTLS = yc.Server.TLS
	cfg.Server.Insecure = yc.Server.Insecure
	if yc.Server.Timeout != "" {
		d, err := time.ParseDuration(yc.Server.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse server.timeout: %w", err)
		}
		cfg.Server.Timeout = d
	}
	if yc.Connections != 0 {
		cfg.Connections = yc.Connections
	}
	if yc.RotateInterval != "" {
		d, err := parseSeconds(yc.RotateInterval)
		if err != nil {
			return Config{}, fmt.Errorf("parse rotate_interval: %w", err)
		}
		cfg.RotateInterval = d
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.Checksum != "" {
		cfg.Checksum = yc.Checksum
	}
	cfg.MaxSpeed = yc.MaxSpeed
	if yc.OutputDir != "" {
		cfg.OutputDir = yc.OutputDir
	}
	cfg.CAFile = yc.Server.CAFile
	if yc.KeepAlive != "" {
		d, err := time.ParseDuration(yc.KeepAlive)
		if err != nil {
			return Config{}, fmt.Errorf("parse keep_alive: %w", err)
		}
		cfg.KeepAlive = d
	}
	cfg.SocketBuffer = yc.SocketBuffer
	cfg.DisableEPSV = yc.DisableEPSV
	return cfg, nil
}

// LoadFromEnv applies environment overrides.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv(PasswordEnv); v != "" {
		c.Server.Password = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("config: server host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Server.Port)
	}
	if c.Connections < 1 {
		return fmt.Errorf("config: connections must be at least 1, got %d", c.Connections)
	}
	if c.RotateInterval <= 0 {
		return fmt.Errorf("config: rotate interval must be positive, got %v", c.RotateInterval)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.SocketBuffer < 0 {
		return fmt.Errorf("config: socket buffer must not be negative, got %d", c.SocketBuffer)
	}
	return nil
}

// parseSeconds accepts a Go duration ("45s") or a bare number of seconds ("45").
func parseSeconds(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func ReadBatchFile(path string) ([]BatchEntry, error) {
	log := GetLogger("config")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var entries []BatchEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	for i, entry := range entries {
		if entry.Remote == "" {
			return nil, fmt.Errorf("missing remote path for entry %d", i+1)
		}
	}
	log.Debug().Int("count", len(entries)).Msg("Entries loaded from YAML")
	return entries, nil
}

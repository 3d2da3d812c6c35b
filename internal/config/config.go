package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server" json:"server"`
	Database  DatabaseConfig   `yaml:"database" json:"database"`
	Auth      AuthConfig       `yaml:"auth" json:"auth"`
	Security  SecurityConfig   `yaml:"security" json:"security"`
	Storage   StorageConfig    `yaml:"storage" json:"storage"`
	Logging   LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics" json:"metrics"`
	Game      GameConfig       `yaml:"game" json:"game"`
	Backup    BackupConfig     `yaml:"backup" json:"backup"`
	Schedules []ScheduleConfig `yaml:"schedules" json:"schedules"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string    `yaml:"host" json:"host"`
	Port int       `yaml:"port" json:"port"`
	TLS  TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig contains TLS/HTTPS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
	// SelfSigned generates a certificate at CertFile and KeyFile when neither exists
	SelfSigned bool `yaml:"self_signed" json:"self_signed"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// AuthConfig contains authentication settings. Users maps a username to its
// bcrypt hash.
type AuthConfig struct {
	JWTSecret           string            `yaml:"jwt_secret" json:"-"`
	AccessTokenDuration string            `yaml:"access_token_duration" json:"access_token_duration"`
	BcryptCost          int               `yaml:"bcrypt_cost" json:"bcrypt_cost"`
	Users               map[string]string `yaml:"users" json:"-"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
	Burst             int  `yaml:"burst" json:"burst"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	ConfigDir string `yaml:"config_dir" json:"config_dir"`
	DataDir   string `yaml:"data_dir" json:"data_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// MetricsConfig contains Prometheus exposition settings
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Path     string `yaml:"path" json:"path"`
	Interval int    `yaml:"interval" json:"interval"` // seconds
}

// Schedule actions
const (
	ActionCommand = "command"
	ActionBackup  = "backup"
)

// ScheduleConfig is a console command or world backup run on a cron schedule
type ScheduleConfig struct {
	Name    string `yaml:"name" json:"name"`
	Spec    string `yaml:"spec" json:"spec"`
	Action  string `yaml:"action" json:"action"`
	Command string `yaml:"command" json:"command"`
	Channel string `yaml:"channel" json:"channel"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path:           "./data/mc-panel.db",
			MaxConnections: 10,
		},
		Auth: AuthConfig{
			JWTSecret:           getEnv("JWT_SECRET", "change-me-in-production"),
			AccessTokenDuration: "15m",
			BcryptCost:          12,
			Users:               map[string]string{},
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				Burst:             20,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:5173"},
				AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			},
		},
		Storage: StorageConfig{
			ConfigDir: "./configs",
			DataDir:   "./data",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Path:     "/metrics",
			Interval: 15,
		},
		Game:   DefaultGame(),
		Backup: DefaultBackup(),
	}
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom loads configuration from an explicit path. A missing file yields
// the defaults.
func LoadFrom(configPath string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalizePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.Auth.JWTSecret = jwtSecret
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDir = dataDir
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if gamePath := os.Getenv("GAME_PATH"); gamePath != "" {
		c.Game.Path = gamePath
	}

	if rconPassword := os.Getenv("RCON_PASSWORD"); rconPassword != "" {
		c.Game.RconPassword = rconPassword
	}

	if accessKey := os.Getenv("BACKUP_S3_ACCESS_KEY"); accessKey != "" {
		c.Backup.Destination.S3AccessKey = accessKey
	}

	if secretKey := os.Getenv("BACKUP_S3_SECRET_KEY"); secretKey != "" {
		c.Backup.Destination.S3SecretKey = secretKey
	}

	if sftpPassword := os.Getenv("BACKUP_SFTP_PASSWORD"); sftpPassword != "" {
		c.Backup.Destination.SFTPPassword = sftpPassword
	}

	if c.Auth.Users == nil {
		c.Auth.Users = map[string]string{}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be set to a secure value")
	}

	// Check for unexpanded environment variables
	if strings.HasPrefix(c.Auth.JWTSecret, "${") {
		return fmt.Errorf("JWT_SECRET contains unexpanded environment variable")
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("TLS is enabled but cert_file or key_file is missing")
		}
	}

	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("bcrypt_cost must be between 10 and 14")
	}

	if err := c.Game.Validate(); err != nil {
		return fmt.Errorf("game: %w", err)
	}

	if err := c.Backup.Validate(); err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	for i, schedule := range c.Schedules {
		if strings.TrimSpace(schedule.Spec) == "" {
			return fmt.Errorf("schedules[%d]: spec is required", i)
		}
		switch schedule.Action {
		case "", ActionCommand:
			if strings.TrimSpace(schedule.Command) == "" {
				return fmt.Errorf("schedules[%d]: command is required", i)
			}
		case ActionBackup:
		default:
			return fmt.Errorf("schedules[%d]: unknown action %q", i, schedule.Action)
		}
		if schedule.Channel != "" && !validChannel(schedule.Channel) {
			return fmt.Errorf("schedules[%d]: unknown channel %q", i, schedule.Channel)
		}
	}

	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Auth.Users = cloneMap(c.Auth.Users)
	out.Security.CORS.AllowedOrigins = append([]string(nil), c.Security.CORS.AllowedOrigins...)
	out.Security.CORS.AllowedMethods = append([]string(nil), c.Security.CORS.AllowedMethods...)
	out.Game = c.Game.Clone()
	out.Backup.Paths = append([]string(nil), c.Backup.Paths...)
	out.Backup.Exclude = append([]string(nil), c.Backup.Exclude...)
	out.Schedules = append([]ScheduleConfig(nil), c.Schedules...)
	return &out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func resolveConfigPath() string {
	candidates := []string{"../configs/config.yaml", "./configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

// GetConfigPath returns the resolved config path
func GetConfigPath() string {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}
	return configPath
}

// Save writes the configuration back to disk through a temp file so readers
// never observe a partial document.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write config: %w", err)
	}
	// config carries password hashes and the remote console password
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

func (c *Config) normalizePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	configDir := c.Storage.ConfigDir
	if strings.TrimSpace(configDir) == "" {
		configDir = baseDir
	}
	c.Storage.ConfigDir = resolvePath(configDir)

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(c.Storage.DataDir)

	if strings.TrimSpace(c.Database.Path) == "" {
		c.Database.Path = filepath.Join(c.Storage.DataDir, "mc-panel.db")
	}
	c.Database.Path = resolvePath(c.Database.Path)

	if strings.TrimSpace(c.Game.Path) == "" {
		c.Game.Path = "."
	}
	c.Game.Path = resolvePath(c.Game.Path)

	if strings.TrimSpace(c.Backup.StagingDir) == "" {
		c.Backup.StagingDir = filepath.Join(c.Storage.DataDir, "backups", "staging")
	}
	c.Backup.StagingDir = resolvePath(c.Backup.StagingDir)

	if c.Backup.Destination.Type == DestinationLocal {
		if strings.TrimSpace(c.Backup.Destination.Path) == "" {
			c.Backup.Destination.Path = filepath.Join(c.Storage.DataDir, "backups")
		}
		c.Backup.Destination.Path = resolvePath(c.Backup.Destination.Path)
	}
	if c.Backup.Destination.Type == DestinationSFTP {
		if c.Backup.Destination.SFTPPort == 0 {
			c.Backup.Destination.SFTPPort = 22
		}
		if strings.TrimSpace(c.Backup.Destination.KnownHostsPath) == "" {
			c.Backup.Destination.KnownHostsPath = filepath.Join(c.Storage.DataDir, "known_hosts")
		}
		c.Backup.Destination.KnownHostsPath = resolvePath(c.Backup.Destination.KnownHostsPath)
	}
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

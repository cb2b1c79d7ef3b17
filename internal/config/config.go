package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/willibrandon/faultscope/internal/query"
	"github.com/willibrandon/faultscope/internal/sshconn"
)

// Config represents the root configuration structure
type Config struct {
	SSH      SSHConfig     `mapstructure:"ssh"`
	Query    QueryConfig   `mapstructure:"query"`
	Cleanup  CleanupConfig `mapstructure:"cleanup"`
	Guides   FileConfig    `mapstructure:"guides"`
	Patterns FileConfig    `mapstructure:"patterns"`
	Scan     ScanConfig    `mapstructure:"scan"`
	Log      LogConfig     `mapstructure:"log"`
	Debug    bool          `mapstructure:"debug"`
}

// SSHConfig holds the log host connection parameters
type SSHConfig struct {
	Host                  string        `mapstructure:"host"`
	Port                  int           `mapstructure:"port"`
	User                  string        `mapstructure:"user"`
	PasswordCommand       string        `mapstructure:"password_command"`
	KeyFile               string        `mapstructure:"key_file"`
	KnownHostsFile        string        `mapstructure:"known_hosts_file"`
	InsecureIgnoreHostKey bool          `mapstructure:"insecure_ignore_host_key"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
}

// QueryConfig holds query limits and the local cache location
type QueryConfig struct {
	FileSizeThreshold string        `mapstructure:"file_size_threshold"`
	GrepTimeout       time.Duration `mapstructure:"grep_timeout"`
	MaxContextLines   int           `mapstructure:"max_context_lines"`
	MaxResultsLimit   int           `mapstructure:"max_results_limit"`
	DefaultMaxResults int           `mapstructure:"default_max_results"`
	Extensions        []string      `mapstructure:"extensions"`
	CacheDir          string        `mapstructure:"cache_dir"`
}

// CleanupConfig holds the retention of downloaded logs
type CleanupConfig struct {
	Retention time.Duration `mapstructure:"retention"`
	Database  string        `mapstructure:"database"`
}

// FileConfig names an optional data file
type FileConfig struct {
	File string `mapstructure:"file"`
}

// ScanConfig holds SetFunc scan settings
type ScanConfig struct {
	SnapshotDirPattern string  `mapstructure:"snapshot_dir_pattern"`
	SeverityStatuses   []int64 `mapstructure:"severity_statuses"`
}

// LogConfig holds the application log location
type LogConfig struct {
	File string `mapstructure:"file"`
}

// Load loads configuration from the default locations.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific path.
// If configPath is empty, it searches default locations. A missing file
// in the default locations is not an error.
func LoadFromPath(configPath string) (*Config, error) {
	v := viper.New()

	// Environment variable support
	v.AutomaticEnv()
	v.SetEnvPrefix("FAULTSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindLegacyEnv(v)

	applyDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if configDir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(configDir, "faultscope"))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "faultscope"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return configFromViper(v)
}

// bindLegacyEnv accepts the LOG_SERVER_* variables used by older deployment
// scripts after the FAULTSCOPE_ ones.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("ssh.host", "FAULTSCOPE_SSH_HOST", "LOG_SERVER_HOST")
	_ = v.BindEnv("ssh.port", "FAULTSCOPE_SSH_PORT", "LOG_SERVER_PORT")
	_ = v.BindEnv("ssh.user", "FAULTSCOPE_SSH_USER", "LOG_SERVER_USER")
}

func configFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand paths
	cfg.SSH.KeyFile = expandPath(cfg.SSH.KeyFile)
	cfg.SSH.KnownHostsFile = expandPath(cfg.SSH.KnownHostsFile)
	cfg.Query.CacheDir = expandPath(cfg.Query.CacheDir)
	cfg.Cleanup.Database = expandPath(cfg.Cleanup.Database)
	cfg.Guides.File = expandPath(cfg.Guides.File)
	cfg.Patterns.File = expandPath(cfg.Patterns.File)
	cfg.Log.File = expandPath(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults sets default configuration values
func applyDefaults(v *viper.Viper) {
	// SSH defaults
	v.SetDefault("ssh.host", "")
	v.SetDefault("ssh.port", 22)
	if user := os.Getenv("USER"); user != "" {
		v.SetDefault("ssh.user", user)
	} else {
		v.SetDefault("ssh.user", "root")
	}
	v.SetDefault("ssh.password_command", "")
	v.SetDefault("ssh.key_file", "")
	v.SetDefault("ssh.known_hosts_file", "~/.ssh/known_hosts")
	v.SetDefault("ssh.insecure_ignore_host_key", false)
	v.SetDefault("ssh.connect_timeout", "30s")

	// Query defaults
	v.SetDefault("query.file_size_threshold", "10MiB")
	v.SetDefault("query.grep_timeout", query.GrepTimeout.String())
	v.SetDefault("query.max_context_lines", query.MaxContextLines)
	v.SetDefault("query.max_results_limit", query.MaxResultsLimit)
	v.SetDefault("query.default_max_results", query.DefaultMaxResults)
	v.SetDefault("query.extensions", query.DefaultExtensions)
	v.SetDefault("query.cache_dir", defaultCacheDir())

	// Cleanup defaults
	v.SetDefault("cleanup.retention", "24h")
	v.SetDefault("cleanup.database", filepath.Join(DataDir(), "faultscope.db"))

	v.SetDefault("guides.file", "")
	v.SetDefault("patterns.file", "")

	// Scan defaults
	v.SetDefault("scan.snapshot_dir_pattern", "snapshot-txtlog-*")
	v.SetDefault("scan.severity_statuses", []int64{3, 4})

	v.SetDefault("log.file", filepath.Join(DataDir(), "faultscope.log"))
	v.SetDefault("debug", false)
}

// Validate checks that the configuration has valid values.
// ssh.host is checked separately by SSHConfig.Validate because commands
// that never reach the log host do not need it.
func (c *Config) Validate() error {
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 1 and 65535, got %d", c.SSH.Port)
	}
	if c.SSH.ConnectTimeout <= 0 {
		return fmt.Errorf("ssh.connect_timeout must be positive, got %v", c.SSH.ConnectTimeout)
	}

	if _, err := c.Query.ThresholdBytes(); err != nil {
		return err
	}
	if c.Query.GrepTimeout <= 0 {
		return fmt.Errorf("query.grep_timeout must be positive, got %v", c.Query.GrepTimeout)
	}
	if c.Query.MaxContextLines < 1 {
		return fmt.Errorf("query.max_context_lines must be >= 1, got %d", c.Query.MaxContextLines)
	}
	if c.Query.MaxResultsLimit < 1 {
		return fmt.Errorf("query.max_results_limit must be >= 1, got %d", c.Query.MaxResultsLimit)
	}
	if c.Query.DefaultMaxResults < 1 || c.Query.DefaultMaxResults > c.Query.MaxResultsLimit {
		return fmt.Errorf("query.default_max_results must be between 1 and %d, got %d",
			c.Query.MaxResultsLimit, c.Query.DefaultMaxResults)
	}
	if len(c.Query.Extensions) == 0 {
		return fmt.Errorf("query.extensions cannot be empty")
	}
	if c.Query.CacheDir == "" {
		return fmt.Errorf("query.cache_dir cannot be empty")
	}

	if c.Cleanup.Retention <= 0 {
		return fmt.Errorf("cleanup.retention must be positive, got %v", c.Cleanup.Retention)
	}

	if c.Scan.SnapshotDirPattern == "" {
		return fmt.Errorf("scan.snapshot_dir_pattern cannot be empty")
	}
	if _, err := filepath.Match(c.Scan.SnapshotDirPattern, ""); err != nil {
		return fmt.Errorf("scan.snapshot_dir_pattern %q: %w", c.Scan.SnapshotDirPattern, err)
	}
	if len(c.Scan.SeverityStatuses) == 0 {
		return fmt.Errorf("scan.severity_statuses cannot be empty")
	}

	return nil
}

// Validate checks the settings needed to open a connection.
func (s *SSHConfig) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("ssh.host cannot be empty (set it in the config file or FAULTSCOPE_SSH_HOST)")
	}
	if s.User == "" {
		return fmt.Errorf("ssh.user cannot be empty")
	}
	if s.KnownHostsFile == "" && !s.InsecureIgnoreHostKey {
		return fmt.Errorf("ssh.known_hosts_file is required unless ssh.insecure_ignore_host_key is set")
	}
	return nil
}

// ClientConfig converts the SSH section for sshconn. The password is
// resolved separately.
func (s *SSHConfig) ClientConfig(commandTimeout time.Duration) sshconn.Config {
	return sshconn.Config{
		Host:                  s.Host,
		Port:                  s.Port,
		User:                  s.User,
		PasswordCommand:       s.PasswordCommand,
		KeyFile:               s.KeyFile,
		KnownHostsFile:        s.KnownHostsFile,
		InsecureIgnoreHostKey: s.InsecureIgnoreHostKey,
		ConnectTimeout:        s.ConnectTimeout,
		CommandTimeout:        commandTimeout,
	}
}

// ThresholdBytes parses file_size_threshold ("10MiB", "512 KB", "1048576").
func (q *QueryConfig) ThresholdBytes() (int64, error) {
	n, err := humanize.ParseBytes(q.FileSizeThreshold)
	if err != nil {
		return 0, fmt.Errorf("query.file_size_threshold %q: %w", q.FileSizeThreshold, err)
	}
	if n == 0 || n > 1<<62 {
		return 0, fmt.Errorf("query.file_size_threshold must be positive, got %q", q.FileSizeThreshold)
	}
	return int64(n), nil
}

// EngineOptions converts the query and scan sections for the query engine.
func (c *Config) EngineOptions() (query.Options, error) {
	threshold, err := c.Query.ThresholdBytes()
	if err != nil {
		return query.Options{}, err
	}
	return query.Options{
		FileSizeThreshold:  threshold,
		GrepTimeout:        c.Query.GrepTimeout,
		MaxContextLines:    c.Query.MaxContextLines,
		MaxResultsLimit:    c.Query.MaxResultsLimit,
		DefaultMaxResults:  c.Query.DefaultMaxResults,
		Extensions:         c.Query.Extensions,
		CacheDir:           c.Query.CacheDir,
		SnapshotDirPattern: c.Scan.SnapshotDirPattern,
		SeverityStatuses:   c.Scan.SeverityStatuses,
	}, nil
}

// DataDir returns the directory holding the database and log file.
func DataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "faultscope")
	}
	return ".faultscope"
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "faultscope")
	}
	return filepath.Join(os.TempDir(), "faultscope")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

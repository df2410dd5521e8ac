package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"fswatcher/internal/mirror"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for fswatcher.
type Config struct {
	WatchPath          string `toml:"watch_path"`
	Bucket             string `toml:"bucket"` // "<bucket>[/<prefix>]"
	ConcurrencyLimit   int    `toml:"concurrency_limit"`
	AllowDelete        bool   `toml:"allow_delete"`
	UseFallback        bool   `toml:"use_fallback"`
	CheckRemoteOnStart bool   `toml:"check_remote_on_start"`
	BaseDir            string `toml:"base_dir"`
	LogDir             string `toml:"log_dir"`   // empty logs to stderr only
	LogLevel           string `toml:"log_level"` // debug, info, warn, error

	AWS        AWSConfig        `toml:"aws"`
	Backtrack  BacktrackConfig  `toml:"backtrack"`
	Poll       PollConfig       `toml:"poll"`
	Store      StoreConfig      `toml:"store"`
	Database   DatabaseConfig   `toml:"database"`
	Tags       TagsConfig       `toml:"tags"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Slack      SlackConfig      `toml:"slack"`
	Timestream TimestreamConfig `toml:"timestream"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// AWSConfig holds credentials and transport settings for the S3 store.
type AWSConfig struct {
	Region      string   `toml:"region,omitempty"`
	Profile     string   `toml:"profile,omitempty"`
	MaxAttempts int      `toml:"max_attempts"`
	SessionTTL  Duration `toml:"session_ttl"`
	Debug       bool     `toml:"debug"`

	// Static credentials; when empty the default provider chain is used.
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// BacktrackConfig controls the startup scan in push mode.
type BacktrackConfig struct {
	Enabled bool   `toml:"enabled"`
	Date    string `toml:"date,omitempty"` // YYYY-MM-DD; only files modified after it
}

// PollConfig controls pull-mode reconciliation.
type PollConfig struct {
	Interval          Duration `toml:"interval"`
	Strategy          string   `toml:"strategy"` // "snapshot" or "listing"
	Incremental       bool     `toml:"incremental"`
	SynthesizeDeletes bool     `toml:"synthesize_deletes"`
}

// StoreConfig represents configuration for the remote object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type      string   `toml:"type"`           // "s3", "filesystem" or "memory"
	Root      string   `toml:"root,omitempty"` // only used for type=filesystem
	OpTimeout Duration `toml:"op_timeout"`
}

// DatabaseConfig represents configuration for the state database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// TagsConfig lists the stat fields attached to uploaded objects.
type TagsConfig struct {
	Fields []string `toml:"fields"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// SlackConfig configures chat notifications. An empty token disables them.
type SlackConfig struct {
	Token         string  `toml:"token,omitempty"`
	Channel       string  `toml:"channel,omitempty"`
	ErrorChannel  string  `toml:"error_channel,omitempty"`
	RatePerSecond float64 `toml:"rate_per_second"`
}

// TimestreamConfig configures audit telemetry. Both fields are required to enable it.
type TimestreamConfig struct {
	Database string `toml:"database,omitempty"`
	Table    string `toml:"table,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt uploads.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Duration is a time.Duration written as a string such as "5s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	cfg := &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "fswatcher.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "fswatcher.key"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued settings that have a default.
func (c *Config) ApplyDefaults() {
	if c.ConcurrencyLimit == 0 {
		c.ConcurrencyLimit = 20
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.AWS.MaxAttempts == 0 {
		c.AWS.MaxAttempts = 5
	}
	if c.AWS.SessionTTL.Duration == 0 {
		c.AWS.SessionTTL.Duration = 15 * time.Minute
	}
	if c.Poll.Interval.Duration == 0 {
		c.Poll.Interval.Duration = 5 * time.Second
	}
	if c.Poll.Strategy == "" {
		c.Poll.Strategy = "snapshot"
	}
	if c.Store.Type == "" {
		c.Store.Type = "s3"
	}
	if c.Database.Type == "" {
		if c.BaseDir != "" {
			c.Database.Type = "sqlite"
			c.Database.Path = filepath.Join(c.BaseDir, "fswatcher.db")
		} else {
			c.Database.Type = "memory"
		}
	}
	if c.Tags.Fields == nil {
		c.Tags.Fields = append([]string(nil), mirror.DefaultTagFields...)
	}
	if c.Slack.RatePerSecond == 0 {
		c.Slack.RatePerSecond = 1
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads the config at path, or returns defaults rooted at baseDir when
// no file exists. Flags and environment can supply everything required.
func Load(path, baseDir string) (*Config, error) {
	cfg, err := ReadFromFile(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return NewConfig(baseDir), nil
	}
	return nil, err
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

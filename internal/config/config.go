package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for wfs.
type Config struct {
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	Storage      StorageConfig      `toml:"storage"`
	Compression  CompressionConfig  `toml:"compression"`
	Encryption   EncryptionConfig   `toml:"encryption"`
	Drafts       DraftsConfig       `toml:"drafts"`
	Sync         SyncConfig         `toml:"sync"`
	Autosave     AutosaveConfig     `toml:"autosave"`
	Reminders    RemindersConfig    `toml:"reminders"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
	Remote       RemoteConfig       `toml:"remote"`
	Events       EventsConfig       `toml:"events"`
}

// StorageConfig selects the KV substrate.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "sqlite", "postgres", "redis" or "s3"

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// SQLite-specific fields (only used when Type == "sqlite")
	DataDir string `toml:"data_dir,omitempty"`

	// Postgres-specific fields (only used when Type == "postgres")
	PostgresDSN   string `toml:"postgres_dsn,omitempty"`
	PostgresTable string `toml:"postgres_table,omitempty"`

	// Redis-specific fields (only used when Type == "redis")
	RedisURL    string `toml:"redis_url,omitempty"`
	RedisPrefix string `toml:"redis_prefix,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
}

// CompressionConfig selects the codec applied to stored values.
type CompressionConfig struct {
	Type string `toml:"type"` // "none" (default), "gzip", "lz4" or "brotli"
}

// EncryptionConfig holds paths to the age key pair used to encrypt stored values.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DraftsConfig holds draft retention settings.
type DraftsConfig struct {
	Retention     Duration `toml:"retention"`
	PurgeInterval Duration `toml:"purge_interval"`
}

// SyncConfig holds sync queue and scheduler settings.
type SyncConfig struct {
	DrainInterval Duration `toml:"drain_interval"`
	BackoffBase   Duration `toml:"backoff_base"`
	BackoffCap    Duration `toml:"backoff_cap"`
	MaxAttempts   int      `toml:"max_attempts"` // 0 retries forever
}

// AutosaveConfig holds autosave settings.
type AutosaveConfig struct {
	Debounce Duration `toml:"debounce"`
	JobKind  string   `toml:"job_kind"`
}

// RemindersConfig holds inactivity reminder thresholds.
type RemindersConfig struct {
	Inactivity Duration `toml:"inactivity"`
	Escalation Duration `toml:"escalation"`
}

// ConnectivityConfig selects how online/offline transitions are observed.
type ConnectivityConfig struct {
	Type       string `toml:"type"`                  // "static" (default) or "file"
	StatusFile string `toml:"status_file,omitempty"` // only used for type=file
}

// RemoteConfig selects the processor that drains the sync queue.
type RemoteConfig struct {
	Type    string   `toml:"type"` // "none" (default) or "http"
	URL     string   `toml:"url,omitempty"`
	Timeout Duration `toml:"timeout,omitempty"`
}

// EventsConfig configures the websocket event stream served by `wfs serve`.
type EventsConfig struct {
	Listen string `toml:"listen,omitempty"` // empty disables the stream
}

// Duration is a time.Duration written as a string such as "1.5s" or "72h".
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration { return Duration{d} }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// NewConfig creates a Config rooted at baseDir with every default filled in.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Storage: StorageConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Compression: CompressionConfig{Type: "none"},
		Encryption: EncryptionConfig{
			Type:           "none",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "wfs.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "wfs.key"),
		},
		Drafts: DraftsConfig{
			Retention:     D(30 * 24 * time.Hour),
			PurgeInterval: D(time.Hour),
		},
		Sync: SyncConfig{
			DrainInterval: D(10 * time.Minute),
			BackoffBase:   D(5 * time.Second),
			BackoffCap:    D(5 * time.Minute),
		},
		Autosave: AutosaveConfig{
			Debounce: D(1500 * time.Millisecond),
			JobKind:  "UPSERT_STEP",
		},
		Reminders: RemindersConfig{
			Inactivity: D(72 * time.Hour),
			Escalation: D(72 * time.Hour),
		},
		Connectivity: ConnectivityConfig{Type: "static"},
		Remote:       RemoteConfig{Type: "none", Timeout: D(30 * time.Second)},
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

// Init writes cfg to path, refusing to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

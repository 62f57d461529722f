package store

import "time"

// BackendType identifies the storage backend.
type BackendType string

const (
	BackendSQLite     BackendType = "sqlite"
	BackendPostgreSQL BackendType = "postgresql"
	BackendFile       BackendType = "file"
	BackendMemory     BackendType = "memory"
)

// Config configures where buckets live.
type Config struct {
	// Backend is the storage backend (default: "sqlite").
	Backend BackendType `yaml:"backend" toml:"backend"`

	// Dir holds the per-bucket SQLite or JSON files (default: "./data").
	Dir string `yaml:"dir" toml:"dir"`

	// CacheSize is the number of decoded keys kept in the LRU read cache
	// per bucket. Zero disables the cache.
	CacheSize int `yaml:"cache_size" toml:"cache_size"`

	// FlushInterval is how often the file backend writes to disk.
	FlushInterval time.Duration `yaml:"flush_interval" toml:"flush_interval"`

	// PostgreSQL configuration, used when Backend is "postgresql".
	PostgreSQL PostgreSQLConfig `yaml:"postgresql" toml:"postgresql"`
}

// PostgreSQLConfig holds the PostgreSQL connection settings.
type PostgreSQLConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Database string `yaml:"database" toml:"database"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns" toml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" toml:"conn_max_lifetime"`
}

// DefaultConfig returns the storage defaults.
func DefaultConfig() Config {
	return Config{
		Backend:       BackendSQLite,
		Dir:           "./data",
		CacheSize:     256,
		FlushInterval: 5 * time.Second,
	}
}

// Effective fills zero values with defaults.
func (c Config) Effective() Config {
	def := DefaultConfig()
	if c.Backend == "" {
		c.Backend = def.Backend
	}
	if c.Dir == "" {
		c.Dir = def.Dir
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	pg := &c.PostgreSQL
	if pg.Host == "" {
		pg.Host = "localhost"
	}
	if pg.Port == 0 {
		pg.Port = 5432
	}
	if pg.Database == "" {
		pg.Database = "gobot"
	}
	if pg.SSLMode == "" {
		pg.SSLMode = "disable"
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = 10
	}
	if pg.ConnMaxLifetime == 0 {
		pg.ConnMaxLifetime = 30 * time.Minute
	}
	return c
}

package config

import (
	"fmt"
	"strings"
	"time"
)

// Supported storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

const defaultStorageKey = "@GoMarketplace:products"

type StorageConfig struct {
	Backend  string         `koanf:"backend"`
	Key      string         `koanf:"key"`
	Timeout  time.Duration  `koanf:"timeout"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Redis    RedisConfig    `koanf:"redis"`
	Database DatabaseConfig `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// String returns a string representation of the storage configuration.
func (c *StorageConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Storage ---\n")
	b.WriteString(fmt.Sprintf("  backend: %s\n", c.Backend))
	b.WriteString(fmt.Sprintf("  key: %s\n", c.Key))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	switch c.Backend {
	case StorageSQLite:
		b.WriteString(fmt.Sprintf("  sqlite.path: %s\n", c.SQLite.Path))
	case StorageRedis:
		b.WriteString(fmt.Sprintf("  redis.addr: %s\n", c.Redis.Addr))
		b.WriteString(fmt.Sprintf("  redis.db: %d\n", c.Redis.DB))
		b.WriteString(fmt.Sprintf("  redis.timeout: %s\n", c.Redis.Timeout))
	case StoragePostgres:
		b.WriteString(fmt.Sprintf("  database.url: %s\n", MaskURL(c.Database.URL)))
		b.WriteString(fmt.Sprintf("  database.timeout: %s\n", c.Database.Timeout))
	}
	return b.String()
}

// Validate checks the section and fills in the storage key when it is not set.
func (c *StorageConfig) Validate() error {
	if c.Key == "" {
		c.Key = defaultStorageKey
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("storage timeout is not configured")
	}
	switch c.Backend {
	case StorageMemory:
		return nil
	case StorageSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is not configured")
		}
		return nil
	case StorageRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis address is not configured")
		}
		if c.Redis.Timeout <= 0 {
			return fmt.Errorf("redis dial timeout is not configured")
		}
		return nil
	case StoragePostgres:
		return c.Database.Validate()
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Backend)
	}
}

// MaskURL hides the credentials part of a connection URL.
func MaskURL(url string) string {
	if url == "" {
		return "<not configured>"
	}
	parts := strings.Split(url, "@")
	if len(parts) == 2 {
		return "****@" + parts[1]
	}
	return "****"
}

// Package config loads runtime settings from an optional file and
// PANELFLOW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"panelflow/internal/blob"
	"panelflow/internal/core"
	"panelflow/internal/events"
	"panelflow/internal/infra/lock"
)

// EnvPrefix is prepended to every environment key, so storage.driver is
// read from PANELFLOW_STORAGE_DRIVER.
const EnvPrefix = "PANELFLOW"

type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Blob      BlobConfig      `mapstructure:"blob"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Lock      LockConfig      `mapstructure:"lock"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type BlobConfig struct {
	Driver string       `mapstructure:"driver"`
	FSRoot string       `mapstructure:"fs_root"`
	S3     BlobS3Config `mapstructure:"s3"`
}

type BlobS3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	PathStyle       bool   `mapstructure:"path_style"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LockConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MQTTConfig leaves Broker empty to disable event publishing.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	QoS      int    `mapstructure:"qos"`
}

type ReconcileConfig struct {
	Workers int `mapstructure:"workers"`
}

var defaults = map[string]any{
	"storage.driver":            string(core.StorageSQLite),
	"sqlite.path":               "panelflow.db",
	"postgres.dsn":              "",
	"blob.driver":               string(blob.DriverFilesystem),
	"blob.fs_root":              "./archive",
	"blob.s3.bucket":            "",
	"blob.s3.region":            "",
	"blob.s3.endpoint":          "",
	"blob.s3.access_key_id":     "",
	"blob.s3.secret_access_key": "",
	"blob.s3.session_token":     "",
	"blob.s3.path_style":        false,
	"http.addr":                 ":8080",
	"http.max_upload_bytes":     32 << 20,
	"http.shutdown_timeout":     "10s",
	"log.level":                 "info",
	"log.format":                "json",
	"lock.driver":               string(lock.DriverLocal),
	"lock.ttl":                  "10s",
	"redis.addr":                "localhost:6379",
	"redis.password":            "",
	"redis.db":                  0,
	"mqtt.broker":               "",
	"mqtt.client_id":            "panelflow",
	"mqtt.username":             "",
	"mqtt.password":             "",
	"mqtt.qos":                  1,
	"reconcile.workers":         0,
}

// Load reads path when it is not empty (yaml, toml or json by extension),
// then overlays the environment. Every key has a default so a bare
// environment yields a runnable configuration.
func Load(path string) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob.driver %q", c.Blob.Driver))
	}
	switch lock.Driver(c.Lock.Driver) {
	case lock.DriverLocal:
	case lock.DriverRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis lock"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock.driver %q", c.Lock.Driver))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	if c.Reconcile.Workers < 0 {
		errs = append(errs, fmt.Errorf("reconcile.workers must not be negative, got %d", c.Reconcile.Workers))
	}
	return errors.Join(errs...)
}

// StorageSettings converts the storage section for core.OpenPersistentStore.
func (c Config) StorageSettings() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.SQLite.Path,
		PostgresDSN: c.Postgres.DSN,
	}
}

// BlobSettings converts the blob section for blob.Open.
func (c Config) BlobSettings() blob.Config {
	s3 := c.Blob.S3
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:          s3.Bucket,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
			SessionToken:    s3.SessionToken,
			PathStyle:       s3.PathStyle,
		},
	}
}

// MQTTSettings converts the mqtt section for events.DialMQTT.
func (c Config) MQTTSettings() events.MQTTConfig {
	return events.MQTTConfig{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Username: c.MQTT.Username,
		Password: c.MQTT.Password,
		QoS:      byte(c.MQTT.QoS),
	}
}

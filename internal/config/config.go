package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cron     CronConfig     `mapstructure:"cron"`
	Source   SourceConfig   `mapstructure:"source"`
	Sync     SyncConfig     `mapstructure:"sync"`
	PdfJobs  PdfJobsConfig  `mapstructure:"pdf_jobs"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CronConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	FullSync string `mapstructure:"full_sync"`
}

type SourceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SyncConfig struct {
	ChunkSize        int           `mapstructure:"chunk_size"`
	ChunkPause       time.Duration `mapstructure:"chunk_pause"`
	ProgressEvery    int           `mapstructure:"progress_every"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryBackoffBase time.Duration `mapstructure:"retry_backoff_base"`
}

type PdfJobsConfig struct {
	ExportDir string `mapstructure:"export_dir"`
}

type WorkersConfig struct {
	PoolSize int `mapstructure:"pool_size"`
}

type ConsumerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	BlockInterval time.Duration `mapstructure:"block_interval"`
	ClaimMinIdle  time.Duration `mapstructure:"claim_min_idle"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cron.enabled", false)
	v.SetDefault("cron.full_sync", "@every 1h")
	v.SetDefault("source.base_url", "https://jsonplaceholder.typicode.com")
	v.SetDefault("source.timeout", "15s")
	v.SetDefault("sync.chunk_size", 10)
	v.SetDefault("sync.chunk_pause", "100ms")
	v.SetDefault("sync.progress_every", 5)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_backoff_base", "100ms")
	v.SetDefault("pdf_jobs.export_dir", "exports")
	v.SetDefault("workers.pool_size", 4)
	v.SetDefault("consumer.enabled", true)
	v.SetDefault("consumer.block_interval", "5s")
	v.SetDefault("consumer.claim_min_idle", "1m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

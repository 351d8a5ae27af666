package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host string
	Port int
}

type TCP struct {
	Host string
	Port int
}

type DB struct {
	Driver string
	Host   string
	Port   int
	User   string
	Pass   string
	Name   string
	Path   string
}

type Sync struct {
	LivenessTimeout time.Duration
	DispatchTimeout time.Duration
	RetryDelay      time.Duration
}

type Redis struct {
	Addr string
}

type Config struct {
	HTTP  HTTP
	TCP   TCP
	DB    DB
	Sync  Sync
	Redis Redis
	JWT   struct {
		Secret string
		Issuer string
		ExpMin int
	}
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("coordinator.http.host", "127.0.0.1")
	v.SetDefault("coordinator.http.port", 9400)
	v.SetDefault("coordinator.tcp.host", "127.0.0.1")
	v.SetDefault("coordinator.tcp.port", 9200)
	v.SetDefault("coordinator.db.driver", "sqlite")
	v.SetDefault("coordinator.db.path", "folder-sync.db")
	v.SetDefault("coordinator.db.host", "127.0.0.1")
	v.SetDefault("coordinator.db.port", 3306)
	v.SetDefault("coordinator.db.user", "root")
	v.SetDefault("coordinator.db.pass", "")
	v.SetDefault("coordinator.db.name", "folder_sync")
	v.SetDefault("coordinator.sync.liveness_timeout", "90s")
	v.SetDefault("coordinator.sync.dispatch_timeout", "15s")
	v.SetDefault("coordinator.sync.retry_delay", "5s")
	v.SetDefault("coordinator.redis.addr", "")

	// A missing file just means defaults; a malformed one is fatal.
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{
		HTTP: HTTP{Host: v.GetString("coordinator.http.host"), Port: v.GetInt("coordinator.http.port")},
		TCP:  TCP{Host: v.GetString("coordinator.tcp.host"), Port: v.GetInt("coordinator.tcp.port")},
		DB: DB{
			Driver: v.GetString("coordinator.db.driver"),
			Host:   v.GetString("coordinator.db.host"),
			Port:   v.GetInt("coordinator.db.port"),
			User:   v.GetString("coordinator.db.user"),
			Pass:   v.GetString("coordinator.db.pass"),
			Name:   v.GetString("coordinator.db.name"),
			Path:   v.GetString("coordinator.db.path"),
		},
		Sync: Sync{
			LivenessTimeout: v.GetDuration("coordinator.sync.liveness_timeout"),
			DispatchTimeout: v.GetDuration("coordinator.sync.dispatch_timeout"),
			RetryDelay:      v.GetDuration("coordinator.sync.retry_delay"),
		},
		Redis: Redis{Addr: v.GetString("coordinator.redis.addr")},
	}
	cfg.JWT.Secret = v.GetString("coordinator.jwt.secret")
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "dev-secret"
	}
	cfg.JWT.Issuer = v.GetString("coordinator.jwt.issuer")
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "folder-sync"
	}
	cfg.JWT.ExpMin = v.GetInt("coordinator.jwt.exp_min")
	if cfg.JWT.ExpMin <= 0 {
		cfg.JWT.ExpMin = 60
	}
	return cfg, nil
}

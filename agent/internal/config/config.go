package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	BackendHost string
	BackendHTTP int
	BackendTCP  int

	ComputerName string
	TokenPath    string
	LogPath      string
	DBPath       string

	// Folders maps folder ID to the local directory the agent watches
	// (origin role) or mirrors (backup role).
	Folders map[string]string

	PingInterval time.Duration
}

var cfg AppConfig

func Init(path string) AppConfig {
	defaultDir := filepath.Join(os.TempDir(), "folder-sync")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("agent.backend.host", "127.0.0.1")
	v.SetDefault("agent.backend.http", 9400)
	v.SetDefault("agent.backend.tcp", 9200)
	v.SetDefault("agent.token_path", filepath.Join(defaultDir, "agent.token"))
	v.SetDefault("agent.db_path", filepath.Join(defaultDir, "agent.db"))
	v.SetDefault("agent.ping_interval", "30s")
	_ = v.ReadInConfig()

	cfg = AppConfig{
		BackendHost:  v.GetString("agent.backend.host"),
		BackendHTTP:  v.GetInt("agent.backend.http"),
		BackendTCP:   v.GetInt("agent.backend.tcp"),
		ComputerName: v.GetString("agent.computer_name"),
		TokenPath:    v.GetString("agent.token_path"),
		LogPath:      v.GetString("agent.log_path"),
		DBPath:       v.GetString("agent.db_path"),
		Folders:      v.GetStringMapString("agent.folders"),
		PingInterval: v.GetDuration("agent.ping_interval"),
	}
	if cfg.ComputerName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.ComputerName = host
		} else {
			cfg.ComputerName = "agent"
		}
	}
	return cfg
}

func Get() AppConfig { return cfg }

func TokenFilePath() string {
	if cfg.TokenPath == "" {
		return filepath.Join(os.TempDir(), "folder-sync", "agent.token")
	}
	return cfg.TokenPath
}

func BackendHTTPBase() string {
	return fmt.Sprintf("http://%s:%d", cfg.BackendHost, cfg.BackendHTTP)
}

func BackendAddr() string { return fmt.Sprintf("%s:%d", cfg.BackendHost, cfg.BackendTCP) }

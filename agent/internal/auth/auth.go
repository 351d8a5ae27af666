package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"folder-sync/agent/internal/config"
	"folder-sync/agent/internal/db"
)

var tokenValue atomic.Value // holds string

func SetCurrentToken(t string) { tokenValue.Store(t) }

func GetCurrentToken() string {
	if v := tokenValue.Load(); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func SaveToken(token string) error {
	path := config.TokenFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir token dir: %w", err)
	}
	if adb := db.Get(); adb != nil {
		_ = adb.Create(&db.Token{Value: token}).Error
	}
	SetCurrentToken(token)
	return os.WriteFile(path, []byte(token), 0o600)
}

func LoadToken() (string, error) {
	b, err := os.ReadFile(config.TokenFilePath())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func ClearToken() error {
	return os.Remove(config.TokenFilePath())
}

package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"folder-sync/agent/internal/api"
	"folder-sync/agent/internal/applier"
	"folder-sync/agent/internal/auth"
	"folder-sync/agent/internal/config"
	"folder-sync/agent/internal/connection"
	"folder-sync/agent/internal/db"
	"folder-sync/agent/internal/logger"
	"folder-sync/agent/internal/state"
	"folder-sync/agent/internal/watcher"
	"folder-sync/backend/app/dto"
)

func main() {
	var (
		cfgPath    = flag.String("config", "config/config.yaml", "Path to configuration file")
		username   = flag.String("username", "", "Account name for first login")
		password   = flag.String("password", "", "Account password for first login")
		register   = flag.Bool("register", false, "Create the account before logging in")
		maxRetries = flag.Int("max-retries", 10, "Maximum retry attempts for coordinator connection")
		retryDelay = flag.Duration("retry-delay", 1*time.Second, "Base delay between retry attempts")
	)
	flag.Parse()

	cfg := config.Init(*cfgPath)
	if err := logger.Init(cfg.LogPath); err != nil {
		os.Exit(1)
	}

	adb, err := db.Init(cfg.DBPath)
	if err != nil {
		logger.Error("Cannot open SQLite:", err)
		return
	}
	if err := adb.AutoMigrate(&db.Token{}, &db.AppliedOp{}); err != nil {
		logger.Error("Cannot migrate SQLite:", err)
		return
	}

	client := api.New(config.BackendHTTPBase())

	token, err := auth.LoadToken()
	if err != nil || token == "" {
		if *username == "" || *password == "" {
			logger.Error("No stored token; run once with -username and -password")
			return
		}
		if *register {
			if err := client.Register(*username, *password); err != nil {
				logger.Error("Account registration failed:", err)
				return
			}
		}
		tr, err := client.Login(*username, *password)
		if err != nil {
			logger.Error("Login failed:", err)
			return
		}
		token = tr.AccessToken
		if err := auth.SaveToken(token); err != nil {
			logger.Error("Cannot save token:", err)
			return
		}
	}
	auth.SetCurrentToken(token)
	state.SetToken(token)
	client.SetToken(token)

	computerID, err := loadOrRegisterComputer(client, cfg.ComputerName)
	if err != nil {
		logger.Error("Computer registration failed:", err)
		return
	}
	state.SetComputerID(computerID)
	logger.Infof("Operating as computer %s (%s)", computerID, cfg.ComputerName)

	connMgr := connection.New(cfg.BackendHost, cfg.BackendTCP, computerID, token, cfg.PingInterval)
	connMgr.SetOpHandler(applier.Apply)

	if err := connMgr.Connect(*maxRetries, *retryDelay); err != nil {
		logger.Error("Failed to establish connection:", err)
		return
	}
	defer connMgr.Close()
	connMgr.Start()

	if len(cfg.Folders) > 0 {
		w, err := watcher.New(cfg.Folders)
		if err != nil {
			logger.Error("Cannot start folder watcher:", err)
			return
		}
		defer w.Close()
		go reportChanges(client, computerID, w.Events())
	} else {
		logger.Info("No folders configured; running as backup target only")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutdown signal received, exiting...")
}

// loadOrRegisterComputer reuses the identity from a previous run when
// present; otherwise it registers a new computer and pins the ID on disk.
func loadOrRegisterComputer(client *api.Client, name string) (string, error) {
	idPath := filepath.Join(filepath.Dir(config.TokenFilePath()), "computer.id")
	if b, err := os.ReadFile(idPath); err == nil {
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	}
	resp, err := client.RegisterComputer(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(idPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(idPath, []byte(resp.ID), 0o600); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func reportChanges(client *api.Client, computerID string, events <-chan watcher.Event) {
	for evt := range events {
		req := dto.ChangeRequest{
			FolderID:   evt.FolderID,
			ComputerID: computerID,
			Kind:       evt.Kind,
			Path:       evt.Path,
			OldPath:    evt.OldPath,
			IsDir:      evt.IsDir,
			Size:       evt.Size,
		}
		seq, err := client.ReportChange(req)
		if err != nil {
			logger.Errorf("Report change %s %s failed: %v", evt.Kind, evt.Path, err)
			continue
		}
		logger.Infof("Reported %s %s as seq %d", evt.Kind, evt.Path, seq)
	}
}

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"folder-sync/backend/global"
	"folder-sync/backend/initialize"
	"folder-sync/backend/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to coordinator config file")
	flag.Parse()

	app, err := initialize.Build(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "startup failed:", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	tcpSrv, err := server.StartTCPServer(app.Cfg.TCP.Host, app.Cfg.TCP.Port, app.Hub.HandleConn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tcp listen failed:", err)
		os.Exit(1)
	}
	defer tcpSrv.Close()
	global.Logger.Info().Str("addr", tcpSrv.Addr().String()).Msg("agent socket listening")

	httpAddr := fmt.Sprintf("%s:%d", app.Cfg.HTTP.Host, app.Cfg.HTTP.Port)
	httpSrv := &http.Server{Addr: httpAddr, Handler: app.Router}
	go func() {
		global.Logger.Info().Str("addr", httpAddr).Msg("http listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			global.Logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	global.Logger.Info().Msg("shutting down")
	_ = httpSrv.Close()
}

package router

import (
	"net/http"

	"folder-sync/backend/app/controllers"
	"folder-sync/backend/app/middleware"
)

func NewRouter(authCtrl *controllers.AuthController, computerCtrl *controllers.ComputerController, folderCtrl *controllers.FolderController, syncCtrl *controllers.SyncController, mw *middleware.Auth) http.Handler {
	mux := http.NewServeMux()

	// public
	mux.HandleFunc("/auth/register", authCtrl.Register)
	mux.HandleFunc("/auth/login", authCtrl.Login)

	// fleet
	mux.Handle("/computers", mw.RequireAuth(http.HandlerFunc(computerCtrl.List)))
	mux.Handle("/computers/register", mw.RequireAuth(http.HandlerFunc(computerCtrl.Register)))
	mux.Handle("/computers/remove", mw.RequireAuth(http.HandlerFunc(computerCtrl.Remove)))

	// folder registry
	mux.Handle("/folders", mw.RequireAuth(http.HandlerFunc(folderCtrl.List)))
	mux.Handle("/folders/create", mw.RequireAuth(http.HandlerFunc(folderCtrl.Create)))
	mux.Handle("/folders/join", mw.RequireAuth(http.HandlerFunc(folderCtrl.Join)))
	mux.Handle("/folders/leave", mw.RequireAuth(http.HandlerFunc(folderCtrl.Leave)))
	mux.Handle("/folders/status", mw.RequireAuth(http.HandlerFunc(folderCtrl.Status)))
	mux.Handle("/folders/switch-origin", mw.RequireAuth(http.HandlerFunc(folderCtrl.SwitchOrigin)))

	// coordination surface
	mux.Handle("/sync/changes", mw.RequireAuth(http.HandlerFunc(syncCtrl.ReportChange)))
	mux.Handle("/sync/presence", mw.RequireAuth(http.HandlerFunc(syncCtrl.ReportPresence)))
	mux.Handle("/sync/heartbeat", mw.RequireAuth(http.HandlerFunc(syncCtrl.Heartbeat)))
	mux.Handle("/sync/ack", mw.RequireAuth(http.HandlerFunc(syncCtrl.Ack)))

	return mux
}

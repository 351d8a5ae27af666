package controllers

import (
	"encoding/json"
	"net/http"

	"folder-sync/backend/app/dto"
	"folder-sync/backend/app/middleware"
	"folder-sync/backend/app/services"
	"folder-sync/backend/app/syncer"
)

// SyncController is the coordination surface: change reports from origins,
// presence reports, heartbeats and delivery acknowledgments. Every handler
// resolves the claimed user against the computer or folder it names before
// touching coordinator state.
type SyncController struct {
	Folders   *services.FolderService
	Computers *services.ComputerService
	Presence  *syncer.Tracker
}

func NewSyncController(folders *services.FolderService, computers *services.ComputerService, presence *syncer.Tracker) *SyncController {
	return &SyncController{Folders: folders, Computers: computers, Presence: presence}
}

func (c *SyncController) ReportChange(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.ChangeRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.FolderID == "" || req.ComputerID == "" || req.Kind == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	desc := syncer.Descriptor{
		Kind:    syncer.ChangeKind(req.Kind),
		Path:    req.Path,
		OldPath: req.OldPath,
		IsDir:   req.IsDir,
		Size:    req.Size,
	}
	seq, err := c.Folders.ReportChange(claims.UserID, req.FolderID, req.ComputerID, desc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, dto.ChangeResponse{Seq: seq})
}

func (c *SyncController) ReportPresence(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.PresenceRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ComputerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Computers.Authorize(claims.UserID, req.ComputerID); err != nil {
		writeError(w, err)
		return
	}
	if req.Online {
		c.Presence.SetOnline(req.ComputerID)
	} else {
		c.Presence.SetOffline(req.ComputerID)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *SyncController) Heartbeat(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.HeartbeatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.ComputerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Computers.Authorize(claims.UserID, req.ComputerID); err != nil {
		writeError(w, err)
		return
	}
	c.Presence.Touch(req.ComputerID)
	w.WriteHeader(http.StatusNoContent)
}

// Ack confirms one delivered operation. Duplicates are harmless; an ack that
// skips past outstanding work reports the gap back to the caller.
func (c *SyncController) Ack(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.AckRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.FolderID == "" || req.ComputerID == "" || req.Seq == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Folders.Acknowledge(claims.UserID, req.FolderID, req.ComputerID, req.Seq); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

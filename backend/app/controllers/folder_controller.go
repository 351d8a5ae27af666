package controllers

import (
	"encoding/json"
	"net/http"

	"folder-sync/backend/app/dto"
	"folder-sync/backend/app/middleware"
	"folder-sync/backend/app/models"
	"folder-sync/backend/app/services"
)

type FolderController struct {
	Folders *services.FolderService
}

func NewFolderController(folders *services.FolderService) *FolderController {
	return &FolderController{Folders: folders}
}

func (c *FolderController) toResponse(f models.Folder) dto.FolderResponse {
	targets, _ := c.Folders.Targets(f.ID)
	if targets == nil {
		targets = []string{}
	}
	return dto.FolderResponse{
		ID:                f.ID,
		Name:              f.Name,
		OriginComputerID:  f.OriginComputerID,
		BackupComputers:   targets,
		IsSynced:          f.IsSynced,
		PendingOperations: f.PendingOperations,
	}
}

func (c *FolderController) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.CreateFolderRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Name == "" || req.OriginComputerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f, err := c.Folders.CreateFolder(claims.UserID, req.Name, req.OriginComputerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, c.toResponse(*f))
}

func (c *FolderController) Join(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.JoinFolderRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.FolderID == "" || req.ComputerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Folders.AddBackupTarget(claims.UserID, req.FolderID, req.ComputerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *FolderController) Leave(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.LeaveFolderRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.FolderID == "" || req.ComputerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Folders.RemoveBackupTarget(claims.UserID, req.FolderID, req.ComputerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *FolderController) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var (
		folders []models.Folder
		err     error
	)
	if computerID := r.URL.Query().Get("computer_id"); computerID != "" {
		folders, err = c.Folders.ListByComputer(claims.UserID, computerID)
	} else {
		folders, err = c.Folders.ListByUser(claims.UserID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]dto.FolderResponse, 0, len(folders))
	for _, f := range folders {
		out = append(out, c.toResponse(f))
	}
	writeJSON(w, out)
}

// Status answers with the re-derived sync state, not the cached columns.
func (c *FolderController) Status(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	st, err := c.Folders.Status(claims.UserID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, dto.StatusResponse{IsSynced: st.IsSynced, PendingOperations: st.PendingOperations, Reason: st.Reason})
}

func (c *FolderController) SwitchOrigin(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.SwitchOriginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.FolderID == "" || req.ComputerID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Folders.SwitchOrigin(claims.UserID, req.FolderID, req.ComputerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package controllers

import (
	"encoding/json"
	"net/http"

	"folder-sync/backend/app/dto"
	"folder-sync/backend/app/middleware"
	"folder-sync/backend/app/services"
)

type ComputerController struct {
	Computers *services.ComputerService
}

func NewComputerController(computers *services.ComputerService) *ComputerController {
	return &ComputerController{Computers: computers}
}

func (c *ComputerController) Register(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req dto.RegisterComputerRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Name == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	comp, err := c.Computers.Register(claims.UserID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, dto.ComputerResponse{ID: comp.ID, Name: comp.Name, Online: comp.Online, LastSeen: comp.LastSeen})
}

func (c *ComputerController) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	computers, err := c.Computers.ListByUser(claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]dto.ComputerResponse, 0, len(computers))
	for _, comp := range computers {
		out = append(out, dto.ComputerResponse{ID: comp.ID, Name: comp.Name, Online: comp.Online, LastSeen: comp.LastSeen})
	}
	writeJSON(w, out)
}

func (c *ComputerController) Remove(w http.ResponseWriter, r *http.Request) {
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
	if err := c.Computers.Remove(claims.UserID, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

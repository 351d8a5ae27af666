package dto

import "time"

type RegisterComputerRequest struct {
	Name string `json:"name"`
}

type ComputerResponse struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

package dto

// ChangeRequest is one logical edit reported by a folder's origin computer.
type ChangeRequest struct {
	FolderID   string `json:"folder_id"`
	ComputerID string `json:"computer_id"`
	Kind       string `json:"kind"`
	Path       string `json:"path,omitempty"`
	OldPath    string `json:"old_path,omitempty"`
	IsDir      bool   `json:"is_dir,omitempty"`
	Size       int64  `json:"size,omitempty"`
}

type ChangeResponse struct {
	Seq uint64 `json:"seq"`
}

type PresenceRequest struct {
	ComputerID string `json:"computer_id"`
	Online     bool   `json:"online"`
}

type HeartbeatRequest struct {
	ComputerID string `json:"computer_id"`
}

type AckRequest struct {
	FolderID   string `json:"folder_id"`
	ComputerID string `json:"computer_id"`
	Seq        uint64 `json:"seq"`
}

type StatusResponse struct {
	IsSynced          bool   `json:"is_synced"`
	PendingOperations int64  `json:"pending_operations"`
	Reason            string `json:"reason,omitempty"`
}

package dto

type CreateFolderRequest struct {
	Name             string `json:"name"`
	OriginComputerID string `json:"origin_computer_id"`
}

type JoinFolderRequest struct {
	FolderID   string `json:"folder_id"`
	ComputerID string `json:"computer_id"`
}

type LeaveFolderRequest struct {
	FolderID   string `json:"folder_id"`
	ComputerID string `json:"computer_id"`
}

type SwitchOriginRequest struct {
	FolderID   string `json:"folder_id"`
	ComputerID string `json:"computer_id"`
}

type FolderResponse struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	OriginComputerID  string   `json:"origin_computer_id"`
	BackupComputers   []string `json:"backup_computers"`
	IsSynced          bool     `json:"is_synced"`
	PendingOperations int64    `json:"pending_operations"`
}

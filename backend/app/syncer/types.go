package syncer

import "context"

// ChangeKind classifies a change reported by an origin computer.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
	ChangeRename ChangeKind = "rename"
	// ChangeFullResync tells a single target to mirror the folder from
	// scratch. Appended when a target joins and when its delivery stream
	// can no longer be trusted.
	ChangeFullResync ChangeKind = "full_resync"
)

// Descriptor describes one logical change. Metadata only; file content
// moves over a separate channel.
type Descriptor struct {
	Kind    ChangeKind `json:"kind"`
	Path    string     `json:"path,omitempty"`
	OldPath string     `json:"old_path,omitempty"`
	IsDir   bool       `json:"is_dir,omitempty"`
	Size    int64      `json:"size,omitempty"`
}

// WireOperation is the unit handed to the dispatch gateway.
type WireOperation struct {
	FolderID string     `json:"folder_id"`
	Seq      uint64     `json:"seq"`
	Desc     Descriptor `json:"desc"`
}

// Gateway delivers operations to a reachable computer. At-least-once: a nil
// return means delivered; duplicates are absorbed by idempotent
// acknowledgment on the log.
type Gateway interface {
	Send(ctx context.Context, computerID string, op WireOperation) error
}

// PairState is the per-(folder, backup target) position in the sync state
// machine.
type PairState int8

const (
	PairUnsynced PairState = iota
	PairDispatching
	PairSynced
)

func (s PairState) String() string {
	switch s {
	case PairDispatching:
		return "dispatching"
	case PairSynced:
		return "synced"
	default:
		return "unsynced"
	}
}

// Status is the best-known aggregate state of one folder.
type Status struct {
	IsSynced          bool   `json:"is_synced"`
	PendingOperations int64  `json:"pending_operations"`
	Reason            string `json:"reason,omitempty"`
}

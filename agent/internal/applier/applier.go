package applier

import (
	"encoding/json"
	"time"

	"gorm.io/gorm/clause"

	"folder-sync/agent/internal/db"
	"folder-sync/agent/internal/logger"
	"folder-sync/backend/app/syncer"
)

// Apply consumes one operation frame delivered by the coordinator and
// records it in the local ledger. Redeliveries hit the (folder, seq)
// unique index and are absorbed; the agent still acks so the coordinator
// can settle the obligation.
func Apply(folderID string, seq uint64, payload []byte) error {
	var desc syncer.Descriptor
	if err := json.Unmarshal(payload, &desc); err != nil {
		return err
	}

	if desc.Kind == syncer.ChangeFullResync {
		logger.Infof("Full resync requested for folder %s at seq %d", folderID, seq)
	}

	adb := db.Get()
	if adb == nil {
		return nil
	}

	record := db.AppliedOp{
		FolderID:  folderID,
		Seq:       seq,
		Kind:      string(desc.Kind),
		Path:      desc.Path,
		AppliedAt: time.Now(),
	}
	return adb.Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error
}

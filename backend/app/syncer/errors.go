package syncer

import "errors"

var (
	ErrInvalidOrigin    = errors.New("origin computer does not exist or does not belong to the user")
	ErrSelfBackup       = errors.New("folder cannot be backed up onto its own origin")
	ErrDuplicateBackup  = errors.New("computer is already a backup target for this folder")
	ErrUnknownFolder    = errors.New("unknown folder")
	ErrUnknownComputer  = errors.New("unknown computer")
	ErrTransportFailure = errors.New("transport failure")
	ErrSequenceGap      = errors.New("sequence gap in delivery stream")
	ErrNotSynced        = errors.New("folder has pending operations and is not fully synced")
	ErrNotBackup        = errors.New("only a backup computer can take over as origin")
)

package syncer

import (
	"sort"
	"sync"
)

type deliveryState int8

const (
	deliveryPending deliveryState = iota
	deliveryInFlight
	deliveryAcknowledged
	deliveryFailed // eligible for retry, counts as outstanding
)

type operation struct {
	seq     uint64
	desc    Descriptor
	targets map[string]deliveryState
}

type folderLog struct {
	mu      sync.Mutex
	nextSeq uint64
	ops     []*operation // ascending seq, retired once fully acknowledged
	targets map[string]struct{}
	acked   map[string]uint64 // highest acknowledged seq per target
}

// Log is the append-only record of pending change-operations, one stream per
// folder. Sequence numbers are strictly increasing from 1 and never reused.
// Each folder has its own lock; folders never contend with each other.
type Log struct {
	mu      sync.RWMutex
	folders map[string]*folderLog
}

func NewLog() *Log {
	return &Log{folders: make(map[string]*folderLog)}
}

// Track registers a folder stream. Idempotent.
func (l *Log) Track(folderID string) {
	l.mu.Lock()
	if _, ok := l.folders[folderID]; !ok {
		l.folders[folderID] = &folderLog{
			targets: make(map[string]struct{}),
			acked:   make(map[string]uint64),
		}
	}
	l.mu.Unlock()
}

func (l *Log) Drop(folderID string) {
	l.mu.Lock()
	delete(l.folders, folderID)
	l.mu.Unlock()
}

func (l *Log) folder(folderID string) (*folderLog, bool) {
	l.mu.RLock()
	fl, ok := l.folders[folderID]
	l.mu.RUnlock()
	return fl, ok
}

func (l *Log) AddTarget(folderID, computerID string) error {
	fl, ok := l.folder(folderID)
	if !ok {
		return ErrUnknownFolder
	}
	fl.mu.Lock()
	fl.targets[computerID] = struct{}{}
	fl.mu.Unlock()
	return nil
}

// RemoveTarget drops the target and purges operations destined solely for
// it. Returns how many outstanding obligations were discarded.
func (l *Log) RemoveTarget(folderID, computerID string) (int, error) {
	fl, ok := l.folder(folderID)
	if !ok {
		return 0, ErrUnknownFolder
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	delete(fl.targets, computerID)
	delete(fl.acked, computerID)
	purged := fl.purgeObligationsLocked(computerID)
	return purged, nil
}

// PurgeTarget discards a target's outstanding obligations but keeps it
// registered. Used when a delivery stream is abandoned for a full resync.
func (l *Log) PurgeTarget(folderID, computerID string) (int, error) {
	fl, ok := l.folder(folderID)
	if !ok {
		return 0, ErrUnknownFolder
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.purgeObligationsLocked(computerID), nil
}

func (fl *folderLog) purgeObligationsLocked(computerID string) int {
	purged := 0
	for _, op := range fl.ops {
		if st, ok := op.targets[computerID]; ok && st != deliveryAcknowledged {
			purged++
		}
		delete(op.targets, computerID)
	}
	fl.retireLocked()
	return purged
}

func (l *Log) Targets(folderID string) []string {
	fl, ok := l.folder(folderID)
	if !ok {
		return nil
	}
	fl.mu.Lock()
	out := make([]string, 0, len(fl.targets))
	for t := range fl.targets {
		out = append(out, t)
	}
	fl.mu.Unlock()
	sort.Strings(out)
	return out
}

// Append assigns the next sequence number and obligates every current
// backup target. Returns the sequence and the number of targets obligated.
func (l *Log) Append(folderID string, desc Descriptor) (uint64, int, error) {
	fl, ok := l.folder(folderID)
	if !ok {
		return 0, 0, ErrUnknownFolder
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.nextSeq++
	op := &operation{seq: fl.nextSeq, desc: desc, targets: make(map[string]deliveryState, len(fl.targets))}
	for t := range fl.targets {
		op.targets[t] = deliveryPending
	}
	fl.ops = append(fl.ops, op)
	return op.seq, len(op.targets), nil
}

// AppendFor obligates only the given targets (single-target full resync).
func (l *Log) AppendFor(folderID string, desc Descriptor, targets []string) (uint64, error) {
	fl, ok := l.folder(folderID)
	if !ok {
		return 0, ErrUnknownFolder
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.nextSeq++
	op := &operation{seq: fl.nextSeq, desc: desc, targets: make(map[string]deliveryState, len(targets))}
	for _, t := range targets {
		op.targets[t] = deliveryPending
	}
	fl.ops = append(fl.ops, op)
	return op.seq, nil
}

// NextPending returns up to max undelivered operations for a target in
// ascending sequence order. max <= 0 means no limit.
func (l *Log) NextPending(folderID, computerID string, max int) []WireOperation {
	fl, ok := l.folder(folderID)
	if !ok {
		return nil
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	var out []WireOperation
	for _, op := range fl.ops {
		if st, ok := op.targets[computerID]; ok && (st == deliveryPending || st == deliveryFailed) {
			out = append(out, WireOperation{FolderID: folderID, Seq: op.seq, Desc: op.desc})
			if max > 0 && len(out) >= max {
				break
			}
		}
	}
	return out
}

func (l *Log) MarkInFlight(folderID, computerID string, seq uint64) error {
	fl, ok := l.folder(folderID)
	if !ok {
		return ErrUnknownFolder
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	op := fl.findLocked(seq)
	if op == nil {
		return nil
	}
	if st, ok := op.targets[computerID]; ok && (st == deliveryPending || st == deliveryFailed) {
		op.targets[computerID] = deliveryInFlight
	}
	return nil
}

// MarkDelivered acknowledges one (target, sequence) pair. Idempotent: the
// outstanding counter moves only the first time. Acknowledging a sequence
// while an earlier one for the same target is still outstanding is a
// SequenceGap — the stream cannot be trusted past a missed operation.
func (l *Log) MarkDelivered(folderID, computerID string, seq uint64) (bool, error) {
	fl, ok := l.folder(folderID)
	if !ok {
		return false, ErrUnknownFolder
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	for _, op := range fl.ops {
		if op.seq >= seq {
			break
		}
		if st, ok := op.targets[computerID]; ok && st != deliveryAcknowledged {
			return false, ErrSequenceGap
		}
	}
	op := fl.findLocked(seq)
	if op == nil {
		// already retired; duplicate ack from an at-least-once transport
		return false, nil
	}
	st, obligated := op.targets[computerID]
	if !obligated || st == deliveryAcknowledged {
		return false, nil
	}
	op.targets[computerID] = deliveryAcknowledged
	if seq > fl.acked[computerID] {
		fl.acked[computerID] = seq
	}
	fl.retireLocked()
	return true, nil
}

// MarkFailed returns an operation to pending without touching the counter.
func (l *Log) MarkFailed(folderID, computerID string, seq uint64) error {
	fl, ok := l.folder(folderID)
	if !ok {
		return ErrUnknownFolder
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	op := fl.findLocked(seq)
	if op == nil {
		return nil
	}
	if st, ok := op.targets[computerID]; ok && st == deliveryInFlight {
		op.targets[computerID] = deliveryFailed
	}
	return nil
}

// RequeueInFlight flips every in-flight obligation for a target back to
// pending. Called when the target drops offline mid-dispatch.
func (l *Log) RequeueInFlight(folderID, computerID string) int {
	fl, ok := l.folder(folderID)
	if !ok {
		return 0
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	n := 0
	for _, op := range fl.ops {
		if st, ok := op.targets[computerID]; ok && st == deliveryInFlight {
			op.targets[computerID] = deliveryFailed
			n++
		}
	}
	return n
}

// Pending counts outstanding (operation, target) obligations for a folder.
func (l *Log) Pending(folderID string) int64 {
	fl, ok := l.folder(folderID)
	if !ok {
		return 0
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	var n int64
	for _, op := range fl.ops {
		for _, st := range op.targets {
			if st != deliveryAcknowledged {
				n++
			}
		}
	}
	return n
}

func (l *Log) HasPendingFor(folderID, computerID string) bool {
	fl, ok := l.folder(folderID)
	if !ok {
		return false
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	for _, op := range fl.ops {
		if st, ok := op.targets[computerID]; ok && st != deliveryAcknowledged {
			return true
		}
	}
	return false
}

// CaughtUp reports whether a target has acknowledged every operation it is
// obligated to receive.
func (l *Log) CaughtUp(folderID, computerID string) bool {
	return !l.HasPendingFor(folderID, computerID)
}

func (l *Log) LatestSeq(folderID string) uint64 {
	fl, ok := l.folder(folderID)
	if !ok {
		return 0
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.nextSeq
}

func (l *Log) AckedSeq(folderID, computerID string) uint64 {
	fl, ok := l.folder(folderID)
	if !ok {
		return 0
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.acked[computerID]
}

func (fl *folderLog) findLocked(seq uint64) *operation {
	for _, op := range fl.ops {
		if op.seq == seq {
			return op
		}
	}
	return nil
}

// retireLocked drops operations acknowledged by every obligated target.
func (fl *folderLog) retireLocked() {
	kept := fl.ops[:0]
	for _, op := range fl.ops {
		done := true
		for _, st := range op.targets {
			if st != deliveryAcknowledged {
				done = false
				break
			}
		}
		if !done {
			kept = append(kept, op)
		}
	}
	fl.ops = kept
}

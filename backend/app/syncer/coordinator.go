package syncer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const dispatchBatch = 32

// ProjectionStore writes the cached folder-level columns (is_synced,
// pending_operations) after every pair transition.
type ProjectionStore interface {
	UpdateSyncState(folderID string, synced bool, pending int64) error
}

type pairRuntime struct {
	state  PairState
	reason string
	cancel context.CancelFunc
	// epoch identifies the dispatch goroutine currently owning the pair;
	// a finished dispatch from an older epoch must not touch the state.
	epoch uint64
}

type folderRuntime struct {
	mu    sync.Mutex
	pairs map[string]*pairRuntime
}

// Coordinator is the state machine deciding which pending operations move to
// which online backup targets. All transitions for one folder serialize
// through that folder's lock; folders make progress independently, and
// presence fan-out never holds a lock across folders.
type Coordinator struct {
	presence *Tracker
	log      *Log
	gateway  Gateway
	store    ProjectionStore // optional
	clock    clockwork.Clock
	retry    time.Duration
	logger   zerolog.Logger

	mu       sync.Mutex
	folders  map[string]*folderRuntime
	byTarget map[string]map[string]struct{} // computer -> folders it backs up

	wg sync.WaitGroup
}

func NewCoordinator(presence *Tracker, log *Log, gateway Gateway, store ProjectionStore, clock clockwork.Clock, retry time.Duration, logger zerolog.Logger) *Coordinator {
	c := &Coordinator{
		presence: presence,
		log:      log,
		gateway:  gateway,
		store:    store,
		clock:    clock,
		retry:    retry,
		logger:   logger,
		folders:  make(map[string]*folderRuntime),
		byTarget: make(map[string]map[string]struct{}),
	}
	presence.Subscribe(c.handlePresence)
	return c
}

// TrackFolder registers a folder stream. Idempotent.
func (c *Coordinator) TrackFolder(folderID string) {
	c.log.Track(folderID)
	c.mu.Lock()
	if _, ok := c.folders[folderID]; !ok {
		c.folders[folderID] = &folderRuntime{pairs: make(map[string]*pairRuntime)}
	}
	c.mu.Unlock()
}

// DropFolder tears down all runtime state for a folder whose origin is gone.
func (c *Coordinator) DropFolder(folderID string) {
	c.mu.Lock()
	frt := c.folders[folderID]
	delete(c.folders, folderID)
	for t, set := range c.byTarget {
		delete(set, folderID)
		if len(set) == 0 {
			delete(c.byTarget, t)
		}
	}
	c.mu.Unlock()
	if frt != nil {
		frt.mu.Lock()
		for _, p := range frt.pairs {
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
		}
		frt.mu.Unlock()
	}
	c.log.Drop(folderID)
}

// AddTarget obligates a new backup computer. The target owes a full mirror
// before it counts as caught up, so a single-target full_resync operation is
// appended immediately.
func (c *Coordinator) AddTarget(folderID, computerID string) error {
	c.mu.Lock()
	frt, ok := c.folders[folderID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownFolder
	}
	set := c.byTarget[computerID]
	if set == nil {
		set = make(map[string]struct{})
		c.byTarget[computerID] = set
	}
	set[folderID] = struct{}{}
	c.mu.Unlock()

	if err := c.log.AddTarget(folderID, computerID); err != nil {
		return err
	}
	if _, err := c.log.AppendFor(folderID, Descriptor{Kind: ChangeFullResync}, []string{computerID}); err != nil {
		return err
	}
	frt.mu.Lock()
	frt.pairs[computerID] = &pairRuntime{state: PairUnsynced}
	frt.mu.Unlock()
	c.evaluate(folderID)
	return nil
}

// RemoveTarget releases a backup computer and purges the operations destined
// solely for it.
func (c *Coordinator) RemoveTarget(folderID, computerID string) error {
	c.mu.Lock()
	frt, ok := c.folders[folderID]
	if ok {
		if set := c.byTarget[computerID]; set != nil {
			delete(set, folderID)
			if len(set) == 0 {
				delete(c.byTarget, computerID)
			}
		}
	}
	c.mu.Unlock()
	if !ok {
		return ErrUnknownFolder
	}

	frt.mu.Lock()
	if p := frt.pairs[computerID]; p != nil {
		if p.cancel != nil {
			p.cancel()
			p.cancel = nil
		}
		delete(frt.pairs, computerID)
	}
	frt.mu.Unlock()

	if _, err := c.log.RemoveTarget(folderID, computerID); err != nil {
		return err
	}
	c.persist(folderID)
	return nil
}

// ReportChange appends one change-operation from the origin and kicks
// dispatch for every reachable target.
func (c *Coordinator) ReportChange(folderID string, desc Descriptor) (uint64, error) {
	seq, _, err := c.log.Append(folderID, desc)
	if err != nil {
		return 0, err
	}
	c.evaluate(folderID)
	return seq, nil
}

// Acknowledge records a confirmed delivery reported by a backup target.
func (c *Coordinator) Acknowledge(folderID, computerID string, seq uint64) error {
	_, err := c.log.MarkDelivered(folderID, computerID, seq)
	if errors.Is(err, ErrSequenceGap) {
		c.handleGap(folderID, computerID)
		return err
	}
	if err != nil {
		return err
	}
	c.evaluate(folderID)
	return nil
}

// Status re-derives the folder's aggregate state; never served from a stale
// cache.
func (c *Coordinator) Status(folderID string) (Status, error) {
	c.mu.Lock()
	frt, ok := c.folders[folderID]
	c.mu.Unlock()
	if !ok {
		return Status{}, ErrUnknownFolder
	}
	pending := c.log.Pending(folderID)
	st := Status{IsSynced: pending == 0, PendingOperations: pending}
	if st.IsSynced {
		return st, nil
	}
	frt.mu.Lock()
	ids := make([]string, 0, len(frt.pairs))
	for id := range frt.pairs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := frt.pairs[id]
		if p.state == PairSynced {
			continue
		}
		if p.reason != "" {
			st.Reason = p.reason
			break
		}
		if st.Reason == "" {
			st.Reason = p.state.String()
		}
	}
	frt.mu.Unlock()
	return st, nil
}

// PairStates reports the per-target machine states, keyed by computer ID.
func (c *Coordinator) PairStates(folderID string) map[string]PairState {
	c.mu.Lock()
	frt, ok := c.folders[folderID]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	frt.mu.Lock()
	defer frt.mu.Unlock()
	out := make(map[string]PairState, len(frt.pairs))
	for id, p := range frt.pairs {
		out[id] = p.state
	}
	return out
}

// Close cancels outstanding dispatches and waits for them to drain.
func (c *Coordinator) Close() {
	c.mu.Lock()
	frts := make([]*folderRuntime, 0, len(c.folders))
	for _, frt := range c.folders {
		frts = append(frts, frt)
	}
	c.mu.Unlock()
	for _, frt := range frts {
		frt.mu.Lock()
		for _, p := range frt.pairs {
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
		}
		frt.mu.Unlock()
	}
	c.wg.Wait()
}

func (c *Coordinator) runtime(folderID string) *folderRuntime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.folders[folderID]
}

// handlePresence fans a computer transition out to every folder it backs
// up, locking each folder independently.
func (c *Coordinator) handlePresence(computerID string, online bool) {
	c.mu.Lock()
	var ids []string
	for folderID := range c.byTarget[computerID] {
		ids = append(ids, folderID)
	}
	c.mu.Unlock()
	sort.Strings(ids)

	for _, folderID := range ids {
		if online {
			c.evaluate(folderID)
			continue
		}
		frt := c.runtime(folderID)
		if frt == nil {
			continue
		}
		frt.mu.Lock()
		if p := frt.pairs[computerID]; p != nil {
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
			if p.state != PairSynced {
				p.state = PairUnsynced
				p.reason = "target offline"
			}
		}
		frt.mu.Unlock()
		c.log.RequeueInFlight(folderID, computerID)
		c.persist(folderID)
	}
}

// evaluate walks the folder's pairs in ascending computer ID order and
// starts a dispatch for every target that is reachable and owed work.
func (c *Coordinator) evaluate(folderID string) {
	frt := c.runtime(folderID)
	if frt == nil {
		return
	}
	targets := c.log.Targets(folderID)
	frt.mu.Lock()
	for _, t := range targets {
		p := frt.pairs[t]
		if p == nil {
			p = &pairRuntime{}
			frt.pairs[t] = p
		}
		if p.state == PairDispatching {
			continue
		}
		if !c.log.HasPendingFor(folderID, t) {
			p.state = PairSynced
			p.reason = ""
			continue
		}
		if !c.presence.IsOnline(t) {
			p.state = PairUnsynced
			p.reason = "target offline"
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		p.state = PairDispatching
		p.reason = ""
		p.cancel = cancel
		p.epoch++
		c.wg.Add(1)
		go c.dispatch(ctx, folderID, t, p.epoch)
	}
	frt.mu.Unlock()
	c.persist(folderID)
}

func (c *Coordinator) dispatch(ctx context.Context, folderID, target string, epoch uint64) {
	defer c.wg.Done()
	for {
		if ctx.Err() != nil {
			c.log.RequeueInFlight(folderID, target)
			c.finishDispatch(folderID, target, epoch, PairUnsynced, "target offline")
			return
		}
		ops := c.log.NextPending(folderID, target, dispatchBatch)
		if len(ops) == 0 {
			break
		}
		for _, op := range ops {
			if ctx.Err() != nil {
				c.log.RequeueInFlight(folderID, target)
				c.finishDispatch(folderID, target, epoch, PairUnsynced, "target offline")
				return
			}
			_ = c.log.MarkInFlight(folderID, target, op.Seq)
			if err := c.gateway.Send(ctx, target, op); err != nil {
				_ = c.log.MarkFailed(folderID, target, op.Seq)
				reason := "transport failure"
				if ctx.Err() != nil {
					reason = "target offline"
				} else {
					c.scheduleRetry(folderID)
				}
				c.logger.Warn().Err(err).
					Str("folder", folderID).Str("target", target).Uint64("seq", op.Seq).
					Msg("dispatch failed, operation requeued")
				c.finishDispatch(folderID, target, epoch, PairUnsynced, reason)
				return
			}
			if _, err := c.log.MarkDelivered(folderID, target, op.Seq); errors.Is(err, ErrSequenceGap) {
				c.finishDispatch(folderID, target, epoch, PairUnsynced, "sequence gap")
				c.handleGap(folderID, target)
				return
			}
			c.persist(folderID)
		}
	}
	c.finishDispatch(folderID, target, epoch, PairSynced, "")
}

// finishDispatch releases the pair from Dispatching and re-evaluates when
// appends raced with dispatch completion. No-op when a newer dispatch has
// already taken over the pair.
func (c *Coordinator) finishDispatch(folderID, target string, epoch uint64, state PairState, reason string) {
	owner := false
	frt := c.runtime(folderID)
	if frt != nil {
		frt.mu.Lock()
		if p := frt.pairs[target]; p != nil && p.epoch == epoch {
			owner = true
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
			p.state = state
			p.reason = reason
		}
		frt.mu.Unlock()
	}
	c.persist(folderID)
	if owner && state == PairSynced && c.log.HasPendingFor(folderID, target) {
		c.evaluate(folderID)
	}
}

// handleGap abandons a target's delivery stream: partial reconciliation past
// a missed operation cannot be trusted, so outstanding obligations are
// purged and a full resync is scheduled.
func (c *Coordinator) handleGap(folderID, computerID string) {
	c.logger.Error().Str("folder", folderID).Str("target", computerID).
		Msg("sequence gap detected, scheduling full resync")
	if _, err := c.log.PurgeTarget(folderID, computerID); err != nil {
		return
	}
	_, _ = c.log.AppendFor(folderID, Descriptor{Kind: ChangeFullResync}, []string{computerID})
	if frt := c.runtime(folderID); frt != nil {
		frt.mu.Lock()
		if p := frt.pairs[computerID]; p != nil {
			if p.cancel != nil {
				p.cancel()
				p.cancel = nil
			}
			p.state = PairUnsynced
			p.reason = "sequence gap"
		}
		frt.mu.Unlock()
	}
	c.evaluate(folderID)
}

func (c *Coordinator) scheduleRetry(folderID string) {
	if c.retry <= 0 {
		return
	}
	c.clock.AfterFunc(c.retry, func() { c.evaluate(folderID) })
}

func (c *Coordinator) persist(folderID string) {
	if c.store == nil {
		return
	}
	pending := c.log.Pending(folderID)
	if err := c.store.UpdateSyncState(folderID, pending == 0, pending); err != nil {
		c.logger.Warn().Err(err).Str("folder", folderID).Msg("persist sync projection")
	}
}

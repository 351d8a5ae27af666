package syncer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// PresenceStore persists presence transitions (computers.online/last_seen).
type PresenceStore interface {
	SetPresence(computerID string, online bool, lastSeen *time.Time) error
}

type presenceEntry struct {
	online   bool
	lastSeen time.Time
}

type transition struct {
	computerID string
	online     bool
}

// Tracker owns the online/offline state of every computer. All reads and
// writes go through its contract; liveness expiry is evaluated lazily on
// read so no background timer is a correctness dependency. Subscribers are
// notified of transitions in order from a dedicated goroutine, never under
// the tracker lock.
type Tracker struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	timeout time.Duration // 0 disables lazy expiry
	entries map[string]*presenceEntry
	subs    []func(computerID string, online bool)

	store  PresenceStore // optional
	mirror *redis.Client // optional presence mirror, TTL keys
	logger zerolog.Logger

	// queued transitions, drained in order by the notifier goroutine.
	// Unbounded so announce never blocks a caller holding folder locks.
	queueMu sync.Mutex
	queue   []transition
	wake    chan struct{}

	done     chan struct{}
	closeOne sync.Once
}

func NewTracker(clock clockwork.Clock, timeout time.Duration, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		clock:    clock,
		timeout:  timeout,
		entries: make(map[string]*presenceEntry),
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go t.notifyLoop()
	return t
}

// SetStore attaches the persistence hook. Call before the tracker is shared.
func (t *Tracker) SetStore(s PresenceStore) { t.store = s }

// SetMirror attaches a redis client that mirrors reachability for other
// processes. Best effort only.
func (t *Tracker) SetMirror(c *redis.Client) { t.mirror = c }

// Subscribe registers a transition callback. Callbacks run on the notifier
// goroutine in transition order.
func (t *Tracker) Subscribe(fn func(computerID string, online bool)) {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

func (t *Tracker) Close() {
	t.closeOne.Do(func() { close(t.done) })
}

func (t *Tracker) notifyLoop() {
	for {
		select {
		case <-t.wake:
		case <-t.done:
			return
		}
		for {
			t.queueMu.Lock()
			if len(t.queue) == 0 {
				t.queueMu.Unlock()
				break
			}
			tr := t.queue[0]
			t.queue = t.queue[1:]
			t.queueMu.Unlock()

			t.mu.Lock()
			subs := make([]func(string, bool), len(t.subs))
			copy(subs, t.subs)
			t.mu.Unlock()
			for _, fn := range subs {
				fn(tr.computerID, tr.online)
			}
		}
	}
}

func (t *Tracker) SetOnline(computerID string) {
	now := t.clock.Now()
	t.mu.Lock()
	e, ok := t.entries[computerID]
	if !ok {
		e = &presenceEntry{}
		t.entries[computerID] = e
	}
	was := e.online
	e.online = true
	e.lastSeen = now
	if !was {
		t.announce(computerID, true)
	}
	t.mu.Unlock()

	t.persist(computerID, true, now)
}

// SetOffline is idempotent and records last_seen at the moment of
// transition.
func (t *Tracker) SetOffline(computerID string) {
	now := t.clock.Now()
	t.mu.Lock()
	e, ok := t.entries[computerID]
	if !ok {
		e = &presenceEntry{lastSeen: now}
		t.entries[computerID] = e
	}
	was := e.online
	e.online = false
	if was {
		e.lastSeen = now
		t.announce(computerID, false)
	}
	t.mu.Unlock()

	if was {
		t.persist(computerID, false, now)
	}
}

// Touch refreshes last_seen while a computer stays online. A touch on an
// offline computer is ignored; coming back requires SetOnline.
func (t *Tracker) Touch(computerID string) {
	now := t.clock.Now()
	t.mu.Lock()
	e, ok := t.entries[computerID]
	if ok && e.online && !t.expiredLocked(e, now) {
		e.lastSeen = now
	}
	t.mu.Unlock()
}

// IsOnline reports reachability, lazily expiring computers that have been
// silent past the liveness timeout.
func (t *Tracker) IsOnline(computerID string) bool {
	now := t.clock.Now()
	t.mu.Lock()
	e, ok := t.entries[computerID]
	if !ok {
		t.mu.Unlock()
		return false
	}
	if e.online && t.expiredLocked(e, now) {
		e.online = false
		last := e.lastSeen
		t.announce(computerID, false)
		t.mu.Unlock()
		t.persist(computerID, false, last)
		return false
	}
	online := e.online
	t.mu.Unlock()
	return online
}

func (t *Tracker) LastSeen(computerID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[computerID]
	if !ok || e.lastSeen.IsZero() {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// OnlineIDs returns the currently reachable computers in ascending ID order.
func (t *Tracker) OnlineIDs() []string {
	now := t.clock.Now()
	var expired []string
	t.mu.Lock()
	out := make([]string, 0, len(t.entries))
	for id, e := range t.entries {
		if e.online && t.expiredLocked(e, now) {
			e.online = false
			expired = append(expired, id)
			t.announce(id, false)
			continue
		}
		if e.online {
			out = append(out, id)
		}
	}
	t.mu.Unlock()
	for _, id := range expired {
		t.persist(id, false, now)
	}
	sort.Strings(out)
	return out
}

// Forget drops all state for a computer, without a transition announcement.
// Used when the computer itself is deleted.
func (t *Tracker) Forget(computerID string) {
	t.mu.Lock()
	delete(t.entries, computerID)
	t.mu.Unlock()
	if t.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = t.mirror.Del(ctx, presenceKey(computerID)).Err()
	}
}

func (t *Tracker) expiredLocked(e *presenceEntry, now time.Time) bool {
	return t.timeout > 0 && !e.lastSeen.IsZero() && now.Sub(e.lastSeen) > t.timeout
}

func (t *Tracker) announce(computerID string, online bool) {
	t.queueMu.Lock()
	t.queue = append(t.queue, transition{computerID: computerID, online: online})
	t.queueMu.Unlock()
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Tracker) persist(computerID string, online bool, lastSeen time.Time) {
	if t.store != nil {
		ls := lastSeen
		if err := t.store.SetPresence(computerID, online, &ls); err != nil {
			t.logger.Warn().Err(err).Str("computer", computerID).Msg("persist presence")
		}
	}
	if t.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		key := presenceKey(computerID)
		var err error
		if online {
			err = t.mirror.Set(ctx, key, "online", t.timeout).Err()
		} else {
			err = t.mirror.Del(ctx, key).Err()
		}
		if err != nil {
			t.logger.Debug().Err(err).Str("computer", computerID).Msg("mirror presence")
		}
	}
}

func presenceKey(computerID string) string { return "presence:" + computerID }

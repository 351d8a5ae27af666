package syncer

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(timeout time.Duration) (*Tracker, clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewTracker(clock, timeout, zerolog.Nop()), clock
}

type recordedTransition struct {
	id     string
	online bool
}

// transitionRecorder collects announcements made by the notifier goroutine.
type transitionRecorder struct {
	mu   sync.Mutex
	seen []recordedTransition
}

func (r *transitionRecorder) record(id string, online bool) {
	r.mu.Lock()
	r.seen = append(r.seen, recordedTransition{id: id, online: online})
	r.mu.Unlock()
}

func (r *transitionRecorder) snapshot() []recordedTransition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedTransition, len(r.seen))
	copy(out, r.seen)
	return out
}

func TestTrackerOnlineOffline(t *testing.T) {
	tracker, _ := newTestTracker(0)
	defer tracker.Close()

	assert.False(t, tracker.IsOnline("pc-a"))

	tracker.SetOnline("pc-a")
	assert.True(t, tracker.IsOnline("pc-a"))

	tracker.SetOffline("pc-a")
	assert.False(t, tracker.IsOnline("pc-a"))

	_, ok := tracker.LastSeen("pc-a")
	assert.True(t, ok)
}

func TestTrackerIdempotentTransitions(t *testing.T) {
	tracker, _ := newTestTracker(0)
	defer tracker.Close()

	rec := &transitionRecorder{}
	tracker.Subscribe(rec.record)

	tracker.SetOnline("pc-a")
	tracker.SetOnline("pc-a")
	tracker.SetOffline("pc-a")
	tracker.SetOffline("pc-a")

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 10*time.Millisecond)

	seen := rec.snapshot()
	assert.Equal(t, []recordedTransition{
		{id: "pc-a", online: true},
		{id: "pc-a", online: false},
	}, seen)
}

func TestTrackerOfflineUnknownComputerIsSilent(t *testing.T) {
	tracker, _ := newTestTracker(0)
	defer tracker.Close()

	rec := &transitionRecorder{}
	tracker.Subscribe(rec.record)

	tracker.SetOffline("never-seen")
	assert.False(t, tracker.IsOnline("never-seen"))

	// Allow the notifier a moment: nothing should arrive.
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestTrackerLazyExpiry(t *testing.T) {
	tracker, clock := newTestTracker(90 * time.Second)
	defer tracker.Close()

	tracker.SetOnline("pc-a")
	assert.True(t, tracker.IsOnline("pc-a"))

	clock.Advance(60 * time.Second)
	assert.True(t, tracker.IsOnline("pc-a"))

	clock.Advance(31 * time.Second)
	assert.False(t, tracker.IsOnline("pc-a"))
}

func TestTrackerTouchExtendsLiveness(t *testing.T) {
	tracker, clock := newTestTracker(90 * time.Second)
	defer tracker.Close()

	tracker.SetOnline("pc-a")
	clock.Advance(60 * time.Second)
	tracker.Touch("pc-a")
	clock.Advance(60 * time.Second)

	// 120s since SetOnline but only 60s since the touch.
	assert.True(t, tracker.IsOnline("pc-a"))

	clock.Advance(31 * time.Second)
	assert.False(t, tracker.IsOnline("pc-a"))
}

func TestTrackerTouchIgnoredWhileOffline(t *testing.T) {
	tracker, _ := newTestTracker(0)
	defer tracker.Close()

	tracker.SetOnline("pc-a")
	tracker.SetOffline("pc-a")
	tracker.Touch("pc-a")
	assert.False(t, tracker.IsOnline("pc-a"))
}

func TestTrackerOnlineIDsSortedAndExpired(t *testing.T) {
	tracker, clock := newTestTracker(90 * time.Second)
	defer tracker.Close()

	tracker.SetOnline("pc-c")
	tracker.SetOnline("pc-a")
	clock.Advance(60 * time.Second)
	tracker.SetOnline("pc-b")

	assert.Equal(t, []string{"pc-a", "pc-b", "pc-c"}, tracker.OnlineIDs())

	clock.Advance(40 * time.Second)
	// pc-a and pc-c are past the timeout; pc-b is not.
	assert.Equal(t, []string{"pc-b"}, tracker.OnlineIDs())
}

func TestTrackerForget(t *testing.T) {
	tracker, _ := newTestTracker(0)
	defer tracker.Close()

	rec := &transitionRecorder{}
	tracker.SetOnline("pc-a")
	tracker.Subscribe(rec.record)
	tracker.Forget("pc-a")

	assert.False(t, tracker.IsOnline("pc-a"))
	_, ok := tracker.LastSeen("pc-a")
	assert.False(t, ok)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestTrackerTransitionsStayOrderedUnderBurst(t *testing.T) {
	tracker, _ := newTestTracker(0)
	defer tracker.Close()

	rec := &transitionRecorder{}
	tracker.Subscribe(func(id string, online bool) {
		rec.record(id, online)
		time.Sleep(time.Millisecond) // let the producer outrun the notifier
	})

	const flips = 300
	for i := 0; i < flips; i++ {
		tracker.SetOnline("pc-a")
		tracker.SetOffline("pc-a")
	}

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2*flips
	}, 10*time.Second, 10*time.Millisecond)

	// An offline must never be observed out of order with the online that
	// preceded it, no matter how far the queue backed up.
	for i, tr := range rec.snapshot() {
		wantOnline := i%2 == 0
		require.Equal(t, wantOnline, tr.online, "transition %d inverted", i)
	}
}

type fakePresenceStore struct {
	mu    sync.Mutex
	calls []recordedTransition
}

func (f *fakePresenceStore) SetPresence(computerID string, online bool, lastSeen *time.Time) error {
	f.mu.Lock()
	f.calls = append(f.calls, recordedTransition{id: computerID, online: online})
	f.mu.Unlock()
	return nil
}

func TestTrackerPersistsTransitions(t *testing.T) {
	tracker, _ := newTestTracker(0)
	defer tracker.Close()

	store := &fakePresenceStore{}
	tracker.SetStore(store)

	tracker.SetOnline("pc-a")
	tracker.SetOnline("pc-a") // refresh, still persisted
	tracker.SetOffline("pc-a")

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.calls, 3)
	assert.True(t, store.calls[0].online)
	assert.True(t, store.calls[1].online)
	assert.False(t, store.calls[2].online)
}

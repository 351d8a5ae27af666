package socket

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	jwtutil "folder-sync/backend/app/jwt"
	"folder-sync/backend/app/syncer"
	"folder-sync/network"

	"github.com/rs/zerolog"
)

type ackKey struct {
	folder string
	seq    uint64
}

type agentConn struct {
	c       *network.TCPClient
	mu      sync.Mutex
	waiters map[ackKey]chan struct{}
}

func (a *agentConn) addWaiter(k ackKey) chan struct{} {
	ch := make(chan struct{})
	a.mu.Lock()
	a.waiters[k] = ch
	a.mu.Unlock()
	return ch
}

func (a *agentConn) dropWaiter(k ackKey) {
	a.mu.Lock()
	delete(a.waiters, k)
	a.mu.Unlock()
}

func (a *agentConn) resolve(k ackKey) bool {
	a.mu.Lock()
	ch, ok := a.waiters[k]
	if ok {
		delete(a.waiters, k)
	}
	a.mu.Unlock()
	if ok {
		close(ch)
	}
	return ok
}

// Hub keeps one TCP link per connected agent, drives the presence tracker
// from connect/disconnect/ping, and doubles as the dispatch gateway: Send
// writes an operation frame and waits for the matching ack.
type Hub struct {
	mu   sync.RWMutex
	byID map[string]*agentConn

	presence   *syncer.Tracker
	signer     *jwtutil.Signer
	ackTimeout time.Duration
	logger     zerolog.Logger

	// late acks (after the waiter timed out) land here; idempotent
	// acknowledgment on the log absorbs the duplicate accounting
	onAck func(userID, folderID, computerID string, seq uint64)

	// authorize confirms the hello computer belongs to the token's user
	authorize func(computerID, userID string) (bool, error)
}

func NewHub(presence *syncer.Tracker, signer *jwtutil.Signer, ackTimeout time.Duration, logger zerolog.Logger) *Hub {
	return &Hub{
		byID:       make(map[string]*agentConn),
		presence:   presence,
		signer:     signer,
		ackTimeout: ackTimeout,
		logger:     logger,
	}
}

// SetAckHandler wires late acknowledgments through to the coordinator.
func (h *Hub) SetAckHandler(fn func(userID, folderID, computerID string, seq uint64)) { h.onAck = fn }

// SetComputerAuth installs the ownership check run against every hello.
// Without it any valid token could register a link for any computer ID.
func (h *Hub) SetComputerAuth(fn func(computerID, userID string) (bool, error)) { h.authorize = fn }

func (h *Hub) register(computerID string, c *network.TCPClient) *agentConn {
	ac := &agentConn{c: c, waiters: make(map[ackKey]chan struct{})}
	h.mu.Lock()
	if old, ok := h.byID[computerID]; ok {
		_ = old.c.Close()
	}
	h.byID[computerID] = ac
	h.mu.Unlock()
	h.presence.SetOnline(computerID)
	return ac
}

func (h *Hub) unregister(computerID string, ac *agentConn) {
	h.mu.Lock()
	if cur, ok := h.byID[computerID]; ok && cur == ac {
		delete(h.byID, computerID)
	}
	h.mu.Unlock()
	h.presence.SetOffline(computerID)
}

func (h *Hub) IsOnline(computerID string) bool { return h.presence.IsOnline(computerID) }

func (h *Hub) OnlineComputers() []string { return h.presence.OnlineIDs() }

// HandleConn owns an accepted agent connection for its lifetime: handshake,
// then acks and pings until the link drops.
func (h *Hub) HandleConn(client *network.TCPClient) {
	defer client.Close()
	hello, err := client.Recv()
	if err != nil || hello.Type != network.MsgHello {
		_ = client.Send(network.Envelope{Type: network.MsgError, Error: "expected hello"})
		return
	}
	claims, err := h.signer.Parse(hello.Token)
	if err != nil || hello.Computer == "" {
		_ = client.Send(network.Envelope{Type: network.MsgError, Error: "authentication failed"})
		return
	}
	computerID := hello.Computer
	if h.authorize != nil {
		ok, err := h.authorize(computerID, claims.UserID)
		if err != nil || !ok {
			_ = client.Send(network.Envelope{Type: network.MsgError, Error: "authentication failed"})
			return
		}
	}
	h.logger.Info().Str("computer", computerID).Str("user", claims.UserID).Str("addr", client.RemoteAddr()).Msg("agent connected")
	ac := h.register(computerID, client)
	defer func() {
		h.unregister(computerID, ac)
		h.logger.Info().Str("computer", computerID).Msg("agent disconnected")
	}()
	_ = client.Send(network.Envelope{Type: network.MsgHelloAck})

	for {
		env, err := client.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Debug().Err(err).Str("computer", computerID).Msg("agent read failed")
			}
			return
		}
		switch env.Type {
		case network.MsgAck:
			k := ackKey{folder: env.Folder, seq: env.Seq}
			if !ac.resolve(k) && h.onAck != nil {
				h.onAck(claims.UserID, env.Folder, computerID, env.Seq)
			}
		case network.MsgPing:
			h.presence.Touch(computerID)
		default:
			h.logger.Debug().Str("computer", computerID).Str("type", string(env.Type)).Msg("unexpected frame")
		}
	}
}

// Send implements syncer.Gateway: deliver one operation and wait for the
// agent's ack. A cancelled context, a dead link or an ack timeout all count
// as transport failure; the coordinator requeues.
func (h *Hub) Send(ctx context.Context, computerID string, op syncer.WireOperation) error {
	h.mu.RLock()
	ac, ok := h.byID[computerID]
	h.mu.RUnlock()
	if !ok {
		return syncer.ErrTransportFailure
	}
	payload, err := json.Marshal(op.Desc)
	if err != nil {
		return err
	}
	k := ackKey{folder: op.FolderID, seq: op.Seq}
	ch := ac.addWaiter(k)
	defer ac.dropWaiter(k)
	if err := ac.c.Send(network.Envelope{Type: network.MsgOp, Folder: op.FolderID, Seq: op.Seq, Payload: payload}); err != nil {
		return syncer.ErrTransportFailure
	}
	timer := time.NewTimer(h.ackTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return syncer.ErrTransportFailure
	}
}

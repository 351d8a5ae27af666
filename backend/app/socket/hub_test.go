package socket

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtutil "folder-sync/backend/app/jwt"
	"folder-sync/backend/app/syncer"
	"folder-sync/network"
)

func startHub(t *testing.T) (*Hub, *syncer.Tracker, *jwtutil.Signer, int) {
	t.Helper()
	tracker := syncer.NewTracker(clockwork.NewRealClock(), 0, zerolog.Nop())
	t.Cleanup(tracker.Close)
	signer := &jwtutil.Signer{Secret: []byte("test-secret"), Issuer: "folder-sync", ExpMin: 5}
	hub := NewHub(tracker, signer, time.Second, zerolog.Nop())

	srv, err := network.ListenTCP("127.0.0.1", 0)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	go func() {
		for {
			client, err := srv.Accept()
			if err != nil {
				return
			}
			go hub.HandleConn(client)
		}
	}()
	return hub, tracker, signer, srv.Addr().(*net.TCPAddr).Port
}

func connectAgent(t *testing.T, signer *jwtutil.Signer, port int, computerID string) *network.TCPClient {
	t.Helper()
	token, err := signer.Sign("user-1", "alice")
	require.NoError(t, err)
	client, err := network.DialTCP("127.0.0.1", port)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Send(network.Envelope{Type: network.MsgHello, Token: token, Computer: computerID}))
	ack, err := client.Recv()
	require.NoError(t, err)
	require.Equal(t, network.MsgHelloAck, ack.Type)
	return client
}

func TestHubHandshakeDrivesPresence(t *testing.T) {
	_, tracker, signer, port := startHub(t)

	client := connectAgent(t, signer, port, "pc-a")
	require.Eventually(t, func() bool {
		return tracker.IsOnline("pc-a")
	}, time.Second, 5*time.Millisecond)

	client.Close()
	require.Eventually(t, func() bool {
		return !tracker.IsOnline("pc-a")
	}, time.Second, 5*time.Millisecond)
}

func TestHubRejectsBadToken(t *testing.T) {
	_, tracker, _, port := startHub(t)

	client, err := network.DialTCP("127.0.0.1", port)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(network.Envelope{Type: network.MsgHello, Token: "garbage", Computer: "pc-a"}))
	resp, err := client.Recv()
	require.NoError(t, err)
	assert.Equal(t, network.MsgError, resp.Type)
	assert.False(t, tracker.IsOnline("pc-a"))
}

func TestHubRejectsForeignComputer(t *testing.T) {
	hub, tracker, signer, port := startHub(t)
	hub.SetComputerAuth(func(computerID, userID string) (bool, error) {
		return computerID == "pc-a" && userID == "user-1", nil
	})

	client := connectAgent(t, signer, port, "pc-a")
	require.Eventually(t, func() bool {
		return tracker.IsOnline("pc-a")
	}, time.Second, 5*time.Millisecond)
	client.Close()

	// A valid token naming someone else's computer never registers a link.
	stolen, err := network.DialTCP("127.0.0.1", port)
	require.NoError(t, err)
	defer stolen.Close()
	token, err := signer.Sign("user-1", "alice")
	require.NoError(t, err)
	require.NoError(t, stolen.Send(network.Envelope{Type: network.MsgHello, Token: token, Computer: "pc-b"}))
	resp, err := stolen.Recv()
	require.NoError(t, err)
	assert.Equal(t, network.MsgError, resp.Type)
	assert.False(t, tracker.IsOnline("pc-b"))
}

func TestHubSendWaitsForAck(t *testing.T) {
	hub, _, signer, port := startHub(t)
	client := connectAgent(t, signer, port, "pc-a")

	// Agent loop: ack every operation frame.
	go func() {
		for {
			env, err := client.Recv()
			if err != nil {
				return
			}
			if env.Type == network.MsgOp {
				_ = client.Send(network.Envelope{Type: network.MsgAck, Folder: env.Folder, Seq: env.Seq})
			}
		}
	}()

	op := syncer.WireOperation{FolderID: "f1", Seq: 3, Desc: syncer.Descriptor{Kind: syncer.ChangeModify, Path: "a.txt"}}
	require.NoError(t, hub.Send(context.Background(), "pc-a", op))
}

func TestHubSendToUnknownComputerFails(t *testing.T) {
	hub, _, _, _ := startHub(t)

	op := syncer.WireOperation{FolderID: "f1", Seq: 1}
	err := hub.Send(context.Background(), "pc-zzz", op)
	assert.ErrorIs(t, err, syncer.ErrTransportFailure)
}

func TestHubSendTimesOutWithoutAck(t *testing.T) {
	hub, _, signer, port := startHub(t)
	_ = connectAgent(t, signer, port, "pc-a")
	// No ack loop on the agent side.

	op := syncer.WireOperation{FolderID: "f1", Seq: 1, Desc: syncer.Descriptor{Kind: syncer.ChangeCreate}}
	err := hub.Send(context.Background(), "pc-a", op)
	assert.ErrorIs(t, err, syncer.ErrTransportFailure)
}

func TestHubLateAckGoesToHandler(t *testing.T) {
	hub, _, signer, port := startHub(t)
	client := connectAgent(t, signer, port, "pc-a")

	type late struct {
		user     string
		folder   string
		computer string
		seq      uint64
	}
	got := make(chan late, 1)
	hub.SetAckHandler(func(userID, folderID, computerID string, seq uint64) {
		got <- late{user: userID, folder: folderID, computer: computerID, seq: seq}
	})

	// An ack with no waiter registered falls through to the handler.
	require.NoError(t, client.Send(network.Envelope{Type: network.MsgAck, Folder: "f1", Seq: 9}))

	select {
	case l := <-got:
		assert.Equal(t, late{user: "user-1", folder: "f1", computer: "pc-a", seq: 9}, l)
	case <-time.After(time.Second):
		t.Fatal("ack handler was not invoked")
	}
}

func TestHubOpPayloadCarriesDescriptor(t *testing.T) {
	hub, _, signer, port := startHub(t)
	client := connectAgent(t, signer, port, "pc-a")

	recv := make(chan network.Envelope, 1)
	go func() {
		for {
			env, err := client.Recv()
			if err != nil {
				return
			}
			if env.Type == network.MsgOp {
				recv <- env
				_ = client.Send(network.Envelope{Type: network.MsgAck, Folder: env.Folder, Seq: env.Seq})
			}
		}
	}()

	want := syncer.Descriptor{Kind: syncer.ChangeRename, Path: "b.txt", OldPath: "a.txt"}
	op := syncer.WireOperation{FolderID: "f1", Seq: 1, Desc: want}
	require.NoError(t, hub.Send(context.Background(), "pc-a", op))

	select {
	case env := <-recv:
		var got syncer.Descriptor
		require.NoError(t, json.Unmarshal(env.Payload, &got))
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("operation frame not received")
	}
}

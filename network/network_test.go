package network

import (
	"bytes"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipePair(t *testing.T) (*TCPClient, *TCPClient) {
	t.Helper()
	srv, err := ListenTCP("127.0.0.1", 0)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	type acceptResult struct {
		c   *TCPClient
		err error
	}
	acceptCh := make(chan acceptResult, 1)
	go func() {
		c, err := srv.Accept()
		acceptCh <- acceptResult{c: c, err: err}
	}()

	port := srv.Addr().(*net.TCPAddr).Port
	client, err := DialTCP("127.0.0.1", port)
	require.NoError(t, err)
	res := <-acceptCh
	require.NoError(t, res.err)
	accepted := res.c
	t.Cleanup(func() {
		client.Close()
		accepted.Close()
	})
	return client, accepted
}

func TestEnvelopeRoundTrip(t *testing.T) {
	client, server := pipePair(t)

	payload, _ := json.Marshal(map[string]string{"kind": "create", "path": "a.txt"})
	sent := Envelope{Type: MsgOp, Folder: "f1", Seq: 7, Payload: payload}
	require.NoError(t, client.Send(sent))

	got, err := server.Recv()
	require.NoError(t, err)
	assert.Equal(t, MsgOp, got.Type)
	assert.Equal(t, "f1", got.Folder)
	assert.Equal(t, uint64(7), got.Seq)
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestConcurrentSendsStayFramed(t *testing.T) {
	client, server := pipePair(t)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			_ = client.Send(Envelope{Type: MsgAck, Folder: "f1", Seq: seq})
		}(uint64(i + 1))
	}

	seen := make(map[uint64]bool)
	for i := 0; i < n; i++ {
		env, err := server.Recv()
		require.NoError(t, err)
		require.Equal(t, MsgAck, env.Type)
		assert.False(t, seen[env.Seq], "sequence delivered twice")
		seen[env.Seq] = true
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

func TestRecvRejectsOversizedFrame(t *testing.T) {
	client, server := pipePair(t)

	// A newline-free stream past the frame cap must error out instead of
	// buffering forever.
	junk := bytes.Repeat([]byte{'x'}, maxFrameSize+1)
	go func() {
		_, _ = client.conn.Write(junk)
	}()

	_, err := server.Recv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestSendRejectsOversizedEnvelope(t *testing.T) {
	client, _ := pipePair(t)

	payload := json.RawMessage(`"` + strings.Repeat("a", maxFrameSize) + `"`)
	env := Envelope{Type: MsgOp, Folder: "f1", Seq: 1, Payload: payload}
	err := client.Send(env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestRecvFailsAfterPeerClose(t *testing.T) {
	client, server := pipePair(t)

	require.NoError(t, client.Close())
	assert.False(t, client.IsOpen())

	_, err := server.Recv()
	assert.Error(t, err)
}

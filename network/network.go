// Package network carries line-framed JSON envelopes over TCP between the
// coordinator hub and agents. Framing only; what an envelope means is the
// caller's business.
package network

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

const maxFrameSize = 1 << 20 // 1MB

type TCPServer struct{ ln net.Listener }

func ListenTCP(host string, port int) (*TCPServer, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("listen tcp: %w", err)
	}
	return &TCPServer{ln: ln}, nil
}

func (s *TCPServer) Accept() (*TCPClient, error) {
	conn, err := s.ln.Accept()
	if err != nil {
		return nil, err
	}
	return newClient(conn), nil
}

func (s *TCPServer) Addr() net.Addr { return s.ln.Addr() }
func (s *TCPServer) Close() error   { return s.ln.Close() }

type TCPClient struct {
	conn   net.Conn
	wmu    sync.Mutex
	reader *bufio.Reader
	closed atomic.Bool
}

func newClient(conn net.Conn) *TCPClient {
	return &TCPClient{conn: conn, reader: bufio.NewReaderSize(conn, maxFrameSize)}
}

func DialTCP(host string, port int) (*TCPClient, error) {
	conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("dial tcp: %w", err)
	}
	return newClient(conn), nil
}

// Send writes one envelope as a single JSON line. Safe for concurrent use.
func (c *TCPClient) Send(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	data = append(data, '\n')
	if len(data) > maxFrameSize {
		return fmt.Errorf("envelope exceeds %d bytes", maxFrameSize)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

// Recv blocks until the next envelope arrives. Only one reader at a time.
// A line longer than maxFrameSize is a protocol violation; the connection
// is not recoverable after one.
func (c *TCPClient) Recv() (Envelope, error) {
	line, err := c.reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return Envelope{}, fmt.Errorf("envelope exceeds %d bytes", maxFrameSize)
	}
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func (c *TCPClient) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}

func (c *TCPClient) IsOpen() bool { return !c.closed.Load() }

func (c *TCPClient) Equal(o *TCPClient) bool { return o != nil && c.conn == o.conn }

func (c *TCPClient) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

package connection

import (
	"fmt"
	"sync"
	"time"

	"folder-sync/agent/internal/logger"
	"folder-sync/network"
)

// OpHandler processes one operation frame. A nil return acks the frame.
type OpHandler func(folderID string, seq uint64, payload []byte) error

// Manager owns the single persistent TCP link to the coordinator.
type Manager struct {
	host       string
	port       int
	computerID string
	token      string

	client *network.TCPClient
	mu     sync.Mutex

	handler      OpHandler
	pingInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(host string, port int, computerID, token string, pingInterval time.Duration) *Manager {
	return &Manager{
		host:         host,
		port:         port,
		computerID:   computerID,
		token:        token,
		pingInterval: pingInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// SetOpHandler must be called before Connect.
func (m *Manager) SetOpHandler(h OpHandler) { m.handler = h }

// Connect dials the coordinator with exponential backoff and performs the
// hello handshake.
func (m *Manager) Connect(maxRetries int, baseDelay time.Duration) error {
	const (
		maxDelay      = 30 * time.Second
		backoffFactor = 1.5
	)

	var retryCount int
	delay := baseDelay

	for {
		logger.Infof("Connecting to coordinator %s:%d (attempt #%d)...", m.host, m.port, retryCount+1)

		client, err := m.dial()
		if err != nil {
			retryCount++
			logger.Errorf("Connection attempt #%d failed: %v", retryCount, err)

			if retryCount >= maxRetries {
				return fmt.Errorf("max retries reached: %w", err)
			}

			logger.Infof("Retrying in %v...", delay)
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * backoffFactor)
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		m.mu.Lock()
		m.client = client
		m.mu.Unlock()

		logger.Info("Connected to coordinator")
		return nil
	}
}

func (m *Manager) dial() (*network.TCPClient, error) {
	client, err := network.DialTCP(m.host, m.port)
	if err != nil {
		return nil, err
	}
	hello := network.Envelope{Type: network.MsgHello, Token: m.token, Computer: m.computerID}
	if err := client.Send(hello); err != nil {
		client.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	resp, err := client.Recv()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("read hello ack: %w", err)
	}
	if resp.Type != network.MsgHelloAck {
		client.Close()
		return nil, fmt.Errorf("handshake rejected: %s", resp.Error)
	}
	return client, nil
}

// Start launches the receive loop and the ping ticker.
func (m *Manager) Start() {
	go m.receiveLoop()
	if m.pingInterval > 0 {
		go m.pingLoop()
	}
}

func (m *Manager) receiveLoop() {
	defer close(m.doneCh)

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		client := m.current()
		if client == nil {
			if !m.reconnect() {
				return
			}
			continue
		}

		env, err := client.Recv()
		if err != nil {
			logger.Errorf("Link lost: %v", err)
			m.dropClient(client)
			if !m.reconnect() {
				return
			}
			continue
		}

		switch env.Type {
		case network.MsgOp:
			m.handleOp(client, env)
		case network.MsgError:
			logger.Errorf("Coordinator error frame: %s", env.Error)
		}
	}
}

func (m *Manager) handleOp(client *network.TCPClient, env network.Envelope) {
	if m.handler != nil {
		if err := m.handler(env.Folder, env.Seq, env.Payload); err != nil {
			logger.Errorf("Apply op folder=%s seq=%d failed: %v", env.Folder, env.Seq, err)
			return
		}
	}
	ack := network.Envelope{Type: network.MsgAck, Folder: env.Folder, Seq: env.Seq}
	if err := client.Send(ack); err != nil {
		logger.Errorf("Send ack folder=%s seq=%d failed: %v", env.Folder, env.Seq, err)
	}
}

func (m *Manager) pingLoop() {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if client := m.current(); client != nil {
				if err := client.Send(network.Envelope{Type: network.MsgPing, Computer: m.computerID}); err != nil {
					logger.Warnf("Ping failed: %v", err)
				}
			}
		}
	}
}

// reconnect retries forever until stopped. Returns false when the manager
// has been closed.
func (m *Manager) reconnect() bool {
	delay := time.Second
	const maxDelay = 30 * time.Second
	for {
		select {
		case <-m.stopCh:
			return false
		case <-time.After(delay):
		}
		client, err := m.dial()
		if err == nil {
			m.mu.Lock()
			m.client = client
			m.mu.Unlock()
			logger.Info("Reconnected to coordinator")
			return true
		}
		logger.Errorf("Reconnect failed: %v", err)
		delay = time.Duration(float64(delay) * 1.5)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (m *Manager) current() *network.TCPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

func (m *Manager) dropClient(c *network.TCPClient) {
	m.mu.Lock()
	if m.client != nil && m.client.Equal(c) {
		_ = m.client.Close()
		m.client = nil
	}
	m.mu.Unlock()
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil && m.client.IsOpen()
}

func (m *Manager) Close() error {
	close(m.stopCh)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		err := m.client.Close()
		m.client = nil
		return err
	}
	return nil
}

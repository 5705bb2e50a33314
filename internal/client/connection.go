package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/station-monitor/internal/models"
)

// ErrNotConnected is returned by Send and SendBatch without a live connection
var ErrNotConnected = errors.New("not connected")

const writeWait = 10 * time.Second

// ConnectionState represents the current state of the connection
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Connection manages the WebSocket uplink to the station server
type Connection struct {
	URL       string
	AuthToken string

	conn       *websocket.Conn
	state      ConnectionState
	stateMutex sync.RWMutex
	writeMutex sync.Mutex

	logger      zerolog.Logger
	stationInfo *models.StationInfo

	reconnectInterval        time.Duration
	maxReconnectInterval     time.Duration
	currentReconnectInterval time.Duration
	pingInterval             time.Duration
	pongTimeout              time.Duration
	handshakeTimeout         time.Duration

	lastPong      time.Time
	lastPongMutex sync.RWMutex

	bufferSize func() int
	onAck      func(models.AckMessage)

	closed    chan struct{}
	closeOnce sync.Once
}

// ConnectionConfig holds configuration for the connection
type ConnectionConfig struct {
	URL                  string
	AuthToken            string
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
	HandshakeTimeout     time.Duration // defaults to 10s
}

// NewConnection creates a new connection manager
func NewConnection(config ConnectionConfig, stationInfo *models.StationInfo, logger zerolog.Logger) *Connection {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	return &Connection{
		URL:                      config.URL,
		AuthToken:                config.AuthToken,
		state:                    StateDisconnected,
		logger:                   logger,
		stationInfo:              stationInfo,
		reconnectInterval:        config.ReconnectInterval,
		maxReconnectInterval:     config.MaxReconnectInterval,
		currentReconnectInterval: config.ReconnectInterval,
		pingInterval:             config.PingInterval,
		pongTimeout:              config.PongTimeout,
		handshakeTimeout:         config.HandshakeTimeout,
		bufferSize:               func() int { return 0 },
		onAck:                    func(models.AckMessage) {},
		closed:                   make(chan struct{}),
	}
}

// SetBufferSizeFunc reports the pending sample count in heartbeats
func (c *Connection) SetBufferSizeFunc(fn func() int) {
	if fn != nil {
		c.bufferSize = fn
	}
}

// OnAck registers a callback for acknowledgements from the server.
// It runs on the read loop and must not block.
func (c *Connection) OnAck(fn func(models.AckMessage)) {
	if fn != nil {
		c.onAck = fn
	}
}

// setState safely updates the connection state
func (c *Connection) setState(state ConnectionState) {
	c.stateMutex.Lock()
	c.state = state
	c.stateMutex.Unlock()
	c.logger.Debug().Str("state", state.String()).Msg("Connection state updated")
}

// State returns the current connection state
func (c *Connection) State() ConnectionState {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.state
}

// IsConnected returns true if currently connected
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

func (c *Connection) currentConn() *websocket.Conn {
	c.stateMutex.RLock()
	defer c.stateMutex.RUnlock()
	return c.conn
}

// Connect establishes a WebSocket connection and announces the station
func (c *Connection) Connect(ctx context.Context) error {
	c.setState(StateConnecting)
	c.logger.Info().Str("url", c.URL).Msg("Connecting to server...")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.AuthToken)

	conn, resp, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		c.setState(StateDisconnected)
		if resp != nil {
			return fmt.Errorf("dial failed: %w (HTTP %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	resp.Body.Close()

	c.stateMutex.Lock()
	c.conn = conn
	c.state = StateConnected
	c.stateMutex.Unlock()

	c.currentReconnectInterval = c.reconnectInterval
	c.updateLastPong()
	c.logger.Info().Msg("Connected to server")

	if err := c.sendHeartbeat(); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send registration")
		c.disconnect()
		return err
	}
	return nil
}

// Run keeps the connection up, reconnecting with exponential backoff.
// Blocks until ctx is cancelled or Close is called.
func (c *Connection) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.Connect(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Connection failed")
			c.waitBeforeReconnect(ctx)
			continue
		}

		c.runMessageLoops(ctx)

		if ctx.Err() == nil {
			c.logger.Info().Msg("Connection lost, will reconnect")
			c.waitBeforeReconnect(ctx)
		}
	}
}

// waitBeforeReconnect waits before next reconnection attempt with exponential backoff
func (c *Connection) waitBeforeReconnect(ctx context.Context) {
	c.logger.Info().Dur("delay", c.currentReconnectInterval).Msg("Waiting before reconnect")
	timer := time.NewTimer(c.currentReconnectInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return
	}
	c.currentReconnectInterval *= 2
	if c.currentReconnectInterval > c.maxReconnectInterval {
		c.currentReconnectInterval = c.maxReconnectInterval
	}
}

// runMessageLoops runs the read and heartbeat loops until either stops,
// then drops the connection
func (c *Connection) runMessageLoops(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		c.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		c.heartbeatLoop(ctx)
	}()

	<-ctx.Done()
	// Closing the socket unblocks the reader.
	c.disconnect()
	wg.Wait()
}

// disconnect closes the WebSocket connection
func (c *Connection) disconnect() {
	c.stateMutex.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.stateMutex.Unlock()

	if conn != nil {
		conn.Close()
		c.logger.Info().Msg("Connection disconnected")
	}
}

// Send sends a single sample to the server
func (c *Connection) Send(sample *models.Sample) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	msg, err := models.NewMessage(models.MessageTypeReading, sample)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return c.sendMessage(msg)
}

// SendBatch sends multiple samples in one message
func (c *Connection) SendBatch(samples []*models.Sample) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if len(samples) == 0 {
		return nil
	}

	batch := models.BatchMessage{
		Samples: make([]models.Sample, len(samples)),
		Count:   len(samples),
	}
	for i, s := range samples {
		batch.Samples[i] = *s
	}

	msg, err := models.NewMessage(models.MessageTypeBatch, batch)
	if err != nil {
		return fmt.Errorf("failed to create batch message: %w", err)
	}
	if err := c.sendMessage(msg); err != nil {
		return err
	}
	c.logger.Debug().Int("count", len(samples)).Msg("Sent batch of samples")
	return nil
}

// sendMessage writes one message; writes are serialized
func (c *Connection) sendMessage(msg *models.Message) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// readLoop reads messages from the server
func (c *Connection) readLoop(ctx context.Context) {
	c.logger.Debug().Msg("Starting read loop")
	defer c.logger.Debug().Msg("Read loop stopped")

	conn := c.currentConn()
	if conn == nil {
		return
	}
	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("Read error")
			}
			return
		}
		c.handleMessage(&msg)
	}
}

// handleMessage processes a message received from the server
func (c *Connection) handleMessage(msg *models.Message) {
	switch msg.Type {
	case models.MessageTypeAck:
		c.updateLastPong()
		var ack models.AckMessage
		if err := msg.UnmarshalPayload(&ack); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed ack")
			return
		}
		if len(ack.Errors) > 0 {
			c.logger.Warn().Str("status", ack.Status).Strs("errors", ack.Errors).Msg("Server rejected samples")
		}
		c.onAck(ack)
	case models.MessageTypeError:
		var errMsg models.ErrorMessage
		if err := msg.UnmarshalPayload(&errMsg); err == nil {
			c.logger.Warn().Str("code", errMsg.Code).Str("msg", errMsg.Message).Msg("Server error")
		}
	default:
		c.logger.Debug().Str("type", string(msg.Type)).Msg("Unknown message type")
	}
}

// updateLastPong records that the server answered
func (c *Connection) updateLastPong() {
	c.lastPongMutex.Lock()
	defer c.lastPongMutex.Unlock()
	c.lastPong = time.Now()
}

// timeSinceLastPong returns duration since last pong
func (c *Connection) timeSinceLastPong() time.Duration {
	c.lastPongMutex.RLock()
	defer c.lastPongMutex.RUnlock()
	return time.Since(c.lastPong)
}

// heartbeatLoop sends periodic heartbeats and monitors connection health
func (c *Connection) heartbeatLoop(ctx context.Context) {
	c.logger.Debug().Msg("Starting heartbeat loop")
	defer c.logger.Debug().Msg("Heartbeat loop stopped")

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sendHeartbeat(); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to send heartbeat")
				return
			}
			if c.timeSinceLastPong() > c.pongTimeout {
				c.logger.Warn().Msg("No ack received, connection appears dead")
				return
			}
		}
	}
}

// sendHeartbeat announces the station, its uptime and pending samples
func (c *Connection) sendHeartbeat() error {
	heartbeat := models.HeartbeatMessage{
		SensorID:   c.stationInfo.ID,
		Uptime:     int64(c.stationInfo.Uptime().Seconds()),
		BufferSize: c.bufferSize(),
	}
	msg, err := models.NewMessage(models.MessageTypeHeartbeat, heartbeat)
	if err != nil {
		return err
	}
	return c.sendMessage(msg)
}

// Close gracefully shuts down the connection and stops Run
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})

	if conn := c.currentConn(); conn != nil {
		c.writeMutex.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMutex.Unlock()
	}
	c.disconnect()
	c.logger.Info().Msg("Connection closed")
	return nil
}

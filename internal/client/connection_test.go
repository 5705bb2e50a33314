package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/station-monitor/internal/models"
)

// MockWebSocketServer creates a test WebSocket server
type MockWebSocketServer struct {
	server       *httptest.Server
	upgrader     websocket.Upgrader
	mu           sync.Mutex
	connections  []*websocket.Conn
	receivedMsgs []models.Message
	shouldAccept bool
	sendAcks     bool
	closeAfterN  int // close connection after N messages
	msgCount     int
	accepted     int
}

func NewMockWebSocketServer() *MockWebSocketServer {
	mock := &MockWebSocketServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		shouldAccept: true,
		sendAcks:     true,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handleWebSocket))
	return mock
}

func (m *MockWebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	accept := m.shouldAccept
	m.mu.Unlock()
	if !accept {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	m.mu.Lock()
	m.connections = append(m.connections, conn)
	m.accepted++
	m.msgCount = 0
	m.mu.Unlock()

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		m.mu.Lock()
		m.receivedMsgs = append(m.receivedMsgs, msg)
		m.msgCount++
		count := m.msgCount
		sendAcks := m.sendAcks
		closeAfter := m.closeAfterN
		m.mu.Unlock()

		if sendAcks {
			ack := models.AckMessage{MessageID: "ack-" + string(msg.Type), Status: "ok"}
			if msg.Type == models.MessageTypeBatch {
				var batch models.BatchMessage
				msg.UnmarshalPayload(&batch)
				ack.Stored = len(batch.Samples)
			}
			ackMsg, _ := models.NewMessage(models.MessageTypeAck, ack)
			conn.WriteJSON(ackMsg)
		}

		if closeAfter > 0 && count >= closeAfter {
			return
		}
	}
}

func (m *MockWebSocketServer) URL() string {
	return "ws" + strings.TrimPrefix(m.server.URL, "http")
}

func (m *MockWebSocketServer) Close() {
	m.mu.Lock()
	for _, conn := range m.connections {
		conn.Close()
	}
	m.mu.Unlock()
	m.server.Close()
}

func (m *MockWebSocketServer) ReceivedMessages() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.receivedMsgs))
	copy(out, m.receivedMsgs)
	return out
}

func (m *MockWebSocketServer) Accepted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepted
}

func (m *MockWebSocketServer) countType(t models.MessageType) int {
	n := 0
	for _, msg := range m.ReceivedMessages() {
		if msg.Type == t {
			n++
		}
	}
	return n
}

// waitFor polls cond until it holds or the timeout passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// Helper to create test connection
func createTestConnection(serverURL string) *Connection {
	config := ConnectionConfig{
		URL:                  serverURL,
		AuthToken:            "test-token-123",
		ReconnectInterval:    100 * time.Millisecond,
		MaxReconnectInterval: 1 * time.Second,
		PingInterval:         200 * time.Millisecond,
		PongTimeout:          1 * time.Second,
	}
	info := models.NewStationInfo("test-station", "Test Lab", "simulator", "v1.0.0")
	return NewConnection(config, info, zerolog.Nop())
}

func testSample(temp float64) *models.Sample {
	return models.NewSample("test-station", map[string]float64{"temp": temp})
}

func TestNewConnection(t *testing.T) {
	conn := createTestConnection("ws://localhost/sensor-stream")

	if conn.State() != StateDisconnected {
		t.Errorf("Initial state = %v, want %v", conn.State(), StateDisconnected)
	}
	if conn.IsConnected() {
		t.Error("IsConnected should be false initially")
	}
}

func TestConnection_ConnectAndRegister(t *testing.T) {
	server := NewMockWebSocketServer()
	defer server.Close()

	conn := createTestConnection(server.URL())
	conn.SetBufferSizeFunc(func() int { return 7 })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if conn.State() != StateConnected {
		t.Errorf("State = %v, want %v", conn.State(), StateConnected)
	}

	if !waitFor(t, time.Second, func() bool { return len(server.ReceivedMessages()) >= 1 }) {
		t.Fatal("No messages received, expected registration")
	}

	msgs := server.ReceivedMessages()
	if msgs[0].Type != models.MessageTypeHeartbeat {
		t.Fatalf("First message type = %v, want %v", msgs[0].Type, models.MessageTypeHeartbeat)
	}
	var heartbeat models.HeartbeatMessage
	if err := msgs[0].UnmarshalPayload(&heartbeat); err != nil {
		t.Fatalf("Failed to unmarshal heartbeat: %v", err)
	}
	if heartbeat.SensorID != "test-station" {
		t.Errorf("Heartbeat SensorID = %v, want test-station", heartbeat.SensorID)
	}
	if heartbeat.BufferSize != 7 {
		t.Errorf("Heartbeat BufferSize = %d, want 7", heartbeat.BufferSize)
	}
}

func TestConnection_ConnectFailures(t *testing.T) {
	refusing := NewMockWebSocketServer()
	refusing.shouldAccept = false
	defer refusing.Close()

	tests := []struct {
		name string
		url  string
	}{
		{"unreachable host", "ws://invalid-url-that-does-not-exist:9999/ws"},
		{"server refuses", refusing.URL()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := createTestConnection(tt.url)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			if err := conn.Connect(ctx); err == nil {
				t.Error("Connect should fail")
			}
			if conn.IsConnected() {
				t.Error("Should not be connected after failed Connect()")
			}
		})
	}
}

func TestConnection_Send(t *testing.T) {
	server := NewMockWebSocketServer()
	defer server.Close()

	conn := createTestConnection(server.URL())
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(testSample(22.5)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return server.countType(models.MessageTypeReading) == 1 }) {
		t.Fatal("Server did not receive reading message")
	}
	for _, msg := range server.ReceivedMessages() {
		if msg.Type != models.MessageTypeReading {
			continue
		}
		var sample models.Sample
		if err := msg.UnmarshalPayload(&sample); err != nil {
			t.Fatalf("Failed to unmarshal sample: %v", err)
		}
		if sample.Values["temp"] != 22.5 || sample.SensorID != "test-station" {
			t.Errorf("Unexpected sample: %+v", sample)
		}
	}
}

func TestConnection_Send_WhenDisconnected(t *testing.T) {
	conn := createTestConnection("ws://localhost/sensor-stream")

	if err := conn.Send(testSample(22.5)); err != ErrNotConnected {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
	if err := conn.SendBatch([]*models.Sample{testSample(1)}); err != ErrNotConnected {
		t.Errorf("SendBatch error = %v, want ErrNotConnected", err)
	}
}

func TestConnection_SendBatch(t *testing.T) {
	server := NewMockWebSocketServer()
	defer server.Close()

	conn := createTestConnection(server.URL())
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Close()

	if err := conn.SendBatch(nil); err != nil {
		t.Errorf("SendBatch with no samples should not error: %v", err)
	}

	samples := []*models.Sample{testSample(22.5), testSample(23.0), testSample(23.5)}
	if err := conn.SendBatch(samples); err != nil {
		t.Fatalf("SendBatch failed: %v", err)
	}

	if !waitFor(t, time.Second, func() bool { return server.countType(models.MessageTypeBatch) == 1 }) {
		t.Fatal("Server did not receive batch message")
	}
	for _, msg := range server.ReceivedMessages() {
		if msg.Type != models.MessageTypeBatch {
			continue
		}
		var batch models.BatchMessage
		if err := msg.UnmarshalPayload(&batch); err != nil {
			t.Fatalf("Failed to unmarshal batch: %v", err)
		}
		if batch.Count != 3 || len(batch.Samples) != 3 {
			t.Errorf("Batch count = %d with %d samples, want 3", batch.Count, len(batch.Samples))
		}
		if batch.Samples[2].Values["temp"] != 23.5 {
			t.Errorf("Batch order broken: last temp = %v", batch.Samples[2].Values["temp"])
		}
	}
}

func TestConnection_ReceiveAck(t *testing.T) {
	server := NewMockWebSocketServer()
	defer server.Close()

	conn := createTestConnection(server.URL())

	var mu sync.Mutex
	var acks []models.AckMessage
	conn.OnAck(func(ack models.AckMessage) {
		mu.Lock()
		acks = append(acks, ack)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go conn.Run(ctx)

	if !waitFor(t, time.Second, conn.IsConnected) {
		t.Fatal("Should connect")
	}
	if err := conn.SendBatch([]*models.Sample{testSample(1), testSample(2)}); err != nil {
		t.Fatalf("SendBatch failed: %v", err)
	}

	ok := waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, ack := range acks {
			if ack.Stored == 2 {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Error("Batch ack with Stored=2 not delivered to OnAck")
	}
	conn.Close()
}

func TestConnection_Heartbeat(t *testing.T) {
	server := NewMockWebSocketServer()
	defer server.Close()

	conn := createTestConnection(server.URL())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := conn.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	go conn.runMessageLoops(ctx)

	// 200ms ping interval: registration plus at least two periodic heartbeats
	if !waitFor(t, 900*time.Millisecond, func() bool { return server.countType(models.MessageTypeHeartbeat) >= 3 }) {
		t.Errorf("Received %d heartbeats, expected at least 3", server.countType(models.MessageTypeHeartbeat))
	}
	conn.Close()
}

func TestConnection_PongTimeout(t *testing.T) {
	server := NewMockWebSocketServer()
	server.sendAcks = false
	defer server.Close()

	config := ConnectionConfig{
		URL:                  server.URL(),
		AuthToken:            "test-token-123",
		ReconnectInterval:    time.Second,
		MaxReconnectInterval: time.Second,
		PingInterval:         50 * time.Millisecond,
		PongTimeout:          120 * time.Millisecond,
	}
	conn := NewConnection(config, models.NewStationInfo("test", "test", "simulator", "v1.0.0"), zerolog.Nop())

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		conn.runMessageLoops(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Message loops should stop when the server stops answering")
	}
	if conn.IsConnected() {
		t.Error("Should be disconnected after pong timeout")
	}
}

func TestConnection_Reconnect_AfterDisconnect(t *testing.T) {
	server := NewMockWebSocketServer()
	server.closeAfterN = 2 // registration + 1 more
	defer server.Close()

	conn := createTestConnection(server.URL())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go conn.Run(ctx)

	if !waitFor(t, time.Second, conn.IsConnected) {
		t.Fatal("Should be connected initially")
	}

	conn.Send(testSample(22.5))

	if !waitFor(t, 2*time.Second, func() bool { return server.Accepted() >= 2 && conn.IsConnected() }) {
		t.Errorf("Should have reconnected after disconnect (accepted %d)", server.Accepted())
	}
	conn.Close()
}

func TestConnection_ExponentialBackoff(t *testing.T) {
	config := ConnectionConfig{
		URL:                  "ws://localhost:9999/invalid",
		AuthToken:            "test",
		ReconnectInterval:    50 * time.Millisecond,
		MaxReconnectInterval: 200 * time.Millisecond,
		PingInterval:         100 * time.Millisecond,
		PongTimeout:          500 * time.Millisecond,
	}
	conn := NewConnection(config, models.NewStationInfo("test", "test", "simulator", "v1.0.0"), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx) }()

	select {
	case err := <-done:
		if err != context.DeadlineExceeded {
			t.Errorf("Run returned %v, want deadline exceeded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run should return when the context ends")
	}

	if conn.IsConnected() {
		t.Error("Should not be connected to invalid server")
	}
	if conn.currentReconnectInterval != config.MaxReconnectInterval {
		t.Errorf("Backoff = %v, want capped at %v", conn.currentReconnectInterval, config.MaxReconnectInterval)
	}
}

func TestConnection_CloseStopsRun(t *testing.T) {
	server := NewMockWebSocketServer()
	defer server.Close()

	conn := createTestConnection(server.URL())
	done := make(chan error, 1)
	go func() { done <- conn.Run(context.Background()) }()

	if !waitFor(t, time.Second, conn.IsConnected) {
		t.Fatal("Should connect")
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run should return after Close")
	}
	if conn.IsConnected() {
		t.Error("Should not be connected after Close()")
	}
	if err := conn.Send(testSample(1)); err == nil {
		t.Error("Send should fail after Close()")
	}
}

func TestConnectionState_String(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{ConnectionState(9), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

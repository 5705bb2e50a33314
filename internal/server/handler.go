package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/afroash/station-monitor/internal/models"
)

// Constants for WebSocket timeouts
const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Handler manages WebSocket connections from station uplinks
type Handler struct {
	upgrader       websocket.Upgrader
	authToken      string
	store          ReadingStore
	metrics        *Metrics
	logger         zerolog.Logger
	activeSensors  map[string]*SensorConnection
	connToSensorID map[string]string // Maps conn.RemoteAddr().String() to actual sensor ID
	allowedOrigins []string
	mutex          sync.RWMutex
	now            func() time.Time
}

// SensorConnection represents an active uplink connection
type SensorConnection struct {
	SensorID    string          `json:"sensor_id"`
	Conn        *websocket.Conn `json:"-"`
	LastSeen    time.Time       `json:"last_seen"`
	ConnectedAt time.Time       `json:"connected_at"`
}

// NewHandler creates a new WebSocket handler
func NewHandler(authToken string, store ReadingStore, metrics *Metrics, logger zerolog.Logger, allowedOrigins ...string) *Handler {
	h := &Handler{
		authToken:      authToken,
		store:          store,
		metrics:        metrics,
		logger:         logger,
		activeSensors:  make(map[string]*SensorConnection),
		connToSensorID: make(map[string]string),
		allowedOrigins: allowedOrigins,
		now:            time.Now,
	}

	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}

	return h
}

// checkOrigin validates the incoming request's Origin against the configured allowlist.
// Requests without an Origin header are treated as same-origin.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range h.allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	h.logger.Warn().Str("origin", origin).Msg("Rejected WebSocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles WebSocket connection requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected format: "Bearer <token>"
	if !h.validateToken(r.Header.Get("Authorization")) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	h.handleConnection(conn)
}

// validateToken checks if the auth token is valid
func (h *Handler) validateToken(authHeader string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	return strings.TrimPrefix(authHeader, "Bearer ") == h.authToken
}

// handleConnection manages a single WebSocket connection
func (h *Handler) handleConnection(conn *websocket.Conn) {
	connKey := conn.RemoteAddr().String()
	now := h.now()
	sensorConn := &SensorConnection{
		SensorID:    connKey, // replaced by the heartbeat's sensor ID
		Conn:        conn,
		LastSeen:    now,
		ConnectedAt: now,
	}

	h.mutex.Lock()
	h.activeSensors[connKey] = sensorConn
	h.mutex.Unlock()
	h.metrics.ActiveStreams.Inc()

	defer conn.Close()
	defer h.removeSensor(connKey)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
		h.handleMessage(conn, connKey, &msg)
	}
}

// handleMessage processes one message and acknowledges it
func (h *Handler) handleMessage(conn *websocket.Conn, connKey string, msg *models.Message) {
	h.logger.Debug().Str("type", string(msg.Type)).Msg("Received message")
	h.metrics.StreamMessages.WithLabelValues(string(msg.Type)).Inc()
	h.updateSensorLastSeen(connKey)

	ack := models.AckMessage{MessageID: uuid.NewString(), Status: "ok"}

	switch msg.Type {
	case models.MessageTypeReading:
		var sample models.Sample
		if err := msg.UnmarshalPayload(&sample); err != nil {
			ack.Errors = append(ack.Errors, fmt.Sprintf("invalid reading payload: %v", err))
			break
		}
		if err := h.storeSample(connKey, &sample); err != nil {
			ack.Errors = append(ack.Errors, err.Error())
		} else {
			ack.Stored++
		}
	case models.MessageTypeBatch:
		var batch models.BatchMessage
		if err := msg.UnmarshalPayload(&batch); err != nil {
			ack.Errors = append(ack.Errors, fmt.Sprintf("invalid batch payload: %v", err))
			break
		}
		for i := range batch.Samples {
			if err := h.storeSample(connKey, &batch.Samples[i]); err != nil {
				ack.Errors = append(ack.Errors, fmt.Sprintf("sample %d: %v", i, err))
				continue
			}
			ack.Stored++
		}
		h.logger.Info().Int("count", len(batch.Samples)).Int("stored", ack.Stored).Msg("Batch stored")
	case models.MessageTypeHeartbeat:
		h.handleHeartbeat(connKey, msg)
	default:
		h.logger.Warn().Str("type", string(msg.Type)).Msg("Unknown message type")
		ack.Errors = append(ack.Errors, fmt.Sprintf("unknown message type %q", msg.Type))
	}

	if len(ack.Errors) > 0 {
		ack.Status = "error"
		if ack.Stored > 0 {
			ack.Status = "partial"
		}
	}
	h.sendAck(conn, ack)
}

// storeSample appends one sample. Samples without a capture time are
// stamped on arrival.
func (h *Handler) storeSample(connKey string, sample *models.Sample) error {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = h.now()
	}
	if sample.SensorID == "" {
		sample.SensorID = h.sensorID(connKey)
	}

	if _, err := h.store.AppendSample(sample); err != nil {
		result := ResultFailed
		if isValidation(err) {
			result = ResultRejected
		} else {
			h.metrics.AppendFailures.Inc()
		}
		h.metrics.Ingested.WithLabelValues(SourceWebSocket, result).Inc()
		h.logger.Warn().Err(err).Str("sensor_id", sample.SensorID).Msg("Reading not stored")
		return err
	}

	h.metrics.Ingested.WithLabelValues(SourceWebSocket, ResultStored).Inc()
	h.logger.Debug().Str("sensor_id", sample.SensorID).Time("timestamp", sample.Timestamp).Msg("Reading stored")
	return nil
}

// handleHeartbeat processes a heartbeat message
func (h *Handler) handleHeartbeat(connKey string, msg *models.Message) {
	var heartbeat models.HeartbeatMessage
	if err := msg.UnmarshalPayload(&heartbeat); err != nil {
		h.logger.Error().Err(err).Msg("Failed to unmarshal heartbeat")
		return
	}

	if heartbeat.SensorID != "" {
		h.mutex.Lock()
		if existingID, exists := h.connToSensorID[connKey]; !exists || existingID != heartbeat.SensorID {
			h.connToSensorID[connKey] = heartbeat.SensorID
			if sensor, ok := h.activeSensors[connKey]; ok {
				sensor.SensorID = heartbeat.SensorID
			}
		}
		h.mutex.Unlock()
	}

	h.logger.Debug().
		Str("sensor_id", heartbeat.SensorID).
		Int64("uptime", heartbeat.Uptime).
		Int("buffer_size", heartbeat.BufferSize).
		Msg("Heartbeat received")
}

// sendAck sends an acknowledgment message
func (h *Handler) sendAck(conn *websocket.Conn, ack models.AckMessage) {
	msg, err := models.NewMessage(models.MessageTypeAck, ack)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to create ack message")
		return
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send ack")
	}
}

// sensorID returns the sensor ID announced on a connection, or its address
func (h *Handler) sensorID(connKey string) string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if id, ok := h.connToSensorID[connKey]; ok {
		return id
	}
	return connKey
}

// updateSensorLastSeen updates the last seen timestamp for a sensor
func (h *Handler) updateSensorLastSeen(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if sensor, exists := h.activeSensors[connKey]; exists {
		sensor.LastSeen = h.now()
	}
}

// removeSensor removes a sensor from the active sensors map
func (h *Handler) removeSensor(connKey string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	sensorID := connKey
	if realID, exists := h.connToSensorID[connKey]; exists {
		sensorID = realID
	}
	delete(h.activeSensors, connKey)
	delete(h.connToSensorID, connKey)
	h.metrics.ActiveStreams.Dec()
	h.logger.Info().Str("sensor_id", sensorID).Msg("Sensor disconnected")
}

// GetActiveSensors returns a list of currently connected sensors
func (h *Handler) GetActiveSensors() []SensorConnection {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	sensors := make([]SensorConnection, 0, len(h.activeSensors))
	for _, sensor := range h.activeSensors {
		sensors = append(sensors, *sensor)
	}
	return sensors
}

// ActiveCount returns the number of connected uplinks
func (h *Handler) ActiveCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.activeSensors)
}

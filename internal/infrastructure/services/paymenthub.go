package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

// SSEConn is one client streaming payment events.
type SSEConn struct {
	ID          string
	SessionID   string // empty receives every session
	Send        chan []byte
	ConnectedAt time.Time
	closed      atomic.Bool
}

// TrySend attempts to send data to the SSE connection.
// Returns false if the channel is closed or full.
func (c *SSEConn) TrySend(data []byte) (sent bool) {
	if c.closed.Load() {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			sent = false
		}
	}()

	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Close marks the connection as closed and closes the send channel.
func (c *SSEConn) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.Send)
	}
}

func (c *SSEConn) shouldReceive(sessionID string) bool {
	return c.SessionID == "" || strings.EqualFold(c.SessionID, sessionID)
}

// PaymentHub fans payment outcome events out to SSE connections.
type PaymentHub struct {
	conns   map[string]*SSEConn
	connsMu sync.RWMutex

	perSession map[string]int

	maxConns           int
	maxConnsPerSession int
	shutdown           atomic.Bool

	logger logger.Interface
}

// PaymentHubConfig holds connection limits.
type PaymentHubConfig struct {
	MaxConns           int // default 1000
	MaxConnsPerSession int // default 5
}

func NewPaymentHub(log logger.Interface, config *PaymentHubConfig) *PaymentHub {
	maxConns, perSession := 1000, 5
	if config != nil {
		if config.MaxConns > 0 {
			maxConns = config.MaxConns
		}
		if config.MaxConnsPerSession > 0 {
			perSession = config.MaxConnsPerSession
		}
	}
	return &PaymentHub{
		conns:              make(map[string]*SSEConn),
		perSession:         make(map[string]int),
		maxConns:           maxConns,
		maxConnsPerSession: perSession,
		logger:             log,
	}
}

// RegisterConn returns nil when a limit is reached or the hub is shut down.
func (h *PaymentHub) RegisterConn(connID, sessionID string) *SSEConn {
	if h.shutdown.Load() {
		return nil
	}
	sessionID = strings.ToLower(sessionID)

	h.connsMu.Lock()
	defer h.connsMu.Unlock()

	if len(h.conns) >= h.maxConns || h.perSession[sessionID] >= h.maxConnsPerSession {
		h.logger.Warnw("SSE connection limit exceeded",
			"session_id", sessionID,
			"total", len(h.conns),
		)
		return nil
	}

	conn := &SSEConn{
		ID:          connID,
		SessionID:   sessionID,
		Send:        make(chan []byte, 64),
		ConnectedAt: biztime.NowUTC(),
	}
	h.conns[connID] = conn
	h.perSession[sessionID]++

	h.logger.Infow("SSE connection registered", "conn_id", connID, "session_id", sessionID)
	return conn
}

func (h *PaymentHub) UnregisterConn(connID string) {
	h.connsMu.Lock()
	conn, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
		if h.perSession[conn.SessionID]--; h.perSession[conn.SessionID] <= 0 {
			delete(h.perSession, conn.SessionID)
		}
	}
	h.connsMu.Unlock()

	if ok {
		conn.Close()
		h.logger.Infow("SSE connection unregistered", "conn_id", connID)
	}
}

// Broadcast sends event to every connection following its session.
func (h *PaymentHub) Broadcast(event relay.PaymentEvent) {
	data, err := formatSSEEvent(event)
	if err != nil {
		h.logger.Errorw("failed to format SSE event", "payment_id", event.PaymentID, "error", err)
		return
	}

	h.connsMu.RLock()
	defer h.connsMu.RUnlock()

	for _, conn := range h.conns {
		if !conn.shouldReceive(event.SessionID) {
			continue
		}
		if !conn.TrySend(data) {
			h.logger.Warnw("failed to send SSE event, channel full",
				"conn_id", conn.ID,
				"payment_id", event.PaymentID,
			)
		}
	}
}

// Shutdown closes every connection. Safe to call multiple times.
func (h *PaymentHub) Shutdown() {
	if !h.shutdown.CompareAndSwap(false, true) {
		return
	}

	h.connsMu.Lock()
	for _, conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[string]*SSEConn)
	h.perSession = make(map[string]int)
	h.connsMu.Unlock()
}

func (h *PaymentHub) GetConnCount() int {
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	return len(h.conns)
}

// formatSSEEvent renders "event: payment.<status>\ndata: <json>\n\n".
func formatSSEEvent(event relay.PaymentEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: payment.%s\ndata: %s\n\n", event.Status, data)), nil
}

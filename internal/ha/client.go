// Package ha is a small Home Assistant websocket client, used to mirror the
// day/night state to an input_boolean.
package ha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultTimeout bounds the wait for a response
const DefaultTimeout = 10 * time.Second

// ErrNotConnected is returned by requests sent while disconnected
var ErrNotConnected = errors.New("not connected")

// HAClient is the part of the Home Assistant API the switchers need
type HAClient interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	GetState(ctx context.Context, entityID string) (*State, error)
	CallService(ctx context.Context, domain, service string, data map[string]interface{}) error
	SetInputBoolean(ctx context.Context, name string, value bool) error
}

// Client implements HAClient over the websocket API
type Client struct {
	url     string
	token   string
	timeout time.Duration
	logger  *zap.Logger

	conn      *websocket.Conn
	connected bool
	connMu    sync.RWMutex
	writeMu   sync.Mutex

	msgID   int
	msgIDMu sync.Mutex

	pending   map[int]chan Message
	pendingMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	reconnect bool
}

// NewClient creates a client for the websocket URL, for example
// ws://homeassistant.local:8123/api/websocket
func NewClient(url, token string, logger *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:     url,
		token:   token,
		timeout: DefaultTimeout,
		logger:  logger.Named("ha"),
		pending: make(map[int]chan Message),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetTimeout changes how long requests wait for a response
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Connect dials and authenticates. A lost connection is re-established in
// the background until Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.connected {
		return fmt.Errorf("already connected")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	version, err := c.authenticate(conn)
	if err != nil {
		conn.Close()
		return err
	}

	c.conn = conn
	if c.cancel != nil {
		c.cancel()
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.connected = true
	c.reconnect = true
	c.logger.Info("Connected to Home Assistant", zap.String("version", version))

	go c.receiveMessages(c.ctx, conn)
	return nil
}

func (c *Client) authenticate(conn *websocket.Conn) (string, error) {
	var authRequired Message
	if err := conn.ReadJSON(&authRequired); err != nil {
		return "", fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != "auth_required" {
		return "", fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	c.writeMu.Lock()
	err := conn.WriteJSON(AuthMessage{Type: "auth", AccessToken: c.token})
	c.writeMu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := conn.ReadJSON(&authResponse); err != nil {
		return "", fmt.Errorf("failed to read auth response: %w", err)
	}
	switch authResponse.Type {
	case "auth_ok":
		return authResponse.HAVersion, nil
	case "auth_invalid":
		return "", fmt.Errorf("authentication failed: invalid token")
	default:
		return "", fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}
}

// Disconnect closes the connection and stops reconnecting
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.reconnect = false
	c.cancel()

	if !c.connected {
		return nil
	}
	c.connected = false

	if c.conn != nil {
		c.writeMu.Lock()
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		c.conn.Close()
		c.conn = nil
	}

	c.logger.Info("Disconnected from Home Assistant")
	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

func (c *Client) nextMsgID() int {
	c.msgIDMu.Lock()
	defer c.msgIDMu.Unlock()
	c.msgID++
	return c.msgID
}

// sendMessage sends a request and waits for the response with the same id
func (c *Client) sendMessage(ctx context.Context, req request) (*Message, error) {
	c.connMu.RLock()
	conn := c.conn
	connected := c.connected
	clientCtx := c.ctx
	c.connMu.RUnlock()

	if !connected || conn == nil {
		return nil, ErrNotConnected
	}

	msgID := req.messageID()
	respChan := make(chan Message, 1)
	c.pendingMu.Lock()
	c.pending[msgID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msgID)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err := conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		if resp.Success != nil && !*resp.Success {
			if resp.Error != nil {
				return nil, fmt.Errorf("HA error: %s - %s", resp.Error.Code, resp.Error.Message)
			}
			return nil, fmt.Errorf("request failed")
		}
		return &resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("timeout waiting for response")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-clientCtx.Done():
		return nil, fmt.Errorf("client disconnected")
	}
}

// receiveMessages routes responses to the waiting requests
func (c *Client) receiveMessages(ctx context.Context, conn *websocket.Conn) {
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			c.handleDisconnect(conn)
			return
		}

		if msg.ID <= 0 {
			continue
		}

		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.ID]; ok {
			select {
			case ch <- msg:
			default:
				c.logger.Warn("Response channel full", zap.Int("msg_id", msg.ID))
			}
		}
		c.pendingMu.Unlock()
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn != conn {
		c.connMu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	conn.Close()
	reconnect := c.reconnect
	ctx := c.ctx
	c.connMu.Unlock()

	c.logger.Warn("Connection lost")

	if reconnect {
		go c.attemptReconnect(ctx)
	}
}

// attemptReconnect tries to reconnect with exponential backoff
func (c *Client) attemptReconnect(ctx context.Context) {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Attempting to reconnect...")

		if err := c.Connect(ctx); err != nil {
			c.logger.Error("Reconnection failed", zap.Error(err))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.logger.Info("Reconnected successfully")
		return
	}
}

// GetState retrieves the state of an entity
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	resp, err := c.sendMessage(ctx, &GetStatesRequest{
		ID:   c.nextMsgID(),
		Type: "get_states",
	})
	if err != nil {
		return nil, err
	}

	var states []*State
	if err := json.Unmarshal(resp.Result, &states); err != nil {
		return nil, fmt.Errorf("failed to unmarshal states: %w", err)
	}

	for _, state := range states {
		if state.EntityID == entityID {
			return state, nil
		}
	}
	return nil, fmt.Errorf("entity %s not found", entityID)
}

// CallService calls a Home Assistant service
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	_, err := c.sendMessage(ctx, &CallServiceRequest{
		ID:          c.nextMsgID(),
		Type:        "call_service",
		Domain:      domain,
		Service:     service,
		ServiceData: data,
	})
	return err
}

// SetInputBoolean turns an input_boolean on or off
func (c *Client) SetInputBoolean(ctx context.Context, name string, value bool) error {
	service := "turn_off"
	if value {
		service = "turn_on"
	}

	return c.CallService(ctx, "input_boolean", service, map[string]interface{}{
		"entity_id": fmt.Sprintf("input_boolean.%s", name),
	})
}

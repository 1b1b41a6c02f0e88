package levelstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"SRLevels/internal/domain/models"
	applogger "SRLevels/pkg/logger"
)

// Client subscribes to the /ws/levels stream of a running service.
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a stream client for url, e.g. ws://localhost:8080/ws/levels?symbol=BTCUSDT.
func New(url string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *Client {
	if l == nil {
		l = applogger.NewNop()
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 3 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Client{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval, l: l.With("levelstream")}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("levelstream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.l.Info("connected", applogger.String("url", c.url))
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

type frame struct {
	Type string                 `json:"type"`
	Data *models.AnalysisResult `json:"data"`
}

// Read streams results until the connection fails or ctx is done. Both
// channels are closed when reading stops.
func (c *Client) Read(ctx context.Context) (<-chan *models.AnalysisResult, <-chan error) {
	out := make(chan *models.AnalysisResult, 64)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- errors.New("levelstream not connected")
		close(out)
		close(errs)
		return out, errs
	}

	readCtx, stop := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-readCtx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()
	go func() {
		<-readCtx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer close(out)
		defer close(errs)
		defer stop()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("levelstream read: %w", err)
				}
				return
			}
			var f frame
			if err := json.Unmarshal(b, &f); err != nil || f.Type != "levels" || f.Data == nil {
				continue
			}
			select {
			case out <- f.Data:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}

// Stream calls fn for every result and reconnects after failures until ctx
// is done.
func (c *Client) Stream(ctx context.Context, fn func(*models.AnalysisResult)) error {
	for {
		if err := c.Connect(ctx); err != nil {
			c.l.Warn("connect failed", applogger.Error(err))
		} else {
			results, errs := c.Read(ctx)
			for r := range results {
				fn(r)
			}
			if err := <-errs; err != nil {
				c.l.Warn("stream interrupted", applogger.Error(err))
			}
			_ = c.Close()
		}

		t := time.NewTimer(c.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

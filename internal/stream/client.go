package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/star/norad/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client manages a single SSE connection's write operations.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	ip      string
	logger  *slog.Logger

	// Bytes per second; zero disables the cap.
	bandwidth   int
	windowStart time.Time
	windowBytes int

	messagesSent int64
	bytesSent    int64
}

// allow reports whether n more bytes fit in the current one-second window.
func (c *client) allow(n int, now time.Time) bool {
	if c.bandwidth <= 0 {
		return true
	}
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowBytes = 0
	}
	// A single oversized message still goes out in an empty window.
	if c.windowBytes > 0 && c.windowBytes+n > c.bandwidth {
		return false
	}
	c.windowBytes += n
	return true
}

func (c *client) write(s string) (int, error) {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprint(c.w, s)
	if err != nil {
		return n, err
	}
	c.flusher.Flush()
	c.bytesSent += int64(n)
	metrics.AddStreamBytes(int64(n))
	return n, nil
}

// sendJSON marshals v and writes it as one "data:" event.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.sendRaw(data)
}

// sendRaw writes pre-encoded JSON as one "data:" event.
func (c *client) sendRaw(data []byte) error {
	if _, err := c.write("data: " + string(data) + "\n\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	return nil
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *client) sendRetry(ms int) error {
	if _, err := c.write(fmt.Sprintf("retry: %d\n\n", ms)); err != nil {
		return fmt.Errorf("retry write: %w", err)
	}
	return nil
}

// sendKeepalive writes an SSE comment.
func (c *client) sendKeepalive() error {
	if _, err := c.write(":\n\n"); err != nil {
		return fmt.Errorf("keepalive write: %w", err)
	}
	return nil
}

package ws

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEClient streams Server-Sent Events over an HTTP response writer.
type SSEClient struct {
	mu       sync.Mutex
	writer   io.Writer
	flusher  http.Flusher
	deadline func(time.Time) error
	log      *slog.Logger
	closed   chan struct{}
	once     sync.Once
	seq      uint64
}

// SSEOption customises an SSEClient.
type SSEOption func(*SSEClient)

// WithWriteDeadline installs a per-write deadline setter, typically
// http.ResponseController.SetWriteDeadline, so a reader that stops
// consuming fails the write instead of holding it forever.
func WithWriteDeadline(set func(time.Time) error) SSEOption {
	return func(c *SSEClient) { c.deadline = set }
}

// NewSSEClient builds an SSE client instance.
func NewSSEClient(writer io.Writer, flusher http.Flusher, logger *slog.Logger, opts ...SSEOption) *SSEClient {
	c := &SSEClient{writer: writer, flusher: flusher, log: logger, closed: make(chan struct{})}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open writes the stream preamble: the reconnect delay and a ready comment.
func (c *SSEClient) Open(retry time.Duration) error {
	return c.write(fmt.Sprintf("retry: %d\n: ready\n\n", retry.Milliseconds()))
}

// Send emits a numbered data event to the SSE stream.
func (c *SSEClient) Send(payload []byte) error {
	c.mu.Lock()
	c.seq++
	frame := fmt.Sprintf("id: %d\nevent: change\ndata: %s\n\n", c.seq, payload)
	c.mu.Unlock()
	return c.write(frame)
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	return c.write(": ping\n\n")
}

func (c *SSEClient) write(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return io.EOF
	default:
	}
	if c.deadline != nil {
		_ = c.deadline(time.Now().Add(writeWait))
	}
	if _, err := io.WriteString(c.writer, frame); err != nil {
		c.log.Warn("sse write failed", "error", err)
		c.Close()
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close marks the stream as closed. It does not wait for a write in flight.
func (c *SSEClient) Close() {
	c.once.Do(func() { close(c.closed) })
}

// Detach closes the stream and waits for any write in flight to return, after
// which the response writer is no longer touched.
func (c *SSEClient) Detach() {
	c.Close()
	c.mu.Lock()
	c.writer = io.Discard
	c.mu.Unlock()
}

// Done is closed once the stream can no longer be written.
func (c *SSEClient) Done() <-chan struct{} {
	return c.closed
}

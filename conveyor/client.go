package conveyor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/john/conveyor_client/job"
	"github.com/john/conveyor_client/printer"
)

const defaultCallTimeout = 30 * time.Second

var ErrClosed = errors.New("conveyor: connection closed")

// UpdateErrorHandler is told about every notified document the client could
// not apply. It decides whether to resync, disconnect, or ignore. Rejections
// seen by Sync are returned from Sync instead.
type UpdateErrorHandler func(method string, err error)

// Option configures a Client.
type Option func(*Client)

// WithLogger installs a structured logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithCallTimeout bounds each JSON-RPC call. Zero disables the bound.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithPrinterCallback is called after each applied printer update.
//
// Callbacks run on the read loop. They must not call Call, Sync or the job
// dispatch methods, which would block until the call timeout.
func WithPrinterCallback(cb printer.StatusCallback) Option {
	return func(c *Client) { c.onPrinter = cb }
}

// WithJobCallback is called after each tracked job change. It runs on the
// read loop, like the printer callback, and must not call back into the
// client.
func WithJobCallback(cb job.ChangedCallback) Option {
	return func(c *Client) { c.onJob = cb }
}

// WithUpdateErrorHandler is called for rejected printer and job
// notifications. It runs on the read loop; hand a resync off to another
// goroutine rather than calling Sync from it.
func WithUpdateErrorHandler(h UpdateErrorHandler) Option {
	return func(c *Client) { c.onUpdateError = h }
}

// Client is a JSON-RPC 2.0 connection to the conveyor daemon. It mirrors the
// daemon's printers and jobs and implements printer.JobManager.
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex // serializes writes to conn

	mu      sync.Mutex
	pending map[string]chan *rpcMessage
	closed  bool
	err     error
	done    chan struct{}

	printers *printer.Registry
	jobs     *job.Tracker

	syncMu  sync.Mutex // one Sync at a time
	applyMu sync.Mutex // orders notification handling against Sync
	touched *touchSet  // non-nil while a Sync is in flight; guarded by applyMu

	log           zerolog.Logger
	callTimeout   time.Duration
	onPrinter     printer.StatusCallback
	onJob         job.ChangedCallback
	onUpdateError UpdateErrorHandler
}

// Dial connects to the daemon's websocket endpoint and starts reading.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing conveyor at %s: %w", url, err)
	}
	c := newClient(conn, opts...)
	go c.readLoop()
	c.log.Info().Str("url", url).Msg("connected to conveyor")
	return c, nil
}

func newClient(conn *websocket.Conn, opts ...Option) *Client {
	c := &Client{
		conn:        conn,
		pending:     make(map[string]chan *rpcMessage),
		done:        make(chan struct{}),
		log:         zerolog.Nop(),
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.printers = printer.NewRegistry(c, c.onPrinter)
	c.jobs = job.NewTracker(c.onJob)
	return c
}

// Printers returns the mirrored printers.
func (c *Client) Printers() *printer.Registry {
	return c.printers
}

// Jobs returns the tracked jobs.
func (c *Client) Jobs() *job.Tracker {
	return c.jobs
}

// Done is closed when the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection closed, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close frame and tears down the connection. It blocks until
// the read loop exits.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.markClosed(ErrClosed)
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) markClosed(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.err = cause
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Call sends method with params and decodes the result into result, which may
// be nil. A daemon error response is returned as *RPCError.
func (c *Client) Call(ctx context.Context, method string, params, result interface{}) error {
	id := uuid.NewString()
	ch := make(chan *rpcMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	pendingCalls.Inc()
	defer pendingCalls.Dec()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: id}); err != nil {
		return fmt.Errorf("sending %s: %w", method, err)
	}

	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", method, ctx.Err())
	}
}

func (c *Client) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			expected := c.closed
			c.mu.Unlock()
			if !expected {
				c.log.Error().Err(err).Msg("conveyor connection lost")
			}
			c.markClosed(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}

		var msg rpcMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn().Err(err).Msg("discarding unparseable frame")
			continue
		}

		if msg.Method != "" {
			c.handleIncoming(&msg)
			continue
		}
		if !msg.hasID() {
			c.log.Warn().Msg("discarding response without id")
			continue
		}

		id := msg.idString()
		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()

		if !ok {
			c.log.Debug().Str("id", id).Msg("response for unknown or expired call")
			continue
		}
		ch <- &msg
	}
}

// handleIncoming processes a notification, or a request the daemon expects
// an answer to.
func (c *Client) handleIncoming(msg *rpcMessage) {
	known := c.handleNotification(msg.Method, msg.Params)
	if !msg.hasID() {
		return
	}

	reply := rpcReply{JSONRPC: "2.0", ID: msg.ID}
	if !known {
		reply.Error = &RPCError{Code: codeMethodNotFound, Message: "Method not found: " + msg.Method}
	}
	if err := c.write(reply); err != nil {
		c.log.Warn().Err(err).Str("method", msg.Method).Msg("reply send failed")
	}
}

// Package ws is the client side of the WebSocket transport. A Conn carries protocol frames
// for a realtime.Connection.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	wlog "github.com/vovakirdan/wirechat/internal/log"
	"github.com/vovakirdan/wirechat/internal/proto"
)

// ErrClosed is returned by Request once the connection is gone.
var ErrClosed = errors.New("ws: connection closed")

// DialOptions configures Dial. Every field is optional.
type DialOptions struct {
	// Token is sent as a bearer token.
	Token string
	// ClientID is requested when the server does not require tokens.
	ClientID string
	Logger   *zerolog.Logger
}

// Conn is a WebSocket transport. It satisfies realtime.Transport.
type Conn struct {
	conn *websocket.Conn
	log  *zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan *proto.Frame
	handler func(*proto.Frame)

	done chan struct{}
	err  error
}

// Dial connects to the server's /ws endpoint at rawURL.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*Conn, error) {
	logger := opts.Logger
	if logger == nil {
		logger = wlog.Nop()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("v", strconv.Itoa(proto.ProtocolVersion))
	if opts.ClientID != "" {
		q.Set("clientId", opts.ClientID)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", u.Redacted(), resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	c := &Conn{
		conn:    conn,
		log:     logger,
		pending: make(map[string]chan *proto.Frame),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Request sends f and waits for the reply carrying the same ID.
func (c *Conn) Request(ctx context.Context, f *proto.Frame) (*proto.Frame, error) {
	if f.ID == "" {
		return nil, errors.New("ws: request without id")
	}
	reply := make(chan *proto.Frame, 1)

	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[f.ID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending != nil {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, c.conn, f); err != nil {
		return nil, fmt.Errorf("write %s: %w", f.Action, err)
	}

	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closedErr()
	}
}

// SetHandler installs the receiver of frames pushed by the server. It runs on the read
// goroutine and must not call Request.
func (c *Conn) SetHandler(fn func(*proto.Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

// Close closes the connection and waits for the read loop to exit.
func (c *Conn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	<-c.done
	return err
}

// Done is closed when the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) closedErr() error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.err)
	}
	return ErrClosed
}

func (c *Conn) readLoop() {
	var err error
	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.err = err
		c.mu.Unlock()
		close(c.done)
	}()

	ctx := context.Background()
	for {
		var f proto.Frame
		if err = wsjson.Read(ctx, c.conn, &f); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.log.Debug().Err(err).Msg("ws read loop stopped")
			}
			return
		}

		c.mu.Lock()
		reply, isReply := c.pending[f.ID]
		handler := c.handler
		c.mu.Unlock()

		switch {
		case f.ID != "":
			// Replies to abandoned requests are dropped.
			if isReply {
				select {
				case reply <- &f:
				default:
				}
			}
		case handler != nil:
			handler(&f)
		}
	}
}

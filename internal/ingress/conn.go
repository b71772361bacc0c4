package ingress

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"net"

	"github.com/danmuck/ingressd/internal/config"
	"github.com/danmuck/ingressd/internal/observability"
	"github.com/danmuck/ingressd/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// readReserve is the minimum spare capacity kept before each read.
const readReserve = 1024

// Connection owns one accepted socket and its unconsumed byte buffer.
type Connection struct {
	conn   net.Conn
	buf    *frame.Buffer
	limits frame.Limits
}

func NewConnection(conn net.Conn, settings *config.Settings) *Connection {
	c := &Connection{
		conn:   conn,
		buf:    frame.NewBuffer(settings.RecvBufferSize),
		limits: settings.FrameLimits(),
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(settings.NoDelay); err != nil {
			log.Debug().Err(err).Str("remote", c.RemoteAddr()).Bool("nodelay", settings.NoDelay).Msg("set nodelay failed")
		}
	}
	return c
}

func (c *Connection) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// Buffered returns the number of received bytes not yet part of a frame.
func (c *Connection) Buffered() int {
	return c.buf.Len()
}

// ReadFrame returns the next complete frame. io.EOF means the peer closed
// between frames; ErrConnectionReset means it closed mid-frame. Decode
// failures wrap frame.ErrMalformed or frame.ErrFrameTooLarge and leave the
// stream unusable.
func (c *Connection) ReadFrame() (frame.Frame, error) {
	for {
		f, err := frame.Decode(c.buf, c.limits)
		if err == nil {
			observability.RecordFrame(f.Len())
			return f, nil
		}
		if !errors.Is(err, frame.ErrIncomplete) {
			return frame.Frame{}, fmt.Errorf("ingress: decode: %w", err)
		}

		c.buf.Reserve(readReserve)
		n, err := c.buf.ReadOnce(c.conn)
		if n > 0 {
			observability.RecordBytesRead(n)
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return frame.Frame{}, fmt.Errorf("ingress: read: %w", err)
		}
		if c.buf.Len() == 0 {
			return frame.Frame{}, io.EOF
		}
		return frame.Frame{}, fmt.Errorf("%w: %d bytes pending", ErrConnectionReset, c.buf.Len())
	}
}

// Frames yields complete frames until the connection ends. A clean closure
// ends the sequence without an error; any other terminal condition is
// yielded once as the final element.
func (c *Connection) Frames() iter.Seq2[frame.Frame, error] {
	return func(yield func(frame.Frame, error) bool) {
		for {
			f, err := c.ReadFrame()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(frame.Frame{}, err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// Serve hands every frame to handle and returns nil on clean closure.
func (c *Connection) Serve(handle func(frame.Frame)) error {
	for f, err := range c.Frames() {
		if err != nil {
			return err
		}
		handle(f)
	}
	return nil
}

func (c *Connection) Close() error {
	return c.conn.Close()
}

// Package transport provides the TCP connection carrying Companion
// protocol frames. Frames are length-prefixed per pkg/frame; once
// session keys are installed every non-empty payload is sealed with
// ChaCha20-Poly1305 using the frame header as additional authenticated
// data.
package transport

import (
	"context"
	"net"
	"sync"

	"github.com/backkem/companion/pkg/crypto"
	"github.com/backkem/companion/pkg/frame"
	"github.com/pion/logging"
)

// FrameHandler receives every inbound frame in wire order, after
// decryption. It runs on the connection's read goroutine; it must not
// block indefinitely.
type FrameHandler func(t frame.Type, payload []byte)

// CloseHandler is notified once when the read loop terminates. err is
// nil on clean EOF-after-Close, otherwise the terminating error.
type CloseHandler func(err error)

// Config configures a Conn.
type Config struct {
	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Conn is a framed connection to a Companion device. The socket and
// the receive buffer are owned by a single read goroutine; writes are
// serialized with a mutex.
type Conn struct {
	conn   net.Conn
	reader *frame.StreamReader
	writer *frame.StreamWriter
	log    logging.LeveledLogger

	// Write path, guarded by writeMu.
	writeMu sync.Mutex
	tx      *secureState

	// Read path, owned by the read goroutine.
	rx *secureState

	handler      FrameHandler
	closeHandler CloseHandler

	mu      sync.Mutex
	keyed   bool
	started bool
	closed  bool

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// secureState is one direction of an encrypted session.
type secureState struct {
	key     []byte
	counter crypto.Counter
}

// Dial connects to a Companion device at addr (host:port).
func Dial(ctx context.Context, addr string, config Config) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, config), nil
}

// NewConn wraps an established connection. Useful for tests with
// net.Pipe().
func NewConn(conn net.Conn, config Config) *Conn {
	c := &Conn{
		conn:    conn,
		reader:  frame.NewStreamReader(conn),
		writer:  frame.NewStreamWriter(conn),
		closeCh: make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("transport")
	}
	return c
}

// SetHandler installs the inbound frame handler. Must be called before
// Start.
func (c *Conn) SetHandler(h FrameHandler) {
	c.handler = h
}

// SetCloseHandler installs the close notification handler.
func (c *Conn) SetCloseHandler(h CloseHandler) {
	c.closeHandler = h
}

// Start launches the read loop.
func (c *Conn) Start() error {
	if c.handler == nil {
		return ErrNoHandler
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()
	return nil
}

// InstallKeys switches the connection to authenticated encryption.
// tx seals outbound frames, rx opens inbound frames; both counters
// start at zero. Keys can be installed once per connection.
func (c *Conn) InstallKeys(tx, rx []byte) error {
	if len(tx) != crypto.KeySize || len(rx) != crypto.KeySize {
		return ErrInvalidKey
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keyed {
		return ErrKeysInstalled
	}
	c.keyed = true

	c.writeMu.Lock()
	c.tx = &secureState{key: append([]byte(nil), tx...)}
	c.writeMu.Unlock()

	c.rx = &secureState{key: append([]byte(nil), rx...)}

	if c.log != nil {
		c.log.Debug("session keys installed")
	}
	return nil
}

// Encrypted reports whether session keys are installed.
func (c *Conn) Encrypted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keyed
}

// Send writes one frame. When keys are installed and the payload is
// non-empty it is sealed, the transmitted length covering the 16-byte
// tag.
func (c *Conn) Send(t frame.Type, payload []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.tx == nil || len(payload) == 0 {
		if c.log != nil {
			c.log.Tracef("send %v (%d bytes)", t, len(payload))
		}
		return c.writer.WriteFrame(t, payload)
	}

	header, err := frame.EncodeHeader(t, len(payload)+crypto.TagSize)
	if err != nil {
		return err
	}
	counter, err := c.tx.counter.Next()
	if err != nil {
		c.teardown(err)
		return err
	}
	sealed, err := crypto.Seal(c.tx.key, crypto.Nonce12(counter), header, payload)
	if err != nil {
		return err
	}
	if c.log != nil {
		c.log.Tracef("send %v (%d bytes sealed, counter %d)", t, len(sealed), counter)
	}
	if _, err := c.conn.Write(header); err != nil {
		return err
	}
	_, err = c.conn.Write(sealed)
	return err
}

// Close tears the connection down. Safe to call multiple times.
func (c *Conn) Close() error {
	c.teardown(nil)
	c.wg.Wait()
	return nil
}

func (c *Conn) teardown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.closeCh)
	c.conn.Close()

	if c.closeHandler != nil {
		c.closeHandler(err)
	}
	if c.log != nil {
		if err != nil {
			c.log.Infof("connection closed: %v", err)
		} else {
			c.log.Debug("connection closed")
		}
	}
}

// readLoop decodes frames in wire order, opening sealed payloads, and
// hands them to the handler.
func (c *Conn) readLoop() {
	defer c.wg.Done()

	for {
		f, err := c.reader.ReadFrame()
		if err != nil {
			select {
			case <-c.closeCh:
				// Already closing; suppress the read error.
			default:
				c.teardown(err)
			}
			return
		}

		// The rx state is installed between inbound frames (the device
		// does not encrypt before our Pair-Verify M3 is processed), but
		// the pointer itself is synchronized through the mutex.
		c.mu.Lock()
		rx := c.rx
		c.mu.Unlock()

		payload := f.Payload
		if rx != nil && len(payload) > 0 {
			counter, err := rx.counter.Next()
			if err != nil {
				c.teardown(err)
				return
			}
			payload, err = crypto.Open(rx.key, crypto.Nonce12(counter), c.reader.Header(), payload)
			if err != nil {
				// Counters are desynchronized; the session is dead.
				c.teardown(err)
				return
			}
		}

		if c.log != nil {
			c.log.Tracef("recv %v (%d bytes)", f.Type, len(payload))
		}
		c.handler(f.Type, payload)
	}
}

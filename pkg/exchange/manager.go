// Package exchange matches inbound Companion frames against pending
// outbound requests and dispatches unsolicited events.
//
// Two keying schemes coexist. Pairing handshake frames are correlated
// by frame type: a request sent as PS_Start or PS_Next is answered on
// PS_Next, and likewise for Pair-Verify. OPACK data frames are
// correlated by the integer transaction id stored under "_x" in the
// request map.
package exchange

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/backkem/companion/pkg/frame"
	"github.com/backkem/companion/pkg/opack"
	"github.com/pion/logging"
)

// DefaultTimeout is the per-request timeout when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Message type values carried under "_t" in the OPACK envelope.
const (
	MessageTypeEvent    = 1
	MessageTypeRequest  = 2
	MessageTypeResponse = 3
)

// EventHandler receives unsolicited events. It runs on the transport's
// read goroutine; hand off to a channel for slow consumers.
type EventHandler func(name string, body map[string]any)

// Sender is the transport surface the manager drives. *transport.Conn
// implements it.
type Sender interface {
	Send(t frame.Type, payload []byte) error
}

// Config configures a Manager.
type Config struct {
	// Sender transmits outbound frames. Required.
	Sender Sender

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Manager is the request/response multiplexer.
type Manager struct {
	sender  Sender
	timeout time.Duration
	log     logging.LeveledLogger

	mu          sync.Mutex
	pendingOPK  map[uint16]chan result
	pendingAuth map[frame.Type]chan result
	nextXID     uint16
	stopped     error

	eventHandler EventHandler
}

type result struct {
	msg     map[string]any // OPACK responses
	payload []byte         // auth responses
	err     error
}

// NewManager creates a Manager. The caller wires HandleFrame and
// HandleClose into the transport.
func NewManager(config Config) (*Manager, error) {
	if config.Sender == nil {
		return nil, ErrNoSender
	}

	m := &Manager{
		sender:      config.Sender,
		timeout:     config.Timeout,
		pendingOPK:  make(map[uint16]chan result),
		pendingAuth: make(map[frame.Type]chan result),
	}
	if m.timeout == 0 {
		m.timeout = DefaultTimeout
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("exchange")
	}

	// Transaction ids start at a random value.
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	m.nextXID = binary.LittleEndian.Uint16(buf[:])

	return m, nil
}

// SetEventHandler registers the sink for unsolicited events.
func (m *Manager) SetEventHandler(h EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHandler = h
}

// SendRequest sends an OPACK request and suspends until the matching
// response, a timeout, cancellation, or transport close. The message
// map is sent with "_x" added; the full decoded response map is
// returned. A response carrying "_em" fails with ErrRemote.
func (m *Manager) SendRequest(ctx context.Context, t frame.Type, msg map[string]any) (map[string]any, error) {
	if !t.IsOPACK() {
		return nil, ErrNotOPACK
	}

	m.mu.Lock()
	if m.stopped != nil {
		err := m.stopped
		m.mu.Unlock()
		return nil, err
	}
	xid := m.nextXID
	m.nextXID++
	ch := make(chan result, 1)
	m.pendingOPK[xid] = ch
	m.mu.Unlock()

	out := make(map[string]any, len(msg)+1)
	for k, v := range msg {
		out[k] = v
	}
	out["_x"] = opack.UInt32(xid)

	payload, err := opack.Pack(out)
	if err != nil {
		m.removeOPK(xid)
		return nil, err
	}

	if m.log != nil {
		m.log.Debugf("request %v xid=%d %v", t, xid, out["_i"])
	}
	if err := m.sender.Send(t, payload); err != nil {
		m.removeOPK(xid)
		return nil, err
	}

	res, err := m.await(ctx, ch, func() { m.removeOPK(xid) })
	if err != nil {
		return nil, err
	}
	return res.msg, res.err
}

// SendEvent sends an OPACK message without registering a pending
// response (fire and forget, used for one-way messages such as
// _interest subscriptions and _sessionStop).
func (m *Manager) SendEvent(t frame.Type, msg map[string]any) error {
	if !t.IsOPACK() {
		return ErrNotOPACK
	}
	payload, err := opack.Pack(msg)
	if err != nil {
		return err
	}
	return m.sender.Send(t, payload)
}

// SendAuth sends a pairing handshake frame and suspends until the
// response frame of the corresponding *_Next type arrives. Only one
// handshake request per response type may be in flight.
func (m *Manager) SendAuth(ctx context.Context, t frame.Type, payload []byte) ([]byte, error) {
	var respType frame.Type
	switch t {
	case frame.TypePSStart, frame.TypePSNext:
		respType = frame.TypePSNext
	case frame.TypePVStart, frame.TypePVNext:
		respType = frame.TypePVNext
	default:
		return nil, ErrNotOPACK
	}

	m.mu.Lock()
	if m.stopped != nil {
		err := m.stopped
		m.mu.Unlock()
		return nil, err
	}
	if _, busy := m.pendingAuth[respType]; busy {
		m.mu.Unlock()
		return nil, ErrHandshakeBusy
	}
	ch := make(chan result, 1)
	m.pendingAuth[respType] = ch
	m.mu.Unlock()

	if m.log != nil {
		m.log.Debugf("auth request %v (%d bytes)", t, len(payload))
	}
	if err := m.sender.Send(t, payload); err != nil {
		m.removeAuth(respType)
		return nil, err
	}

	res, err := m.await(ctx, ch, func() { m.removeAuth(respType) })
	if err != nil {
		return nil, err
	}
	return res.payload, res.err
}

// await suspends on ch with the configured timeout and context
// cancellation. remove is called when the waiter gives up so that a
// late response is dropped silently.
func (m *Manager) await(ctx context.Context, ch chan result, remove func()) (result, error) {
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		remove()
		return result{}, ErrTimeout
	case <-ctx.Done():
		remove()
		return result{}, ctx.Err()
	}
}

// HandleFrame is the transport frame handler. Frames arrive in wire
// order on the read goroutine.
func (m *Manager) HandleFrame(t frame.Type, payload []byte) {
	switch {
	case t.IsAuth():
		m.mu.Lock()
		ch, ok := m.pendingAuth[t]
		if ok {
			delete(m.pendingAuth, t)
		}
		m.mu.Unlock()
		if !ok {
			if m.log != nil {
				m.log.Warnf("dropping unsolicited auth frame %v", t)
			}
			return
		}
		ch <- result{payload: payload}

	case t.IsOPACK():
		m.handleOPACK(t, payload)

	case t == frame.TypeNoOp:
		// Keep-alive, nothing to do.

	default:
		if m.log != nil {
			m.log.Warnf("dropping frame with unexpected type %v", t)
		}
	}
}

func (m *Manager) handleOPACK(t frame.Type, payload []byte) {
	decoded, err := opack.Unpack(payload)
	if err != nil {
		if m.log != nil {
			m.log.Warnf("dropping undecodable %v frame: %v", t, err)
		}
		return
	}
	msg, ok := decoded.(map[string]any)
	if !ok {
		if m.log != nil {
			m.log.Warnf("dropping non-map %v frame", t)
		}
		return
	}

	switch intField(msg, "_t") {
	case MessageTypeEvent:
		name, _ := msg["_i"].(string)
		body, _ := msg["_c"].(map[string]any)
		m.mu.Lock()
		handler := m.eventHandler
		m.mu.Unlock()
		if handler != nil {
			handler(name, body)
		} else if m.log != nil {
			m.log.Debugf("dropping event %q (no handler)", name)
		}

	case MessageTypeResponse:
		xid, ok := uintField(msg, "_x")
		if !ok {
			if m.log != nil {
				m.log.Warnf("dropping response without _x")
			}
			return
		}
		m.mu.Lock()
		ch, pending := m.pendingOPK[uint16(xid)]
		if pending {
			delete(m.pendingOPK, uint16(xid))
		}
		m.mu.Unlock()
		if !pending {
			// Cancelled or timed out; drop silently.
			if m.log != nil {
				m.log.Debugf("dropping response for unknown xid %d", xid)
			}
			return
		}
		if em, hasErr := msg["_em"].(string); hasErr {
			ch <- result{err: fmt.Errorf("%w: %s", ErrRemote, em)}
			return
		}
		ch <- result{msg: msg}

	default:
		if m.log != nil {
			m.log.Debugf("ignoring inbound request frame %v", t)
		}
	}
}

// HandleClose is the transport close handler: every pending entry
// fails with ErrStopped.
func (m *Manager) HandleClose(err error) {
	m.mu.Lock()
	if m.stopped == nil {
		if err != nil {
			m.stopped = fmt.Errorf("%w: %v", ErrStopped, err)
		} else {
			m.stopped = ErrStopped
		}
	}
	stopErr := m.stopped
	opk := m.pendingOPK
	auth := m.pendingAuth
	m.pendingOPK = make(map[uint16]chan result)
	m.pendingAuth = make(map[frame.Type]chan result)
	m.mu.Unlock()

	for _, ch := range opk {
		ch <- result{err: stopErr}
	}
	for _, ch := range auth {
		ch <- result{err: stopErr}
	}
}

func (m *Manager) removeOPK(xid uint16) {
	m.mu.Lock()
	delete(m.pendingOPK, xid)
	m.mu.Unlock()
}

func (m *Manager) removeAuth(t frame.Type) {
	m.mu.Lock()
	delete(m.pendingAuth, t)
	m.mu.Unlock()
}

// intField reads an integer envelope field in any of the widths the
// codec may produce.
func intField(msg map[string]any, key string) int {
	v, ok := uintField(msg, key)
	if !ok {
		return -1
	}
	return int(v)
}

func uintField(msg map[string]any, key string) (uint64, bool) {
	switch v := msg[key].(type) {
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case opack.UInt8:
		return uint64(v), true
	case opack.UInt16:
		return uint64(v), true
	case opack.UInt32:
		return uint64(v), true
	case opack.UInt64:
		return uint64(v), true
	default:
		return 0, false
	}
}

// Package companion provides the user-facing Companion protocol
// session: connect to a device, pair with a PIN, re-authenticate with
// stored credentials, and drive it with HID, media and app commands.
package companion

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/backkem/companion/pkg/credentials"
	"github.com/backkem/companion/pkg/exchange"
	"github.com/backkem/companion/pkg/frame"
	"github.com/backkem/companion/pkg/opack"
	"github.com/backkem/companion/pkg/pairing"
	"github.com/backkem/companion/pkg/transport"
	"github.com/pion/logging"
)

// DefaultName is the display name announced to the device.
const DefaultName = "companion-client"

// remoteService is the service identifier used for _sessionStart.
const remoteService = "com.apple.tvremoteservices"

// Config configures a Session.
type Config struct {
	// Address is the device address (host:port) from discovery. Required.
	Address string

	// Credentials is the long-term pairing state. Required for Connect;
	// not needed for PairSetup.
	Credentials *credentials.Credentials

	// Name is the display name announced during pairing and system
	// info. Empty means DefaultName.
	Name string

	// Timeout bounds each request. Zero uses the exchange default.
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// EventHandler receives unsolicited device events by name.
type EventHandler = exchange.EventHandler

// Session is a connection to one Companion device. Operations suspend
// until the device answers, the request times out, or the session
// closes.
type Session struct {
	config Config
	log    logging.LeveledLogger

	mu        sync.Mutex
	conn      *transport.Conn
	mgr       *exchange.Manager
	connected bool
	sessionID uint64

	// preConn, when set, is used instead of dialing Address (tests).
	preConn *transport.Conn

	eventHandler EventHandler
}

// NewSession creates a session for the device at config.Address.
func NewSession(config Config) (*Session, error) {
	if config.Address == "" {
		return nil, ErrNoAddress
	}
	if config.Name == "" {
		config.Name = DefaultName
	}

	s := &Session{config: config}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("companion")
	}
	return s, nil
}

// SetEventHandler registers the sink for unsolicited device events.
// Must be called before Connect to observe session-start events.
func (s *Session) SetEventHandler(h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventHandler = h
	if s.mgr != nil {
		s.mgr.SetEventHandler(h)
	}
}

// attachConn injects a pre-established transport connection.
func (s *Session) attachConn(conn *transport.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preConn = conn
}

// dial establishes the framed transport and the multiplexer.
func (s *Session) dial(ctx context.Context) error {
	conn := s.preConn
	if conn == nil {
		var err error
		conn, err = transport.Dial(ctx, s.config.Address, transport.Config{
			LoggerFactory: s.config.LoggerFactory,
		})
		if err != nil {
			return err
		}
	}

	mgr, err := exchange.NewManager(exchange.Config{
		Sender:        conn,
		Timeout:       s.config.Timeout,
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		conn.Close()
		return err
	}
	if s.eventHandler != nil {
		mgr.SetEventHandler(s.eventHandler)
	}

	conn.SetHandler(mgr.HandleFrame)
	conn.SetCloseHandler(mgr.HandleClose)
	if err := conn.Start(); err != nil {
		conn.Close()
		return err
	}

	s.conn = conn
	s.mgr = mgr
	return nil
}

// PairSetup performs PIN pairing against the device and returns the
// long-term credentials. The session is left disconnected; call
// Connect with the credentials afterwards. A BackOff error carries the
// device-mandated retry delay and must not be retried early.
func (s *Session) PairSetup(ctx context.Context, pin string) (*credentials.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil, ErrAlreadyConnected
	}
	if err := s.dial(ctx); err != nil {
		return nil, err
	}
	defer s.teardown()

	setup, err := pairing.NewSetup(pairing.SetupConfig{
		PIN:           pin,
		Name:          s.config.Name,
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	m1, err := setup.Start()
	if err != nil {
		return nil, err
	}
	m2, err := s.mgr.SendAuth(ctx, frame.TypePSStart, m1)
	if err != nil {
		return nil, err
	}
	m3, err := setup.HandleM2(m2)
	if err != nil {
		return nil, err
	}
	m4, err := s.mgr.SendAuth(ctx, frame.TypePSNext, m3)
	if err != nil {
		return nil, err
	}
	m5, err := setup.HandleM4(m4)
	if err != nil {
		return nil, err
	}
	m6, err := s.mgr.SendAuth(ctx, frame.TypePSNext, m5)
	if err != nil {
		return nil, err
	}
	creds, err := setup.HandleM6(m6)
	if err != nil {
		return nil, err
	}

	if s.log != nil {
		s.log.Infof("paired with %s", s.config.Address)
	}
	return creds, nil
}

// Connect dials the device, re-authenticates with the stored
// credentials via Pair-Verify, switches the transport to authenticated
// encryption and starts a remote session.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return ErrAlreadyConnected
	}
	if s.config.Credentials == nil {
		return ErrNoCredentials
	}
	if err := s.dial(ctx); err != nil {
		return err
	}

	verify, err := pairing.NewVerify(pairing.VerifyConfig{
		Credentials:   s.config.Credentials,
		LoggerFactory: s.config.LoggerFactory,
	})
	if err != nil {
		s.teardown()
		return err
	}

	m1, err := verify.Start()
	if err != nil {
		s.teardown()
		return err
	}
	m2, err := s.mgr.SendAuth(ctx, frame.TypePVStart, m1)
	if err != nil {
		s.teardown()
		return err
	}
	m3, err := verify.HandleM2(m2)
	if err != nil {
		s.teardown()
		return err
	}
	m4, err := s.mgr.SendAuth(ctx, frame.TypePVNext, m3)
	if err != nil {
		s.teardown()
		return err
	}
	keys, err := verify.HandleM4(m4)
	if err != nil {
		s.teardown()
		return err
	}

	if err := s.conn.InstallKeys(keys.TxKey, keys.RxKey); err != nil {
		s.teardown()
		return err
	}
	s.connected = true

	// Announce ourselves and open the remote control session. Both run
	// over the now-encrypted channel; unlock so request plumbing can
	// proceed if the caller registered an event handler that touches
	// the session.
	s.mu.Unlock()
	err = s.startSession(ctx)
	s.mu.Lock()
	if err != nil {
		s.teardown()
		s.connected = false
		return err
	}

	if s.log != nil {
		s.log.Infof("connected to %s", s.config.Address)
	}
	return nil
}

// startSession exchanges _systemInfo and _sessionStart.
func (s *Session) startSession(ctx context.Context) error {
	if _, err := s.SystemInfo(ctx); err != nil {
		return err
	}

	var raw [4]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return err
	}
	localSID := binary.LittleEndian.Uint32(raw[:])

	resp, err := s.request(ctx, "_sessionStart", map[string]any{
		"_srvT": remoteService,
		"_sid":  opack.UInt32(localSID),
	})
	if err != nil {
		return err
	}

	// The full session id combines the device half and ours.
	content, _ := resp["_c"].(map[string]any)
	deviceSID, ok := uintContent(content, "_sid")
	if !ok {
		return ErrUnexpectedResponse
	}
	s.mu.Lock()
	s.sessionID = deviceSID<<32 | uint64(localSID)
	s.mu.Unlock()
	return nil
}

// Close stops the remote session and tears down the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	sid := s.sessionID
	s.connected = false
	mgr := s.mgr
	s.mu.Unlock()

	// Best-effort session stop; the device drops state on disconnect
	// anyway.
	if mgr != nil {
		_ = mgr.SendEvent(frame.TypeEOPACK, map[string]any{
			"_i": "_sessionStop",
			"_t": exchange.MessageTypeRequest,
			"_c": map[string]any{
				"_srvT": remoteService,
				"_sid":  opack.UInt64(sid),
			},
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
	return nil
}

// teardown closes the transport. Caller holds s.mu.
func (s *Session) teardown() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.mgr = nil
	}
}

// request sends one OPACK request and returns the decoded response map.
func (s *Session) request(ctx context.Context, id string, content map[string]any) (map[string]any, error) {
	s.mu.Lock()
	mgr := s.mgr
	s.mu.Unlock()
	if mgr == nil {
		return nil, ErrNotConnected
	}

	msg := map[string]any{
		"_i": id,
		"_t": exchange.MessageTypeRequest,
	}
	if content != nil {
		msg["_c"] = content
	}
	return mgr.SendRequest(ctx, frame.TypeEOPACK, msg)
}

// SystemInfo announces our identity and returns the device's system
// information. The content shape mirrors what a genuine iOS client
// sends on the wire.
func (s *Session) SystemInfo(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	clientID := []byte(nil)
	if s.config.Credentials != nil {
		clientID = s.config.Credentials.ClientID
	}
	name := s.config.Name
	s.mu.Unlock()

	content := map[string]any{
		"_bf":    0,
		"_cf":    512,
		"_clFl":  128,
		"_i":     "cafecafecafe",
		"_pubID": "AA:BB:CC:DD:EE:FF",
		"_sf":    256,
		"_sv":    "170.18",
		"model":  "iPhone10,6",
		"name":   name,
	}
	if clientID != nil {
		content["_idsID"] = clientID
	}

	resp, err := s.request(ctx, "_systemInfo", content)
	if err != nil {
		return nil, err
	}
	body, _ := resp["_c"].(map[string]any)
	return body, nil
}

// PressButton sends a button press: a pressed event followed by a
// released event.
func (s *Session) PressButton(ctx context.Context, button HIDCommand) error {
	if _, err := s.request(ctx, "_hidC", map[string]any{
		"_hBtS": buttonPressed,
		"_hidC": int(button),
	}); err != nil {
		return err
	}
	_, err := s.request(ctx, "_hidC", map[string]any{
		"_hBtS": buttonReleased,
		"_hidC": int(button),
	})
	return err
}

// Media sends a media control command and returns the response content
// (e.g. the volume for MediaGetVolume).
func (s *Session) Media(ctx context.Context, cmd MediaCommand, args map[string]any) (map[string]any, error) {
	content := map[string]any{"_mcc": int(cmd)}
	for k, v := range args {
		content[k] = v
	}
	resp, err := s.request(ctx, "_mcc", content)
	if err != nil {
		return nil, err
	}
	body, _ := resp["_c"].(map[string]any)
	return body, nil
}

// TouchStart opens a touchpad gesture session with the advertised
// logical surface size.
func (s *Session) TouchStart(ctx context.Context) error {
	_, err := s.request(ctx, "_touchStart", map[string]any{
		"_width":  1000,
		"_height": 1000,
		"_tFl":    1,
	})
	return err
}

// TouchStop closes the touchpad gesture session.
func (s *Session) TouchStop(ctx context.Context) error {
	_, err := s.request(ctx, "_touchStop", nil)
	return err
}

// LaunchApp asks the device to open the application with bundleID.
func (s *Session) LaunchApp(ctx context.Context, bundleID string) error {
	_, err := s.request(ctx, "_launchApp", map[string]any{"_bundleID": bundleID})
	return err
}

// FetchAttentionState returns the device's attention (awake/asleep)
// state content.
func (s *Session) FetchAttentionState(ctx context.Context) (map[string]any, error) {
	resp, err := s.request(ctx, "FetchAttentionState", nil)
	if err != nil {
		return nil, err
	}
	body, _ := resp["_c"].(map[string]any)
	return body, nil
}

// FetchLaunchableApplications returns installed applications as a map
// of bundle identifier to display name.
func (s *Session) FetchLaunchableApplications(ctx context.Context) (map[string]string, error) {
	resp, err := s.request(ctx, "FetchLaunchableApplicationsEvent", nil)
	if err != nil {
		return nil, err
	}
	body, ok := resp["_c"].(map[string]any)
	if !ok {
		return nil, ErrUnexpectedResponse
	}
	apps := make(map[string]string, len(body))
	for bundleID, name := range body {
		if s, ok := name.(string); ok {
			apps[bundleID] = s
		}
	}
	return apps, nil
}

// Subscribe registers interest in a named device event. Subscription
// messages are one-way; matching events arrive on the event handler.
func (s *Session) Subscribe(event string) error {
	return s.sendInterest("_regEvents", event)
}

// Unsubscribe removes interest in a named device event.
func (s *Session) Unsubscribe(event string) error {
	return s.sendInterest("_deregEvents", event)
}

func (s *Session) sendInterest(key, event string) error {
	s.mu.Lock()
	mgr := s.mgr
	s.mu.Unlock()
	if mgr == nil {
		return ErrNotConnected
	}
	return mgr.SendEvent(frame.TypeEOPACK, map[string]any{
		"_i": "_interest",
		"_t": exchange.MessageTypeEvent,
		"_c": map[string]any{key: []any{event}},
	})
}

// SessionID returns the negotiated remote session id.
func (s *Session) SessionID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Connected reports whether the session is established.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// uintContent reads an integer content field in any decoded width.
func uintContent(m map[string]any, key string) (uint64, bool) {
	switch v := m[key].(type) {
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

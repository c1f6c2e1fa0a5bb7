package pairing

import (
	"bytes"
	"sync"

	"github.com/backkem/companion/pkg/credentials"
	"github.com/backkem/companion/pkg/crypto"
	"github.com/backkem/companion/pkg/tlv8"
	"github.com/pion/logging"
)

// VerifyState represents the Pair-Verify state machine.
type VerifyState int

const (
	VerifyStateInit VerifyState = iota
	VerifyStateWaitingM2 // sent M1
	VerifyStateWaitingM4 // sent M3
	VerifyStateComplete
	VerifyStateFailed
)

// String returns the state name.
func (s VerifyState) String() string {
	switch s {
	case VerifyStateInit:
		return "Init"
	case VerifyStateWaitingM2:
		return "WaitingM2"
	case VerifyStateWaitingM4:
		return "WaitingM4"
	case VerifyStateComplete:
		return "Complete"
	case VerifyStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SessionKeys are the per-session data-channel keys produced by a
// completed Pair-Verify. TxKey seals client-to-device frames, RxKey
// opens device-to-client frames.
type SessionKeys struct {
	TxKey []byte
	RxKey []byte
}

// VerifyConfig configures a Pair-Verify flow.
type VerifyConfig struct {
	// Credentials is the long-term pairing state from Pair-Setup.
	// Required.
	Credentials *credentials.Credentials

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// VerifySession drives Pair-Verify M1 through M4, proving possession
// of the long-term credentials and deriving fresh session keys. A
// session holds the state of exactly one flow and must not be reused.
//
// Usage:
//
//	v, _ := pairing.NewVerify(pairing.VerifyConfig{Credentials: creds})
//	m1, _ := v.Start()
//	// send m1 on PV_Start, receive m2 on PV_Next
//	m3, _ := v.HandleM2(m2)
//	// send m3, receive m4
//	keys, _ := v.HandleM4(m4)
type VerifySession struct {
	config VerifyConfig
	state  VerifyState
	log    logging.LeveledLogger

	ephPub  []byte
	ephPriv []byte
	shared  []byte

	keys *SessionKeys

	mu sync.Mutex
}

// NewVerify creates a Pair-Verify session.
func NewVerify(config VerifyConfig) (*VerifySession, error) {
	if config.Credentials == nil {
		return nil, ErrInvalidState
	}
	if err := config.Credentials.Validate(); err != nil {
		return nil, err
	}

	v := &VerifySession{
		config: config,
		state:  VerifyStateInit,
	}
	if config.LoggerFactory != nil {
		v.log = config.LoggerFactory.NewLogger("pair-verify")
	}
	return v, nil
}

// Start generates a fresh X25519 keypair and returns the M1 payload.
func (v *VerifySession) Start() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != VerifyStateInit {
		return nil, ErrInvalidState
	}

	pub, priv, err := crypto.NewECDHKeypair()
	if err != nil {
		return nil, err
	}
	v.ephPub = pub
	v.ephPriv = priv

	records := tlv8.New()
	records.Append(TagSeqNo, []byte{seqM1})
	records.Append(TagPublicKey, pub)

	payload, err := packVerifyEnvelope(records)
	if err != nil {
		return nil, err
	}

	v.state = VerifyStateWaitingM2
	if v.log != nil {
		v.log.Debug("sent M1")
	}
	return payload, nil
}

// HandleM2 verifies the device's identity proof and returns the M3
// payload carrying ours. The device signature must validate under the
// paired long-term public key; any single-byte change to the key, the
// ephemeral keys or the signature fails the handshake.
func (v *VerifySession) HandleM2(payload []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != VerifyStateWaitingM2 {
		return nil, ErrInvalidState
	}

	records, err := unpackEnvelope(payload)
	if err != nil {
		return nil, v.fail(err)
	}
	if err := checkResponse(records, seqM2); err != nil {
		return nil, v.fail(err)
	}

	devicePub, err := records.Get(TagPublicKey)
	if err != nil {
		return nil, v.fail(ErrInvalidMessage)
	}
	sealed, err := records.Get(TagEncryptedData)
	if err != nil {
		return nil, v.fail(ErrInvalidMessage)
	}

	v.shared, err = crypto.ECDH(v.ephPriv, devicePub)
	if err != nil {
		return nil, v.fail(err)
	}
	sk, err := crypto.HKDFSHA512(
		"Pair-Verify-Encrypt-Salt", "Pair-Verify-Encrypt-Info", v.shared)
	if err != nil {
		return nil, v.fail(err)
	}

	nonce, err := crypto.NonceLabel("PV-Msg02")
	if err != nil {
		return nil, v.fail(err)
	}
	plain, err := crypto.Open(sk, nonce, nil, sealed)
	if err != nil {
		return nil, v.fail(err)
	}
	sub, err := tlv8.Decode(plain)
	if err != nil {
		return nil, v.fail(ErrInvalidMessage)
	}
	deviceID, err := sub.Get(TagIdentifier)
	if err != nil {
		return nil, v.fail(ErrInvalidMessage)
	}
	deviceSig, err := sub.Get(TagSignature)
	if err != nil {
		return nil, v.fail(ErrInvalidMessage)
	}

	creds := v.config.Credentials
	if !bytes.Equal(deviceID, creds.DeviceID) {
		return nil, v.fail(ErrDeviceIdentity)
	}

	// Device proves device_eph_pub || device_id || client_eph_pub.
	info := make([]byte, 0, len(devicePub)+len(deviceID)+len(v.ephPub))
	info = append(info, devicePub...)
	info = append(info, deviceID...)
	info = append(info, v.ephPub...)
	if err := crypto.Verify(creds.DeviceLTPK, info, deviceSig); err != nil {
		return nil, v.fail(ErrDeviceSignature)
	}

	// We prove client_eph_pub || client_id || device_eph_pub.
	info = info[:0]
	info = append(info, v.ephPub...)
	info = append(info, creds.ClientID...)
	info = append(info, devicePub...)
	sig, err := crypto.Sign(creds.ClientLTSK, info)
	if err != nil {
		return nil, v.fail(err)
	}

	sub = tlv8.New()
	sub.Append(TagIdentifier, creds.ClientID)
	sub.Append(TagSignature, sig)

	nonce, err = crypto.NonceLabel("PV-Msg03")
	if err != nil {
		return nil, v.fail(err)
	}
	sealedOut, err := crypto.Seal(sk, nonce, nil, sub.Encode())
	if err != nil {
		return nil, v.fail(err)
	}

	records = tlv8.New()
	records.Append(TagSeqNo, []byte{seqM3})
	records.Append(TagEncryptedData, sealedOut)

	out, err := packVerifyEnvelope(records)
	if err != nil {
		return nil, v.fail(err)
	}

	v.state = VerifyStateWaitingM4
	if v.log != nil {
		v.log.Debug("sent M3")
	}
	return out, nil
}

// HandleM4 completes the handshake and derives the data-channel keys.
// The device's M4 carries no required TLV content; an error item still
// fails the flow.
func (v *VerifySession) HandleM4(payload []byte) (*SessionKeys, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != VerifyStateWaitingM4 {
		return nil, ErrInvalidState
	}

	if len(payload) > 0 {
		if records, err := unpackEnvelope(payload); err == nil && records.Has(TagError) {
			return nil, v.fail(tlvError(records))
		}
	}

	tx, err := crypto.HKDFSHA512("", "ClientEncrypt-main", v.shared)
	if err != nil {
		return nil, v.fail(err)
	}
	rx, err := crypto.HKDFSHA512("", "ServerEncrypt-main", v.shared)
	if err != nil {
		return nil, v.fail(err)
	}

	v.keys = &SessionKeys{TxKey: tx, RxKey: rx}
	v.state = VerifyStateComplete
	if v.log != nil {
		v.log.Info("pair-verify complete")
	}
	return v.keys, nil
}

// State returns the current handshake state.
func (v *VerifySession) State() VerifyState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// SessionKeys returns the derived keys of a completed handshake, or nil.
func (v *VerifySession) SessionKeys() *SessionKeys {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != VerifyStateComplete {
		return nil
	}
	return v.keys
}

func (v *VerifySession) fail(err error) error {
	v.state = VerifyStateFailed
	if v.log != nil {
		v.log.Warnf("pair-verify failed: %v", err)
	}
	return err
}

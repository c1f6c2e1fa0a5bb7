package pairing

import (
	"sync"

	"github.com/backkem/companion/pkg/credentials"
	"github.com/backkem/companion/pkg/crypto"
	"github.com/backkem/companion/pkg/crypto/srp"
	"github.com/backkem/companion/pkg/opack"
	"github.com/backkem/companion/pkg/tlv8"
	"github.com/pion/logging"
)

// srpUsername is the fixed SRP identity mandated by HAP pair-setup.
const srpUsername = "Pair-Setup"

// SetupState represents the Pair-Setup state machine.
type SetupState int

const (
	SetupStateInit SetupState = iota
	SetupStateWaitingM2 // sent M1
	SetupStateWaitingM4 // sent M3
	SetupStateWaitingM6 // sent M5
	SetupStateComplete
	SetupStateFailed
)

// String returns the state name.
func (s SetupState) String() string {
	switch s {
	case SetupStateInit:
		return "Init"
	case SetupStateWaitingM2:
		return "WaitingM2"
	case SetupStateWaitingM4:
		return "WaitingM4"
	case SetupStateWaitingM6:
		return "WaitingM6"
	case SetupStateComplete:
		return "Complete"
	case SetupStateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SetupConfig configures a Pair-Setup flow.
type SetupConfig struct {
	// PIN is the 4-digit code shown on screen. Required.
	PIN string

	// Name is the display name sent to the device in M5. Optional.
	Name string

	// ClientID is our 16-byte identifier. Generated when nil.
	ClientID []byte

	// SkipDeviceSignatureVerify disables verification of the device's
	// M6 signature. Verification is on by default.
	SkipDeviceSignatureVerify bool

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// SetupSession drives Pair-Setup M1 through M6 and produces long-term
// credentials. A session holds the state of exactly one flow and must
// not be reused.
//
// Usage:
//
//	s, _ := pairing.NewSetup(pairing.SetupConfig{PIN: pin})
//	m1, _ := s.Start()
//	// send m1 on PS_Start, receive m2 on PS_Next
//	m3, _ := s.HandleM2(m2)
//	// send m3, receive m4
//	m5, _ := s.HandleM4(m4)
//	// send m5, receive m6
//	creds, _ := s.HandleM6(m6)
type SetupSession struct {
	config SetupConfig
	state  SetupState
	log    logging.LeveledLogger

	clientID []byte
	seed     []byte // Ed25519 seed, doubles as the SRP ephemeral secret
	ltpk     []byte

	srp        *srp.Client
	sessionKey []byte // SRP session key K
	encryptKey []byte // HKDF sub-key for the M5/M6 envelope

	creds *credentials.Credentials

	mu sync.Mutex
}

// NewSetup creates a Pair-Setup session.
func NewSetup(config SetupConfig) (*SetupSession, error) {
	if err := validatePIN(config.PIN); err != nil {
		return nil, err
	}

	clientID := config.ClientID
	if clientID == nil {
		clientID = credentials.NewClientID()
	}

	s := &SetupSession{
		config:   config,
		state:    SetupStateInit,
		clientID: clientID,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("pair-setup")
	}
	return s, nil
}

// Start generates the long-term keypair and returns the M1 payload.
// The fresh Ed25519 seed is reused as the SRP ephemeral secret.
func (s *SetupSession) Start() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SetupStateInit {
		return nil, ErrInvalidState
	}

	ltpk, seed, err := crypto.NewSigningKeypair()
	if err != nil {
		return nil, err
	}
	s.ltpk = ltpk
	s.seed = seed

	records := tlv8.New()
	records.Append(TagMethod, []byte{0x00})
	records.Append(TagSeqNo, []byte{seqM1})

	payload, err := packSetupEnvelope(records)
	if err != nil {
		return nil, err
	}

	s.state = SetupStateWaitingM2
	if s.log != nil {
		s.log.Debug("sent M1")
	}
	return payload, nil
}

// HandleM2 processes the device's salt and SRP public key and returns
// the M3 payload carrying our public key and proof.
func (s *SetupSession) HandleM2(payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SetupStateWaitingM2 {
		return nil, ErrInvalidState
	}

	records, err := unpackEnvelope(payload)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := checkResponse(records, seqM2); err != nil {
		return nil, s.fail(err)
	}

	serverPublic, err := records.Get(TagPublicKey)
	if err != nil {
		return nil, s.fail(ErrInvalidMessage)
	}
	salt, err := records.Get(TagSalt)
	if err != nil {
		return nil, s.fail(ErrInvalidMessage)
	}

	client, err := srp.NewClient(srpUsername, s.config.PIN, s.seed)
	if err != nil {
		return nil, s.fail(err)
	}
	proof, err := client.SetServer(salt, serverPublic)
	if err != nil {
		return nil, s.fail(err)
	}
	s.srp = client

	records = tlv8.New()
	records.Append(TagSeqNo, []byte{seqM3})
	records.Append(TagPublicKey, client.PublicKey())
	records.Append(TagProof, proof)

	out, err := packSetupEnvelope(records)
	if err != nil {
		return nil, s.fail(err)
	}

	s.state = SetupStateWaitingM4
	if s.log != nil {
		s.log.Debug("sent M3")
	}
	return out, nil
}

// HandleM4 verifies the device's SRP proof and returns the M5 payload
// carrying our encrypted identity.
func (s *SetupSession) HandleM4(payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SetupStateWaitingM4 {
		return nil, ErrInvalidState
	}

	records, err := unpackEnvelope(payload)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := checkResponse(records, seqM4); err != nil {
		return nil, s.fail(err)
	}

	serverProof, err := records.Get(TagProof)
	if err != nil {
		return nil, s.fail(ErrInvalidMessage)
	}
	if err := s.srp.VerifyServerProof(serverProof); err != nil {
		return nil, s.fail(err)
	}

	s.sessionKey, err = s.srp.SessionKey()
	if err != nil {
		return nil, s.fail(err)
	}

	// Sub-keys per the HAP pair-setup key schedule.
	deviceX, err := crypto.HKDFSHA512(
		"Pair-Setup-Controller-Sign-Salt", "Pair-Setup-Controller-Sign-Info", s.sessionKey)
	if err != nil {
		return nil, s.fail(err)
	}
	s.encryptKey, err = crypto.HKDFSHA512(
		"Pair-Setup-Encrypt-Salt", "Pair-Setup-Encrypt-Info", s.sessionKey)
	if err != nil {
		return nil, s.fail(err)
	}

	// info = iOSDeviceX || client_id || client_ltpk, signed with ltsk.
	info := make([]byte, 0, len(deviceX)+len(s.clientID)+len(s.ltpk))
	info = append(info, deviceX...)
	info = append(info, s.clientID...)
	info = append(info, s.ltpk...)
	sig, err := crypto.Sign(s.seed, info)
	if err != nil {
		return nil, s.fail(err)
	}

	sub := tlv8.New()
	sub.Append(TagIdentifier, s.clientID)
	sub.Append(TagPublicKey, s.ltpk)
	sub.Append(TagSignature, sig)
	if s.config.Name != "" {
		named, err := opack.Pack(map[string]any{"name": s.config.Name})
		if err != nil {
			return nil, s.fail(err)
		}
		sub.Append(TagName, named)
	}

	nonce, err := crypto.NonceLabel("PS-Msg05")
	if err != nil {
		return nil, s.fail(err)
	}
	sealed, err := crypto.Seal(s.encryptKey, nonce, nil, sub.Encode())
	if err != nil {
		return nil, s.fail(err)
	}

	records = tlv8.New()
	records.Append(TagSeqNo, []byte{seqM5})
	records.Append(TagEncryptedData, sealed)

	out, err := packSetupEnvelope(records)
	if err != nil {
		return nil, s.fail(err)
	}

	s.state = SetupStateWaitingM6
	if s.log != nil {
		s.log.Debug("sent M5")
	}
	return out, nil
}

// HandleM6 decrypts the device's identity and completes the handshake,
// returning the long-term credentials. Unless disabled, the device's
// signature over its identity is verified and a mismatch is fatal.
func (s *SetupSession) HandleM6(payload []byte) (*credentials.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SetupStateWaitingM6 {
		return nil, ErrInvalidState
	}

	records, err := unpackEnvelope(payload)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := checkResponse(records, seqM6); err != nil {
		return nil, s.fail(err)
	}

	sealed, err := records.Get(TagEncryptedData)
	if err != nil {
		return nil, s.fail(ErrInvalidMessage)
	}
	nonce, err := crypto.NonceLabel("PS-Msg06")
	if err != nil {
		return nil, s.fail(err)
	}
	plain, err := crypto.Open(s.encryptKey, nonce, nil, sealed)
	if err != nil {
		return nil, s.fail(err)
	}

	sub, err := tlv8.Decode(plain)
	if err != nil {
		return nil, s.fail(ErrInvalidMessage)
	}
	deviceID, err := sub.Get(TagIdentifier)
	if err != nil {
		return nil, s.fail(ErrInvalidMessage)
	}
	deviceLTPK, err := sub.Get(TagPublicKey)
	if err != nil {
		return nil, s.fail(ErrInvalidMessage)
	}

	if !s.config.SkipDeviceSignatureVerify {
		sig, err := sub.Get(TagSignature)
		if err != nil {
			return nil, s.fail(ErrInvalidMessage)
		}
		accessoryX, err := crypto.HKDFSHA512(
			"Pair-Setup-Accessory-Sign-Salt", "Pair-Setup-Accessory-Sign-Info", s.sessionKey)
		if err != nil {
			return nil, s.fail(err)
		}
		info := make([]byte, 0, len(accessoryX)+len(deviceID)+len(deviceLTPK))
		info = append(info, accessoryX...)
		info = append(info, deviceID...)
		info = append(info, deviceLTPK...)
		if err := crypto.Verify(deviceLTPK, info, sig); err != nil {
			return nil, s.fail(ErrDeviceSignature)
		}
	}

	s.creds = &credentials.Credentials{
		DeviceLTPK: deviceLTPK,
		ClientLTSK: s.seed,
		DeviceID:   deviceID,
		ClientID:   s.clientID,
	}
	s.state = SetupStateComplete
	if s.log != nil {
		s.log.Info("pair-setup complete")
	}
	return s.creds, nil
}

// State returns the current handshake state.
func (s *SetupSession) State() SetupState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Credentials returns the result of a completed handshake, or nil.
func (s *SetupSession) Credentials() *credentials.Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SetupStateComplete {
		return nil
	}
	return s.creds
}

// fail marks the session failed; callers must tear down and start over.
func (s *SetupSession) fail(err error) error {
	s.state = SetupStateFailed
	if s.log != nil {
		s.log.Warnf("pair-setup failed: %v", err)
	}
	return err
}

func validatePIN(pin string) error {
	if len(pin) != 4 {
		return ErrPINFormat
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return ErrPINFormat
		}
	}
	return nil
}

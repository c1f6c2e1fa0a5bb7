package pairing

import (
	"bytes"
	"errors"
	"testing"

	"github.com/backkem/companion/pkg/crypto"
	"github.com/backkem/companion/pkg/crypto/srp"
	"github.com/backkem/companion/pkg/opack"
	"github.com/backkem/companion/pkg/tlv8"
)

// setupDevice emulates the device side of Pair-Setup.
type setupDevice struct {
	t   *testing.T
	pin string

	deviceID   []byte
	ltpk       []byte
	ltsk       []byte
	signBadly  bool

	srv        *srp.Server
	sessionKey []byte
	encryptKey []byte

	clientID   []byte
	clientLTPK []byte
}

func newSetupDevice(t *testing.T, pin string) *setupDevice {
	t.Helper()
	ltpk, ltsk, err := crypto.NewSigningKeypair()
	if err != nil {
		t.Fatalf("NewSigningKeypair() error: %v", err)
	}
	return &setupDevice{
		t:        t,
		pin:      pin,
		deviceID: []byte("AA:BB:CC:DD:EE:FF"),
		ltpk:     ltpk,
		ltsk:     ltsk,
	}
}

func (d *setupDevice) unpack(payload []byte) *tlv8.Records {
	d.t.Helper()
	decoded, err := opack.Unpack(payload)
	if err != nil {
		d.t.Fatalf("device: Unpack() error: %v", err)
	}
	msg := decoded.(map[string]any)
	if pwTy := msg["_pwTy"]; pwTy != int64(1) {
		d.t.Fatalf("device: _pwTy = %#v, want 1", pwTy)
	}
	records, err := tlv8.Decode(msg["_pd"].([]byte))
	if err != nil {
		d.t.Fatalf("device: tlv8.Decode() error: %v", err)
	}
	return records
}

func (d *setupDevice) pack(records *tlv8.Records) []byte {
	d.t.Helper()
	payload, err := opack.Pack(map[string]any{"_pd": records.Encode()})
	if err != nil {
		d.t.Fatalf("device: Pack() error: %v", err)
	}
	return payload
}

func (d *setupDevice) respondM2(m1 []byte) []byte {
	d.t.Helper()
	records := d.unpack(m1)
	if seq, _ := records.Get(TagSeqNo); !bytes.Equal(seq, []byte{0x01}) {
		d.t.Fatalf("device: M1 SeqNo = % X", seq)
	}

	srv, err := srp.NewServer("Pair-Setup", d.pin, []byte{0x9e, 0x43, 0x76, 0x6f, 0xf9, 0x3b, 0x55, 0xb6})
	if err != nil {
		d.t.Fatalf("device: NewServer() error: %v", err)
	}
	d.srv = srv

	out := tlv8.New()
	out.Append(TagSeqNo, []byte{0x02})
	out.Append(TagPublicKey, srv.PublicKey())
	out.Append(TagSalt, srv.Salt())
	return d.pack(out)
}

func (d *setupDevice) respondM4(m3 []byte) []byte {
	d.t.Helper()
	records := d.unpack(m3)
	A, err := records.Get(TagPublicKey)
	if err != nil {
		d.t.Fatalf("device: M3 missing PublicKey: %v", err)
	}
	proof, err := records.Get(TagProof)
	if err != nil {
		d.t.Fatalf("device: M3 missing Proof: %v", err)
	}

	if err := d.srv.SetClient(A); err != nil {
		d.t.Fatalf("device: SetClient() error: %v", err)
	}
	if err := d.srv.VerifyClientProof(proof); err != nil {
		d.t.Fatalf("device: client proof rejected: %v", err)
	}

	d.sessionKey, _ = d.srv.SessionKey()
	d.encryptKey, err = crypto.HKDFSHA512(
		"Pair-Setup-Encrypt-Salt", "Pair-Setup-Encrypt-Info", d.sessionKey)
	if err != nil {
		d.t.Fatalf("device: HKDFSHA512() error: %v", err)
	}

	out := tlv8.New()
	out.Append(TagSeqNo, []byte{0x04})
	out.Append(TagProof, d.srv.Proof(A, proof))
	return d.pack(out)
}

func (d *setupDevice) respondM6(m5 []byte) []byte {
	d.t.Helper()
	records := d.unpack(m5)
	sealed, err := records.Get(TagEncryptedData)
	if err != nil {
		d.t.Fatalf("device: M5 missing EncryptedData: %v", err)
	}

	nonce, _ := crypto.NonceLabel("PS-Msg05")
	plain, err := crypto.Open(d.encryptKey, nonce, nil, sealed)
	if err != nil {
		d.t.Fatalf("device: M5 decrypt failed: %v", err)
	}
	sub, err := tlv8.Decode(plain)
	if err != nil {
		d.t.Fatalf("device: M5 sub-TLV decode failed: %v", err)
	}

	d.clientID, _ = sub.Get(TagIdentifier)
	d.clientLTPK, _ = sub.Get(TagPublicKey)
	clientSig, _ := sub.Get(TagSignature)

	// Verify the client's proof of its long-term key.
	deviceX, _ := crypto.HKDFSHA512(
		"Pair-Setup-Controller-Sign-Salt", "Pair-Setup-Controller-Sign-Info", d.sessionKey)
	info := append(append(append([]byte(nil), deviceX...), d.clientID...), d.clientLTPK...)
	if err := crypto.Verify(d.clientLTPK, info, clientSig); err != nil {
		d.t.Fatalf("device: client signature rejected: %v", err)
	}

	// Sign our own identity.
	accessoryX, _ := crypto.HKDFSHA512(
		"Pair-Setup-Accessory-Sign-Salt", "Pair-Setup-Accessory-Sign-Info", d.sessionKey)
	info = append(append(append([]byte(nil), accessoryX...), d.deviceID...), d.ltpk...)
	sig, err := crypto.Sign(d.ltsk, info)
	if err != nil {
		d.t.Fatalf("device: Sign() error: %v", err)
	}
	if d.signBadly {
		sig[0] ^= 0x01
	}

	out := tlv8.New()
	out.Append(TagIdentifier, d.deviceID)
	out.Append(TagPublicKey, d.ltpk)
	out.Append(TagSignature, sig)

	nonce, _ = crypto.NonceLabel("PS-Msg06")
	sealedOut, err := crypto.Seal(d.encryptKey, nonce, nil, out.Encode())
	if err != nil {
		d.t.Fatalf("device: Seal() error: %v", err)
	}

	resp := tlv8.New()
	resp.Append(TagSeqNo, []byte{0x06})
	resp.Append(TagEncryptedData, sealedOut)
	return d.pack(resp)
}

func (d *setupDevice) respondError(seq uint8, code byte, extra func(*tlv8.Records)) []byte {
	out := tlv8.New()
	out.Append(TagSeqNo, []byte{seq})
	out.Append(TagError, []byte{code})
	if extra != nil {
		extra(out)
	}
	return d.pack(out)
}

func TestSetupFullFlow(t *testing.T) {
	device := newSetupDevice(t, "1111")

	s, err := NewSetup(SetupConfig{PIN: "1111", Name: "companionctl"})
	if err != nil {
		t.Fatalf("NewSetup() error: %v", err)
	}

	m1, err := s.Start()
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	m3, err := s.HandleM2(device.respondM2(m1))
	if err != nil {
		t.Fatalf("HandleM2() error: %v", err)
	}
	m5, err := s.HandleM4(device.respondM4(m3))
	if err != nil {
		t.Fatalf("HandleM4() error: %v", err)
	}
	creds, err := s.HandleM6(device.respondM6(m5))
	if err != nil {
		t.Fatalf("HandleM6() error: %v", err)
	}

	if s.State() != SetupStateComplete {
		t.Fatalf("State() = %v, want Complete", s.State())
	}
	if !bytes.Equal(creds.DeviceID, device.deviceID) {
		t.Fatalf("DeviceID = %q, want %q", creds.DeviceID, device.deviceID)
	}
	if !bytes.Equal(creds.DeviceLTPK, device.ltpk) {
		t.Fatal("DeviceLTPK does not match the device's long-term key")
	}
	if !bytes.Equal(creds.ClientID, device.clientID) {
		t.Fatal("ClientID differs from the identity proven to the device")
	}

	// The credential invariant: the public key proven in M5 derives
	// from the stored private key.
	derived, err := creds.ClientLTPK()
	if err != nil {
		t.Fatalf("ClientLTPK() error: %v", err)
	}
	if !bytes.Equal(derived, device.clientLTPK) {
		t.Fatal("stored LTSK does not derive the proven LTPK")
	}
}

func TestSetupWrongPIN(t *testing.T) {
	// Device knows a different PIN; its M4 proof cannot verify.
	device := newSetupDevice(t, "9999")

	s, err := NewSetup(SetupConfig{PIN: "1111"})
	if err != nil {
		t.Fatalf("NewSetup() error: %v", err)
	}
	m1, _ := s.Start()
	m3, err := s.HandleM2(device.respondM2(m1))
	if err != nil {
		t.Fatalf("HandleM2() error: %v", err)
	}

	// Build M4 by hand; the device-side proof check would reject first.
	records := device.unpack(m3)
	A, _ := records.Get(TagPublicKey)
	proof, _ := records.Get(TagProof)
	device.srv.SetClient(A)
	out := tlv8.New()
	out.Append(TagSeqNo, []byte{0x04})
	out.Append(TagProof, device.srv.Proof(A, proof))

	if _, err := s.HandleM4(device.pack(out)); err != srp.ErrProofMismatch {
		t.Fatalf("HandleM4() error = %v, want srp.ErrProofMismatch", err)
	}
	if s.State() != SetupStateFailed {
		t.Fatalf("State() = %v, want Failed", s.State())
	}
}

func TestSetupDeviceErrorAuthentication(t *testing.T) {
	device := newSetupDevice(t, "1111")

	s, _ := NewSetup(SetupConfig{PIN: "1111"})
	m1, _ := s.Start()
	device.respondM2(m1)

	resp := device.respondError(0x02, 0x02, nil)
	if _, err := s.HandleM2(resp); err != ErrAuthentication {
		t.Fatalf("HandleM2() error = %v, want ErrAuthentication", err)
	}
}

func TestSetupBackOff(t *testing.T) {
	device := newSetupDevice(t, "1111")

	s, _ := NewSetup(SetupConfig{PIN: "1111"})
	m1, _ := s.Start()
	device.respondM2(m1)

	resp := device.respondError(0x02, 0x03, func(r *tlv8.Records) {
		// 30 seconds, little-endian.
		r.Append(TagRetryDelay, []byte{30, 0})
	})

	_, err := s.HandleM2(resp)
	var backoff *BackOffError
	if !errors.As(err, &backoff) {
		t.Fatalf("HandleM2() error = %v, want BackOffError", err)
	}
	if backoff.Seconds != 30 {
		t.Fatalf("BackOffError.Seconds = %d, want 30", backoff.Seconds)
	}
}

func TestSetupMaxTries(t *testing.T) {
	device := newSetupDevice(t, "1111")

	s, _ := NewSetup(SetupConfig{PIN: "1111"})
	m1, _ := s.Start()
	device.respondM2(m1)

	resp := device.respondError(0x02, 0x06, nil)
	if _, err := s.HandleM2(resp); err != ErrMaxTries {
		t.Fatalf("HandleM2() error = %v, want ErrMaxTries", err)
	}
}

func TestSetupRejectsBadDeviceSignature(t *testing.T) {
	device := newSetupDevice(t, "1111")
	device.signBadly = true

	s, _ := NewSetup(SetupConfig{PIN: "1111"})
	m1, _ := s.Start()
	m3, _ := s.HandleM2(device.respondM2(m1))
	m5, err := s.HandleM4(device.respondM4(m3))
	if err != nil {
		t.Fatalf("HandleM4() error: %v", err)
	}

	if _, err := s.HandleM6(device.respondM6(m5)); err != ErrDeviceSignature {
		t.Fatalf("HandleM6() error = %v, want ErrDeviceSignature", err)
	}
}

func TestSetupSkipDeviceSignatureVerify(t *testing.T) {
	device := newSetupDevice(t, "1111")
	device.signBadly = true

	s, _ := NewSetup(SetupConfig{PIN: "1111", SkipDeviceSignatureVerify: true})
	m1, _ := s.Start()
	m3, _ := s.HandleM2(device.respondM2(m1))
	m5, _ := s.HandleM4(device.respondM4(m3))

	if _, err := s.HandleM6(device.respondM6(m5)); err != nil {
		t.Fatalf("HandleM6() error = %v, want nil with verification disabled", err)
	}
}

func TestSetupStateEnforcement(t *testing.T) {
	s, err := NewSetup(SetupConfig{PIN: "1111"})
	if err != nil {
		t.Fatalf("NewSetup() error: %v", err)
	}

	if _, err := s.HandleM2(nil); err != ErrInvalidState {
		t.Fatalf("HandleM2() before Start error = %v, want ErrInvalidState", err)
	}

	if _, err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := s.Start(); err != ErrInvalidState {
		t.Fatalf("second Start() error = %v, want ErrInvalidState", err)
	}
	if _, err := s.HandleM4(nil); err != ErrInvalidState {
		t.Fatalf("HandleM4() out of order error = %v, want ErrInvalidState", err)
	}
}

func TestSetupPINValidation(t *testing.T) {
	for _, pin := range []string{"", "123", "12345", "12a4"} {
		if _, err := NewSetup(SetupConfig{PIN: pin}); err != ErrPINFormat {
			t.Fatalf("NewSetup(PIN=%q) error = %v, want ErrPINFormat", pin, err)
		}
	}
}

func TestSetupM5IncludesName(t *testing.T) {
	device := newSetupDevice(t, "1111")

	s, _ := NewSetup(SetupConfig{PIN: "1111", Name: "living room"})
	m1, _ := s.Start()
	m3, _ := s.HandleM2(device.respondM2(m1))
	m5, _ := s.HandleM4(device.respondM4(m3))

	records := device.unpack(m5)
	sealed, _ := records.Get(TagEncryptedData)
	nonce, _ := crypto.NonceLabel("PS-Msg05")
	plain, err := crypto.Open(device.encryptKey, nonce, nil, sealed)
	if err != nil {
		t.Fatalf("M5 decrypt failed: %v", err)
	}
	sub, _ := tlv8.Decode(plain)

	named, err := sub.Get(TagName)
	if err != nil {
		t.Fatalf("M5 sub-TLV missing Name: %v", err)
	}
	decoded, err := opack.Unpack(named)
	if err != nil {
		t.Fatalf("Name value is not OPACK: %v", err)
	}
	if decoded.(map[string]any)["name"] != "living room" {
		t.Fatalf("Name = %#v", decoded)
	}
}

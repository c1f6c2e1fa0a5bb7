// Package pairing implements the client side of the HAP pairing
// sub-protocol as used by Companion devices: Pair-Setup (M1-M6),
// which trades a PIN for long-term Ed25519 credentials, and
// Pair-Verify (M1-M4), which trades those credentials for per-session
// encryption keys.
package pairing

import (
	"fmt"

	"github.com/backkem/companion/pkg/opack"
	"github.com/backkem/companion/pkg/tlv8"
)

// TLV item types from Apple's PairingUtils.
const (
	TagMethod        = 0x00
	TagIdentifier    = 0x01
	TagSalt          = 0x02
	TagPublicKey     = 0x03
	TagProof         = 0x04
	TagEncryptedData = 0x05
	TagSeqNo         = 0x06
	TagError         = 0x07
	TagRetryDelay    = 0x08
	TagSignature     = 0x0A
	TagName          = 0x11
)

// TLV error codes carried under TagError.
const (
	errorUnknown        = 0x01
	errorAuthentication = 0x02
	errorBackoff        = 0x03
	errorUnknownPeer    = 0x04
	errorMaxPeers       = 0x05
	errorMaxTries       = 0x06
)

// Handshake sequence numbers (TagSeqNo values).
const (
	seqM1 = 0x01
	seqM2 = 0x02
	seqM3 = 0x03
	seqM4 = 0x04
	seqM5 = 0x05
	seqM6 = 0x06
)

// Values used at the OPACK envelope around the pairing TLV.
const (
	// passwordTypePIN is the _pwTy value for 4-digit PIN pairing.
	passwordTypePIN = 1

	// authTypeCredentials is the _auTy value for credential-based verify.
	authTypeCredentials = 4
)

// packSetupEnvelope wraps a Pair-Setup TLV into its OPACK envelope.
func packSetupEnvelope(records *tlv8.Records) ([]byte, error) {
	return opack.Pack(map[string]any{
		"_pd":   records.Encode(),
		"_pwTy": passwordTypePIN,
	})
}

// packVerifyEnvelope wraps a Pair-Verify TLV into its OPACK envelope.
func packVerifyEnvelope(records *tlv8.Records) ([]byte, error) {
	return opack.Pack(map[string]any{
		"_pd":   records.Encode(),
		"_auTy": authTypeCredentials,
	})
}

// unpackEnvelope extracts the pairing TLV from an inbound auth frame
// payload.
func unpackEnvelope(payload []byte) (*tlv8.Records, error) {
	decoded, err := opack.Unpack(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	msg, ok := decoded.(map[string]any)
	if !ok {
		return nil, ErrInvalidMessage
	}
	pd, ok := msg["_pd"].([]byte)
	if !ok {
		return nil, ErrInvalidMessage
	}
	records, err := tlv8.Decode(pd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return records, nil
}

// checkResponse validates the sequence number of an inbound TLV and
// converts an error item into a typed error.
func checkResponse(records *tlv8.Records, wantSeq uint8) error {
	if records.Has(TagError) {
		return tlvError(records)
	}
	seq, err := records.Get(TagSeqNo)
	if err != nil || len(seq) != 1 {
		return ErrInvalidMessage
	}
	if seq[0] != wantSeq {
		return fmt.Errorf("%w: got M%d, want M%d", ErrUnexpectedMessage, seq[0], wantSeq)
	}
	return nil
}

// tlvError maps a TLV error item to the package error taxonomy.
func tlvError(records *tlv8.Records) error {
	code, err := records.Get(TagError)
	if err != nil || len(code) != 1 {
		return ErrInvalidMessage
	}
	switch code[0] {
	case errorAuthentication:
		return ErrAuthentication
	case errorMaxTries:
		return ErrMaxTries
	case errorMaxPeers:
		return ErrMaxPeers
	case errorUnknownPeer:
		return ErrUnknownPeer
	case errorBackoff:
		// HAP TLV integers are little-endian.
		seconds := 0
		if delay, err := records.Get(TagRetryDelay); err == nil {
			for i := len(delay) - 1; i >= 0; i-- {
				seconds = seconds<<8 | int(delay[i])
			}
		}
		return &BackOffError{Seconds: seconds}
	default:
		return fmt.Errorf("%w: code %d", ErrDevice, code[0])
	}
}

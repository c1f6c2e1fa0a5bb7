// Package credentials holds the long-term pairing credentials produced
// by Pair-Setup and consumed by Pair-Verify, together with their
// persistence format.
package credentials

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"

	"github.com/backkem/companion/pkg/crypto"
	"github.com/google/uuid"
)

// Credentials is the long-term pairing state for one device. It is
// created on a successful Pair-Setup M6 and read-only afterwards.
type Credentials struct {
	// DeviceLTPK is the device's long-term Ed25519 public key.
	DeviceLTPK []byte `json:"ltpk"`

	// ClientLTSK is our long-term Ed25519 private key seed.
	ClientLTSK []byte `json:"ltsk"`

	// DeviceID is the device identifier proven during Pair-Setup.
	DeviceID []byte `json:"atvId"`

	// ClientID is our 16-byte client identifier.
	ClientID []byte `json:"clientId"`
}

// NewClientID generates a fresh 16-byte client identifier.
func NewClientID() []byte {
	id := uuid.New()
	return id[:]
}

// Validate checks field lengths. It does not prove the keypair was
// accepted by a device; that proof happens during Pair-Setup M5.
func (c *Credentials) Validate() error {
	if len(c.DeviceLTPK) != ed25519.PublicKeySize {
		return ErrInvalidCredentials
	}
	if len(c.ClientLTSK) != ed25519.SeedSize {
		return ErrInvalidCredentials
	}
	if len(c.DeviceID) == 0 || len(c.ClientID) == 0 {
		return ErrInvalidCredentials
	}
	return nil
}

// ClientLTPK derives our long-term public key from the stored seed.
func (c *Credentials) ClientLTPK() ([]byte, error) {
	return crypto.SigningPublicKey(c.ClientLTSK)
}

// Equal reports whether two credential sets are identical.
func (c *Credentials) Equal(other *Credentials) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(c.DeviceLTPK, other.DeviceLTPK) &&
		bytes.Equal(c.ClientLTSK, other.ClientLTSK) &&
		bytes.Equal(c.DeviceID, other.DeviceID) &&
		bytes.Equal(c.ClientID, other.ClientID)
}

// clone returns a deep copy.
func (c *Credentials) clone() *Credentials {
	return &Credentials{
		DeviceLTPK: append([]byte(nil), c.DeviceLTPK...),
		ClientLTSK: append([]byte(nil), c.ClientLTSK...),
		DeviceID:   append([]byte(nil), c.DeviceID...),
		ClientID:   append([]byte(nil), c.ClientID...),
	}
}

// Marshal serializes the credentials as a JSON object with
// base64-encoded values.
func (c *Credentials) Marshal() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// Unmarshal parses credentials serialized by Marshal.
func Unmarshal(data []byte) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

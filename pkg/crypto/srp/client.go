// Package srp implements the client side of SRP-6a (RFC 5054) over the
// 3072-bit group with SHA-512, as required by HAP pair-setup.
//
// Unlike general-purpose SRP libraries, the client's ephemeral secret
// is supplied by the caller: pair-setup reuses the freshly generated
// Ed25519 seed as the SRP ephemeral, so the library must not pick its
// own. A Client holds the state of exactly one authentication flow and
// must not be reused.
package srp

import (
	"crypto/hmac"
	"crypto/sha512"
	"math/big"
)

// Client is an SRP-6a client for a single authentication flow.
//
// Usage:
//
//	c, _ := srp.NewClient("Pair-Setup", pin, ephemeral)
//	A := c.PublicKey()
//	// send A, receive salt and B
//	m1, _ := c.SetServer(salt, B)
//	// send m1, receive m2
//	err := c.VerifyServerProof(m2)
//	k := c.SessionKey()
type Client struct {
	username string
	password string

	a *big.Int // ephemeral secret
	A *big.Int // g^a mod N

	salt []byte
	B    *big.Int

	key   []byte // K = H(S)
	proof []byte // M1
}

// NewClient creates a client with the caller-supplied 32-byte ephemeral
// secret a.
func NewClient(username, password string, ephemeral []byte) (*Client, error) {
	if len(ephemeral) != 32 {
		return nil, ErrInvalidEphemeral
	}
	a := new(big.Int).SetBytes(ephemeral)
	return &Client{
		username: username,
		password: password,
		a:        a,
		A:        new(big.Int).Exp(generatorG, a, primeN),
	}, nil
}

// PublicKey returns A = g^a mod N serialized big-endian as 384 bytes
// with left zero-padding.
func (c *Client) PublicKey() []byte {
	return pad(c.A)
}

// SetServer installs the server's salt and public key B and computes
// the session key and the client proof M1, which is returned.
func (c *Client) SetServer(salt, serverPublic []byte) ([]byte, error) {
	B := new(big.Int).SetBytes(serverPublic)
	if new(big.Int).Mod(B, primeN).Sign() == 0 {
		return nil, ErrInvalidServerKey
	}
	c.salt = append([]byte(nil), salt...)
	c.B = B

	// x = H(salt || H(username ":" password))
	inner := hashSHA512([]byte(c.username + ":" + c.password))
	x := new(big.Int).SetBytes(hashSHA512(c.salt, inner))

	// k = H(N || PAD(g))
	k := new(big.Int).SetBytes(hashSHA512(pad(primeN), pad(generatorG)))

	// u = H(PAD(A) || PAD(B))
	u := new(big.Int).SetBytes(hashSHA512(pad(c.A), pad(B)))

	// S = (B - k * g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(generatorG, x, primeN)
	kgx := new(big.Int).Mul(k, gx)
	base := new(big.Int).Sub(B, kgx)
	base.Mod(base, primeN)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	S := new(big.Int).Exp(base, exp, primeN)

	// K = H(S)
	c.key = hashSHA512(S.Bytes())

	// M1 = H(H(N) xor H(g) || H(username) || salt || A || B || K)
	hN := hashSHA512(pad(primeN))
	hg := hashSHA512(pad(generatorG))
	for i := range hN {
		hN[i] ^= hg[i]
	}
	c.proof = hashSHA512(hN, hashSHA512([]byte(c.username)), c.salt, pad(c.A), pad(B), c.key)

	return c.proof, nil
}

// ClientProof returns M1. SetServer must have been called.
func (c *Client) ClientProof() ([]byte, error) {
	if c.proof == nil {
		return nil, ErrInvalidState
	}
	return c.proof, nil
}

// SessionKey returns the 64-byte session key K. SetServer must have
// been called.
func (c *Client) SessionKey() ([]byte, error) {
	if c.key == nil {
		return nil, ErrInvalidState
	}
	return c.key, nil
}

// VerifyServerProof checks the server's proof M2 = H(A || M1 || K).
func (c *Client) VerifyServerProof(m2 []byte) error {
	if c.proof == nil {
		return ErrInvalidState
	}
	expected := hashSHA512(pad(c.A), c.proof, c.key)
	if !hmac.Equal(expected, m2) {
		return ErrProofMismatch
	}
	return nil
}

func hashSHA512(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

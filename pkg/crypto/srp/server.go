package srp

import (
	"crypto/hmac"
	"crypto/rand"
	"math/big"
)

// Server is the responder side of SRP-6a. The client library only ever
// acts as initiator against a real device; the server role exists for
// handshake tests and local device emulation.
type Server struct {
	username string
	salt     []byte

	v *big.Int // verifier g^x
	b *big.Int // ephemeral secret
	B *big.Int // kv + g^b mod N

	key   []byte // K = H(S)
	proof []byte // expected client proof M1
}

// NewServer creates a server that knows the password (the device knows
// the on-screen PIN).
func NewServer(username, password string, salt []byte) (*Server, error) {
	inner := hashSHA512([]byte(username + ":" + password))
	x := new(big.Int).SetBytes(hashSHA512(salt, inner))
	v := new(big.Int).Exp(generatorG, x, primeN)

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	b := new(big.Int).SetBytes(raw)

	k := new(big.Int).SetBytes(hashSHA512(pad(primeN), pad(generatorG)))
	B := new(big.Int).Mul(k, v)
	B.Add(B, new(big.Int).Exp(generatorG, b, primeN))
	B.Mod(B, primeN)

	return &Server{
		username: username,
		salt:     append([]byte(nil), salt...),
		v:        v,
		b:        b,
		B:        B,
	}, nil
}

// PublicKey returns B serialized big-endian as 384 bytes.
func (s *Server) PublicKey() []byte {
	return pad(s.B)
}

// Salt returns the salt handed to the client in M2.
func (s *Server) Salt() []byte {
	return append([]byte(nil), s.salt...)
}

// SetClient installs the client's public key A and computes the session
// key via S = (A * v^u)^b mod N.
func (s *Server) SetClient(clientPublic []byte) error {
	A := new(big.Int).SetBytes(clientPublic)
	if new(big.Int).Mod(A, primeN).Sign() == 0 {
		return ErrInvalidServerKey
	}

	u := new(big.Int).SetBytes(hashSHA512(pad(A), pad(s.B)))

	base := new(big.Int).Mul(A, new(big.Int).Exp(s.v, u, primeN))
	base.Mod(base, primeN)
	S := new(big.Int).Exp(base, s.b, primeN)

	s.key = hashSHA512(S.Bytes())

	hN := hashSHA512(pad(primeN))
	hg := hashSHA512(pad(generatorG))
	for i := range hN {
		hN[i] ^= hg[i]
	}
	s.proof = hashSHA512(hN, hashSHA512([]byte(s.username)), s.salt, pad(A), pad(s.B), s.key)
	return nil
}

// VerifyClientProof checks the client's M1.
func (s *Server) VerifyClientProof(m1 []byte) error {
	if s.proof == nil {
		return ErrInvalidState
	}
	if !hmac.Equal(s.proof, m1) {
		return ErrProofMismatch
	}
	return nil
}

// Proof returns M2 = H(A || M1 || K) over the client's proof.
func (s *Server) Proof(clientPublic, m1 []byte) []byte {
	A := new(big.Int).SetBytes(clientPublic)
	return hashSHA512(pad(A), m1, s.key)
}

// SessionKey returns the 64-byte session key K.
func (s *Server) SessionKey() ([]byte, error) {
	if s.key == nil {
		return nil, ErrInvalidState
	}
	return s.key, nil
}

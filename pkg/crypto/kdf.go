package crypto

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFSHA512 derives 32 bytes of key material using HKDF-SHA512
// (RFC 5869). The protocol uses ASCII labels for both salt and info
// (e.g. "Pair-Setup-Encrypt-Salt" / "Pair-Setup-Encrypt-Info").
func HKDFSHA512(salt, info string, ikm []byte) ([]byte, error) {
	reader := hkdf.New(sha512.New, ikm, []byte(salt), []byte(info))
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

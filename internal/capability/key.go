package capability

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfSalt = "path402/capability"
	hkdfInfo = "capability-token/v1"
)

// KeyProvider supplies the symmetric signing key.
type KeyProvider interface {
	SigningKey() ([]byte, error)
}

// StaticKey is a raw HMAC key.
type StaticKey []byte

func (k StaticKey) SigningKey() ([]byte, error) {
	if len(k) == 0 {
		return nil, fmt.Errorf("empty signing key")
	}
	return k, nil
}

// DerivedKey derives a 32-byte HMAC key from a master secret with HKDF-SHA256.
type DerivedKey struct {
	key []byte
}

// NewDerivedKey derives the signing key once. The secret must be at least 16 bytes.
func NewDerivedKey(secret []byte) (*DerivedKey, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("capability secret too short: %d bytes", len(secret))
	}
	reader := hkdf.New(sha256.New, secret, []byte(hkdfSalt), []byte(hkdfInfo))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return &DerivedKey{key: key}, nil
}

func (k *DerivedKey) SigningKey() ([]byte, error) {
	return k.key, nil
}

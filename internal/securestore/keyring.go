// Package securestore opens key/value namespaces encrypted with a key held in
// the OS keyring, falling back to a key file and finally to a plain store.
package securestore

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keySize = 32

var errInvalidKey = errors.New("invalid key")

// KeySource holds the 32-byte encryption key.
type KeySource interface {
	GetKey() ([]byte, error)
	// SetKey generates, stores and returns a fresh key.
	SetKey() ([]byte, error)
	DeleteKey() error
}

// Keyring keeps the key hex-encoded in the OS keyring.
type Keyring struct {
	Service string
	User    string
}

var (
	keyringSet    = keyring.Set
	keyringGet    = keyring.Get
	keyringDelete = keyring.Delete
	randRead      = rand.Read
)

// NewKeyring returns a keyring source for service/user.
func NewKeyring(service, user string) *Keyring {
	return &Keyring{Service: service, User: user}
}

func (k *Keyring) SetKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := randRead(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := keyringSet(k.Service, k.User, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("store key in keyring: %w", err)
	}

	return key, nil
}

func (k *Keyring) GetKey() ([]byte, error) {
	encoded, err := keyringGet(k.Service, k.User)
	if err != nil {
		return nil, err
	}

	return decodeKey(encoded)
}

func (k *Keyring) DeleteKey() error {
	return keyringDelete(k.Service, k.User)
}

func decodeKey(encoded string) ([]byte, error) {
	key, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: bad format: %w", errInvalidKey, err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", errInvalidKey, keySize, len(key))
	}

	return key, nil
}

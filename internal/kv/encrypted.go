package kv

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const gcmPrefix = "gcm1"

var errMalformedCiphertext = errors.New("malformed ciphertext")

// EncryptedStore seals every value with AES-GCM before handing it to the inner
// store. Keys stay in clear text so lookups keep working.
type EncryptedStore struct {
	inner Store
	aead  cipher.AEAD
}

// NewEncryptedStore wraps inner with a 16, 24 or 32 byte AES key.
func NewEncryptedStore(inner Store, key []byte) (*EncryptedStore, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &EncryptedStore{inner: inner, aead: aead}, nil
}

func (e *EncryptedStore) Get(ctx context.Context, key string) (string, bool, error) {
	sealed, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}

	value, err := e.open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("%w: key %q: %w", ErrCorrupt, key, err)
	}

	return value, true, nil
}

func (e *EncryptedStore) Put(ctx context.Context, key, value string) error {
	sealed, err := e.seal(value)
	if err != nil {
		return err
	}

	return e.inner.Put(ctx, key, sealed)
}

func (e *EncryptedStore) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

// All decrypts every entry; a single undecryptable value fails the call with ErrCorrupt.
func (e *EncryptedStore) All(ctx context.Context) (map[string]string, error) {
	sealed, err := e.inner.All(ctx)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]string, len(sealed))
	for key, raw := range sealed {
		value, err := e.open(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %w", ErrCorrupt, key, err)
		}
		entries[key] = value
	}

	return entries, nil
}

func (e *EncryptedStore) ReplaceAll(ctx context.Context, entries map[string]string) error {
	sealed := make(map[string]string, len(entries))
	for key, value := range entries {
		s, err := e.seal(value)
		if err != nil {
			return err
		}
		sealed[key] = s
	}

	return e.inner.ReplaceAll(ctx, sealed)
}

func (e *EncryptedStore) Clear(ctx context.Context) error {
	return e.inner.Clear(ctx)
}

func (e *EncryptedStore) seal(value string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := e.aead.Seal(nil, nonce, []byte(value), nil)
	out := make([]byte, 0, len(gcmPrefix)+len(nonce)+len(ciphertext))
	out = append(out, gcmPrefix...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (e *EncryptedStore) open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < len(gcmPrefix)+nonceSize || string(data[:len(gcmPrefix)]) != gcmPrefix {
		return "", errMalformedCiphertext
	}

	nonce := data[len(gcmPrefix) : len(gcmPrefix)+nonceSize]
	plaintext, err := e.aead.Open(nil, nonce, data[len(gcmPrefix)+nonceSize:], nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}

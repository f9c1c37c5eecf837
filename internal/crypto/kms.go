// Package crypto implements the encryption gateway: per-tenant DEK
// resolution and field-level encrypt/decrypt across the platform, client and
// sealed trust modes.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

// KMS wraps and unwraps tenant data encryption keys with a master key it
// controls. GenerateSealed produces a keypair whose private half the KMS
// does not retain.
type KMS interface {
	Wrap(ctx context.Context, key []byte, keyID string) ([]byte, error)
	Unwrap(ctx context.Context, wrapped []byte, keyID string) ([]byte, error)
	GenerateSealed(ctx context.Context) (publicKey, privateKey []byte, err error)
}

// ErrKeyUnavailable reports that a DEK could not be resolved: missing tenant
// key material, wrong master key, or unreachable backend. Writes fail closed
// on it.
var ErrKeyUnavailable = errors.New("encryption key unavailable")

// UnavailableKMS refuses every operation. Wired when no master key is
// configured: encrypted tenants then fail closed instead of degrading to
// plaintext, while unencrypted tenants work normally.
type UnavailableKMS struct{}

func (UnavailableKMS) Wrap(context.Context, []byte, string) ([]byte, error) {
	return nil, ErrKeyUnavailable
}

func (UnavailableKMS) Unwrap(context.Context, []byte, string) ([]byte, error) {
	return nil, ErrKeyUnavailable
}

func (UnavailableKMS) GenerateSealed(context.Context) ([]byte, []byte, error) {
	return nil, nil, ErrKeyUnavailable
}

// LocalKMS is the built-in key backend: AES-256-GCM wrapping under a master
// key held in locked memory. The keyID is bound into the wrap as AAD so a
// blob wrapped for one key name cannot be unwrapped under another.
type LocalKMS struct {
	master *memguard.Enclave
}

// NewLocalKMS seals the master key into a memguard enclave. The caller's
// copy is wiped.
func NewLocalKMS(masterKey []byte) (*LocalKMS, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}
	// NewEnclave wipes the source buffer
	return &LocalKMS{master: memguard.NewEnclave(masterKey)}, nil
}

// Wrap encrypts key under the master key.
func (k *LocalKMS) Wrap(ctx context.Context, key []byte, keyID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gcm, done, err := k.masterGCM()
	if err != nil {
		return nil, err
	}
	defer done()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, key, []byte(keyID)), nil
}

// Unwrap decrypts a wrapped key. A failure here means missing or mismatched
// key material and maps to ErrKeyUnavailable.
func (k *LocalKMS) Unwrap(ctx context.Context, wrapped []byte, keyID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gcm, done, err := k.masterGCM()
	if err != nil {
		return nil, err
	}
	defer done()

	if len(wrapped) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: wrapped key too short", ErrKeyUnavailable)
	}
	nonce, ct := wrapped[:gcm.NonceSize()], wrapped[gcm.NonceSize():]
	key, err := gcm.Open(nil, nonce, ct, []byte(keyID))
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap: %v", ErrKeyUnavailable, err)
	}
	return key, nil
}

// GenerateSealed returns a fresh X25519 keypair. The private half is handed
// to the caller and forgotten; the KMS keeps nothing.
func (k *LocalKMS) GenerateSealed(ctx context.Context) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate sealed keypair: %w", err)
	}
	return priv.PublicKey().Bytes(), priv.Bytes(), nil
}

// masterGCM opens the enclave and builds a GCM instance over the master key.
// done destroys the unlocked buffer.
func (k *LocalKMS) masterGCM() (cipher.AEAD, func(), error) {
	buf, err := k.master.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open master enclave: %v", ErrKeyUnavailable, err)
	}
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("master cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, fmt.Errorf("master gcm: %w", err)
	}
	return gcm, buf.Destroy, nil
}

// NewDEK generates a fresh 32-byte data encryption key.
func NewDEK() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate dek: %w", err)
	}
	return key, nil
}

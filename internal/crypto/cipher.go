package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Ciphertext framing. The prefix lets readers recognize an encrypted value
// without consulting tenant config; the sealed variant carries the ephemeral
// public key needed by the (offline) private-key holder.
const (
	prefixV1       = "enc$v1$"
	prefixSealedV1 = "enc$sealed$v1$"
)

var (
	// ErrSealed reports an attempt to decrypt a sealed value server-side.
	ErrSealed = errors.New("sealed ciphertext: server holds no private key")
	// ErrDecrypt reports an authentication failure: wrong DEK or corrupted
	// ciphertext.
	ErrDecrypt = errors.New("decrypt failed")
)

// IsEncrypted reports whether a stored value carries ciphertext framing.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, prefixV1) || strings.HasPrefix(s, prefixSealedV1)
}

// IsSealed reports whether a stored value is sealed ciphertext.
func IsSealed(s string) bool {
	return strings.HasPrefix(s, prefixSealedV1)
}

// EncryptRandomized encrypts plaintext under dek with a fresh random nonce.
// Equal plaintexts never produce equal ciphertexts.
func EncryptRandomized(dek []byte, plaintext string) (string, error) {
	gcm, err := newGCM(dek)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	blob := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefixV1 + base64.StdEncoding.EncodeToString(blob), nil
}

// EncryptDeterministic encrypts plaintext under dek with a nonce derived
// from the plaintext itself (SIV-style), so equal plaintexts produce equal
// ciphertexts. Only for fields that need exact-match lookup.
func EncryptDeterministic(dek []byte, plaintext string) (string, error) {
	gcm, err := newGCM(dek)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, dek)
	mac.Write([]byte("det-nonce\x00"))
	mac.Write([]byte(plaintext))
	nonce := mac.Sum(nil)[:gcm.NonceSize()]

	blob := gcm.Seal(append([]byte{}, nonce...), nonce, []byte(plaintext), nil)
	return prefixV1 + base64.StdEncoding.EncodeToString(blob), nil
}

// EncryptSealed encrypts plaintext to a tenant's X25519 public key via an
// ephemeral ECDH exchange. The server can produce but never open these.
func EncryptSealed(publicKey []byte, plaintext string) (string, error) {
	curve := ecdh.X25519()
	peer, err := curve.NewPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("sealed public key: %w", err)
	}
	eph, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return "", fmt.Errorf("ephemeral key: %w", err)
	}
	shared, err := eph.ECDH(peer)
	if err != nil {
		return "", fmt.Errorf("ecdh: %w", err)
	}
	key := sha256.Sum256(shared)

	gcm, err := newGCM(key[:])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	blob := eph.PublicKey().Bytes()
	blob = append(blob, nonce...)
	blob = gcm.Seal(blob, nonce, []byte(plaintext), nil)
	return prefixSealedV1 + base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a v1 ciphertext under dek. Sealed values return ErrSealed;
// values without ciphertext framing are returned as-is (plaintext rows from
// disabled tenants or pre-encryption history).
func Decrypt(dek []byte, value string) (string, error) {
	if IsSealed(value) {
		return "", ErrSealed
	}
	if !strings.HasPrefix(value, prefixV1) {
		return value, nil
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefixV1))
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding: %v", ErrDecrypt, err)
	}
	gcm, err := newGCM(dek)
	if err != nil {
		return "", err
	}
	if len(blob) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, ct := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	pt, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(pt), nil
}

// OpenSealed decrypts a sealed value with the holder's private key. Exists
// for client-side tooling and tests; the server never has privateKey.
func OpenSealed(privateKey []byte, value string) (string, error) {
	if !IsSealed(value) {
		return "", fmt.Errorf("%w: not sealed ciphertext", ErrDecrypt)
	}
	blob, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, prefixSealedV1))
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding: %v", ErrDecrypt, err)
	}
	curve := ecdh.X25519()
	priv, err := curve.NewPrivateKey(privateKey)
	if err != nil {
		return "", fmt.Errorf("sealed private key: %w", err)
	}
	if len(blob) < 32 {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	eph, err := curve.NewPublicKey(blob[:32])
	if err != nil {
		return "", fmt.Errorf("%w: ephemeral key: %v", ErrDecrypt, err)
	}
	shared, err := priv.ECDH(eph)
	if err != nil {
		return "", fmt.Errorf("%w: ecdh: %v", ErrDecrypt, err)
	}
	key := sha256.Sum256(shared)

	gcm, err := newGCM(key[:])
	if err != nil {
		return "", err
	}
	rest := blob[32:]
	if len(rest) < gcm.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	pt, err := gcm.Open(nil, rest[:gcm.NonceSize()], rest[gcm.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(pt), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return gcm, nil
}

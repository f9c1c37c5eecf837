package crypto

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDEK(t *testing.T) []byte {
	t.Helper()
	dek, err := NewDEK()
	require.NoError(t, err)
	return dek
}

func TestRandomizedEncryptionNonDeterministic(t *testing.T) {
	dek := testDEK(t)

	a, err := EncryptRandomized(dek, "hello world")
	require.NoError(t, err)
	b, err := EncryptRandomized(dek, "hello world")
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "randomized mode must never repeat ciphertext for equal plaintexts")

	for _, ct := range []string{a, b} {
		pt, err := Decrypt(dek, ct)
		require.NoError(t, err)
		assert.Equal(t, "hello world", pt)
	}
}

func TestDeterministicEncryptionStable(t *testing.T) {
	dek := testDEK(t)

	a, err := EncryptDeterministic(dek, "a@b.com")
	require.NoError(t, err)
	b, err := EncryptDeterministic(dek, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, a, b, "deterministic mode must repeat ciphertext for equal plaintexts")

	c, err := EncryptDeterministic(dek, "x@y.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	pt, err := Decrypt(dek, a)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", pt)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	dekA := testDEK(t)
	dekB := testDEK(t)

	ct, err := EncryptRandomized(dekA, "tenant A secret")
	require.NoError(t, err)

	_, err = Decrypt(dekB, ct)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestDecryptPassesThroughPlaintext(t *testing.T) {
	dek := testDEK(t)
	pt, err := Decrypt(dek, "never encrypted")
	require.NoError(t, err)
	assert.Equal(t, "never encrypted", pt)
}

func TestSealedRoundTrip(t *testing.T) {
	kms, err := NewLocalKMS(make([]byte, 32))
	require.NoError(t, err)

	pub, priv, err := kms.GenerateSealed(context.Background())
	require.NoError(t, err)

	ct, err := EncryptSealed(pub, "only the tenant reads this")
	require.NoError(t, err)
	assert.True(t, IsSealed(ct))

	// The server, holding any DEK, cannot open it.
	_, err = Decrypt(testDEK(t), ct)
	assert.ErrorIs(t, err, ErrSealed)

	// The private-key holder can.
	pt, err := OpenSealed(priv, ct)
	require.NoError(t, err)
	assert.Equal(t, "only the tenant reads this", pt)
}

func TestIsEncrypted(t *testing.T) {
	dek := testDEK(t)
	ct, err := EncryptRandomized(dek, "x")
	require.NoError(t, err)

	assert.True(t, IsEncrypted(ct))
	assert.False(t, IsEncrypted("plain text"))
	assert.False(t, IsSealed(ct))
}

func TestKMSWrapUnwrap(t *testing.T) {
	master := make([]byte, 32)
	copy(master, "0123456789abcdef0123456789abcdef")
	kms, err := NewLocalKMS(master)
	require.NoError(t, err)

	ctx := context.Background()
	dek := testDEK(t)
	dekCopy := append([]byte{}, dek...)

	wrapped, err := kms.Wrap(ctx, dek, "key-1")
	require.NoError(t, err)

	got, err := kms.Unwrap(ctx, wrapped, "key-1")
	require.NoError(t, err)
	assert.Equal(t, dekCopy, got)

	// keyID is bound as AAD
	_, err = kms.Unwrap(ctx, wrapped, "key-2")
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestKMSRejectsShortMasterKey(t *testing.T) {
	_, err := NewLocalKMS([]byte("short"))
	assert.Error(t, err)
}

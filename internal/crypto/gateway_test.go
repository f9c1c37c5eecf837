package crypto

import (
	"context"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/internal/models"
)

// countingKMS wraps LocalKMS and counts unwrap calls.
type countingKMS struct {
	*LocalKMS
	unwraps atomic.Int64
	delay   time.Duration
}

func (k *countingKMS) Unwrap(ctx context.Context, wrapped []byte, keyID string) ([]byte, error) {
	k.unwraps.Add(1)
	if k.delay > 0 {
		time.Sleep(k.delay)
	}
	return k.LocalKMS.Unwrap(ctx, wrapped, keyID)
}

func newTestTenant(t *testing.T, kms KMS, mode models.EncryptionMode) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{Name: "acme", Mode: mode, KeyID: "key-1"}
	tenant.ID = models.RandomID()

	switch mode {
	case models.ModePlatform, models.ModeClient:
		dek, err := NewDEK()
		require.NoError(t, err)
		wrapped, err := kms.Wrap(context.Background(), dek, "key-1")
		require.NoError(t, err)
		tenant.WrappedDEK = base64.StdEncoding.EncodeToString(wrapped)
	case models.ModeSealed:
		pub, _, err := kms.GenerateSealed(context.Background())
		require.NoError(t, err)
		tenant.SealedPublicKey = base64.StdEncoding.EncodeToString(pub)
	}
	return tenant
}

func newTestGateway(t *testing.T) (*Gateway, *countingKMS) {
	t.Helper()
	local, err := NewLocalKMS(make([]byte, 32))
	require.NoError(t, err)
	kms := &countingKMS{LocalKMS: local}
	gw, err := NewGateway(kms, time.Minute, nil)
	require.NoError(t, err)
	t.Cleanup(gw.Close)
	return gw, kms
}

func TestDEKFailsClosedWithoutKey(t *testing.T) {
	gw, _ := newTestGateway(t)
	tenant := &models.Tenant{Name: "broken", Mode: models.ModePlatform}
	tenant.ID = models.RandomID()

	_, err := gw.DEK(context.Background(), tenant)
	assert.ErrorIs(t, err, ErrKeyUnavailable)

	_, err = gw.DEK(context.Background(), nil)
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestDEKSealedTenantHasNoServerKey(t *testing.T) {
	gw, kms := newTestGateway(t)
	tenant := newTestTenant(t, kms, models.ModeSealed)

	_, err := gw.DEK(context.Background(), tenant)
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestDEKConcurrentResolutionCoalesces(t *testing.T) {
	gw, kms := newTestGateway(t)
	kms.delay = 100 * time.Millisecond
	tenant := newTestTenant(t, kms, models.ModePlatform)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := gw.DEK(context.Background(), tenant)
			assert.NoError(t, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), kms.unwraps.Load(), "concurrent resolutions must share one unwrap")
}

func TestShouldDecryptPolicy(t *testing.T) {
	gw, kms := newTestGateway(t)

	assert.True(t, gw.ShouldDecryptOnRead(newTestTenant(t, kms, models.ModePlatform)))
	assert.False(t, gw.ShouldDecryptOnRead(newTestTenant(t, kms, models.ModeClient)))
	assert.False(t, gw.ShouldDecryptOnRead(newTestTenant(t, kms, models.ModeSealed)))
	assert.False(t, gw.ShouldDecryptOnRead(nil))

	assert.True(t, ShouldDecryptLevel(models.EncryptionPlatform, false))
	assert.False(t, ShouldDecryptLevel(models.EncryptionClient, false))
	assert.True(t, ShouldDecryptLevel(models.EncryptionClient, true))
	assert.False(t, ShouldDecryptLevel(models.EncryptionSealed, true), "sealed rows are never decrypted, even forced")
	assert.False(t, ShouldDecryptLevel(models.EncryptionNone, true))
}

func TestEncryptFieldsStampsLevelAndRoundTrips(t *testing.T) {
	gw, kms := newTestGateway(t)
	tenant := newTestTenant(t, kms, models.ModePlatform)
	ctx := context.Background()

	data := map[string]any{"content": "the plan is in the attic", "type": "user"}
	level, err := gw.EncryptFields(ctx, models.TableMessage, data, tenant)
	require.NoError(t, err)
	assert.Equal(t, models.EncryptionPlatform, level)

	ct := data["content"].(string)
	assert.True(t, IsEncrypted(ct))
	assert.Equal(t, "user", data["type"], "undeclared fields stay plaintext")

	dek, err := gw.DEK(ctx, tenant)
	require.NoError(t, err)
	require.NoError(t, DecryptFieldsWithDEK(models.TableMessage, data, dek))
	assert.Equal(t, "the plan is in the attic", data["content"])
}

func TestEncryptFieldsSealed(t *testing.T) {
	gw, kms := newTestGateway(t)
	tenant := newTestTenant(t, kms, models.ModeSealed)

	data := map[string]any{"content": "write-only"}
	level, err := gw.EncryptFields(context.Background(), models.TableMessage, data, tenant)
	require.NoError(t, err)
	assert.Equal(t, models.EncryptionSealed, level)
	assert.True(t, IsSealed(data["content"].(string)))
}

func TestEncryptFieldsNoTenantIsPlaintext(t *testing.T) {
	gw, _ := newTestGateway(t)

	data := map[string]any{"content": "public"}
	level, err := gw.EncryptFields(context.Background(), models.TableMessage, data, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EncryptionNone, level)
	assert.Equal(t, "public", data["content"])
}

func TestTenantIsolation(t *testing.T) {
	gw, kms := newTestGateway(t)
	ctx := context.Background()
	tenantA := newTestTenant(t, kms, models.ModePlatform)
	tenantB := newTestTenant(t, kms, models.ModePlatform)

	data := map[string]any{"content": "tenant A only"}
	_, err := gw.EncryptFields(ctx, models.TableMessage, data, tenantA)
	require.NoError(t, err)

	dekB, err := gw.DEK(ctx, tenantB)
	require.NoError(t, err)
	err = DecryptFieldsWithDEK(models.TableMessage, data, dekB)
	require.Error(t, err, "tenant B's key must not open tenant A's ciphertext")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestEncryptLookupValue(t *testing.T) {
	gw, kms := newTestGateway(t)
	tenant := newTestTenant(t, kms, models.ModePlatform)
	ctx := context.Background()

	a, err := gw.EncryptLookupValue(ctx, models.TableUser, "email", "a@b.com", tenant)
	require.NoError(t, err)
	b, err := gw.EncryptLookupValue(ctx, models.TableUser, "email", "a@b.com", tenant)
	require.NoError(t, err)
	assert.Equal(t, a, b, "lookup values must encrypt deterministically")
	assert.True(t, IsEncrypted(a))

	// randomized-discipline fields are not lookup-encryptable
	c, err := gw.EncryptLookupValue(ctx, models.TableMessage, "content", "hi", tenant)
	require.NoError(t, err)
	assert.Equal(t, "hi", c)
}

//go:build integration

// Package db integration tests run against a real SurrealDB container.
package db

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mnemolabs/mnemo/internal/crypto"
	"github.com/mnemolabs/mnemo/internal/models"
)

var (
	testDB        *Client
	testRepo      *Repo
	testContainer testcontainers.Container
)

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	masterKey := []byte("0123456789abcdef0123456789abcdef")
	kms, err := crypto.NewLocalKMS(masterKey)
	if err != nil {
		log.Fatalf("Failed to init test kms: %v", err)
	}
	gateway, err := crypto.NewGateway(kms, time.Minute, nil)
	if err != nil {
		log.Fatalf("Failed to init test gateway: %v", err)
	}
	testRepo = NewRepo(testDB, gateway, nil)

	code := m.Run()

	gateway.Close()
	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func wipe(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.WipeData(context.Background()))
}

// provisionTenant registers a tenant with a freshly wrapped DEK.
func provisionTenant(t *testing.T, id string, mode models.EncryptionMode) *models.Tenant {
	t.Helper()
	ctx := context.Background()

	tenant := &models.Tenant{Name: id, Mode: mode}
	tenant.ID = id

	if mode == models.ModePlatform || mode == models.ModeClient {
		dek, err := crypto.NewDEK()
		require.NoError(t, err)
		wrapped, err := testRepo.Gateway().KMS().Wrap(ctx, dek, "test-key")
		require.NoError(t, err)
		tenant.KeyID = "test-key"
		tenant.WrappedDEK = base64Std(wrapped)
	}

	stored, err := testRepo.UpsertTenant(ctx, tenant)
	require.NoError(t, err)
	return stored
}

func base64Std(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func TestMessageEncryptedAtRest(t *testing.T) {
	wipe(t)
	ctx := context.Background()
	tenant := provisionTenant(t, "acme", models.ModePlatform)

	msg := &models.Message{
		SessionID:  "sess-1",
		Type:       models.MessageUser,
		Content:    "the launch code is 0000",
		TokenCount: 6,
	}
	stored, err := testRepo.UpsertMessage(ctx, msg, tenant)
	require.NoError(t, err)
	assert.Equal(t, models.EncryptionPlatform, stored.EncryptionLevel)

	// raw row holds ciphertext
	raw, err := testDB.Query(ctx, `SELECT content FROM message`, nil)
	require.NoError(t, err)
	rows, ok := (*raw)[0].Result.([]any)
	require.True(t, ok)
	require.NotEmpty(t, rows)
	row, ok := rows[0].(map[string]any)
	require.True(t, ok)
	content, _ := row["content"].(string)
	assert.True(t, strings.HasPrefix(content, "enc$"), "content at rest: %q", content)

	// platform rows decrypt on read without an explicit request
	got, err := testRepo.GetMessage(ctx, stored.ID, ReadOptions{Tenant: tenant})
	require.NoError(t, err)
	assert.Equal(t, "the launch code is 0000", got.Content)
	assert.False(t, got.DecryptSkipped)
}

func TestPlatformRowDecryptsWithoutTenantContext(t *testing.T) {
	wipe(t)
	ctx := context.Background()
	tenant := provisionTenant(t, "acme", models.ModePlatform)

	msg := &models.Message{SessionID: "sess-1", Type: models.MessageUser, Content: "hello from acme"}
	stored, err := testRepo.UpsertMessage(ctx, msg, tenant)
	require.NoError(t, err)

	// the stamped level carries enough context: no caller tenant needed
	got, err := testRepo.GetMessage(ctx, stored.ID, ReadOptions{})
	require.NoError(t, err)
	assert.False(t, got.DecryptSkipped)
	assert.Equal(t, "hello from acme", got.Content)

	// a different tenant's context never opens the row
	other := provisionTenant(t, "globex", models.ModePlatform)
	got, err = testRepo.GetMessage(ctx, stored.ID, ReadOptions{Tenant: other})
	require.NoError(t, err)
	assert.True(t, got.DecryptSkipped)
	assert.True(t, strings.HasPrefix(got.Content, "enc$"))
}

func TestClientModeRequiresExplicitDecrypt(t *testing.T) {
	wipe(t)
	ctx := context.Background()
	tenant := provisionTenant(t, "client-co", models.ModeClient)

	msg := &models.Message{SessionID: "sess-1", Type: models.MessageUser, Content: "private"}
	stored, err := testRepo.UpsertMessage(ctx, msg, tenant)
	require.NoError(t, err)

	got, err := testRepo.GetMessage(ctx, stored.ID, ReadOptions{Tenant: tenant})
	require.NoError(t, err)
	assert.True(t, got.DecryptSkipped)
	assert.True(t, strings.HasPrefix(got.Content, "enc$"))

	got, err = testRepo.GetMessage(ctx, stored.ID, ReadOptions{Tenant: tenant, Decrypt: true})
	require.NoError(t, err)
	assert.False(t, got.DecryptSkipped)
	assert.Equal(t, "private", got.Content)
}

func TestSessionLifecycle(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	sess := &models.Session{Mode: models.SessionModeChat, Agent: "helper"}
	sess.ID = "sess-1"
	_, err := testRepo.UpsertSession(ctx, sess, nil)
	require.NoError(t, err)

	require.NoError(t, testRepo.AddSessionTokens(ctx, "sess-1", 120))
	require.NoError(t, testRepo.AddSessionTokens(ctx, "sess-1", 30))

	_, err = testRepo.MergeSessionMetadata(ctx, "sess-1", models.Metadata{
		models.MetaLatestSummary: "did things",
	})
	require.NoError(t, err)

	got, err := testRepo.GetSession(ctx, "sess-1", ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, 150, got.TotalTokens)
	assert.Equal(t, "did things", got.Metadata.String(models.MetaLatestSummary))

	deleted, err := testRepo.SoftDelete(ctx, models.TableSession, "sess-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = testRepo.GetSession(ctx, "sess-1", ReadOptions{})
	assert.ErrorIs(t, err, ErrNotFound)

	// second delete is a no-op
	deleted, err = testRepo.SoftDelete(ctx, models.TableSession, "sess-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestChunkSlotIsUnique(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	sess := &models.Session{Mode: models.SessionModeChat}
	sess.ID = "sess-1"
	_, err := testRepo.UpsertSession(ctx, sess, nil)
	require.NoError(t, err)

	sid := "sess-1"
	build := func(name string) (*models.Moment, error) {
		m := &models.Moment{
			Name:            name,
			Summary:         "span summary",
			MomentType:      models.MomentSessionChunk,
			SourceSessionID: &sid,
		}
		m.Metadata = models.Metadata{models.MetaChunkIndex: 0}
		return testRepo.CreateMomentWithSession(ctx, m, sid, models.Metadata{models.MetaMomentCount: 1})
	}

	first, err := build("sess-1-chunk-0")
	require.NoError(t, err)
	require.NotNil(t, first)

	// same chunk slot from a concurrent builder
	_, err = build("sess-1-chunk-0-b")
	assert.ErrorIs(t, err, ErrConcurrentModification)

	latest, err := testRepo.LatestChunkMoment(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.ID)
}

func TestMomentsByIDs(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	a := &models.Moment{Name: "note-a", Summary: "first note", MomentType: models.MomentCheckpoint}
	b := &models.Moment{Name: "note-b", Summary: "second note", MomentType: models.MomentCheckpoint}
	storedA, err := testRepo.UpsertMoment(ctx, a, nil)
	require.NoError(t, err)
	storedB, err := testRepo.UpsertMoment(ctx, b, nil)
	require.NoError(t, err)

	got, err := testRepo.MomentsByIDs(ctx, []string{storedA.ID, storedB.ID}, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = testRepo.MomentsByIDs(ctx, []string{storedA.ID, "no-such-id"}, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, storedA.ID, got[0].ID)

	got, err = testRepo.MomentsByIDs(ctx, nil, ReadOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindUserByEmail(t *testing.T) {
	wipe(t)
	ctx := context.Background()
	tenant := provisionTenant(t, "acme", models.ModePlatform)

	u := &models.User{Email: "alice@example.com", DisplayName: "Alice"}
	stored, err := testRepo.UpsertUser(ctx, u, tenant)
	require.NoError(t, err)

	found, err := testRepo.FindUserByEmail(ctx, "alice@example.com", tenant)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, found.ID)

	_, err = testRepo.FindUserByEmail(ctx, "bob@example.com", tenant)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDayStats(t *testing.T) {
	wipe(t)
	ctx := context.Background()
	owner := "user-1"

	for i := 0; i < 3; i++ {
		msg := &models.Message{
			SessionID:  fmt.Sprintf("sess-%d", i%2),
			Type:       models.MessageUser,
			Content:    "hello",
			TokenCount: 10,
		}
		msg.OwnerID = &owner
		_, err := testRepo.UpsertMessage(ctx, msg, nil)
		require.NoError(t, err)
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	stats, err := testRepo.DayStatsFor(ctx, owner, dayStart, dayStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.MessageCount)
	assert.Equal(t, 30, stats.TotalTokens)
	assert.Equal(t, 2, stats.SessionCount())
}

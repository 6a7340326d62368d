package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbeauvoir/transfer-backend/internal/db"
	"github.com/rbeauvoir/transfer-backend/internal/models"
)

// Integration tests; run with TEST_DATABASE_URL pointing at a disposable
// database.
func testRepos(t *testing.T) Repositories {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.RunMigrations(ctx, pool))
	return NewRepositories(pool)
}

func testUser(t *testing.T, repos Repositories, email string) models.User {
	t.Helper()
	u, err := repos.Users.Create(context.Background(), "user-"+email, email, "hash", "user")
	require.NoError(t, err)
	return u
}

func pendingTx(userID, orderID, idemKey string) models.Transaction {
	return models.Transaction{
		UserID:         userID,
		Amount:         25,
		Currency:       models.CurrencyUSD,
		Status:         models.TxnPending,
		OrderID:        orderID,
		PaymentMethod:  models.MethodPayPal,
		IdempotencyKey: idemKey,
	}
}

func TestInsertIdempotencyKeyScopedPerUser(t *testing.T) {
	ctx := context.Background()
	repos := testRepos(t)
	alice := testUser(t, repos, "alice@example.com")
	bob := testUser(t, repos, "bob@example.com")

	aliceTx, err := repos.Transactions.Insert(ctx, pendingTx(alice.ID, "order-a", "shared-key"))
	require.NoError(t, err)

	// same key from the same user replays the original row
	replay, err := repos.Transactions.Insert(ctx, pendingTx(alice.ID, "order-a2", "shared-key"))
	require.NoError(t, err)
	assert.Equal(t, aliceTx.ID, replay.ID)
	assert.Equal(t, "order-a", replay.OrderID)

	// the same key from another user must create that user's own row,
	// never hand back the first user's transaction
	bobTx, err := repos.Transactions.Insert(ctx, pendingTx(bob.ID, "order-b", "shared-key"))
	require.NoError(t, err)
	assert.NotEqual(t, aliceTx.ID, bobTx.ID)
	assert.Equal(t, bob.ID, bobTx.UserID)
	assert.Equal(t, "order-b", bobTx.OrderID)

	got, err := repos.Transactions.FindByIdempotencyKey(ctx, bob.ID, "shared-key")
	require.NoError(t, err)
	assert.Equal(t, bobTx.ID, got.ID)
}

func TestInsertWithoutIdempotencyKeyNeverConflicts(t *testing.T) {
	ctx := context.Background()
	repos := testRepos(t)
	alice := testUser(t, repos, "carol@example.com")

	first, err := repos.Transactions.Insert(ctx, pendingTx(alice.ID, "order-1", ""))
	require.NoError(t, err)
	second, err := repos.Transactions.Insert(ctx, pendingTx(alice.ID, "order-2", ""))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

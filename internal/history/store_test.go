package history

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mevshield/mevshield/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store, err := NewStore(db, zap.NewNop())
	require.NoError(t, err)
	return store
}

func record(user, method string, savings int64) *models.TradeRecord {
	return &models.TradeRecord{
		User:       user,
		AssetIn:    "0x0000000000000000000000000000000000000101",
		AssetOut:   "0x0000000000000000000000000000000000000102",
		AmountIn:   decimal.NewFromInt(1000),
		AmountOut:  decimal.NewFromInt(990),
		RiskScore:  42,
		Method:     method,
		SavingsUSD: decimal.NewFromInt(savings),
	}
}

func TestSaveAssignsDefaults(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := record("0xabc", models.MethodPublic, 10)
	require.NoError(t, store.Save(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestListFiltersAndCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, record("0xaaa", models.MethodPublic, 5)))
	require.NoError(t, store.Save(ctx, record("0xaaa", models.MethodPrivate, 30)))
	require.NoError(t, store.Save(ctx, record("0xbbb", models.MethodTimelock, 12)))

	all, total, err := store.List(ctx, "", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	filtered, total, err := store.List(ctx, "0xaaa", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, r := range filtered {
		assert.Equal(t, "0xaaa", r.User)
	}
}

func TestListClampsInvalidLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, record("0xaaa", models.MethodPublic, 1)))

	records, _, err := store.List(ctx, "", -1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTotalSavings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Empty table sums to zero without error.
	total, err := store.TotalSavings(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(0), total)

	require.NoError(t, store.Save(ctx, record("0xaaa", models.MethodPublic, 5)))
	require.NoError(t, store.Save(ctx, record("0xbbb", models.MethodPrivate, 30)))

	total, err = store.TotalSavings(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(35), total)
}

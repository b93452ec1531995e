package clickhouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rwa-portfolio-lab/internal/domain"
	"rwa-portfolio-lab/internal/storage"
	"rwa-portfolio-lab/internal/storage/clickhouse"
)

func TestPriceStore_InsertBulkAndGet(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewPriceStore(conn)
	ctx := context.Background()

	// Empty insert is a no-op
	require.NoError(t, store.InsertBulk(ctx, nil))

	points := []*domain.PricePoint{
		{Symbol: "PAXG", TimestampMs: 1700000000000, PriceUSD: 2010.5},
		{Symbol: "OUSG", TimestampMs: 1700000000000, PriceUSD: 105.2},
		{Symbol: "PAXG", TimestampMs: 1700086400000, PriceUSD: 2015.0},
	}
	require.NoError(t, store.InsertBulk(ctx, points))

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "OUSG", all[0].Symbol)
	assert.Equal(t, "PAXG", all[1].Symbol)
	assert.Equal(t, int64(1700086400000), all[2].TimestampMs)

	paxg, err := store.GetBySymbol(ctx, "PAXG")
	require.NoError(t, err)
	require.Len(t, paxg, 2)
	assert.InDelta(t, 2010.5, paxg[0].PriceUSD, 1e-9)

	ranged, err := store.GetByTimeRange(ctx, 1700000000001, 1800000000000)
	require.NoError(t, err)
	assert.Len(t, ranged, 1)
}

func TestPriceStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewPriceStore(conn)
	ctx := context.Background()

	points := []*domain.PricePoint{{Symbol: "PAXG", TimestampMs: 1000, PriceUSD: 1}}
	require.NoError(t, store.InsertBulk(ctx, points))

	err := store.InsertBulk(ctx, points)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	intra := []*domain.PricePoint{
		{Symbol: "OUSG", TimestampMs: 1000, PriceUSD: 1},
		{Symbol: "OUSG", TimestampMs: 1000, PriceUSD: 2},
	}
	assert.ErrorIs(t, store.InsertBulk(ctx, intra), storage.ErrDuplicateKey)
}

func TestHistoryStore_SeparateTable(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	spot := clickhouse.NewPriceStore(conn)
	history := clickhouse.NewHistoryStore(conn)

	require.NoError(t, spot.InsertBulk(ctx, []*domain.PricePoint{{Symbol: "PAXG", TimestampMs: 3, PriceUSD: 2310}}))
	// Same key in the other table is not a duplicate
	require.NoError(t, history.InsertBulk(ctx, []*domain.PricePoint{
		{Symbol: "PAXG", TimestampMs: 3, PriceUSD: 9999},
		{Symbol: "XAUt", TimestampMs: 1, PriceUSD: 2290},
	}))

	gotSpot, err := spot.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, gotSpot, 1)
	assert.InDelta(t, 2310.0, gotSpot[0].PriceUSD, 1e-9)

	gotHistory, err := history.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, gotHistory, 2)
}

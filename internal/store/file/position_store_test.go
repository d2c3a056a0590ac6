package file

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/gembot/internal/domain"
)

func sampleState() domain.BookState {
	entry := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return domain.BookState{
		Positions: []domain.Position{{
			ID:                 uuid.New(),
			Token:              common.HexToAddress("0x00000000000000000000000000000000000000aa"),
			BaseToken:          common.HexToAddress("0x4200000000000000000000000000000000000006"),
			TokenSymbol:        "GEM",
			BaseSpent:          big.NewInt(3e17),
			TokenAmount:        new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18)),
			EntryTokenPriceUSD: 0.001,
			EntryBasePriceUSD:  3000,
			BaseTokenDecimals:  18,
			EntryTimestamp:     entry,
			LastValueUSD:       900,
			LastUpdatedAt:      entry,
			RiskScore:          5.2,
			TakeProfitBps:      2500,
			StopLossBps:        1200,
			EntryTx:            "0xdeadbeef",
		}},
		Pending: []domain.PendingEntry{{
			TxHash:        common.HexToHash("0xfeed"),
			Token:         common.HexToAddress("0x00000000000000000000000000000000000000bb"),
			BaseToken:     common.HexToAddress("0x4200000000000000000000000000000000000006"),
			TokenSymbol:   "NEW",
			BaseAmount:    big.NewInt(3e17),
			EntryPriceUSD: 0.002,
			RiskScore:     4.1,
			SubmittedAt:   entry.Add(time.Hour),
		}},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	store, err := NewPositionStore(path)
	require.NoError(t, err)

	want := sampleState()
	require.NoError(t, store.Save(context.Background(), want))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Positions, 1)
	require.Len(t, got.Pending, 1)

	assert.Equal(t, want.Positions[0].ID, got.Positions[0].ID)
	assert.Equal(t, want.Positions[0].Token, got.Positions[0].Token)
	assert.Zero(t, want.Positions[0].BaseSpent.Cmp(got.Positions[0].BaseSpent))
	assert.Zero(t, want.Positions[0].TokenAmount.Cmp(got.Positions[0].TokenAmount))
	assert.True(t, want.Positions[0].EntryTimestamp.Equal(got.Positions[0].EntryTimestamp))
	assert.Equal(t, want.Pending[0].TxHash, got.Pending[0].TxHash)
	assert.True(t, want.Pending[0].SubmittedAt.Equal(got.Pending[0].SubmittedAt))
}

func TestLoadMissingFileIsEmptyState(t *testing.T) {
	store, err := NewPositionStore(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Positions)
	assert.Empty(t, state.Pending)
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	store, err := NewPositionStore(path)
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	assert.Error(t, err)
}

func TestSaveCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "book.json")
	store, err := NewPositionStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), domain.BookState{}))

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Positions)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewPositionStore(filepath.Join(dir, "book.json"))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), sampleState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "book.json", entries[0].Name())
}

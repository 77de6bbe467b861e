package ledger_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"CareVault/internal/ledger"
	"CareVault/internal/repo"
	"CareVault/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnershipLedger_RecordAndList(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewOwnershipLedger(newCountingStore())

	assert.NotNil(t, l.ListFiles("nobody"))
	assert.Empty(t, l.ListFiles("nobody"))

	require.NoError(t, l.RecordUpload(ctx, "u1", "a"))
	require.NoError(t, l.RecordUpload(ctx, "u1", "b"))
	require.NoError(t, l.RecordUpload(ctx, "u2", "c"))

	assert.Equal(t, []model.FileID{"a", "b"}, l.ListFiles("u1"))
	assert.True(t, l.IsOwner("u1", "a"))
	assert.False(t, l.IsOwner("u2", "a"))
}

func TestOwnershipLedger_ListReturnsCopy(t *testing.T) {
	l := ledger.NewOwnershipLedger(newCountingStore())
	require.NoError(t, l.RecordUpload(context.Background(), "u1", "a"))

	files := l.ListFiles("u1")
	files[0] = "tampered"

	assert.Equal(t, []model.FileID{"a"}, l.ListFiles("u1"))
}

func TestOwnershipLedger_DuplicatesKeptAndRemovedTogether(t *testing.T) {
	ctx := context.Background()
	l := ledger.NewOwnershipLedger(newCountingStore())
	require.NoError(t, l.RecordUpload(ctx, "u1", "a"))
	require.NoError(t, l.RecordUpload(ctx, "u1", "b"))
	require.NoError(t, l.RecordUpload(ctx, "u1", "a"))
	assert.Equal(t, []model.FileID{"a", "b", "a"}, l.ListFiles("u1"))

	removed, err := l.RemoveFile(ctx, "u1", "a")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []model.FileID{"b"}, l.ListFiles("u1"))
}

func TestOwnershipLedger_RemoveAbsentDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	l := ledger.NewOwnershipLedger(store)
	require.NoError(t, l.RecordUpload(ctx, "u1", "a"))
	before := store.saves.Load()

	removed, err := l.RemoveFile(ctx, "u1", "zzz")
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = l.RemoveFile(ctx, "u2", "a")
	require.NoError(t, err)
	assert.False(t, removed)

	assert.Equal(t, before, store.saves.Load())
	assert.True(t, l.IsOwner("u1", "a"))
}

func TestOwnershipLedger_ReloadPreservesOrder(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	l := ledger.NewOwnershipLedger(store)
	for _, f := range []model.FileID{"c", "a", "b"} {
		require.NoError(t, l.RecordUpload(ctx, "u1", f))
	}

	reloaded := ledger.NewOwnershipLedger(store)
	require.NoError(t, reloaded.Load(ctx))

	assert.Equal(t, []model.FileID{"c", "a", "b"}, reloaded.ListFiles("u1"))
}

func TestOwnershipLedger_LoadLegacyDocument(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	require.NoError(t, store.Save(ctx, repo.DocumentUserFiles,
		[]byte(`{"uid-1":["1700000000000-xray.png","1700000000001-notes.txt"]}`)))

	l := ledger.NewOwnershipLedger(store)
	require.NoError(t, l.Load(ctx))

	assert.True(t, l.IsOwner("uid-1", "1700000000001-notes.txt"))
	assert.Len(t, l.ListFiles("uid-1"), 2)
}

func TestOwnershipLedger_LoadMissingDocumentIsEmpty(t *testing.T) {
	l := ledger.NewOwnershipLedger(newCountingStore())
	require.NoError(t, l.Load(context.Background()))
	assert.Empty(t, l.ListFiles("u1"))
}

func TestOwnershipLedger_FailedWriteLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	l := ledger.NewOwnershipLedger(store)
	require.NoError(t, l.RecordUpload(ctx, "u1", "a"))

	store.fail.Store(true)
	err := l.RecordUpload(ctx, "u1", "b")
	require.ErrorIs(t, err, errDiskFull)
	_, err = l.RemoveFile(ctx, "u1", "a")
	require.ErrorIs(t, err, errDiskFull)

	assert.Equal(t, []model.FileID{"a"}, l.ListFiles("u1"))
}

func TestOwnershipLedger_ConcurrentUploadsAreNotLost(t *testing.T) {
	ctx := context.Background()
	store := newCountingStore()
	l := ledger.NewOwnershipLedger(store)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, l.RecordUpload(ctx, "u1", model.FileID(fmt.Sprintf("f-%d", i))))
		}(i)
	}
	wg.Wait()

	assert.Len(t, l.ListFiles("u1"), n)

	reloaded := ledger.NewOwnershipLedger(store)
	require.NoError(t, reloaded.Load(ctx))
	assert.Len(t, reloaded.ListFiles("u1"), n)
}

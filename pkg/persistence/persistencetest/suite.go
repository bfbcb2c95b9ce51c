// Package persistencetest holds the behaviour every IReservePersistence
// backend must satisfy, shared by the memory, badger and redis tests.
package persistencetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty persistence instance. Cleanup is registered
// by the factory itself.
type Factory func(t *testing.T) persistence.IReservePersistence

// RunConformanceSuite runs the shared backend tests.
func RunConformanceSuite(t *testing.T, newPersistence Factory) {
	t.Run("SaveAndLoadRecord", func(t *testing.T) {
		p := newPersistence(t)

		rec := &types.UserRecord{UserID: 1, Balance: 1111}
		require.NoError(t, p.SaveRecord(rec))

		loaded, err := p.LoadRecord(1)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, rec, loaded)

		// mutation of the returned copy must not leak back
		loaded.Balance = 0
		again, err := p.LoadRecord(1)
		require.NoError(t, err)
		assert.Equal(t, int64(1111), again.Balance)
	})

	t.Run("LoadRecord_NotFound", func(t *testing.T) {
		p := newPersistence(t)

		loaded, err := p.LoadRecord(9999999)
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveRecord_Nil", func(t *testing.T) {
		p := newPersistence(t)

		err := p.SaveRecord(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil UserRecord")

		err = p.SaveRecords([]*types.UserRecord{{UserID: 1}, nil})
		require.Error(t, err)
	})

	t.Run("SaveRecord_Upsert", func(t *testing.T) {
		p := newPersistence(t)

		require.NoError(t, p.SaveRecord(&types.UserRecord{UserID: 5, Balance: 1}))
		require.NoError(t, p.SaveRecord(&types.UserRecord{UserID: 5, Balance: 2}))

		records, err := p.ListRecords()
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, int64(2), records[0].Balance)
	})

	t.Run("ListRecords_SortedByUserID", func(t *testing.T) {
		p := newPersistence(t)

		ids := []int64{8, 3, -2, 100, 1, 10, 2}
		batch := make([]*types.UserRecord, 0, len(ids))
		for _, id := range ids {
			batch = append(batch, &types.UserRecord{UserID: id, Balance: id * 10})
		}
		require.NoError(t, p.SaveRecords(batch))

		records, err := p.ListRecords()
		require.NoError(t, err)
		require.Len(t, records, len(ids))

		expected := []int64{-2, 1, 2, 3, 8, 10, 100}
		for i, rec := range records {
			assert.Equal(t, expected[i], rec.UserID)
			assert.Equal(t, expected[i]*10, rec.Balance)
		}
	})

	t.Run("ListRecords_Empty", func(t *testing.T) {
		p := newPersistence(t)

		records, err := p.ListRecords()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("DeleteRecord_Idempotent", func(t *testing.T) {
		p := newPersistence(t)

		require.NoError(t, p.SaveRecord(&types.UserRecord{UserID: 3, Balance: 3333}))
		require.NoError(t, p.DeleteRecord(3))
		require.NoError(t, p.DeleteRecord(3))

		loaded, err := p.LoadRecord(3)
		require.NoError(t, err)
		assert.Nil(t, loaded)

		records, err := p.ListRecords()
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("RootSnapshots", func(t *testing.T) {
		p := newPersistence(t)

		latest, err := p.LoadLatestRootSnapshot()
		require.NoError(t, err)
		assert.Nil(t, latest)

		for i := 1; i <= 3; i++ {
			require.NoError(t, p.SaveRootSnapshot(&types.RootSnapshotMeta{
				Version:   fmt.Sprintf("v%d", i),
				RootHash:  fmt.Sprintf("%064d", i),
				LeafCount: i,
				BuiltAt:   int64(1000 + i),
				LeafTag:   "leaf",
				BranchTag: "branch",
			}))
		}

		latest, err = p.LoadLatestRootSnapshot()
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, "v3", latest.Version)
		assert.Equal(t, 3, latest.LeafCount)

		all, err := p.ListRootSnapshots()
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, meta := range all {
			assert.Equal(t, fmt.Sprintf("v%d", i+1), meta.Version)
		}

		require.Error(t, p.SaveRootSnapshot(nil))
	})

	t.Run("OperationsAfterClose", func(t *testing.T) {
		p := newPersistence(t)

		require.NoError(t, p.HealthCheck())
		require.NoError(t, p.Close())
		require.NoError(t, p.Close())

		require.Error(t, p.SaveRecord(&types.UserRecord{UserID: 1}))
		_, err := p.LoadRecord(1)
		require.Error(t, err)
		_, err = p.ListRecords()
		require.Error(t, err)
		require.Error(t, p.DeleteRecord(1))
		require.Error(t, p.SaveRootSnapshot(&types.RootSnapshotMeta{}))
		_, err = p.LoadLatestRootSnapshot()
		require.Error(t, err)
		require.Error(t, p.HealthCheck())
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		p := newPersistence(t)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				assert.NoError(t, p.SaveRecord(&types.UserRecord{UserID: id, Balance: id}))
				_, err := p.ListRecords()
				assert.NoError(t, err)
			}(int64(i))
		}
		wg.Wait()

		records, err := p.ListRecords()
		require.NoError(t, err)
		assert.Len(t, records, 20)
	})
}

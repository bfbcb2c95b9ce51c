package badger

import (
	"context"
	"testing"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/logger"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence/persistencetest"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/reserve"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ persistence.IReservePersistence = (*BadgerPersistence)(nil)

func TestBadgerPersistence(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	persistencetest.RunConformanceSuite(t, func(t *testing.T) persistence.IReservePersistence {
		bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = bp.Close() })
		return bp
	})
}

func TestBadgerPersistence_SurvivesRestart(t *testing.T) {
	tmpDir := t.TempDir()
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)

	require.NoError(t, bp.SaveRecords([]*types.UserRecord{
		{UserID: 2, Balance: 2222},
		{UserID: 1, Balance: 1111},
	}))
	require.NoError(t, bp.SaveRootSnapshot(&types.RootSnapshotMeta{Version: "first", BuiltAt: 10}))
	require.NoError(t, bp.Close())

	reopened, err := NewBadgerPersistence(tmpDir, testLogger)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	records, err := reopened.ListRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].UserID)
	assert.Equal(t, int64(2), records[1].UserID)

	// the root counter continues after a restart
	require.NoError(t, reopened.SaveRootSnapshot(&types.RootSnapshotMeta{Version: "second", BuiltAt: 20}))
	latest, err := reopened.LoadLatestRootSnapshot()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "second", latest.Version)

	roots, err := reopened.ListRootSnapshots()
	require.NoError(t, err)
	require.Len(t, roots, 2)
}

func TestBadgerPersistence_HealthCheck(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	require.NoError(t, bp.HealthCheck())
}

func corruptRecord(t *testing.T, bp *BadgerPersistence, userID int64) {
	t.Helper()
	err := bp.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(recordKey(userID), []byte("{not json"))
	})
	require.NoError(t, err)
}

func TestBadgerPersistence_ListRecordsFailsOnCorruptRecord(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	require.NoError(t, bp.SaveRecords([]*types.UserRecord{
		{UserID: 1, Balance: 1111},
		{UserID: 2, Balance: 2222},
		{UserID: 3, Balance: 3333},
	}))
	corruptRecord(t, bp, 2)

	records, err := bp.ListRecords()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal UserRecord")
	assert.Nil(t, records)

	// root history is still readable
	require.NoError(t, bp.SaveRootSnapshot(&types.RootSnapshotMeta{Version: "v1", BuiltAt: 1}))
	roots, err := bp.ListRootSnapshots()
	require.NoError(t, err)
	assert.Len(t, roots, 1)
}

func TestBadgerPersistence_CorruptRecordKeepsPublishedRoot(t *testing.T) {
	testLogger, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})

	bp, err := NewBadgerPersistence(t.TempDir(), testLogger)
	require.NoError(t, err)
	defer func() { _ = bp.Close() }()

	mt, err := merkle.NewMerkleTree("ProofOfReserve_Leaf", "ProofOfReserve_Branch")
	require.NoError(t, err)
	svc := reserve.NewService(mt, bp, testLogger)

	require.NoError(t, bp.SaveRecords([]*types.UserRecord{
		{UserID: 1, Balance: 1111},
		{UserID: 2, Balance: 2222},
		{UserID: 3, Balance: 3333},
	}))
	first, err := svc.Rebuild(context.Background())
	require.NoError(t, err)

	corruptRecord(t, bp, 2)

	_, err = svc.Rebuild(context.Background())
	require.Error(t, err)

	current, err := svc.CurrentRoot()
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)
	assert.Equal(t, first.RootHex(), current.RootHex())
	assert.Equal(t, 3, current.LeafCount)
}

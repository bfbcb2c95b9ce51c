package reserve

import (
	"context"
	"sync"
	"time"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/persistence"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/store"
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	// ErrInvalidIdentifier is returned when a user id cannot be parsed.
	ErrInvalidIdentifier = errors.New("invalid user identifier")

	// ErrRecordNotFound is returned when the data source has no record for the id.
	ErrRecordNotFound = errors.New("user record not found")

	// ErrNoRoot is returned when no merkle root has been built yet.
	ErrNoRoot = errors.New("no merkle root has been built")
)

// Proof is an inclusion proof of one record against a published snapshot.
type Proof struct {
	Record   *types.UserRecord
	Snapshot *store.Snapshot
	Path     []merkle.ProofPathEntry
}

// Service builds the reserve merkle tree from the record store and answers
// root and proof queries against the most recently built snapshot.
type Service struct {
	tree        *merkle.MerkleTree
	persistence persistence.IReservePersistence
	roots       *store.RootStore
	logger      *zap.Logger

	// serializes rebuilds; readers never take it
	rebuildMu sync.Mutex
	now       func() time.Time
}

// NewService creates a reserve service. No root exists until the first Rebuild.
func NewService(tree *merkle.MerkleTree, p persistence.IReservePersistence, logger *zap.Logger) *Service {
	return &Service{
		tree:        tree,
		persistence: p,
		roots:       store.NewRootStore(),
		logger:      logger,
		now:         time.Now,
	}
}

// Tree returns the tag configuration used for building and verifying.
func (s *Service) Tree() *merkle.MerkleTree {
	return s.tree
}

// Rebuild reads every record, builds a new tree and publishes it.
//
// The tree is built without holding the root store lock, then swapped in.
// If reading records fails or the dataset is empty, the previous root stays
// published and the error is returned. Failing to persist the root metadata
// is logged and does not undo the swap.
func (s *Service) Rebuild(ctx context.Context) (*store.Snapshot, error) {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	sugar := s.logger.Sugar()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records, err := s.persistence.ListRecords()
	if err != nil {
		s.logStaleRoot("failed to list records", err)
		return nil, errors.Wrap(err, "failed to list records")
	}
	if len(records) == 0 {
		s.logStaleRoot("no records to build from", merkle.ErrEmptyDataset)
		return nil, merkle.ErrEmptyDataset
	}

	started := s.now()
	payloads := make([][]byte, len(records))
	for i, record := range records {
		payloads[i] = record.CanonicalPayload()
	}
	root := s.tree.Build(payloads)

	if err := ctx.Err(); err != nil {
		s.logStaleRoot("rebuild cancelled", err)
		return nil, err
	}

	snapshot := store.NewSnapshot(root, len(records), s.now())
	s.roots.Replace(snapshot)

	sugar.Infow("Published new merkle root",
		"version", snapshot.ID.String(),
		"root", snapshot.RootHex(),
		"leaf_count", snapshot.LeafCount,
		"generation", s.roots.Generation(),
		"duration", s.now().Sub(started))

	meta := &types.RootSnapshotMeta{
		Version:   snapshot.ID.String(),
		RootHash:  snapshot.RootHex(),
		LeafCount: snapshot.LeafCount,
		BuiltAt:   snapshot.BuiltAt.Unix(),
		LeafTag:   s.tree.Hasher().LeafTag(),
		BranchTag: s.tree.Hasher().BranchTag(),
	}
	if err := s.persistence.SaveRootSnapshot(meta); err != nil {
		sugar.Errorw("Failed to persist root metadata", "version", meta.Version, "error", err)
	}

	return snapshot, nil
}

func (s *Service) logStaleRoot(reason string, err error) {
	fields := []interface{}{"reason", reason, "error", err}
	if current := s.roots.Get(); current != nil {
		fields = append(fields, "stale_root", current.RootHex(), "stale_version", current.ID.String(), "built_at", current.BuiltAt)
	}
	s.logger.Sugar().Warnw("Merkle rebuild failed, keeping previous root", fields...)
}

// CurrentRoot returns the published snapshot.
func (s *Service) CurrentRoot() (*store.Snapshot, error) {
	snapshot := s.roots.Get()
	if snapshot == nil {
		return nil, ErrNoRoot
	}
	return snapshot, nil
}

// ProofFor returns the inclusion proof of the record identified by rawID
// against the published snapshot.
func (s *Service) ProofFor(ctx context.Context, rawID string) (*Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	userID, err := types.ParseUserID(rawID)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidIdentifier, err.Error())
	}

	record, err := s.persistence.LoadRecord(userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load record %d", userID)
	}
	if record == nil {
		return nil, errors.Wrapf(ErrRecordNotFound, "user %d", userID)
	}

	snapshot, err := s.CurrentRoot()
	if err != nil {
		return nil, err
	}

	// A record created or changed after the last build is not in the tree.
	path, err := s.tree.FindPath(snapshot.Root, record.CanonicalPayload())
	if err != nil {
		return nil, errors.Wrapf(err, "user %d in root %s", userID, snapshot.ID)
	}

	return &Proof{
		Record:   record,
		Snapshot: snapshot,
		Path:     path,
	}, nil
}

// Verify checks a proof for record against expectedRootHex using the service tags.
func (s *Service) Verify(record *types.UserRecord, path []merkle.ProofPathEntry, expectedRootHex string) bool {
	if record == nil {
		return false
	}
	return s.tree.Verify(record.CanonicalPayload(), path, expectedRootHex)
}

// UpsertRecords saves records to the data source. The published root is not
// changed until the next Rebuild.
func (s *Service) UpsertRecords(ctx context.Context, records []*types.UserRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.persistence.SaveRecords(records); err != nil {
		return errors.Wrap(err, "failed to save records")
	}
	s.logger.Sugar().Infow("Saved user records", "count", len(records))
	return nil
}

// RootHistory returns previously published roots, oldest first.
func (s *Service) RootHistory() ([]*types.RootSnapshotMeta, error) {
	history, err := s.persistence.ListRootSnapshots()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list root history")
	}
	return history, nil
}

// HealthCheck reports whether the record store is reachable.
func (s *Service) HealthCheck() error {
	return s.persistence.HealthCheck()
}

package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/proof-of-reserve-go/pkg/types"
)

// MarshalUserRecord serializes a UserRecord to JSON bytes.
func MarshalUserRecord(rec *types.UserRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("cannot marshal nil UserRecord")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal UserRecord to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalUserRecord deserializes a UserRecord from JSON bytes.
func UnmarshalUserRecord(data []byte) (*types.UserRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var rec types.UserRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to UserRecord: %w", err)
	}

	return &rec, nil
}

// MarshalRootSnapshotMeta serializes RootSnapshotMeta to JSON bytes.
func MarshalRootSnapshotMeta(meta *types.RootSnapshotMeta) ([]byte, error) {
	if meta == nil {
		return nil, fmt.Errorf("cannot marshal nil RootSnapshotMeta")
	}

	return json.Marshal(meta)
}

// UnmarshalRootSnapshotMeta deserializes RootSnapshotMeta from JSON bytes.
func UnmarshalRootSnapshotMeta(data []byte) (*types.RootSnapshotMeta, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var meta types.RootSnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to RootSnapshotMeta: %w", err)
	}

	return &meta, nil
}

// RecordKey formats a record id so that lexicographic key order equals
// numeric UserID order, including negative ids.
func RecordKey(prefix string, userID int64) string {
	return fmt.Sprintf("%s%020d", prefix, uint64(userID)^(1<<63))
}

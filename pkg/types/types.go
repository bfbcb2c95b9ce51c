package types

import (
	"fmt"
	"strconv"
	"strings"
)

// UserRecord is one account included in a proof of reserve
type UserRecord struct {
	UserID  int64 `json:"userId"`
	Balance int64 `json:"balance"`
}

// CanonicalPayload returns the leaf payload of the record: "(<userId>,<balance>)".
func (r *UserRecord) CanonicalPayload() []byte {
	return []byte(r.CanonicalString())
}

// CanonicalString returns the canonical leaf text of the record.
func (r *UserRecord) CanonicalString() string {
	return fmt.Sprintf("(%d,%d)", r.UserID, r.Balance)
}

// ParseUserID parses an externally supplied user identifier.
func ParseUserID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("user id is empty")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("user id %q is not an integer: %w", raw, err)
	}
	return id, nil
}

// FormatUserID renders a user id the way ParseUserID accepts it.
func FormatUserID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// RootSnapshotMeta describes a published merkle root. It is stored by the
// persistence layer as the publication history of roots.
type RootSnapshotMeta struct {
	// Version is the unique id (UUID) of the build that produced the root
	Version   string `json:"version"`
	RootHash  string `json:"rootHash"`
	LeafCount int    `json:"leafCount"`
	BuiltAt   int64  `json:"builtAt"` // Unix seconds
	LeafTag   string `json:"leafTag"`
	BranchTag string `json:"branchTag"`
}

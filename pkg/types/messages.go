package types

import (
	"github.com/Layr-Labs/proof-of-reserve-go/pkg/merkle"
)

// ProofPathEntry is the wire form of merkle.ProofPathEntry
type ProofPathEntry struct {
	SiblingHash    string `json:"siblingHash"`
	IsRightSibling bool   `json:"isRightSibling"`
}

// RootResponse is returned by GET /root
type RootResponse struct {
	RootHash  string `json:"rootHash"`
	Version   string `json:"version"`
	LeafCount int    `json:"leafCount"`
	BuiltAt   int64  `json:"builtAt"`
}

// ProofResponse is returned by GET /proof
type ProofResponse struct {
	Record   UserRecord       `json:"record"`
	RootHash string           `json:"rootHash"`
	Version  string           `json:"version"`
	Path     []ProofPathEntry `json:"path"`
}

// VerifyRequest is accepted by POST /verify
type VerifyRequest struct {
	Record   UserRecord       `json:"record"`
	RootHash string           `json:"rootHash"`
	Path     []ProofPathEntry `json:"path"`
}

// VerifyResponse is returned by POST /verify
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// RebuildResponse is returned by POST /admin/rebuild
type RebuildResponse struct {
	RootHash  string `json:"rootHash"`
	Version   string `json:"version"`
	LeafCount int    `json:"leafCount"`
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
}

// EncodeProofPath converts a proof path to its wire form.
func EncodeProofPath(path []merkle.ProofPathEntry) []ProofPathEntry {
	encoded := make([]ProofPathEntry, len(path))
	for i, entry := range path {
		encoded[i] = ProofPathEntry{
			SiblingHash:    merkle.HashToHex(entry.SiblingHash),
			IsRightSibling: entry.IsRightSibling,
		}
	}
	return encoded
}

// DecodeProofPath converts a wire proof path back to digests.
func DecodeProofPath(path []ProofPathEntry) ([]merkle.ProofPathEntry, error) {
	decoded := make([]merkle.ProofPathEntry, len(path))
	for i, entry := range path {
		h, err := merkle.HashFromHex(entry.SiblingHash)
		if err != nil {
			return nil, err
		}
		decoded[i] = merkle.ProofPathEntry{
			SiblingHash:    h,
			IsRightSibling: entry.IsRightSibling,
		}
	}
	return decoded, nil
}

// RootHistoryResponse is returned by GET /root/history
type RootHistoryResponse struct {
	Roots []*RootSnapshotMeta `json:"roots"`
}

// UpsertRecordsRequest is accepted by POST /admin/records
type UpsertRecordsRequest struct {
	Records []UserRecord `json:"records"`
}

// UpsertRecordsResponse is returned by POST /admin/records
type UpsertRecordsResponse struct {
	Saved int `json:"saved"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	HasRoot bool   `json:"hasRoot"`
}

package merkle

import (
	"crypto/sha256"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidTag is returned when a hash tag is empty.
	ErrInvalidTag = errors.New("hash tag must not be empty")

	// ErrInvalidHash is returned when a hex hash is not 64 lowercase hex characters.
	ErrInvalidHash = errors.New("hash must be 64 lowercase hex characters")
)

// TaggedHasher computes BIP-340 style tagged hashes:
//
//	SHA256(SHA256(tag) || SHA256(tag) || payload)
//
// Leaf and branch digests use independent tags so a leaf payload cannot be
// crafted to collide with the input of an internal node.
type TaggedHasher struct {
	leafTag   string
	branchTag string

	leafTagHash   [32]byte
	branchTagHash [32]byte
}

// NewTaggedHasher creates a hasher for the given leaf and branch tags.
func NewTaggedHasher(leafTag, branchTag string) (*TaggedHasher, error) {
	if leafTag == "" {
		return nil, errors.Wrap(ErrInvalidTag, "leaf tag")
	}
	if branchTag == "" {
		return nil, errors.Wrap(ErrInvalidTag, "branch tag")
	}
	return &TaggedHasher{
		leafTag:       leafTag,
		branchTag:     branchTag,
		leafTagHash:   sha256.Sum256([]byte(leafTag)),
		branchTagHash: sha256.Sum256([]byte(branchTag)),
	}, nil
}

// LeafTag returns the tag used for leaf digests.
func (h *TaggedHasher) LeafTag() string {
	return h.leafTag
}

// BranchTag returns the tag used for internal node digests.
func (h *TaggedHasher) BranchTag() string {
	return h.branchTag
}

// LeafHash hashes a raw leaf payload with the leaf tag.
func (h *TaggedHasher) LeafHash(payload []byte) Hash {
	return taggedHash(h.leafTagHash, payload)
}

// BranchHash hashes the raw bytes of left || right with the branch tag.
func (h *TaggedHasher) BranchHash(left, right Hash) Hash {
	data := make([]byte, 64)
	copy(data[0:32], left[:])
	copy(data[32:64], right[:])
	return taggedHash(h.branchTagHash, data)
}

// TaggedHash computes the tagged hash of payload for an arbitrary tag.
func TaggedHash(tag string, payload []byte) Hash {
	return taggedHash(sha256.Sum256([]byte(tag)), payload)
}

func taggedHash(tagHash [32]byte, payload []byte) Hash {
	d := sha256.New()
	d.Write(tagHash[:])
	d.Write(tagHash[:])
	d.Write(payload)

	var out Hash
	copy(out[:], d.Sum(nil))
	return out
}

// HashToHex encodes a digest as lowercase hex without a 0x prefix.
func HashToHex(h Hash) string {
	return common.Bytes2Hex(h[:])
}

// HashFromHex decodes a 64 character lowercase hex digest.
func HashFromHex(s string) (Hash, error) {
	if len(s) != 64 || strings.ToLower(s) != s {
		return Hash{}, errors.Wrapf(ErrInvalidHash, "got %q", s)
	}
	b, err := hexutil.Decode("0x" + s)
	if err != nil {
		return Hash{}, errors.Wrapf(ErrInvalidHash, "%v", err)
	}
	return common.BytesToHash(b), nil
}

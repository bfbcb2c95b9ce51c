package merkle

import (
	"github.com/pkg/errors"
)

// DefaultHashTag is used for both leaves and branches when no tag is configured.
const DefaultHashTag = "Bitcoin_Transaction"

var (
	// ErrEmptyDataset is returned by callers that need a root but built from no leaves.
	ErrEmptyDataset = errors.New("cannot build merkle tree from empty leaf list")

	// ErrLeafNotFound is returned when no node of the tree carries the leaf hash.
	ErrLeafNotFound = errors.New("leaf not found in merkle tree")
)

// MerkleTree builds trees, derives inclusion proofs and verifies them for one
// leaf/branch tag configuration. It holds no tree state and is safe for
// concurrent use.
type MerkleTree struct {
	hasher *TaggedHasher
}

// NewMerkleTree creates a MerkleTree using separate leaf and branch tags.
func NewMerkleTree(leafTag, branchTag string) (*MerkleTree, error) {
	hasher, err := NewTaggedHasher(leafTag, branchTag)
	if err != nil {
		return nil, err
	}
	return &MerkleTree{hasher: hasher}, nil
}

// NewMerkleTreeWithTag creates a MerkleTree using one tag for leaves and branches.
func NewMerkleTreeWithTag(tag string) (*MerkleTree, error) {
	return NewMerkleTree(tag, tag)
}

// NewDefaultMerkleTree creates a MerkleTree using DefaultHashTag.
func NewDefaultMerkleTree() *MerkleTree {
	mt, _ := NewMerkleTreeWithTag(DefaultHashTag)
	return mt
}

// Hasher returns the tagged hasher of this tree configuration.
func (mt *MerkleTree) Hasher() *TaggedHasher {
	return mt.hasher
}

// Build creates a tree from raw leaf payloads and returns its root.
// Input order is preserved and duplicates are kept. Build returns nil for an
// empty input. A single leaf is returned as the root without branch hashing.
//
// When a level has an odd number of nodes, the last node becomes both children
// of its parent and the parent hash is BranchHash(hash, hash).
func (mt *MerkleTree) Build(leaves [][]byte) *Node {
	if len(leaves) == 0 {
		return nil
	}

	currentLevel := make([]*Node, len(leaves))
	for i, leaf := range leaves {
		currentLevel[i] = &Node{Hash: mt.hasher.LeafHash(leaf)}
	}

	for len(currentLevel) > 1 {
		nextLevel := make([]*Node, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			left := currentLevel[i]
			right := left
			if i+1 < len(currentLevel) {
				right = currentLevel[i+1]
			}

			nextLevel = append(nextLevel, &Node{
				Hash:  mt.hasher.BranchHash(left.Hash, right.Hash),
				Left:  left,
				Right: right,
			})
		}

		currentLevel = nextLevel
	}

	return currentLevel[0]
}

// BuildFromStrings builds a tree from the UTF-8 bytes of each leaf string.
func (mt *MerkleTree) BuildFromStrings(leaves []string) *Node {
	payloads := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		payloads[i] = []byte(leaf)
	}
	return mt.Build(payloads)
}

// FindPath returns the sibling path from the leaf carrying payload up to, but
// not including, the root. Entries are ordered bottom-up. A single-leaf tree
// yields an empty path.
//
// Nodes are matched by hash value; the first match in left-first order wins,
// so duplicate payloads resolve to the leftmost occurrence.
func (mt *MerkleTree) FindPath(root *Node, payload []byte) ([]ProofPathEntry, error) {
	if root == nil {
		return nil, ErrLeafNotFound
	}

	target := mt.hasher.LeafHash(payload)
	path, found := findPath(root, target)
	if !found {
		return nil, ErrLeafNotFound
	}
	return path, nil
}

func findPath(node *Node, target Hash) ([]ProofPathEntry, bool) {
	if node.Hash == target {
		return make([]ProofPathEntry, 0), true
	}
	if node.IsLeaf() {
		return nil, false
	}

	if path, found := findPath(node.Left, target); found {
		return append(path, ProofPathEntry{SiblingHash: node.Right.Hash, IsRightSibling: true}), true
	}

	// a self-paired node has nothing new on its right
	if node.Right == node.Left {
		return nil, false
	}

	if path, found := findPath(node.Right, target); found {
		return append(path, ProofPathEntry{SiblingHash: node.Left.Hash, IsRightSibling: false}), true
	}

	return nil, false
}

// VerifyHash replays path against payload and compares the result with root.
func (mt *MerkleTree) VerifyHash(payload []byte, path []ProofPathEntry, root Hash) bool {
	return mt.computeRoot(payload, path) == root
}

// Verify replays path against payload and compares the result with the
// expected root given as lowercase hex.
func (mt *MerkleTree) Verify(payload []byte, path []ProofPathEntry, expectedRootHash string) bool {
	return HashToHex(mt.computeRoot(payload, path)) == expectedRootHash
}

func (mt *MerkleTree) computeRoot(payload []byte, path []ProofPathEntry) Hash {
	currentHash := mt.hasher.LeafHash(payload)

	for _, entry := range path {
		if entry.IsRightSibling {
			currentHash = mt.hasher.BranchHash(currentHash, entry.SiblingHash)
		} else {
			currentHash = mt.hasher.BranchHash(entry.SiblingHash, currentHash)
		}
	}

	return currentHash
}

// LeafCount returns the number of leaves reachable from root, counting a
// self-paired node once.
func LeafCount(root *Node) int {
	if root == nil {
		return 0
	}
	if root.IsLeaf() {
		return 1
	}
	if root.Left == root.Right {
		return LeafCount(root.Left)
	}
	return LeafCount(root.Left) + LeafCount(root.Right)
}

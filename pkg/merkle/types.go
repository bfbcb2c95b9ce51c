package merkle

import (
	"github.com/ethereum/go-ethereum/common"
)

// Hash is a raw 32-byte SHA-256 digest. Hex is only used at the tree boundary.
type Hash = common.Hash

// Node is an immutable node of a built tree.
//
// A node has either no children (leaf) or two children (internal). When the last
// node of an odd-sized level is paired with itself, Left and Right point to the
// same *Node instance; that is a normal internal node.
type Node struct {
	// Hash is the tagged hash of the leaf payload, or of Left.Hash || Right.Hash
	Hash Hash

	Left  *Node
	Right *Node
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// HexHash returns the node hash as 64 lowercase hex characters.
func (n *Node) HexHash() string {
	return HashToHex(n.Hash)
}

// ProofPathEntry is one step of an inclusion proof.
type ProofPathEntry struct {
	// SiblingHash is the hash of the node paired with the current node at this level
	SiblingHash Hash

	// IsRightSibling is true when the sibling sits to the right of the current node
	IsRightSibling bool
}

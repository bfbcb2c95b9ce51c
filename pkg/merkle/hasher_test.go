package merkle

import (
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestNewTaggedHasherRejectsEmptyTags(t *testing.T) {
	_, err := NewTaggedHasher("", reserveBranchTag)
	require.True(t, errors.Is(err, ErrInvalidTag))

	_, err = NewTaggedHasher(reserveLeafTag, "")
	require.True(t, errors.Is(err, ErrInvalidTag))

	_, err = NewMerkleTreeWithTag("")
	require.True(t, errors.Is(err, ErrInvalidTag))
}

func TestTaggedHashConstruction(t *testing.T) {
	payload := []byte("(1,1111)")

	tagHash := sha256.Sum256([]byte(reserveLeafTag))
	input := append(append(append([]byte{}, tagHash[:]...), tagHash[:]...), payload...)
	expected := sha256.Sum256(input)

	hasher, err := NewTaggedHasher(reserveLeafTag, reserveBranchTag)
	require.NoError(t, err)

	require.Equal(t, Hash(expected), hasher.LeafHash(payload))
	require.Equal(t, Hash(expected), TaggedHash(reserveLeafTag, payload))
	require.Equal(t, reserveLeafTag, hasher.LeafTag())
	require.Equal(t, reserveBranchTag, hasher.BranchTag())
}

func TestBranchHashUsesRawBytes(t *testing.T) {
	hasher, err := NewTaggedHasher(reserveLeafTag, reserveBranchTag)
	require.NoError(t, err)

	left := hasher.LeafHash([]byte("left"))
	right := hasher.LeafHash([]byte("right"))

	raw := append(append([]byte{}, left[:]...), right[:]...)
	require.Equal(t, TaggedHash(reserveBranchTag, raw), hasher.BranchHash(left, right))

	// order matters
	require.NotEqual(t, hasher.BranchHash(left, right), hasher.BranchHash(right, left))

	// leaf and branch tags are separate domains
	require.NotEqual(t, hasher.LeafHash(raw), hasher.BranchHash(left, right))
}

func TestHashHexRoundTrip(t *testing.T) {
	h := TaggedHash(DefaultHashTag, []byte("aaa"))

	encoded := HashToHex(h)
	require.Len(t, encoded, 64)
	require.Equal(t, strings.ToLower(encoded), encoded)
	require.False(t, strings.HasPrefix(encoded, "0x"))

	decoded, err := HashFromHex(encoded)
	require.NoError(t, err)
	require.Equal(t, h, decoded)
}

func TestHashFromHexInvalid(t *testing.T) {
	valid := HashToHex(TaggedHash(DefaultHashTag, []byte("aaa")))

	testCases := []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"Too short", valid[:62]},
		{"Too long", valid + "00"},
		{"With prefix", "0x" + valid[2:]},
		{"Uppercase", strings.ToUpper(valid)},
		{"Non hex", "zz" + valid[2:]},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := HashFromHex(tc.input)
			require.True(t, errors.Is(err, ErrInvalidHash))
		})
	}
}

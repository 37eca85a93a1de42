// Package merkle builds and verifies the claim trees committed to by tip
// distribution accounts.
//
// Leaves are hashed as SHA256(0x00 || SHA256(data)) and internal nodes as
// SHA256(0x01 || min(a,b) || max(a,b)), so a proof is an unordered list of
// sibling digests. A node without a sibling is promoted to the next layer
// unchanged.
package merkle

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
)

const (
	leafPrefix         byte = 0x00
	intermediatePrefix byte = 0x01

	// ClaimLeafSize is the length of the claim leaf pre-image: a 32-byte
	// claimant followed by a little-endian u64 amount.
	ClaimLeafSize = solana.PublicKeyLength + 8
)

var (
	ErrEmptyTree        = errors.New("merkle: tree has no leaves")
	ErrIndexOutOfRange  = errors.New("merkle: leaf index out of range")
	ErrInvalidLeafBytes = errors.New("merkle: invalid claim leaf length")
)

func hashv(parts ...[]byte) solana.Hash {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out solana.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// LeafHash returns the domain-separated hash of a leaf pre-image.
func LeafHash(data []byte) solana.Hash {
	inner := sha256.Sum256(data)
	return hashv([]byte{leafPrefix}, inner[:])
}

// PairHash combines two sibling digests. The smaller digest (byte order) is
// always hashed first.
func PairHash(a, b solana.Hash) solana.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return hashv([]byte{intermediatePrefix}, a[:], b[:])
}

// ClaimLeaf returns the pre-image committed for a claimant: claimant || amount (LE).
func ClaimLeaf(claimant solana.PublicKey, amount uint64) []byte {
	buf := make([]byte, ClaimLeafSize)
	copy(buf, claimant[:])
	binary.LittleEndian.PutUint64(buf[solana.PublicKeyLength:], amount)
	return buf
}

// ParseClaimLeaf is the inverse of ClaimLeaf.
func ParseClaimLeaf(data []byte) (solana.PublicKey, uint64, error) {
	if len(data) != ClaimLeafSize {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %d", ErrInvalidLeafBytes, len(data))
	}
	return solana.PublicKeyFromBytes(data[:solana.PublicKeyLength]),
		binary.LittleEndian.Uint64(data[solana.PublicKeyLength:]), nil
}

// Tree retains every layer so proofs can be extracted without rehashing.
// layers[0] holds the leaf hashes and the last layer holds the root.
type Tree struct {
	layers [][]solana.Hash
}

// New hashes leaves and builds the tree.
func New(leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}

	layer := make([]solana.Hash, len(leaves))
	for i, l := range leaves {
		layer[i] = LeafHash(l)
	}

	layers := [][]solana.Hash{layer}
	for len(layer) > 1 {
		next := make([]solana.Hash, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			next = append(next, PairHash(layer[i], layer[i+1]))
		}
		layers = append(layers, next)
		layer = next
	}

	return &Tree{layers: layers}, nil
}

func (t *Tree) Root() solana.Hash {
	return t.layers[len(t.layers)-1][0]
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return len(t.layers[0])
}

// Depth returns the number of layers above the leaves.
func (t *Tree) Depth() int {
	return len(t.layers) - 1
}

func (t *Tree) Leaf(index int) (solana.Hash, error) {
	if index < 0 || index >= t.Len() {
		return solana.Hash{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	return t.layers[0][index], nil
}

// Proof returns the sibling path for the leaf at index, bottom layer first.
func (t *Tree) Proof(index int) ([]solana.Hash, error) {
	if index < 0 || index >= t.Len() {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	proof := make([]solana.Hash, 0, t.Depth())
	for _, layer := range t.layers[:len(t.layers)-1] {
		if sibling := index ^ 1; sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		index /= 2
	}
	return proof, nil
}

// Proofs extracts the proof of every leaf, in leaf order, using up to
// GOMAXPROCS workers.
func (t *Tree) Proofs(ctx context.Context) ([][]solana.Hash, error) {
	proofs := make([][]solana.Hash, t.Len())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range proofs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := t.Proof(i)
			if err != nil {
				return err
			}
			proofs[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return proofs, nil
}

// Verify reports whether leafData is committed under root by proof.
func Verify(leafData []byte, proof []solana.Hash, root solana.Hash) bool {
	return VerifyHash(LeafHash(leafData), proof, root)
}

// VerifyHash is Verify for an already hashed leaf.
func VerifyHash(leaf solana.Hash, proof []solana.Hash, root solana.Hash) bool {
	node := leaf
	for _, sibling := range proof {
		node = PairHash(node, sibling)
	}
	return node == root
}

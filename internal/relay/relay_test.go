package relay

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noctura/shield/internal/chain"
	"github.com/noctura/shield/internal/merkle"
	"github.com/noctura/shield/internal/note"
)

func seededChain(t *testing.T, leaves ...[]byte) (*chain.Memory, []byte) {
	t.Helper()
	mem := chain.NewMemory(merkle.DefaultHeight)
	for _, leaf := range leaves {
		_, err := mem.AppendLeaf(leaf)
		require.NoError(t, err)
	}
	tree, err := merkle.FromLeaves(merkle.DefaultHeight, leaves)
	require.NoError(t, err)
	return mem, tree.Root()
}

func TestLocalRelayTransferRejectsReusedNullifier(t *testing.T) {
	mint := note.MintForToken("NOC")
	n := note.New(big.NewInt(10), mint, note.RandomBytes(32))
	out := note.New(big.NewInt(10), mint, note.RandomBytes(32))
	mem, root := seededChain(t, n.Commitment)

	local := NewLocal(mem)
	req := &TransferRequest{
		Proof:             []byte("proof"),
		Root:              root,
		Nullifiers:        [][]byte{n.Nullifier()},
		OutputCommitments: [][]byte{out.Commitment},
	}
	receipt, err := local.RelayTransfer(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, receipt.Signature)
	require.Equal(t, []uint64{1}, receipt.LeafIndices)

	_, err = local.RelayTransfer(context.Background(), req)
	require.ErrorIs(t, err, ErrNullifierSpent)
}

func TestLocalRelayTransferIsAtomicOnSpentNullifier(t *testing.T) {
	mint := note.MintForToken("NOC")
	a := note.New(big.NewInt(10), mint, note.RandomBytes(32))
	b := note.New(big.NewInt(20), mint, note.RandomBytes(32))
	out := note.New(big.NewInt(30), mint, note.RandomBytes(32))
	mem, root := seededChain(t, a.Commitment, b.Commitment)
	require.NoError(t, mem.SpendNullifier(b.Nullifier()))

	req := &TransferRequest{
		Proof:             []byte("proof"),
		Root:              root,
		Nullifiers:        [][]byte{a.Nullifier(), b.Nullifier()},
		OutputCommitments: [][]byte{out.Commitment},
	}
	_, err := NewLocal(mem).RelayTransfer(context.Background(), req)
	require.ErrorIs(t, err, ErrNullifierSpent)

	// The rejected request must not have spent the first input or appended
	// any output.
	spent, err := mem.IsNullifierSpent(context.Background(), a.Nullifier())
	require.NoError(t, err)
	require.False(t, spent)
	leaves, err := mem.Leaves(context.Background())
	require.NoError(t, err)
	require.Len(t, leaves, 2)
}

func TestLocalRelayTransferRejectsDuplicateNullifiers(t *testing.T) {
	mint := note.MintForToken("NOC")
	n := note.New(big.NewInt(10), mint, note.RandomBytes(32))
	out := note.New(big.NewInt(10), mint, note.RandomBytes(32))
	mem, root := seededChain(t, n.Commitment)

	req := &TransferRequest{
		Proof:             []byte("proof"),
		Root:              root,
		Nullifiers:        [][]byte{n.Nullifier(), n.Nullifier()},
		OutputCommitments: [][]byte{out.Commitment},
	}
	_, err := NewLocal(mem).RelayTransfer(context.Background(), req)
	require.ErrorIs(t, err, ErrNullifierSpent)

	spent, err := mem.IsNullifierSpent(context.Background(), n.Nullifier())
	require.NoError(t, err)
	require.False(t, spent)
}

func TestLocalRelayRejectsStaleRoot(t *testing.T) {
	mint := note.MintForToken("NOC")
	n := note.New(big.NewInt(10), mint, note.RandomBytes(32))
	mem, _ := seededChain(t, n.Commitment)

	req := &TransferRequest{
		Proof:             []byte("proof"),
		Root:              []byte("not-a-known-root"),
		Nullifiers:        [][]byte{n.Nullifier()},
		OutputCommitments: nil,
	}
	_, err := NewLocal(mem).RelayTransfer(context.Background(), req)
	require.ErrorIs(t, err, ErrStaleRoot)
}

func TestHTTPClientRetryChecksNullifierState(t *testing.T) {
	mint := note.MintForToken("NOC")
	n := note.New(big.NewInt(10), mint, note.RandomBytes(32))
	mem, root := seededChain(t, n.Commitment)

	// The relay "fails" every request, but the first attempt actually landed.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = mem.SpendNullifier(n.Nullifier())
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, mem, time.Second)
	c.backoff = time.Millisecond

	_, err := c.RelayTransfer(context.Background(), &TransferRequest{
		Proof:      []byte("proof"),
		Root:       root,
		Nullifiers: [][]byte{n.Nullifier()},
	})
	require.ErrorIs(t, err, ErrNullifierSpent, "retry must detect the landed submission")
}

func TestHTTPClientUnavailableAfterRetries(t *testing.T) {
	mem, root := seededChain(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewClient(server.URL, mem, time.Second)
	c.backoff = time.Millisecond

	mint := note.MintForToken("NOC")
	n := note.New(big.NewInt(10), mint, note.RandomBytes(32))
	_, err := c.RelayTransfer(context.Background(), &TransferRequest{
		Proof:      []byte("proof"),
		Root:       root,
		Nullifiers: [][]byte{n.Nullifier()},
	})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPClientMapsRejectionStatuses(t *testing.T) {
	mem, root := seededChain(t)
	mint := note.MintForToken("NOC")
	n := note.New(big.NewInt(10), mint, note.RandomBytes(32))

	for status, want := range map[int]error{
		http.StatusConflict:            ErrNullifierSpent,
		http.StatusUnprocessableEntity: ErrStaleRoot,
	} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c := NewClient(server.URL, mem, time.Second)
		c.backoff = time.Millisecond
		_, err := c.RelayTransfer(context.Background(), &TransferRequest{
			Proof:      []byte("proof"),
			Root:       root,
			Nullifiers: [][]byte{n.Nullifier()},
		})
		require.ErrorIs(t, err, want)
		server.Close()
	}
}

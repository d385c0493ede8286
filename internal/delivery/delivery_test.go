package delivery

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noctura/shield/internal/note"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)

	n := note.New(big.NewInt(42_000), note.MintForToken("NOC"), note.RandomBytes(32))
	enc, err := Encrypt(note.PayloadFromNote(n), recipient.Pk)
	require.NoError(t, err)
	require.NotEmpty(t, enc.EphemeralPub)
	require.NotEmpty(t, enc.Nonce)
	require.NotEmpty(t, enc.Ciphertext)

	p, err := Decrypt(enc, recipient.Sk)
	require.NoError(t, err)
	require.Equal(t, 0, n.Amount.Cmp(p.Amount))
	require.Equal(t, n.Secret, p.Secret)
	require.Equal(t, n.Blinding, p.Blinding)
	require.Equal(t, n.Rho, p.Rho)
	require.Equal(t, n.Commitment, p.Commitment)

	got, err := p.ToNote()
	require.NoError(t, err)
	require.Equal(t, n.Nullifier(), got.Nullifier())
}

func TestDecryptWithWrongKeyYieldsNothing(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)
	other, err := GenerateKeyPair()
	require.NoError(t, err)

	n := note.New(big.NewInt(1), note.MintForToken("NOC"), note.RandomBytes(32))
	enc, err := Encrypt(note.PayloadFromNote(n), recipient.Pk)
	require.NoError(t, err)

	p, err := Decrypt(enc, other.Sk)
	require.ErrorIs(t, err, ErrNotAddressed)
	assert.Nil(t, p)
}

func TestEncryptFreshEphemeralPerTransfer(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)
	n := note.New(big.NewInt(5), note.MintForToken("NOC"), note.RandomBytes(32))

	a, err := Encrypt(note.PayloadFromNote(n), recipient.Pk)
	require.NoError(t, err)
	b, err := Encrypt(note.PayloadFromNote(n), recipient.Pk)
	require.NoError(t, err)
	assert.NotEqual(t, a.EphemeralPub, b.EphemeralPub)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestOutgoingStateMachine(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)
	n := note.New(big.NewInt(10), note.MintForToken("NOC"), note.RandomBytes(32))

	o := NewOutgoing(n, recipient.Pk)
	require.Equal(t, StatusPrepared, o.Status)

	// Cannot skip ahead.
	require.Error(t, o.MarkSubmitted())

	require.NoError(t, o.Encrypt())
	require.Equal(t, StatusEncrypted, o.Status)
	require.NotNil(t, o.Payload)

	require.NoError(t, o.MarkSubmitted())
	require.NoError(t, o.MarkDelivered())
	require.NoError(t, o.MarkConfirmed())
	require.Equal(t, StatusConfirmed, o.Status)

	// Terminal states stay terminal.
	o.Fail("late failure ignored")
	require.Equal(t, StatusConfirmed, o.Status)
}

func TestOutgoingFailFromMidPipeline(t *testing.T) {
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)
	n := note.New(big.NewInt(10), note.MintForToken("NOC"), note.RandomBytes(32))

	o := NewOutgoing(n, recipient.Pk)
	require.NoError(t, o.Encrypt())
	o.Fail("relay unavailable")
	require.Equal(t, StatusFailed, o.Status)
	require.Equal(t, "relay unavailable", o.Reason)
	require.Error(t, o.MarkSubmitted())
}

type fakeSource struct {
	candidates []Candidate
	err        error
}

func (f *fakeSource) EncryptedPayloads(context.Context) ([]Candidate, error) {
	return f.candidates, f.err
}

type fakeStore struct {
	notes map[string]*note.Note
}

func newFakeStore() *fakeStore { return &fakeStore{notes: map[string]*note.Note{}} }

func (f *fakeStore) HasNote(commitment []byte) bool {
	_, ok := f.notes[string(commitment)]
	return ok
}

func (f *fakeStore) AddDiscovered(_ context.Context, n *note.Note, _ string) error {
	f.notes[string(n.Commitment)] = n
	return nil
}

func TestScannerClaimsOnlyOwnPayloads(t *testing.T) {
	me, err := GenerateKeyPair()
	require.NoError(t, err)
	stranger, err := GenerateKeyPair()
	require.NoError(t, err)

	mint := note.MintForToken("NOC")
	mine := note.New(big.NewInt(100), mint, note.RandomBytes(32))
	theirs := note.New(big.NewInt(200), mint, note.RandomBytes(32))

	encMine, err := Encrypt(note.PayloadFromNote(mine), me.Pk)
	require.NoError(t, err)
	encTheirs, err := Encrypt(note.PayloadFromNote(theirs), stranger.Pk)
	require.NoError(t, err)

	store := newFakeStore()
	scanner := NewScanner(me, &fakeSource{candidates: []Candidate{
		{Payload: encTheirs, Signature: "sig-a"},
		{Payload: encMine, Signature: "sig-b"},
	}}, store, 0)

	claimed, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, claimed)
	require.True(t, store.HasNote(mine.Commitment))
	require.False(t, store.HasNote(theirs.Commitment))
}

func TestScannerIdempotentAcrossPasses(t *testing.T) {
	me, err := GenerateKeyPair()
	require.NoError(t, err)
	mine := note.New(big.NewInt(7), note.MintForToken("NOC"), note.RandomBytes(32))
	enc, err := Encrypt(note.PayloadFromNote(mine), me.Pk)
	require.NoError(t, err)

	store := newFakeStore()
	scanner := NewScanner(me, &fakeSource{candidates: []Candidate{{Payload: enc, Signature: "s"}}}, store, 0)

	claimed, err := scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, claimed)

	claimed, err = scanner.ScanOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, claimed, "second pass must not re-claim")
}

// wallet.go - Per-participant note store and key material.
//
// A wallet owns a delivery keypair, an owner secret that every note it mints
// is bound to, and the record list. Wallets persist as JSON files; the curve
// element types carry their own JSON encoding.

package wallet

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"os"
	"sync"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/delivery"
	"github.com/noctura/shield/internal/note"
)

// ErrPipelineBusy is returned when a second transfer pipeline tries to start
// while one is already holding the wallet.
var ErrPipelineBusy = errors.New("wallet: another pipeline is in flight")

// ErrNoSuchNote is returned when a commitment is not in the record list.
var ErrNoSuchNote = errors.New("wallet: no record for commitment")

// Wallet stores a participant's delivery keys, owner secret, and notes.
type Wallet struct {
	Name        string              `json:"name"`
	Sk          *fr.Element         `json:"sk"`
	Pk          *bls12377.G1Affine  `json:"pk"`
	OwnerSecret []byte              `json:"ownerSecret"`
	Records     []*note.Record      `json:"records"`
	Tokens      map[string]string   `json:"tokens"` // mint (decimal) -> symbol

	mu   sync.Mutex
	busy bool
}

// New creates a wallet with fresh key material.
func New(name string) (*Wallet, error) {
	keys, err := delivery.GenerateKeyPair()
	if err != nil {
		return nil, errors.Wrap(err, "generating delivery keys")
	}
	return &Wallet{
		Name:        name,
		Sk:          keys.Sk,
		Pk:          keys.Pk,
		OwnerSecret: note.RandomBytes(32),
		Tokens:      make(map[string]string),
	}, nil
}

// Load reads a wallet from a JSON file.
func Load(path string) (*Wallet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var w Wallet
	if err := json.NewDecoder(f).Decode(&w); err != nil {
		return nil, errors.Wrapf(err, "decoding wallet %s", path)
	}
	if w.Tokens == nil {
		w.Tokens = make(map[string]string)
	}
	return &w, nil
}

// Save writes the wallet to a JSON file.
func (w *Wallet) Save(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(w)
}

// Keys returns the wallet's delivery keypair.
func (w *Wallet) Keys() *delivery.KeyPair {
	return &delivery.KeyPair{Sk: w.Sk, Pk: w.Pk}
}

// Owner is the wallet's public identity, the compressed delivery public key.
func (w *Wallet) Owner() string {
	b := w.Pk.Bytes()
	return hex.EncodeToString(b[:])
}

// RegisterToken records the symbol behind a mint so discovered notes can be
// labelled. Minting through the wallet registers automatically.
func (w *Wallet) RegisterToken(symbol string) *big.Int {
	mint := note.MintForToken(symbol)
	w.mu.Lock()
	w.Tokens[mint.String()] = symbol
	w.mu.Unlock()
	return mint
}

func (w *Wallet) symbolFor(mint *big.Int) string {
	return w.Tokens[mint.String()]
}

// AddRecord appends a record created by this wallet's own pipelines.
func (w *Wallet) AddRecord(rec *note.Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Records = append(w.Records, rec)
}

// UnspentByToken returns the unspent records holding the given token.
func (w *Wallet) UnspentByToken(tokenType string) []*note.Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []*note.Record
	for _, rec := range w.Records {
		if !rec.Spent && rec.TokenType == tokenType {
			out = append(out, rec)
		}
	}
	return out
}

// Balance sums the unspent value of one token.
func (w *Wallet) Balance(tokenType string) *big.Int {
	total := new(big.Int)
	for _, rec := range w.UnspentByToken(tokenType) {
		total.Add(total, rec.Note.Amount)
	}
	return total
}

// MarkSpent flags the record holding commitment as consumed.
func (w *Wallet) MarkSpent(commitment []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec := w.findLocked(commitment); rec != nil {
		rec.Spent = true
		return nil
	}
	return ErrNoSuchNote
}

// RecordFor returns the record holding commitment.
func (w *Wallet) RecordFor(commitment []byte) (*note.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec := w.findLocked(commitment); rec != nil {
		return rec, nil
	}
	return nil, ErrNoSuchNote
}

func (w *Wallet) findLocked(commitment []byte) *note.Record {
	for _, rec := range w.Records {
		if string(rec.Note.Commitment) == string(commitment) {
			return rec
		}
	}
	return nil
}

// BeginPipeline claims the wallet for one transfer pipeline. A wallet runs at
// most one pipeline at a time so two flows cannot select the same notes.
func (w *Wallet) BeginPipeline() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.busy {
		return ErrPipelineBusy
	}
	w.busy = true
	return nil
}

// EndPipeline releases the wallet.
func (w *Wallet) EndPipeline() {
	w.mu.Lock()
	w.busy = false
	w.mu.Unlock()
}

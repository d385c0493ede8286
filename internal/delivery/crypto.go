// crypto.go - ECDH note delivery encryption.
//
// The sender draws a fresh ephemeral BLS12-377 keypair per transfer, computes
// a DH shared point with the recipient's public key, and derives a MiMC
// keystream from (shared.X, shared.Y, nonce) to mask the serialized opening
// material. The ephemeral public key and nonce travel in the clear; only the
// holder of the recipient's scalar can rebuild the shared point.
//
// Decryption authenticates by recomputing the note commitment from the
// decrypted opening: a wrong key produces garbage that fails either the JSON
// parse or the commitment check, never a wrong-but-parseable note.

package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"

	"github.com/noctura/shield/internal/note"
)

// ErrNotAddressed is the expected outcome when a payload was not encrypted to
// this wallet's key. Scanning treats it as a skip, not a failure.
var ErrNotAddressed = errors.New("delivery: payload not addressed to this key")

// KeyPair is a BLS12-377 keypair used for note delivery.
type KeyPair struct {
	Sk *bls12377_fr.Element
	Pk *bls12377.G1Affine
}

// GenerateKeyPair draws a random delivery keypair.
func GenerateKeyPair() (*KeyPair, error) {
	var sk bls12377_fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, fmt.Errorf("sampling delivery key: %w", err)
	}
	return &KeyPair{Sk: &sk, Pk: publicKey(&sk)}, nil
}

func publicKey(sk *bls12377_fr.Element) *bls12377.G1Affine {
	g1Jac, _, _, _ := bls12377.Generators()
	var pk bls12377.G1Affine
	pk.FromJacobian(&g1Jac)
	pk.ScalarMultiplication(&pk, sk.BigInt(new(big.Int)))
	return &pk
}

// sharedPoint computes the DH shared point sk * pk.
func sharedPoint(sk *bls12377_fr.Element, pk *bls12377.G1Affine) *bls12377.G1Affine {
	var shared bls12377.G1Affine
	shared.ScalarMultiplication(pk, sk.BigInt(new(big.Int)))
	return &shared
}

// Encrypted is the wire form of a privately delivered note: ephemeral public
// key and nonce in the clear, opening material masked by the keystream.
type Encrypted struct {
	EphemeralPub []byte `json:"ephemeralPub"` // compressed G1 point
	Nonce        []byte `json:"nonce"`
	Ciphertext   []byte `json:"ciphertext"`
}

// Encrypt seals a note's opening material to the recipient's public key.
func Encrypt(p *note.Payload, recipientPub *bls12377.G1Affine) (*Encrypted, error) {
	plain, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	var esk bls12377_fr.Element
	if _, err := esk.SetRandom(); err != nil {
		return nil, fmt.Errorf("sampling ephemeral key: %w", err)
	}
	epub := publicKey(&esk)
	nonce := note.RandomBytes(32)

	shared := sharedPoint(&esk, recipientPub)
	mask := keystream(shared, nonce, len(plain))
	ct := make([]byte, len(plain))
	for i := range plain {
		ct[i] = plain[i] ^ mask[i]
	}

	epubBytes := epub.Bytes()
	return &Encrypted{
		EphemeralPub: epubBytes[:],
		Nonce:        nonce,
		Ciphertext:   ct,
	}, nil
}

// Decrypt attempts to open an encrypted payload with sk. Foreign payloads
// return ErrNotAddressed.
func Decrypt(enc *Encrypted, sk *bls12377_fr.Element) (*note.Payload, error) {
	var epub bls12377.G1Affine
	if _, err := epub.SetBytes(enc.EphemeralPub); err != nil {
		return nil, fmt.Errorf("parsing ephemeral key: %w", err)
	}

	shared := sharedPoint(sk, &epub)
	mask := keystream(shared, enc.Nonce, len(enc.Ciphertext))
	plain := make([]byte, len(enc.Ciphertext))
	for i := range enc.Ciphertext {
		plain[i] = enc.Ciphertext[i] ^ mask[i]
	}

	var p note.Payload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, ErrNotAddressed
	}
	if _, err := p.ToNote(); err != nil {
		return nil, ErrNotAddressed
	}
	return &p, nil
}

// keystream derives n mask bytes by chaining MiMC over the shared point
// coordinates and the nonce.
func keystream(shared *bls12377.G1Affine, nonce []byte, n int) []byte {
	h := mimcNative.NewMiMC()
	x := shared.X.Bytes()
	y := shared.Y.Bytes()
	h.Write(x[:])
	h.Write(y[:])
	h.Write(nonce)
	block := h.Sum(nil)

	out := append([]byte(nil), block...)
	for len(out) < n {
		h.Write(block)
		block = h.Sum(nil)
		out = append(out, block...)
	}
	return out[:n]
}

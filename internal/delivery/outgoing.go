// outgoing.go - Per-transfer delivery state machine.

package delivery

import (
	"fmt"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/google/uuid"

	"github.com/noctura/shield/internal/note"
)

// Status tracks an outgoing private delivery through its lifecycle.
type Status int

const (
	StatusPrepared  Status = iota // recipient note constructed, not yet encrypted
	StatusEncrypted               // ECDH ciphertext produced
	StatusSubmitted               // transfer proof and nullifier relayed on-chain
	StatusDelivered               // encrypted payload published
	StatusConfirmed               // terminal success
	StatusFailed                  // terminal failure
)

func (s Status) String() string {
	switch s {
	case StatusPrepared:
		return "prepared"
	case StatusEncrypted:
		return "encrypted"
	case StatusSubmitted:
		return "submitted"
	case StatusDelivered:
		return "delivered"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("delivery.Status(%d)", int(s))
	}
}

// Outgoing is one private delivery in flight. Transitions are strictly
// forward; a failed delivery never resumes.
type Outgoing struct {
	ID        uuid.UUID
	Recipient *bls12377.G1Affine
	Note      *note.Note
	Payload   *Encrypted
	Status    Status
	Reason    string // populated on failure
}

// NewOutgoing prepares a delivery of n to the recipient key.
func NewOutgoing(n *note.Note, recipient *bls12377.G1Affine) *Outgoing {
	return &Outgoing{
		ID:        uuid.New(),
		Recipient: recipient,
		Note:      n,
		Status:    StatusPrepared,
	}
}

// Encrypt seals the note to the recipient and advances to Encrypted.
func (o *Outgoing) Encrypt() error {
	if o.Status != StatusPrepared {
		return fmt.Errorf("delivery %s: cannot encrypt from %s", o.ID, o.Status)
	}
	enc, err := Encrypt(note.PayloadFromNote(o.Note), o.Recipient)
	if err != nil {
		return err
	}
	o.Payload = enc
	o.Status = StatusEncrypted
	return nil
}

// MarkSubmitted records that the transfer proof was relayed.
func (o *Outgoing) MarkSubmitted() error {
	return o.advance(StatusEncrypted, StatusSubmitted)
}

// MarkDelivered records that the encrypted payload was published.
func (o *Outgoing) MarkDelivered() error {
	return o.advance(StatusSubmitted, StatusDelivered)
}

// MarkConfirmed finishes the delivery.
func (o *Outgoing) MarkConfirmed() error {
	return o.advance(StatusDelivered, StatusConfirmed)
}

// Fail terminates the delivery with a reason. Legal from any non-terminal state.
func (o *Outgoing) Fail(reason string) {
	if o.Status == StatusConfirmed || o.Status == StatusFailed {
		return
	}
	o.Status = StatusFailed
	o.Reason = reason
}

func (o *Outgoing) advance(from, to Status) error {
	if o.Status != from {
		return fmt.Errorf("delivery %s: cannot move to %s from %s", o.ID, to, o.Status)
	}
	o.Status = to
	return nil
}

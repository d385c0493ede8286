// record.go - Client-local bookkeeping wrapper around a Note.

package note

import "time"

// UnknownLeaf marks a record whose accumulator position has not been observed
// yet, e.g. a privately received note before the next leaf sync.
const UnknownLeaf = int64(-1)

// Record wraps a Note with wallet-local state. The embedded Note is immutable;
// only Spent and LeafIndex transition after creation.
type Record struct {
	Note      *Note     `json:"note"`
	Owner     string    `json:"owner"`              // Owning wallet identity (hex public key)
	TokenType string    `json:"tokenType"`          // Symbol the mint was derived from
	LeafIndex int64     `json:"leafIndex"`          // Position in the accumulator, UnknownLeaf if not yet observed
	Spent     bool      `json:"spent"`              // Set after submission, reconciled against chain state
	Signature string    `json:"signature,omitempty"` // Transaction that created the note
	CreatedAt time.Time `json:"createdAt"`
}

// NewRecord creates an unspent record for a freshly created or discovered note.
func NewRecord(n *Note, owner, tokenType string, leafIndex int64, signature string) *Record {
	return &Record{
		Note:      n,
		Owner:     owner,
		TokenType: tokenType,
		LeafIndex: leafIndex,
		Signature: signature,
		CreatedAt: time.Now().UTC(),
	}
}

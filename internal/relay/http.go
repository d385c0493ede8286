// http.go - Relayer over a relay node's REST API.

package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/chain"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
)

// Client submits shield operations to a relay node. Because submission is not
// idempotent, every retry is preceded by an on-chain nullifier check: if the
// first attempt actually landed, the retry converts into ErrNullifierSpent
// instead of double-submitting.
type Client struct {
	baseURL  string
	http     *http.Client
	state    chain.StateReader
	attempts int
	backoff  time.Duration
}

// NewClient creates a relay client. state is consulted before every retry.
func NewClient(baseURL string, state chain.StateReader, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		state:    state,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

type transferBody struct {
	Proof             string   `json:"proof"`
	Root              string   `json:"root"`
	Nullifiers        []string `json:"nullifiers"`
	OutputCommitments []string `json:"outputCommitments"`
	EphemeralPub      string   `json:"ephemeralPub,omitempty"`
	Nonce             string   `json:"nonce,omitempty"`
	Ciphertext        string   `json:"ciphertext,omitempty"`
}

type withdrawBody struct {
	Proof      string `json:"proof"`
	Root       string `json:"root"`
	Amount     string `json:"amount"`
	Nullifier  string `json:"nullifier"`
	Recipient  string `json:"recipient"`
	Mint       string `json:"mint"`
	CollectFee bool   `json:"collectFee"`
}

type depositBody struct {
	Proof      string `json:"proof"`
	Commitment string `json:"commitment"`
	Amount     string `json:"amount"`
	Mint       string `json:"mint"`
	Priority   bool   `json:"priority"`
}

type receiptBody struct {
	Signature   string   `json:"signature"`
	LeafIndices []uint64 `json:"leafIndices"`
}

// RelayTransfer implements Relayer.
func (c *Client) RelayTransfer(ctx context.Context, req *TransferRequest) (*Receipt, error) {
	body := transferBody{
		Proof:             hex.EncodeToString(req.Proof),
		Root:              hex.EncodeToString(req.Root),
		Nullifiers:        hexAll(req.Nullifiers),
		OutputCommitments: hexAll(req.OutputCommitments),
	}
	if req.EncryptedPayload != nil {
		body.EphemeralPub = hex.EncodeToString(req.EncryptedPayload.EphemeralPub)
		body.Nonce = hex.EncodeToString(req.EncryptedPayload.Nonce)
		body.Ciphertext = hex.EncodeToString(req.EncryptedPayload.Ciphertext)
	}
	return c.submit(ctx, "/shield/transfer", body, req.Nullifiers)
}

// RelayWithdraw implements Relayer.
func (c *Client) RelayWithdraw(ctx context.Context, req *WithdrawRequest) (*Receipt, error) {
	body := withdrawBody{
		Proof:      hex.EncodeToString(req.Proof),
		Root:       hex.EncodeToString(req.Root),
		Amount:     req.Amount.String(),
		Nullifier:  hex.EncodeToString(req.Nullifier),
		Recipient:  req.Recipient,
		Mint:       req.Mint.String(),
		CollectFee: req.CollectFee,
	}
	return c.submit(ctx, "/shield/withdraw", body, [][]byte{req.Nullifier})
}

// RelayDeposit implements Relayer.
func (c *Client) RelayDeposit(ctx context.Context, req *DepositRequest) (*Receipt, error) {
	body := depositBody{
		Proof:      hex.EncodeToString(req.Proof),
		Commitment: hex.EncodeToString(req.Commitment),
		Amount:     req.Amount.String(),
		Mint:       req.Mint.String(),
		Priority:   req.Priority,
	}
	// Deposits consume no nullifier, so a retry cannot double-spend.
	return c.submit(ctx, "/shield/deposit", body, nil)
}

func (c *Client) submit(ctx context.Context, path string, body interface{}, nullifiers [][]byte) (*Receipt, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			// A previous attempt may have landed even though we saw an
			// error. Check before re-submitting.
			for _, nf := range nullifiers {
				spent, err := c.state.IsNullifierSpent(ctx, nf)
				if err == nil && spent {
					return nil, ErrNullifierSpent
				}
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		receipt, err := c.post(ctx, path, body)
		if err == nil {
			return receipt, nil
		}
		if errors.Is(err, ErrNullifierSpent) || errors.Is(err, ErrStaleRoot) {
			return nil, err
		}
		lastErr = err
	}
	return nil, errors.WithMessage(ErrUnavailable, lastErr.Error())
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*Receipt, error) {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, errors.Wrap(err, "building request URL")
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "posting %s", path)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return nil, ErrNullifierSpent
	case http.StatusUnprocessableEntity:
		return nil, ErrStaleRoot
	default:
		return nil, errors.Errorf("posting %s: unexpected status %d", path, resp.StatusCode)
	}

	var rb receiptBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		return nil, errors.Wrapf(err, "decoding %s receipt", path)
	}
	return &Receipt{Signature: rb.Signature, LeafIndices: rb.LeafIndices}, nil
}

func hexAll(items [][]byte) []string {
	out := make([]string, len(items))
	for i, b := range items {
		out[i] = hex.EncodeToString(b)
	}
	return out
}

var _ Relayer = (*Client)(nil)

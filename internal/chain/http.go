// http.go - StateReader over a relay node's REST API.

package chain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/noctura/shield/internal/delivery"
)

// Client reads shield program state from a relay node.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a reader for the node at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type leavesResponse struct {
	Leaves []string `json:"leaves"` // hex-encoded commitments, insertion order
}

type rootResponse struct {
	Accepted bool `json:"accepted"`
}

type nullifierResponse struct {
	Spent bool `json:"spent"`
}

type nullifiersResponse struct {
	Nullifiers []string `json:"nullifiers"`
}

type payloadsResponse struct {
	Payloads []struct {
		EphemeralPub string `json:"ephemeralPub"`
		Nonce        string `json:"nonce"`
		Ciphertext   string `json:"ciphertext"`
		Signature    string `json:"signature"`
	} `json:"payloads"`
}

// Leaves implements StateReader.
func (c *Client) Leaves(ctx context.Context) ([][]byte, error) {
	var resp leavesResponse
	if err := c.get(ctx, "/shield/leaves", &resp); err != nil {
		return nil, err
	}
	out := make([][]byte, len(resp.Leaves))
	for i, leafHex := range resp.Leaves {
		leaf, err := hex.DecodeString(leafHex)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding leaf %d", i)
		}
		out[i] = leaf
	}
	return out, nil
}

// ContainsRoot implements StateReader.
func (c *Client) ContainsRoot(ctx context.Context, root []byte) (bool, error) {
	var resp rootResponse
	path := "/shield/roots/" + hex.EncodeToString(root)
	if err := c.get(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

// IsNullifierSpent implements StateReader.
func (c *Client) IsNullifierSpent(ctx context.Context, nullifier []byte) (bool, error) {
	var resp nullifierResponse
	path := "/shield/nullifiers/" + hex.EncodeToString(nullifier)
	if err := c.get(ctx, path, &resp); err != nil {
		return false, err
	}
	return resp.Spent, nil
}

// SpentNullifiers implements StateReader.
func (c *Client) SpentNullifiers(ctx context.Context) ([][]byte, error) {
	var resp nullifiersResponse
	if err := c.get(ctx, "/shield/nullifiers", &resp); err != nil {
		return nil, err
	}
	out := make([][]byte, len(resp.Nullifiers))
	for i, nfHex := range resp.Nullifiers {
		nf, err := hex.DecodeString(nfHex)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding nullifier %d", i)
		}
		out[i] = nf
	}
	return out, nil
}

// EncryptedPayloads implements delivery.PayloadSource, enumerating recent
// transaction metadata for the discovery scanner.
func (c *Client) EncryptedPayloads(ctx context.Context) ([]delivery.Candidate, error) {
	var resp payloadsResponse
	if err := c.get(ctx, "/shield/payloads", &resp); err != nil {
		return nil, err
	}
	out := make([]delivery.Candidate, 0, len(resp.Payloads))
	for i, p := range resp.Payloads {
		epub, err := hex.DecodeString(p.EphemeralPub)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding payload %d ephemeral key", i)
		}
		nonce, err := hex.DecodeString(p.Nonce)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding payload %d nonce", i)
		}
		ct, err := hex.DecodeString(p.Ciphertext)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding payload %d ciphertext", i)
		}
		out = append(out, delivery.Candidate{
			Payload:   &delivery.Encrypted{EphemeralPub: epub, Nonce: nonce, Ciphertext: ct},
			Signature: p.Signature,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	u, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return errors.Wrap(err, "building request URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "fetching %s", path)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("fetching %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decoding %s response", path)
	}
	return nil
}

var _ StateReader = (*Client)(nil)
var _ StateReader = (*Memory)(nil)

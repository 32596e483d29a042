package mevshare

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ybbus/jsonrpc/v3"
)

// SignatureHeader carries the relay-authentication signature on every
// outbound request. It is distinct from the transaction signatures inside
// the bundle: relays use it to attribute searcher reputation.
const SignatureHeader = "X-Flashbots-Signature"

var (
	ErrRelayRejected = errors.New("relay rejected bundle")
	ErrEmptyResponse = errors.New("empty relay response")
)

// RPCError wraps any failure of a single relay call: transport errors, relay
// rejections and malformed responses all surface as this type so callers can
// treat them uniformly as a per-relay, per-call failure.
type RPCError struct {
	Relay string
	Err   error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relay %s: %s", e.Relay, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// signingRoundTripper signs the request body with the searcher key and
// attaches the result as "<address>:<signature>". The signed message is the
// EIP-191 text hash of the hex-encoded keccak of the body.
type signingRoundTripper struct {
	key     *ecdsa.PrivateKey
	address common.Address
	next    http.RoundTripper
}

func (s *signingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		_ = req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	hashedBody := crypto.Keccak256Hash(body).Hex()
	sig, err := crypto.Sign(accounts.TextHash([]byte(hashedBody)), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign request body: %w", err)
	}
	req.Header.Set(SignatureHeader, s.address.Hex()+":"+hexutil.Encode(sig))

	return s.next.RoundTrip(req)
}

// SigningClient submits bundles to a single relay over JSON-RPC, signing
// every request with the configured searcher identity. It performs no
// retries; retry policy belongs to the caller.
type SigningClient struct {
	name   string
	client jsonrpc.RPCClient
}

// NewSigningClient builds a client for one relay endpoint. All N relay
// clients may share one signing key; the key material is read-only.
func NewSigningClient(name, url string, key *ecdsa.PrivateKey) *SigningClient {
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &signingRoundTripper{
			key:     key,
			address: crypto.PubkeyToAddress(key.PublicKey),
			next:    http.DefaultTransport,
		},
	}
	return &SigningClient{
		name: name,
		client: jsonrpc.NewClientWithOpts(url, &jsonrpc.RPCClientOpts{
			HTTPClient: httpClient,
		}),
	}
}

func (c *SigningClient) Name() string { return c.name }

// SendBundle issues one mev_sendBundle call. Any failure is reported as an
// *RPCError and is not retried.
func (c *SigningClient) SendBundle(ctx context.Context, bundle *SendMevBundleArgs) (*SendMevBundleResponse, error) {
	res, err := c.client.Call(ctx, SendBundleEndpointName, []*SendMevBundleArgs{bundle})
	if err != nil {
		return nil, &RPCError{Relay: c.name, Err: err}
	}
	if res.Error != nil {
		return nil, &RPCError{Relay: c.name, Err: fmt.Errorf("%w: %s", ErrRelayRejected, res.Error.Error())}
	}
	if res.Result == nil {
		return nil, &RPCError{Relay: c.name, Err: ErrEmptyResponse}
	}
	var response SendMevBundleResponse
	if err := res.GetObject(&response); err != nil {
		return nil, &RPCError{Relay: c.name, Err: fmt.Errorf("decode response: %w", err)}
	}
	return &response, nil
}

package mevshare

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func testBundle() *SendMevBundleArgs {
	hash := common.HexToHash("0xaaaabbbbccccddddeeeeffff00001111222233334444555566667777888899aa")
	return &SendMevBundleArgs{
		Version:   VersionBeta1,
		Inclusion: MevBundleInclusion{BlockNumber: 100, MaxBlock: 130},
		Body:      []MevBundleBody{{Hash: &hash}},
	}
}

func TestSigningClientSignsEveryRequest(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wantAddress := crypto.PubkeyToAddress(key.PublicKey)

	wantBundleHash := common.HexToHash("0x1234000000000000000000000000000000000000000000000000000000000000")

	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		// the signature must be over this exact body and recover to
		// the searcher address
		header := r.Header.Get(SignatureHeader)
		require.NotEmpty(t, header)
		parts := strings.SplitN(header, ":", 2)
		require.Len(t, parts, 2)
		require.Equal(t, wantAddress.Hex(), parts[0])

		sig, err := hexutil.Decode(parts[1])
		require.NoError(t, err)
		hashedBody := crypto.Keccak256Hash(body).Hex()
		pubkey, err := crypto.SigToPub(accounts.TextHash([]byte(hashedBody)), sig)
		require.NoError(t, err)
		require.Equal(t, wantAddress, crypto.PubkeyToAddress(*pubkey))

		var req struct {
			ID     json.RawMessage     `json:"id"`
			Method string              `json:"method"`
			Params []SendMevBundleArgs `json:"params"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		gotMethod = req.Method
		require.Len(t, req.Params, 1)
		require.Equal(t, hexutil.Uint64(100), req.Params[0].Inclusion.BlockNumber)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":{"bundleHash":"` + wantBundleHash.Hex() + `"}}`))
	}))
	defer server.Close()

	client := NewSigningClient("test-relay", server.URL, key)
	res, err := client.SendBundle(context.Background(), testBundle())
	require.NoError(t, err)
	require.Equal(t, SendBundleEndpointName, gotMethod)
	require.Equal(t, wantBundleHash, res.BundleHash)
}

func TestSigningClientReportsRelayRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"bundle too deep"}}`))
	}))
	defer server.Close()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	client := NewSigningClient("test-relay", server.URL, key)
	_, err = client.SendBundle(context.Background(), testBundle())
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, "test-relay", rpcErr.Relay)
	require.ErrorIs(t, err, ErrRelayRejected)
	require.Contains(t, err.Error(), "bundle too deep")
}

func TestSigningClientReportsTransportFailure(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	// nothing listens here
	client := NewSigningClient("test-relay", "http://127.0.0.1:1", key)
	_, err = client.SendBundle(context.Background(), testBundle())

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, "test-relay", rpcErr.Relay)
	require.False(t, errors.Is(err, ErrRelayRejected))
}

package uniarb

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestFlashLoanArbBuilderPacksCall(t *testing.T) {
	contract := common.HexToAddress("0x000000000000000000000000000000000000beef")
	builder, err := NewFlashLoanArbBuilder(contract)
	require.NoError(t, err)

	size := big.NewInt(1_000_000)
	to, calldata, err := builder.BuildArbitrageCall(true, v2Pool, v3Pool, size, big.NewInt(40))
	require.NoError(t, err)
	require.Equal(t, contract, to)
	require.Equal(t, builder.method.ID, calldata[:4])

	unpacked, err := builder.method.Inputs.Unpack(calldata[4:])
	require.NoError(t, err)
	require.Equal(t, []common.Address{WethAddress}, unpacked[0])
	tokens := unpacked[1].([]*big.Int)
	require.Len(t, tokens, 1)
	require.Zero(t, size.Cmp(tokens[0]))

	userData, err := builder.userData.Unpack(unpacked[2].([]byte))
	require.NoError(t, err)
	require.Equal(t, true, userData[0])
	require.Equal(t, v2Pool, userData[1])
	require.Equal(t, v3Pool, userData[2])
	require.Zero(t, size.Cmp(userData[3].(*big.Int)))
	require.Zero(t, big.NewInt(40).Cmp(userData[4].(*big.Int)))
}

func TestPrivateKeySignerSignsForChain(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewPrivateKeySigner(key, big.NewInt(1))
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer.Address())

	to := common.HexToAddress("0x000000000000000000000000000000000000beef")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(1),
		Gas:      21_000,
		To:       &to,
		Value:    common.Big0,
	})
	signed, err := signer.SignTx(tx)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(1)), signed)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), from)
}

func TestCachingNodeClientCachesHeadBlock(t *testing.T) {
	inner := &fakeNode{blockNumber: 100}
	client := NewCachingNodeClient(inner)

	blockNumber, err := client.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), blockNumber)

	// a newer head inside the cache window is not observed
	inner.blockNumber = 101
	blockNumber, err = client.BlockNumber(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), blockNumber)
}

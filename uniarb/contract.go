package uniarb

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// WethAddress is mainnet WETH, the base asset every arb is sized in.
var WethAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

// ArbCallBuilder builds the unsigned calldata for one arbitrage attempt.
// The contract behind it is opaque to the strategy.
type ArbCallBuilder interface {
	BuildArbitrageCall(isWethToken0 bool, v2Pool, v3Pool common.Address, size, payoutPercent *big.Int) (common.Address, []byte, error)
}

// FlashLoanArbBuilder targets a blind-arb contract that takes a WETH flash
// loan and runs the v2/v3 round trip inside the loan callback. The user data
// carries the pool pair, the trade size and the payout split.
type FlashLoanArbBuilder struct {
	contract common.Address
	method   abi.Method
	userData abi.Arguments
}

func NewFlashLoanArbBuilder(contract common.Address) (*FlashLoanArbBuilder, error) {
	addressTy, err := abi.NewType("address", "", nil)
	if err != nil {
		return nil, err
	}
	addressSliceTy, err := abi.NewType("address[]", "", nil)
	if err != nil {
		return nil, err
	}
	uintTy, err := abi.NewType("uint256", "", nil)
	if err != nil {
		return nil, err
	}
	uintSliceTy, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		return nil, err
	}
	boolTy, err := abi.NewType("bool", "", nil)
	if err != nil {
		return nil, err
	}
	bytesTy, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}

	method := abi.NewMethod("makeFlashLoan", "makeFlashLoan", abi.Function, "nonpayable", false, false,
		abi.Arguments{
			{Name: "tokens", Type: addressSliceTy},
			{Name: "amounts", Type: uintSliceTy},
			{Name: "userData", Type: bytesTy},
		}, nil)

	return &FlashLoanArbBuilder{
		contract: contract,
		method:   method,
		// tuple of static types, encoded inline
		userData: abi.Arguments{
			{Type: boolTy},
			{Type: addressTy},
			{Type: addressTy},
			{Type: uintTy},
			{Type: uintTy},
		},
	}, nil
}

func (b *FlashLoanArbBuilder) BuildArbitrageCall(isWethToken0 bool, v2Pool, v3Pool common.Address, size, payoutPercent *big.Int) (common.Address, []byte, error) {
	userData, err := b.userData.Pack(isWethToken0, v2Pool, v3Pool, size, payoutPercent)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack user data: %w", err)
	}
	args, err := b.method.Inputs.Pack([]common.Address{WethAddress}, []*big.Int{new(big.Int).Set(size)}, userData)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("pack call: %w", err)
	}
	return b.contract, append(b.method.ID, args...), nil
}

// TxSigner signs arbitrage transactions with the searcher's key. The relay
// request signature is a separate identity, see mevshare.SigningClient.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

type privateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	signer  types.Signer
}

func NewPrivateKeySigner(key *ecdsa.PrivateKey, chainID *big.Int) TxSigner {
	return &privateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
	}
}

func (s *privateKeySigner) Address() common.Address {
	return s.address
}

func (s *privateKeySigner) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, s.signer, s.key)
}

package uniarb

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/kestrel-mev/kestrel/metrics"
	"github.com/kestrel-mev/kestrel/mevshare"
	"github.com/kestrel-mev/kestrel/orderflow"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

var ErrNoPoolData = errors.New("pool table path not configured")

const (
	// ladderSteps candidate sizes per opportunity, 1e5 wei up to 1 WETH,
	// one order of magnitude apart. The optimal size is unknown up front,
	// so every rung is raced and at most one lands.
	ladderSteps     = 14
	ladderBaseSize  = 100_000
	arbGasLimit     = 400_000
	inclusionWindow = 30

	seenTTL = 5 * time.Minute
)

// payoutPercent is the share of profit the arb contract pays to the
// coinbase for inclusion.
var payoutPercent = big.NewInt(40)

// BundleDefaults are the validity and privacy settings stamped on every
// generated bundle. The builder allow-list is maintained independently of
// the relay endpoint registry: it controls who may see bundle details, not
// where bundles are submitted.
type BundleDefaults struct {
	RefundConfig []mevshare.RefundConfig
	Hints        mevshare.HintIntent
	Builders     []common.Address
}

// DefaultBundleDefaults discloses nothing and allow-lists the major
// builders. The list is intentionally not derived from the relay registry:
// adding a submission endpoint should not implicitly widen who may inspect
// bundle contents.
func DefaultBundleDefaults() BundleDefaults {
	return BundleDefaults{
		Builders: []common.Address{
			common.HexToAddress("0x1f9090aaE28b8a3dCeaDf281B0F12828e676c326"), // rsync-builder
			common.HexToAddress("0x690B9A9E9aa1C9dB991C7721a92d351Db4FaC990"), // builder0x69
			common.HexToAddress("0x95222290DD7278Aa3Ddd389Cc1E1d165CC4BAfe5"), // beaverbuild
			common.HexToAddress("0xDAFEA492D9c6733ae3d56b7Ed1ADB60692c98Bc5"), // flashbots builder
			common.HexToAddress("0x4838B106FCe9647Bdf1E7877BF73cE8B0BAD5f97"), // titan builder
		},
	}
}

// Strategy watches order flow for swaps on pools in the reference table and
// emits a ladder of backrun bundles for each match.
type Strategy struct {
	log       *zap.Logger
	node      NodeClient
	arb       ArbCallBuilder
	signer    TxSigner
	poolsPath string
	defaults  BundleDefaults

	pools PoolTable
	// dedupe of already-processed target transactions; the feed may
	// deliver the same disclosure more than once
	seen *gocache.Cache

	headBlock atomic.Uint64
}

func NewStrategy(log *zap.Logger, node NodeClient, arb ArbCallBuilder, signer TxSigner, poolsPath string, defaults BundleDefaults) *Strategy {
	return &Strategy{
		log:       log.Named("uniarb"),
		node:      node,
		arb:       arb,
		signer:    signer,
		poolsPath: poolsPath,
		defaults:  defaults,
		seen:      gocache.New(seenTTL, 2*seenTTL),
	}
}

func (s *Strategy) Name() string { return "uniarb" }

// SyncState loads the pool reference table. Called once before the strategy
// subscribes to events; a failure here aborts startup, a strategy without
// its pool table is useless.
func (s *Strategy) SyncState(_ context.Context) error {
	if s.poolsPath == "" {
		return ErrNoPoolData
	}
	pools, err := LoadPoolTable(s.poolsPath)
	if err != nil {
		return err
	}
	s.pools = pools
	s.log.Info("Loaded pool reference table", zap.Int("pools", len(pools)))
	return nil
}

func (s *Strategy) ProcessEvent(ctx context.Context, event Event) (Action, bool) {
	switch {
	case event.NewBlock != nil:
		s.headBlock.Store(event.NewBlock.Number.Uint64())
		return Action{}, false
	case event.OrderFlow != nil:
		return s.processOrderFlow(ctx, event.OrderFlow)
	default:
		return Action{}, false
	}
}

func (s *Strategy) processOrderFlow(ctx context.Context, event *orderflow.Event) (Action, bool) {
	if len(event.Logs) == 0 {
		return Action{}, false
	}
	address := event.Logs[0].Address
	info, ok := s.pools.Lookup(address)
	if !ok {
		return Action{}, false
	}
	if _, dup := s.seen.Get(event.Hash.Hex()); dup {
		s.log.Debug("Skipping duplicate disclosure", zap.String("tx", event.Hash.Hex()))
		return Action{}, false
	}
	s.seen.SetDefault(event.Hash.Hex(), struct{}{})

	metrics.IncPoolMatch()
	s.log.Info("Found a v3 pool match, submitting bundles",
		zap.String("pool", address.Hex()), zap.String("tx", event.Hash.Hex()))

	bundles := s.generateBundles(ctx, address, info, event.Hash)
	if len(bundles) == 0 {
		return Action{}, false
	}
	return Action{SubmitBundles: bundles}, true
}

// generateBundles builds the full ladder of candidate bundles for one
// opportunity. Every rung is independent: a nonce-fill or signing failure
// skips that size and the rest of the ladder goes on.
func (s *Strategy) generateBundles(ctx context.Context, v3Pool common.Address, info V2PoolInfo, targetTx common.Hash) []*mevshare.SendMevBundleArgs {
	gasPrice, err := s.node.SuggestGasPrice(ctx)
	if err != nil {
		s.log.Warn("Failed to fetch gas price", zap.Error(err))
		return nil
	}
	blockNumber, err := s.node.BlockNumber(ctx)
	if err != nil {
		s.log.Warn("Failed to fetch block number", zap.Error(err))
		return nil
	}

	bundles := make([]*mevshare.SendMevBundleArgs, 0, ladderSteps)
	size := big.NewInt(ladderBaseSize)
	for i := 0; i < ladderSteps; i++ {
		if i > 0 {
			size = new(big.Int).Mul(size, big.NewInt(10))
		}
		signed, err := s.buildArbTx(ctx, info, v3Pool, size, gasPrice)
		if err != nil {
			metrics.IncLadderRungSkipped()
			s.log.Warn("Skipping ladder rung",
				zap.String("size", size.String()), zap.Error(err))
			continue
		}
		raw, err := signed.MarshalBinary()
		if err != nil {
			metrics.IncLadderRungSkipped()
			s.log.Warn("Skipping ladder rung",
				zap.String("size", size.String()), zap.Error(err))
			continue
		}

		bundles = append(bundles, s.makeBundle(targetTx, raw, blockNumber))
		metrics.IncBundleGenerated()
	}
	return bundles
}

func (s *Strategy) buildArbTx(ctx context.Context, info V2PoolInfo, v3Pool common.Address, size, gasPrice *big.Int) (*types.Transaction, error) {
	to, calldata, err := s.arb.BuildArbitrageCall(info.IsWethToken0, info.V2Pool, v3Pool, size, payoutPercent)
	if err != nil {
		return nil, err
	}
	nonce, err := s.node.PendingNonceAt(ctx, s.signer.Address())
	if err != nil {
		return nil, err
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      arbGasLimit,
		To:       &to,
		Value:    common.Big0,
		Data:     calldata,
	})
	return s.signer.SignTx(tx)
}

// makeBundle packages one signed arb transaction behind the target it
// backruns. The bundle is valid from the next block for a 30-block window.
func (s *Strategy) makeBundle(targetTx common.Hash, signedArb []byte, blockNumber uint64) *mevshare.SendMevBundleArgs {
	arbBytes := hexutil.Bytes(signedArb)
	bundle := &mevshare.SendMevBundleArgs{
		Version: mevshare.VersionBeta1,
		Inclusion: mevshare.MevBundleInclusion{
			BlockNumber: hexutil.Uint64(blockNumber + 1),
			MaxBlock:    hexutil.Uint64(blockNumber + 1 + inclusionWindow),
		},
		Body: []mevshare.MevBundleBody{
			{Hash: &targetTx},
			{Tx: &arbBytes, CanRevert: false},
		},
	}
	if len(s.defaults.RefundConfig) > 0 {
		bundle.Validity = &mevshare.MevBundleValidity{
			RefundConfig: s.defaults.RefundConfig,
		}
	}
	if s.defaults.Hints != mevshare.HintNone || len(s.defaults.Builders) > 0 {
		bundle.Privacy = &mevshare.MevBundlePrivacy{
			Hints:    s.defaults.Hints,
			Builders: s.defaults.Builders,
		}
	}
	return bundle
}

// HeadBlock reports the most recent head seen on the block stream. Zero
// until the first head arrives.
func (s *Strategy) HeadBlock() uint64 {
	return s.headBlock.Load()
}

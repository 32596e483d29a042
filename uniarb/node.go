package uniarb

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NodeClient is the slice of an Ethereum node the strategy consumes: gas
// price, head block and nonce lookups. *ethclient.Client satisfies it.
type NodeClient interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// CachingNodeClient caches the head block number for a short window so that
// a burst of order-flow events does not turn into a burst of identical RPC
// calls. Gas price and nonce reads pass through.
type CachingNodeClient struct {
	NodeClient

	mu          sync.RWMutex
	blockNumber uint64
	lastUpdate  time.Time
}

const blockNumberCacheWindow = 5 * time.Second

func NewCachingNodeClient(client NodeClient) *CachingNodeClient {
	return &CachingNodeClient{
		NodeClient: client,
		lastUpdate: time.Now().Add(-2 * blockNumberCacheWindow),
	}
}

func (c *CachingNodeClient) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if time.Since(c.lastUpdate) < blockNumberCacheWindow {
		c.mu.RUnlock()
		return c.blockNumber, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	blockNumber, err := c.NodeClient.BlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	c.blockNumber = blockNumber
	c.lastUpdate = time.Now()
	return blockNumber, nil
}

// Package blocks streams new chain heads as engine events.
package blocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var ErrSubscribeFailed = errors.New("new head subscription failed")

// HeadSubscriber is the slice of an Ethereum client this collector needs.
// *ethclient.Client satisfies it when connected over websocket.
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Collector turns a new-head subscription into a collector of *types.Header
// events. The subscription is opened when the stream is opened; a failure
// there is fatal, a later subscription error ends the stream.
type Collector struct {
	log    *zap.Logger
	client HeadSubscriber
}

func NewCollector(log *zap.Logger, client HeadSubscriber) *Collector {
	return &Collector{log: log.Named("blocks"), client: client}
}

func (c *Collector) Name() string { return "new-heads" }

func (c *Collector) EventStream(ctx context.Context) (<-chan *types.Header, error) {
	heads := make(chan *types.Header)
	sub, err := c.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSubscribeFailed, err)
	}

	out := make(chan *types.Header)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case head := <-heads:
				select {
				case out <- head:
				case <-ctx.Done():
					return
				}
			case err := <-sub.Err():
				if err != nil {
					c.log.Warn("Head subscription ended", zap.Error(err))
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

package blocks

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSubscription struct {
	errs chan error
	done chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errs: make(chan error, 1), done: make(chan struct{})}
}

func (s *fakeSubscription) Err() <-chan error { return s.errs }

func (s *fakeSubscription) Unsubscribe() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

type fakeHeadSubscriber struct {
	heads chan<- *types.Header
	sub   *fakeSubscription
	err   error
}

func (f *fakeHeadSubscriber) SubscribeNewHead(_ context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.heads = ch
	return f.sub, nil
}

func TestCollectorForwardsHeads(t *testing.T) {
	subscriber := &fakeHeadSubscriber{sub: newFakeSubscription()}
	collector := NewCollector(zap.NewNop(), subscriber)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := collector.EventStream(ctx)
	require.NoError(t, err)

	for i := int64(1); i <= 3; i++ {
		subscriber.heads <- &types.Header{Number: big.NewInt(i)}
		select {
		case head := <-stream:
			require.Equal(t, i, head.Number.Int64())
		case <-time.After(5 * time.Second):
			t.Fatal("head not forwarded")
		}
	}
}

func TestCollectorFailsFastOnSubscribeError(t *testing.T) {
	subscriber := &fakeHeadSubscriber{err: errors.New("not a websocket endpoint")}
	collector := NewCollector(zap.NewNop(), subscriber)

	_, err := collector.EventStream(context.Background())
	require.ErrorIs(t, err, ErrSubscribeFailed)
}

func TestCollectorEndsStreamOnSubscriptionError(t *testing.T) {
	subscription := newFakeSubscription()
	subscriber := &fakeHeadSubscriber{sub: subscription}
	collector := NewCollector(zap.NewNop(), subscriber)

	stream, err := collector.EventStream(context.Background())
	require.NoError(t, err)

	subscription.errs <- errors.New("connection lost")
	select {
	case _, open := <-stream:
		require.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close")
	}
	select {
	case <-subscription.done:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not released")
	}
}

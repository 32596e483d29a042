package relay

import (
	"context"
	"time"

	"github.com/kestrel-mev/kestrel/metrics"
	"github.com/kestrel-mev/kestrel/mevshare"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// maxInFlight bounds how many of one ladder's bundles are on the wire to a
// single relay at once. It caps open connections per relay without
// serializing unrelated relays.
const maxInFlight = 5

// BundleSender is the client side of one relay. *mevshare.SigningClient
// satisfies it.
type BundleSender interface {
	Name() string
	SendBundle(ctx context.Context, bundle *mevshare.SendMevBundleArgs) (*mevshare.SendMevBundleResponse, error)
}

type ExecutorOption func(*Executor)

// WithRateLimit caps submissions per second to this relay.
func WithRateLimit(limit rate.Limit, burst int) ExecutorOption {
	return func(e *Executor) {
		e.limiter = rate.NewLimiter(limit, burst)
	}
}

// Executor submits a ladder of bundles to one relay. Each registered
// executor races the same action independently; a failure here never
// reaches the other relays.
type Executor struct {
	log     *zap.Logger
	client  BundleSender
	limiter *rate.Limiter
}

func NewExecutor(log *zap.Logger, client BundleSender, opts ...ExecutorOption) *Executor {
	e := &Executor{
		log:    log.Named("relay").With(zap.String("relay", client.Name())),
		client: client,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Name() string { return "relay-" + e.client.Name() }

// Execute submits every bundle of the ladder with bounded concurrency.
// Individual submission failures are logged and counted; none of them fails
// the action, and the engine task stays alive.
func (e *Executor) Execute(ctx context.Context, bundles []*mevshare.SendMevBundleArgs) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxInFlight)

	for _, bundle := range bundles {
		bundle := bundle
		group.Go(func() error {
			if e.limiter != nil {
				if err := e.limiter.Wait(groupCtx); err != nil {
					return nil
				}
			}

			start := time.Now()
			res, err := e.client.SendBundle(groupCtx, bundle)
			if err != nil {
				metrics.IncRelaySubmitError(e.client.Name())
				e.log.Warn("Failed to send bundle",
					zap.Uint64("block", uint64(bundle.Inclusion.BlockNumber)),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err))
				return nil
			}
			metrics.IncRelaySubmitOK(e.client.Name())
			e.log.Debug("Sent bundle",
				zap.String("bundle", res.BundleHash.Hex()),
				zap.Uint64("block", uint64(bundle.Inclusion.BlockNumber)),
				zap.Duration("duration", time.Since(start)))
			return nil
		})
	}

	_ = group.Wait()
	return nil
}

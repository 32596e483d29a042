// Package journal publishes a record of every submitted ladder to a Redis
// channel so operators can watch submissions without scraping logs.
package journal

import (
	"context"
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kestrel-mev/kestrel/metrics"
	"github.com/kestrel-mev/kestrel/mevshare"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Record is one journal entry, one per emitted ladder.
type Record struct {
	TargetTx     common.Hash   `json:"targetTx"`
	BundleHashes []common.Hash `json:"bundleHashes"`
	FirstBlock   uint64        `json:"firstBlock"`
	LastBlock    uint64        `json:"lastBlock"`
}

// Publisher is an executor that mirrors every submit-bundles action onto a
// Redis pub/sub channel. Publish failures are logged and counted, never
// propagated.
type Publisher struct {
	log        *zap.Logger
	client     *redis.Client
	pubChannel string
}

func NewPublisher(log *zap.Logger, client *redis.Client, pubChannel string) *Publisher {
	return &Publisher{
		log:        log.Named("journal"),
		client:     client,
		pubChannel: pubChannel,
	}
}

func (p *Publisher) Name() string { return "redis-journal" }

func (p *Publisher) Execute(ctx context.Context, bundles []*mevshare.SendMevBundleArgs) error {
	if len(bundles) == 0 {
		return nil
	}
	record := Record{
		BundleHashes: make([]common.Hash, 0, len(bundles)),
		FirstBlock:   uint64(bundles[0].Inclusion.BlockNumber),
		LastBlock:    uint64(bundles[0].Inclusion.MaxBlock),
	}
	if len(bundles[0].Body) > 0 && bundles[0].Body[0].Hash != nil {
		record.TargetTx = *bundles[0].Body[0].Hash
	}
	for _, bundle := range bundles {
		record.BundleHashes = append(record.BundleHashes, mevshare.BundleHash(bundle))
	}

	data, err := json.Marshal(record)
	if err != nil {
		metrics.IncJournalError()
		p.log.Warn("Failed to marshal journal record", zap.Error(err))
		return nil
	}
	if err := p.client.Publish(ctx, p.pubChannel, data).Err(); err != nil {
		metrics.IncJournalError()
		p.log.Warn("Failed to publish journal record", zap.Error(err))
	}
	return nil
}

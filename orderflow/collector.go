// Package orderflow consumes the MEV-share SSE feed of partially-disclosed
// pending transactions and exposes it as an engine collector.
package orderflow

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/kestrel-mev/kestrel/metrics"
	"go.uber.org/zap"
)

var (
	ErrSourceUnavailable = errors.New("orderflow source unavailable")
	ErrBadStatus         = errors.New("orderflow source returned non-200 status")
)

// Event is one order-flow disclosure: the hash of a pending transaction and
// whatever the originator chose to reveal about it.
type Event struct {
	Hash common.Hash `json:"hash"`
	Logs []Log       `json:"logs"`
	Txs  []TxHint    `json:"txs"`
}

// Log is a partially-redacted log entry. Only the address is guaranteed to
// be present; topics and data may be zeroed out by the originator.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

type TxHint struct {
	Hash             *common.Hash    `json:"hash,omitempty"`
	To               *common.Address `json:"to,omitempty"`
	FunctionSelector *hexutil.Bytes  `json:"functionSelector,omitempty"`
	CallData         *hexutil.Bytes  `json:"callData,omitempty"`
}

// Collector streams order-flow events from an SSE endpoint. The first
// connection is made when the stream is opened and a failure there is fatal;
// once open, the stream reconnects on its own and only ends with the
// context.
type Collector struct {
	log    *zap.Logger
	url    string
	client *http.Client
}

func NewCollector(log *zap.Logger, url string) *Collector {
	return &Collector{
		log: log.Named("orderflow"),
		url: url,
		// no overall timeout, the response body is a long-lived stream
		client: &http.Client{},
	}
}

func (c *Collector) Name() string { return "mev-share-sse" }

func (c *Collector) EventStream(ctx context.Context) (<-chan Event, error) {
	resp, err := c.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			c.readStream(ctx, resp, out)
			resp = nil

			back := backoff.NewExponentialBackOff()
			back.MaxInterval = 10 * time.Second
			back.MaxElapsedTime = 0 // retry until the context ends
			err := backoff.Retry(func() error {
				var err error
				resp, err = c.connect(ctx)
				return err
			}, backoff.WithContext(back, ctx))
			if err != nil {
				return
			}
			c.log.Info("Reconnected to orderflow stream")
		}
	}()
	return out, nil
}

func (c *Collector) connect(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}
	return resp, nil
}

// readStream decodes SSE frames until the connection drops or the context
// ends. Malformed frames are skipped, the stream stays up.
func (c *Collector) readStream(ctx context.Context, resp *http.Response, out chan<- Event) {
	defer func() { _ = resp.Body.Close() }()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []byte
	for scanner.Scan() {
		line := scanner.Bytes()
		switch {
		case len(line) == 0:
			// frame boundary
			if len(data) == 0 {
				continue
			}
			var event Event
			if err := json.Unmarshal(data, &event); err != nil {
				c.log.Warn("Skipping malformed orderflow frame", zap.Error(err))
			} else {
				metrics.IncOrderflowEvent()
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
			data = data[:0]
		case bytes.HasPrefix(line, []byte("data:")):
			// successive data lines of one frame are newline-joined
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, bytes.TrimSpace(line[len("data:"):])...)
		default:
			// comments (pings) and other fields are ignored
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.log.Warn("Orderflow stream dropped", zap.Error(err))
	}
}

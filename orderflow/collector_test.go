package orderflow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		flusher.Flush()
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
		// hold the stream open so the collector does not reconnect
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)
	return server
}

func collectEvents(t *testing.T, stream <-chan Event, n int) []Event {
	t.Helper()
	events := make([]Event, 0, n)
	timeout := time.After(5 * time.Second)
	for len(events) < n {
		select {
		case event := <-stream:
			events = append(events, event)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(events), n)
		}
	}
	return events
}

func TestCollectorDecodesFramesInOrder(t *testing.T) {
	server := sseServer(t, []string{
		`{"hash":"0x0000000000000000000000000000000000000000000000000000000000000001","logs":[{"address":"0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640","topics":[],"data":"0x"}]}`,
		`{"hash":"0x0000000000000000000000000000000000000000000000000000000000000002","txs":[{"to":"0x7a250d5630b4cf539739df2c5dacb4c659f2488d"}]}`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := NewCollector(zap.NewNop(), server.URL).EventStream(ctx)
	require.NoError(t, err)

	events := collectEvents(t, stream, 2)
	require.Equal(t, common.HexToHash("0x01"), events[0].Hash)
	require.Len(t, events[0].Logs, 1)
	require.Equal(t, common.HexToAddress("0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"), events[0].Logs[0].Address)

	require.Equal(t, common.HexToHash("0x02"), events[1].Hash)
	require.Len(t, events[1].Txs, 1)
	require.Equal(t, common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"), *events[1].Txs[0].To)
}

func TestCollectorSkipsMalformedFrames(t *testing.T) {
	server := sseServer(t, []string{
		`this is not json`,
		`{"hash":"0x0000000000000000000000000000000000000000000000000000000000000003"}`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := NewCollector(zap.NewNop(), server.URL).EventStream(ctx)
	require.NoError(t, err)

	events := collectEvents(t, stream, 1)
	require.Equal(t, common.HexToHash("0x03"), events[0].Hash)
}

func TestCollectorJoinsMultiLineFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"hash\":\"0x0000000000000000000000000000000000000000000000000000000000000004\",\n")
		fmt.Fprint(w, "data: \"logs\":[]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := NewCollector(zap.NewNop(), server.URL).EventStream(ctx)
	require.NoError(t, err)

	events := collectEvents(t, stream, 1)
	require.Equal(t, common.HexToHash("0x04"), events[0].Hash)
}

func TestCollectorFailsFastWhenSourceUnavailable(t *testing.T) {
	collector := NewCollector(zap.NewNop(), "http://127.0.0.1:1")
	_, err := collector.EventStream(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestCollectorFailsFastOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	_, err := NewCollector(zap.NewNop(), server.URL).EventStream(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestCollectorStreamEndsWithContext(t *testing.T) {
	server := sseServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := NewCollector(zap.NewNop(), server.URL).EventStream(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, open := <-stream:
		require.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

// Package uniarb implements the backrun strategy: watch disclosed order flow
// for swaps on known Uniswap v3 pools and race a ladder of blind arbitrage
// bundles against the paired v2 pool.
package uniarb

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/kestrel-mev/kestrel/mevshare"
	"github.com/kestrel-mev/kestrel/orderflow"
)

// Event is the closed union of event kinds the engine runs on. Exactly one
// field is set; collectors construct it through their lift functions.
type Event struct {
	OrderFlow *orderflow.Event
	NewBlock  *types.Header
}

// OrderFlowEvent lifts a native order-flow disclosure into the union.
func OrderFlowEvent(e orderflow.Event) Event {
	return Event{OrderFlow: &e}
}

// NewBlockEvent lifts a new chain head into the union.
func NewBlockEvent(h *types.Header) Event {
	return Event{NewBlock: h}
}

// Action is the closed union of side-effect requests strategies emit.
type Action struct {
	SubmitBundles []*mevshare.SendMevBundleArgs
}

// SubmitBundlesPayload projects the submit-bundles variant out of an action.
// Executors that only understand bundle submission are registered through
// this projection and silently skip every other variant.
func SubmitBundlesPayload(a Action) ([]*mevshare.SendMevBundleArgs, bool) {
	if a.SubmitBundles == nil {
		return nil, false
	}
	return a.SubmitBundles, true
}

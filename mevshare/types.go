// Package mevshare holds the MEV-share bundle wire types and a JSON-RPC
// client that authenticates every request with a searcher identity.
package mevshare

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

var ErrInvalidHintIntent = errors.New("invalid hint intent")

const SendBundleEndpointName = "mev_sendBundle"

// Protocol versions accepted by mev_sendBundle.
const (
	VersionBeta1 = "beta-1"
	VersionV01   = "v0.1"
)

// HintIntent is a set of hint intents
// its marshalled as an array of strings
type HintIntent uint8

const (
	HintCallData HintIntent = 1 << iota
	HintContractAddress
	HintLogs
	HintFunctionSelector
	HintHash
	HintTxHash
	HintNone = 0
)

func (b *HintIntent) SetHint(flag HintIntent) {
	*b = *b | flag
}

func (b *HintIntent) HasHint(flag HintIntent) bool {
	return *b&flag != 0
}

func (b HintIntent) MarshalJSON() ([]byte, error) {
	var arr []string
	if b.HasHint(HintCallData) {
		arr = append(arr, "calldata")
	}
	if b.HasHint(HintContractAddress) {
		arr = append(arr, "contract_address")
	}
	if b.HasHint(HintLogs) {
		arr = append(arr, "logs")
	}
	if b.HasHint(HintFunctionSelector) {
		arr = append(arr, "function_selector")
	}
	if b.HasHint(HintHash) {
		arr = append(arr, "hash")
	}
	if b.HasHint(HintTxHash) {
		arr = append(arr, "tx_hash")
	}
	return json.Marshal(arr)
}

func (b *HintIntent) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	for _, v := range arr {
		switch v {
		case "calldata":
			b.SetHint(HintCallData)
		case "contract_address":
			b.SetHint(HintContractAddress)
		case "logs":
			b.SetHint(HintLogs)
		case "function_selector":
			b.SetHint(HintFunctionSelector)
		case "hash":
			b.SetHint(HintHash)
		case "tx_hash":
			b.SetHint(HintTxHash)
		default:
			return ErrInvalidHintIntent
		}
	}
	return nil
}

// SendMevBundleArgs is the single positional parameter of mev_sendBundle.
type SendMevBundleArgs struct {
	Version   string             `json:"version"`
	Inclusion MevBundleInclusion `json:"inclusion"`
	Body      []MevBundleBody    `json:"body"`
	Validity  *MevBundleValidity `json:"validity,omitempty"`
	Privacy   *MevBundlePrivacy  `json:"privacy,omitempty"`
}

type MevBundleInclusion struct {
	BlockNumber hexutil.Uint64 `json:"block"`
	MaxBlock    hexutil.Uint64 `json:"maxBlock,omitempty"`
}

// MevBundleBody is one element of a bundle body: either a reference to a
// transaction already in flight (the one being backrun) or raw signed bytes.
type MevBundleBody struct {
	Hash      *common.Hash   `json:"hash,omitempty"`
	Tx        *hexutil.Bytes `json:"tx,omitempty"`
	CanRevert bool           `json:"canRevert,omitempty"`
}

type MevBundleValidity struct {
	Refund       []RefundConstraint `json:"refund,omitempty"`
	RefundConfig []RefundConfig     `json:"refundConfig,omitempty"`
}

type RefundConstraint struct {
	BodyIdx int `json:"bodyIdx"`
	Percent int `json:"percent"`
}

type RefundConfig struct {
	Address common.Address `json:"address"`
	Percent int            `json:"percent"`
}

type MevBundlePrivacy struct {
	Hints    HintIntent       `json:"hints,omitempty"`
	Builders []common.Address `json:"builders,omitempty"`
}

type SendMevBundleResponse struct {
	BundleHash common.Hash `json:"bundleHash"`
}

// BundleHash computes a stable identity for a bundle: the keccak over the
// hashes of its body elements (referenced hashes as-is, raw transactions
// hashed). Used for logging and journaling, not sent on the wire.
func BundleHash(bundle *SendMevBundleArgs) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	for _, el := range bundle.Body {
		if el.Hash != nil {
			hasher.Write(el.Hash.Bytes())
		} else if el.Tx != nil {
			txHasher := sha3.NewLegacyKeccak256()
			txHasher.Write(*el.Tx)
			hasher.Write(txHasher.Sum(nil))
		}
	}
	return common.BytesToHash(hasher.Sum(nil))
}

package uniarb

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrBadPoolHeader = errors.New("unexpected pool csv header")
	ErrBadPoolRecord = errors.New("malformed pool csv record")
)

// V2PoolInfo describes the v2 pool paired with a v3 pool of interest.
type V2PoolInfo struct {
	// Address of the v2 pool.
	V2Pool common.Address
	// Whether the pool has weth as token0.
	IsWethToken0 bool
}

// PoolTable maps a v3 pool address to its paired v2 pool. It is built once
// at strategy start and read-only afterwards, so no locking is needed.
type PoolTable map[common.Address]V2PoolInfo

// Lookup returns the paired pool info. A miss means the address is not a
// pool of interest, not an error.
func (t PoolTable) Lookup(v3Pool common.Address) (V2PoolInfo, bool) {
	info, ok := t[v3Pool]
	return info, ok
}

// LoadPoolTable reads the static pool reference dataset. The expected format
// is a csv with a `v3_pool,v2_pool,weth_token0` header.
func LoadPoolTable(path string) (PoolTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadPoolTable(f)
}

func ReadPoolTable(r io.Reader) (PoolTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, err
	}
	if len(header) != 3 || header[0] != "v3_pool" || header[1] != "v2_pool" || header[2] != "weth_token0" {
		return nil, ErrBadPoolHeader
	}

	table := make(PoolTable)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if !common.IsHexAddress(record[0]) || !common.IsHexAddress(record[1]) {
			return nil, fmt.Errorf("%w: %v", ErrBadPoolRecord, record)
		}
		wethToken0, err := strconv.ParseBool(record[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPoolRecord, record)
		}
		table[common.HexToAddress(record[0])] = V2PoolInfo{
			V2Pool:       common.HexToAddress(record[1]),
			IsWethToken0: wethToken0,
		}
	}
	return table, nil
}

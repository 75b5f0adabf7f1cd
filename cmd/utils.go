package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// FileExists checks if a file exists and is readable
func FileExists(filePath string) bool {
	file, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer file.Close()
	return true
}

// ParseSourceChains parses the text form of the source chain list.
// Entries are comma separated, fields pipe separated (rpc urls contain
// colons so ':' can't be the field separator):
//
//	"11155111|sepolia|https://rpc.sepolia.org|0xAbc...,421614|arb-sepolia|https://...|0xDef..."
func ParseSourceChains(s string) ([]SourceChainSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty source chain list")
	}

	var specs []SourceChainSpec
	seen := make(map[uint64]bool)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, "|")
		if len(fields) != 4 {
			return nil, fmt.Errorf("malformed source chain entry %q, want chainId|name|rpcUrl|lockAddr", entry)
		}

		chainId, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chain id in %q: %v", entry, err)
		}
		if seen[chainId] {
			return nil, fmt.Errorf("duplicate chain id %d", chainId)
		}
		seen[chainId] = true

		lockAddr := strings.TrimSpace(fields[3])
		if !ethcommon.IsHexAddress(lockAddr) {
			return nil, fmt.Errorf("bad lock contract address in %q", entry)
		}

		specs = append(specs, SourceChainSpec{
			ChainID:          chainId,
			Name:             strings.TrimSpace(fields[1]),
			RpcUrl:           strings.TrimSpace(fields[2]),
			LockContractAddr: lockAddr,
		})
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("no source chains configured")
	}
	return specs, nil
}

package chainpoller

import (
	"encoding/binary"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SourceChainConfig describes one monitored source chain.
// Immutable after load.
type SourceChainConfig struct {
	// ChainID is the numeric chain identifier
	ChainID uint64

	// Name is the human readable chain name, used in logs and status
	Name string

	// URL is the chain's json rpc endpoint
	URL string

	// LockContract is the custody contract emitting EthLocked events
	LockContract ethcommon.Address

	// StartBlock forces scanning from a specific block when no cursor is
	// stored yet. -1 starts from the chain head (history is not backfilled).
	StartBlock int64
}

// LockEvent is one EthLocked occurrence observed on a source chain.
type LockEvent struct {
	SourceChainID uint64
	User          ethcommon.Address
	Amount        *big.Int
	OriginChainID *big.Int // as emitted by the contract, not verified
	TxHash        ethcommon.Hash
	LogIndex      uint
	BlockNumber   uint64
}

// ID derives the event's dedup key: keccak256 over the big-endian source
// chain id, the transaction hash and the big-endian log index. A pure
// function of the event's on-chain coordinates, so the same occurrence
// hashes identically across process restarts and two distinct occurrences
// never collide.
func (ev LockEvent) ID() ethcommon.Hash {
	var buf [44]byte
	binary.BigEndian.PutUint64(buf[0:8], ev.SourceChainID)
	copy(buf[8:40], ev.TxHash[:])
	binary.BigEndian.PutUint32(buf[40:44], uint32(ev.LogIndex))
	return crypto.Keccak256Hash(buf[:])
}

package state

import (
	"math/big"

	"github.com/crosslock/relay-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// PendingEvent journals a discovered lock event until its mint confirms.
// Everything needed to rebuild the mint after a restart is here.
type PendingEvent struct {
	EventId       ethcommon.Hash
	SourceChainId uint64
	TxHash        ethcommon.Hash
	LogIndex      uint
	User          ethcommon.Address
	Amount        *big.Int
	BlockNumber   uint64
	DiscoveredAt  int64 // unix seconds, set on insert
}

type sqlPendingEvent struct {
	EventId       string
	SourceChainId uint64
	TxHash        string
	LogIndex      uint
	User          string
	Amount        string
	BlockNumber   uint64
	DiscoveredAt  int64
}

func (s *sqlPendingEvent) encode(ev *PendingEvent) *sqlPendingEvent {
	s.EventId = ev.EventId.String()[2:]
	s.SourceChainId = ev.SourceChainId
	s.TxHash = ev.TxHash.String()[2:]
	s.LogIndex = ev.LogIndex
	s.User = common.ByteSliceToPureHexStr(ev.User.Bytes())
	s.Amount = ev.Amount.Text(10)
	s.BlockNumber = ev.BlockNumber
	s.DiscoveredAt = ev.DiscoveredAt
	return s
}

func (s *sqlPendingEvent) decode() *PendingEvent {
	amount, _ := new(big.Int).SetString(s.Amount, 10)
	return &PendingEvent{
		EventId:       common.HexStrToBytes32(s.EventId),
		SourceChainId: s.SourceChainId,
		TxHash:        common.HexStrToBytes32(s.TxHash),
		LogIndex:      s.LogIndex,
		User:          ethcommon.HexToAddress(s.User),
		Amount:        amount,
		BlockNumber:   s.BlockNumber,
		DiscoveredAt:  s.DiscoveredAt,
	}
}

// ProcessedEvent records a lock event whose mint transaction has been
// confirmed successful on the destination chain.
type ProcessedEvent struct {
	EventId       ethcommon.Hash
	SourceChainId uint64
	TxHash        ethcommon.Hash
	LogIndex      uint
	MintTxHash    ethcommon.Hash
	Amount        *big.Int
	ProcessedAt   int64 // unix seconds, set on insert
}

type sqlProcessedEvent struct {
	EventId       string
	SourceChainId uint64
	TxHash        string
	LogIndex      uint
	MintTxHash    string
	Amount        string
	ProcessedAt   int64
}

func (s *sqlProcessedEvent) encode(ev *ProcessedEvent) *sqlProcessedEvent {
	s.EventId = ev.EventId.String()[2:]
	s.SourceChainId = ev.SourceChainId
	s.TxHash = ev.TxHash.String()[2:]
	s.LogIndex = ev.LogIndex
	s.MintTxHash = ev.MintTxHash.String()[2:]
	s.Amount = ev.Amount.Text(10)
	s.ProcessedAt = ev.ProcessedAt
	return s
}

func (s *sqlProcessedEvent) decode() *ProcessedEvent {
	amount, _ := new(big.Int).SetString(s.Amount, 10)
	return &ProcessedEvent{
		EventId:       common.HexStrToBytes32(s.EventId),
		SourceChainId: s.SourceChainId,
		TxHash:        common.HexStrToBytes32(s.TxHash),
		LogIndex:      s.LogIndex,
		MintTxHash:    common.HexStrToBytes32(s.MintTxHash),
		Amount:        amount,
		ProcessedAt:   s.ProcessedAt,
	}
}

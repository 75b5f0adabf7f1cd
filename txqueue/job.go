package txqueue

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Job is one destination-chain call. Jobs execute strictly in enqueue
// order; the queue owns a job until it confirms or is abandoned.
type Job struct {
	// Label identifies the job in logs, e.g. "mint 0x12ab..."
	Label string

	// To is the contract receiving the call
	To ethcommon.Address

	// Data is the packed calldata
	Data []byte

	// OnSuccess runs on the drain goroutine after the transaction receipt
	// reports success. It may enqueue a follow-up job.
	OnSuccess func(receipt *types.Receipt)

	// OnAbandon runs when the job is dropped without a confirmed success
	// (nonce conflict or retries exhausted).
	OnAbandon func()
}

package txqueue

import (
	"context"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the destination chain surface the sequencer submits through.
// *ethclient.Client satisfies it.
type Backend interface {
	PendingNonceAt(ctx context.Context, account ethcommon.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error)
}

// TxBuilder builds and signs transactions for the queue's single signer.
// *etherman.Etherman satisfies it.
type TxBuilder interface {
	SenderAddress() ethcommon.Address
	BuildSignedTx(ctx context.Context, nonce uint64, to ethcommon.Address, data []byte) (*types.Transaction, error)
}

package relayer

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/crosslock/relay-go/chainpoller"
	"github.com/crosslock/relay-go/common"
	"github.com/crosslock/relay-go/scheduler"
	"github.com/crosslock/relay-go/state"
	"github.com/crosslock/relay-go/txqueue"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"
)

// Wallet is the destination-chain surface the coordinator needs.
// *etherman.Etherman satisfies it.
type Wallet interface {
	SenderAddress() ethcommon.Address
	WrappedTokenAddress() ethcommon.Address
	RewardTokenAddress() ethcommon.Address
	MintCallData(to ethcommon.Address, amount *big.Int) ([]byte, error)
	RewardTransferData(to ethcommon.Address, amount *big.Int) ([]byte, error)
	SignerBalance(ctx context.Context) (*big.Int, error)
	RewardBalanceOf(ctx context.Context, addr ethcommon.Address) (*big.Int, error)
	WrappedTokenInfo(ctx context.Context) (string, string, uint8, error)
}

// JobQueue is the submission pipeline. *txqueue.Queue satisfies it.
type JobQueue interface {
	Enqueue(job *txqueue.Job)
	Depth() int
	Paused() bool
}

// Ledger is the durable event state: the processed set plus the journal of
// discovered-but-unminted events. *state.StateDB satisfies it.
type Ledger interface {
	HasProcessed(eventId ethcommon.Hash) (bool, error)
	MarkProcessed(ev *state.ProcessedEvent) error
	CountProcessed() (int64, error)
	ListPending() ([]*state.PendingEvent, error)
	DeletePending(eventId ethcommon.Hash) error
	CountPending() (int64, error)
}

// Coordinator turns accepted lock events into destination-chain work: a
// mint of the wrapped asset for the locked amount, chained with a reward
// transfer for a fixed percentage. Dedup is two-layered: the durable
// ledger holds confirmed mints, the in-memory inflight set holds events
// whose mint is queued but not yet confirmed.
type Coordinator struct {
	wallet Wallet
	queue  JobQueue
	ledger Ledger

	// optional, wired after construction; nil in unit tests
	health func() []scheduler.ChainHealth

	mu       sync.Mutex
	inflight map[ethcommon.Hash]struct{}
}

func New(wallet Wallet, queue JobQueue, ledger Ledger) *Coordinator {
	return &Coordinator{
		wallet:   wallet,
		queue:    queue,
		ledger:   ledger,
		inflight: make(map[ethcommon.Hash]struct{}),
	}
}

// SetHealthSource wires the scheduler's health snapshot into the status
// view. Called once during server wiring.
func (c *Coordinator) SetHealthSource(fn func() []scheduler.ChainHealth) {
	c.health = fn
}

// LogTokenInfo logs the wrapped token's metadata. Diagnostics only.
func (c *Coordinator) LogTokenInfo(ctx context.Context) {
	name, symbol, decimals, err := c.wallet.WrappedTokenInfo(ctx)
	if err != nil {
		logger.Warnf("failed to read wrapped token metadata: %v", err)
		return
	}
	logger.WithFields(logger.Fields{
		"name":     name,
		"symbol":   symbol,
		"decimals": decimals,
		"contract": c.wallet.WrappedTokenAddress().Hex(),
	}).Info("wrapped token")
}

// ReplayPending re-enqueues journaled events whose mint never confirmed.
// Called once at startup: the scan cursors have moved past these events, so
// the journal is the only place they still exist.
func (c *Coordinator) ReplayPending() error {
	rows, err := c.ledger.ListPending()
	if err != nil {
		return err
	}

	replayed := 0
	for _, row := range rows {
		done, err := c.ledger.HasProcessed(row.EventId)
		if err != nil {
			return err
		}
		if done {
			// crashed between mark-processed and journal cleanup
			if err := c.ledger.DeletePending(row.EventId); err != nil {
				logger.WithField("event", row.EventId.Hex()).Warnf(
					"failed to clear journaled event: %v", err)
			}
			continue
		}

		c.HandleLockEvent(chainpoller.LockEvent{
			SourceChainID: row.SourceChainId,
			User:          row.User,
			Amount:        row.Amount,
			TxHash:        row.TxHash,
			LogIndex:      row.LogIndex,
			BlockNumber:   row.BlockNumber,
		})
		replayed++
	}

	if replayed > 0 {
		logger.WithField("events", replayed).Info("replayed journaled events")
	}
	return nil
}

// HandleLockEvent filters one discovered lock event and, if new, enqueues
// its mint job. Safe for concurrent calls from parallel chain polls.
func (c *Coordinator) HandleLockEvent(ev chainpoller.LockEvent) {
	id := ev.ID()
	evLogger := logger.WithFields(logger.Fields{
		"chain":  ev.SourceChainID,
		"event":  common.Shorten(id.Hex(), 8),
		"lockTx": common.Shorten(ev.TxHash.Hex(), 8),
	})

	c.mu.Lock()
	if _, busy := c.inflight[id]; busy {
		c.mu.Unlock()
		evLogger.Debug("event already in flight, skipping")
		return
	}
	c.inflight[id] = struct{}{}
	c.mu.Unlock()

	done, err := c.ledger.HasProcessed(id)
	if err != nil {
		c.clearInflight(id)
		evLogger.Errorf("dedup lookup failed: %v", err)
		return
	}
	if done {
		c.clearInflight(id)
		evLogger.Debug("event already processed, skipping")
		return
	}

	// 1:1, no fee, no decimal rescaling: source and destination assets are
	// assumed to share decimals.
	amount := common.BigIntClone(ev.Amount)
	mintData, err := c.wallet.MintCallData(ev.User, amount)
	if err != nil {
		c.clearInflight(id)
		evLogger.Errorf("failed to pack mint call: %v", err)
		return
	}

	c.queue.Enqueue(&txqueue.Job{
		Label: fmt.Sprintf("mint %s", common.Shorten(id.Hex(), 8)),
		To:    c.wallet.WrappedTokenAddress(),
		Data:  mintData,
		OnSuccess: func(receipt *types.Receipt) {
			c.onMintConfirmed(id, ev, receipt)
		},
		OnAbandon: func() {
			c.clearInflight(id)
		},
	})

	evLogger.WithFields(logger.Fields{
		"user":   ev.User.Hex(),
		"amount": amount,
	}).Info("mint job enqueued")
}

// onMintConfirmed runs on the sequencer goroutine once the mint receipt
// reports success: commit the event to the ledger, then chain the reward.
func (c *Coordinator) onMintConfirmed(
	id ethcommon.Hash,
	ev chainpoller.LockEvent,
	receipt *types.Receipt,
) {
	err := c.ledger.MarkProcessed(&state.ProcessedEvent{
		EventId:       id,
		SourceChainId: ev.SourceChainID,
		TxHash:        ev.TxHash,
		LogIndex:      ev.LogIndex,
		MintTxHash:    receipt.TxHash,
		Amount:        common.BigIntClone(ev.Amount),
		ProcessedAt:   time.Now().Unix(),
	})
	if err != nil {
		// the mint is on chain but the ledger write failed; after a crash
		// this event could mint again, so be loud about it
		logger.WithField("event", id.Hex()).Errorf("failed to mark event processed: %v", err)
	} else if err := c.ledger.DeletePending(id); err != nil {
		// harmless: startup replay skips processed ids and retries the delete
		logger.WithField("event", id.Hex()).Warnf("failed to clear journaled event: %v", err)
	}
	c.clearInflight(id)

	reward := RewardAmount(ev.Amount)
	if reward.Sign() <= 0 {
		return
	}

	rewardData, err := c.wallet.RewardTransferData(ev.User, reward)
	if err != nil {
		logger.WithField("event", id.Hex()).Errorf("failed to pack reward call: %v", err)
		return
	}

	c.queue.Enqueue(&txqueue.Job{
		Label: fmt.Sprintf("reward %s", common.Shorten(id.Hex(), 8)),
		To:    c.wallet.RewardTokenAddress(),
		Data:  rewardData,
		OnSuccess: func(r *types.Receipt) {
			logger.WithFields(logger.Fields{
				"event":  common.Shorten(id.Hex(), 8),
				"user":   ev.User.Hex(),
				"reward": reward,
				"tx":     r.TxHash.Hex(),
			}).Info("reward paid")
		},
	})
}

func (c *Coordinator) clearInflight(id ethcommon.Hash) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

// InflightCount reports events whose mint is queued but unconfirmed.
func (c *Coordinator) InflightCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

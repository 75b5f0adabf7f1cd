package chainpoller

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/crosslock/relay-go/state"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	logger "github.com/sirupsen/logrus"
)

// ChainReader is the slice of the rpc surface a poller needs.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Store persists the last scanned block height per chain and journals
// discovered events until their mint confirms. *state.StateDB satisfies it.
type Store interface {
	GetCursor(chainId uint64) (uint64, bool, error)
	SetCursor(chainId uint64, height uint64) error
	AddPending(ev *state.PendingEvent) error
}

// Poller watches one source chain's lock contract. It owns that chain's
// cursor: discovered events are journaled first and the cursor only advances
// after that succeeds, so no event is ever left behind the cursor without a
// durable record.
type Poller struct {
	cfg     SourceChainConfig
	client  ChainReader
	store   Store
	lockABI abi.ABI

	// last scanned height; read concurrently by the status surface
	cursor atomic.Uint64
}

// New connects to the chain and initializes the cursor: the stored value if
// one exists, cfg.StartBlock if forced, the current chain head otherwise.
func New(ctx context.Context, cfg SourceChainConfig, store Store) (*Poller, error) {
	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Name, err)
	}
	return NewWithClient(ctx, cfg, client, store)
}

// NewWithClient binds to an already connected client. Used by tests.
func NewWithClient(
	ctx context.Context,
	cfg SourceChainConfig,
	client ChainReader,
	store Store,
) (*Poller, error) {
	lockABI, err := abi.JSON(strings.NewReader(LockContractABI))
	if err != nil {
		return nil, err
	}

	p := &Poller{
		cfg:     cfg,
		client:  client,
		store:   store,
		lockABI: lockABI,
	}

	start, ok, err := store.GetCursor(cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("load cursor for %s: %w", cfg.Name, err)
	}
	if !ok {
		if cfg.StartBlock >= 0 {
			start = uint64(cfg.StartBlock)
		} else {
			start, err = client.BlockNumber(ctx)
			if err != nil {
				return nil, fmt.Errorf("get head of %s: %w", cfg.Name, err)
			}
		}
		if err := store.SetCursor(cfg.ChainID, start); err != nil {
			return nil, fmt.Errorf("store cursor for %s: %w", cfg.Name, err)
		}
		logger.WithFields(logger.Fields{
			"chain":  cfg.Name,
			"cursor": start,
		}).Info("initialized scan cursor")
	}
	p.cursor.Store(start)

	return p, nil
}

func (p *Poller) Name() string {
	return p.cfg.Name
}

func (p *Poller) ChainID() uint64 {
	return p.cfg.ChainID
}

// Cursor returns the last scanned block height.
func (p *Poller) Cursor() uint64 {
	return p.cursor.Load()
}

// PollOnce scans (cursor, head] for EthLocked events and advances the
// cursor to head. Any error leaves the cursor untouched; the same range
// (extended by new blocks) is retried next round. Returned events are in
// emission order: ascending block, then log index.
func (p *Poller) PollOnce(ctx context.Context) ([]LockEvent, error) {
	head, err := p.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get head of %s: %w", p.cfg.Name, err)
	}

	cursor := p.cursor.Load()
	if head <= cursor {
		return nil, nil
	}

	logs, err := p.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(cursor + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []ethcommon.Address{p.cfg.LockContract},
		Topics:    [][]ethcommon.Hash{{EthLockedSignatureHash}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs of %s: %w", p.cfg.Name, err)
	}

	events := make([]LockEvent, 0, len(logs))
	for _, vlog := range logs {
		if vlog.Removed {
			continue
		}
		ev, err := p.decodeLocked(vlog)
		if err != nil {
			return nil, fmt.Errorf("decode lock event of %s: %w", p.cfg.Name, err)
		}
		events = append(events, ev)
	}

	// FilterLogs returns logs ordered already; keep the invariant explicit.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	// Journal before the cursor moves past the range: once the cursor is at
	// head these blocks are never rescanned, so an unjournaled event would
	// be lost by a crash before its mint confirms.
	for _, ev := range events {
		if err := p.store.AddPending(pendingRow(ev)); err != nil {
			return nil, fmt.Errorf("journal event of %s: %w", p.cfg.Name, err)
		}
	}

	if err := p.store.SetCursor(p.cfg.ChainID, head); err != nil {
		return nil, fmt.Errorf("store cursor for %s: %w", p.cfg.Name, err)
	}
	p.cursor.Store(head)

	if len(events) > 0 {
		logger.WithFields(logger.Fields{
			"chain":  p.cfg.Name,
			"from":   cursor + 1,
			"to":     head,
			"events": len(events),
		}).Info("lock events discovered")
	}

	return events, nil
}

func pendingRow(ev LockEvent) *state.PendingEvent {
	return &state.PendingEvent{
		EventId:       ev.ID(),
		SourceChainId: ev.SourceChainID,
		TxHash:        ev.TxHash,
		LogIndex:      ev.LogIndex,
		User:          ev.User,
		Amount:        ev.Amount,
		BlockNumber:   ev.BlockNumber,
	}
}

func (p *Poller) decodeLocked(vlog types.Log) (LockEvent, error) {
	if len(vlog.Topics) < 2 {
		return LockEvent{}, fmt.Errorf("unexpected topics: %v", vlog.Topics)
	}

	var data struct {
		Amount        *big.Int
		OriginChainId *big.Int
	}
	if err := p.lockABI.UnpackIntoInterface(&data, "EthLocked", vlog.Data); err != nil {
		return LockEvent{}, err
	}

	ev := LockEvent{
		SourceChainID: p.cfg.ChainID,
		User:          ethcommon.BytesToAddress(vlog.Topics[1].Bytes()),
		Amount:        data.Amount,
		OriginChainID: data.OriginChainId,
		TxHash:        vlog.TxHash,
		LogIndex:      vlog.Index,
		BlockNumber:   vlog.BlockNumber,
	}

	// The contract echoes its own chain id; it should match the configured
	// one but nothing enforces that on-chain.
	if ev.OriginChainID != nil && ev.OriginChainID.Cmp(new(big.Int).SetUint64(p.cfg.ChainID)) != 0 {
		logger.WithFields(logger.Fields{
			"chain":         p.cfg.Name,
			"originChainId": ev.OriginChainID,
			"tx":            vlog.TxHash.Hex(),
		}).Warn("originChainId does not match the configured source chain id")
	}

	return ev, nil
}

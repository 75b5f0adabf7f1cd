package chainpoller

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/crosslock/relay-go/common"
	"github.com/crosslock/relay-go/state"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
)

// fakeChain serves a fixed head and a canned log set.
type fakeChain struct {
	head      uint64
	headErr   error
	logs      []types.Log
	filterErr error

	lastQuery *ethereum.FilterQuery
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeChain) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.lastQuery = &q
	if f.filterErr != nil {
		return nil, f.filterErr
	}

	var out []types.Log
	for _, l := range f.logs {
		if l.BlockNumber >= q.FromBlock.Uint64() && l.BlockNumber <= q.ToBlock.Uint64() {
			out = append(out, l)
		}
	}
	return out, nil
}

// memStore is an in-memory Store.
type memStore struct {
	mu      sync.Mutex
	heights map[uint64]uint64
	pending []*state.PendingEvent
	setErr  error
	addErr  error
}

func newMemStore() *memStore {
	return &memStore{heights: make(map[uint64]uint64)}
}

func (m *memStore) GetCursor(chainId uint64) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.heights[chainId]
	return h, ok, nil
}

func (m *memStore) SetCursor(chainId uint64, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	if height > m.heights[chainId] {
		m.heights[chainId] = height
	}
	return nil
}

func (m *memStore) AddPending(ev *state.PendingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	for _, p := range m.pending {
		if p.EventId == ev.EventId {
			return nil
		}
	}
	m.pending = append(m.pending, ev)
	return nil
}

func (m *memStore) pendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

var testLockContract = ethcommon.HexToAddress("0x00000000000000000000000000000000000000cc")

func testConfig() SourceChainConfig {
	return SourceChainConfig{
		ChainID:      11155111,
		Name:         "sepolia",
		URL:          "unused",
		LockContract: testLockContract,
		StartBlock:   -1,
	}
}

// lockedLog builds an EthLocked log the way the contract emits it: the user
// in topic 1, amount and originChainId abi-packed in the data.
func lockedLog(user ethcommon.Address, amount *big.Int, originChainId uint64, block uint64, logIndex uint) types.Log {
	data := append(
		ethcommon.LeftPadBytes(amount.Bytes(), 32),
		ethcommon.LeftPadBytes(new(big.Int).SetUint64(originChainId).Bytes(), 32)...,
	)
	return types.Log{
		Address: testLockContract,
		Topics: []ethcommon.Hash{
			EthLockedSignatureHash,
			ethcommon.BytesToHash(user.Bytes()),
		},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.RandBytes32(),
		Index:       logIndex,
	}
}

func TestCursorStartsAtStoredValue(t *testing.T) {
	cursors := newMemStore()
	cursors.SetCursor(11155111, 500)

	p, err := NewWithClient(context.Background(), testConfig(), &fakeChain{head: 900}, cursors)
	assert.NoError(t, err)
	assert.Equal(t, uint64(500), p.Cursor())
}

func TestCursorStartsAtHeadWhenUnstored(t *testing.T) {
	cursors := newMemStore()

	p, err := NewWithClient(context.Background(), testConfig(), &fakeChain{head: 900}, cursors)
	assert.NoError(t, err)
	assert.Equal(t, uint64(900), p.Cursor())

	// and the initial cursor is persisted
	h, ok, err := cursors.GetCursor(11155111)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(900), h)
}

func TestCursorStartsAtConfiguredBlock(t *testing.T) {
	cfg := testConfig()
	cfg.StartBlock = 1234

	p, err := NewWithClient(context.Background(), cfg, &fakeChain{head: 9000}, newMemStore())
	assert.NoError(t, err)
	assert.Equal(t, uint64(1234), p.Cursor())
}

func TestPollOnceDiscoversEvents(t *testing.T) {
	user := common.RandEthAddress()
	chain := &fakeChain{
		head: 110,
		logs: []types.Log{
			lockedLog(user, big.NewInt(1000000), 11155111, 105, 2),
			lockedLog(user, big.NewInt(5), 11155111, 108, 0),
		},
	}
	cursors := newMemStore()
	cursors.SetCursor(11155111, 100)

	p, err := NewWithClient(context.Background(), testConfig(), chain, cursors)
	assert.NoError(t, err)

	events, err := p.PollOnce(context.Background())
	assert.NoError(t, err)
	assert.Len(t, events, 2)

	assert.Equal(t, uint64(11155111), events[0].SourceChainID)
	assert.Equal(t, user, events[0].User)
	assert.Equal(t, 0, big.NewInt(1000000).Cmp(events[0].Amount))
	assert.Equal(t, uint64(105), events[0].BlockNumber)
	assert.Equal(t, uint(2), events[0].LogIndex)
	assert.Equal(t, uint64(108), events[1].BlockNumber)

	// the scanned range was (cursor, head]
	assert.Equal(t, uint64(101), chain.lastQuery.FromBlock.Uint64())
	assert.Equal(t, uint64(110), chain.lastQuery.ToBlock.Uint64())

	// cursor advanced in memory and in the store
	assert.Equal(t, uint64(110), p.Cursor())
	h, _, _ := cursors.GetCursor(11155111)
	assert.Equal(t, uint64(110), h)
}

func TestPollOnceNoNewBlocks(t *testing.T) {
	chain := &fakeChain{head: 100}
	cursors := newMemStore()
	cursors.SetCursor(11155111, 100)

	p, err := NewWithClient(context.Background(), testConfig(), chain, cursors)
	assert.NoError(t, err)

	events, err := p.PollOnce(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, events)
	assert.Nil(t, chain.lastQuery) // no log query at all
	assert.Equal(t, uint64(100), p.Cursor())
}

func TestPollOnceKeepsCursorOnError(t *testing.T) {
	chain := &fakeChain{head: 200, filterErr: errors.New("rpc timeout")}
	cursors := newMemStore()
	cursors.SetCursor(11155111, 100)

	p, err := NewWithClient(context.Background(), testConfig(), chain, cursors)
	assert.NoError(t, err)

	_, err = p.PollOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint64(100), p.Cursor())

	// the failed range is rescanned next round
	chain.filterErr = nil
	chain.logs = []types.Log{lockedLog(common.RandEthAddress(), big.NewInt(7), 11155111, 150, 0)}

	events, err := p.PollOnce(context.Background())
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, uint64(200), p.Cursor())
}

func TestPollOnceSkipsRemovedLogs(t *testing.T) {
	reorged := lockedLog(common.RandEthAddress(), big.NewInt(9), 11155111, 105, 0)
	reorged.Removed = true

	chain := &fakeChain{head: 110, logs: []types.Log{reorged}}
	cursors := newMemStore()
	cursors.SetCursor(11155111, 100)

	p, err := NewWithClient(context.Background(), testConfig(), chain, cursors)
	assert.NoError(t, err)

	events, err := p.PollOnce(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, uint64(110), p.Cursor())
}

func TestPollOnceOrdersEvents(t *testing.T) {
	user := common.RandEthAddress()
	chain := &fakeChain{
		head: 120,
		logs: []types.Log{
			lockedLog(user, big.NewInt(3), 11155111, 110, 4),
			lockedLog(user, big.NewInt(1), 11155111, 105, 1),
			lockedLog(user, big.NewInt(2), 11155111, 105, 3),
		},
	}
	cursors := newMemStore()
	cursors.SetCursor(11155111, 100)

	p, err := NewWithClient(context.Background(), testConfig(), chain, cursors)
	assert.NoError(t, err)

	events, err := p.PollOnce(context.Background())
	assert.NoError(t, err)
	assert.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].Amount.Int64())
	assert.Equal(t, int64(2), events[1].Amount.Int64())
	assert.Equal(t, int64(3), events[2].Amount.Int64())
}

func TestPollOnceJournalsEventsBeforeCursor(t *testing.T) {
	user := common.RandEthAddress()
	chain := &fakeChain{
		head: 110,
		logs: []types.Log{lockedLog(user, big.NewInt(1000000), 11155111, 105, 2)},
	}
	store := newMemStore()
	store.SetCursor(11155111, 100)

	p, err := NewWithClient(context.Background(), testConfig(), chain, store)
	assert.NoError(t, err)

	events, err := p.PollOnce(context.Background())
	assert.NoError(t, err)
	assert.Len(t, events, 1)

	// the journal row carries everything needed to rebuild the mint
	assert.Equal(t, 1, store.pendingCount())
	row := store.pending[0]
	assert.Equal(t, events[0].ID(), row.EventId)
	assert.Equal(t, uint64(11155111), row.SourceChainId)
	assert.Equal(t, user, row.User)
	assert.Equal(t, 0, big.NewInt(1000000).Cmp(row.Amount))
	assert.Equal(t, events[0].TxHash, row.TxHash)
	assert.Equal(t, uint(2), row.LogIndex)
	assert.Equal(t, uint64(105), row.BlockNumber)
}

func TestPollOnceKeepsCursorOnJournalError(t *testing.T) {
	chain := &fakeChain{
		head: 110,
		logs: []types.Log{lockedLog(common.RandEthAddress(), big.NewInt(5), 11155111, 105, 0)},
	}
	store := newMemStore()
	store.SetCursor(11155111, 100)
	store.addErr = errors.New("db closed")

	p, err := NewWithClient(context.Background(), testConfig(), chain, store)
	assert.NoError(t, err)

	// a failed journal write must not let the cursor skip past the event
	_, err = p.PollOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, uint64(100), p.Cursor())
	h, _, _ := store.GetCursor(11155111)
	assert.Equal(t, uint64(100), h)
}

func TestEventIDDeterministic(t *testing.T) {
	ev := LockEvent{
		SourceChainID: 11155111,
		User:          common.RandEthAddress(),
		Amount:        big.NewInt(100),
		TxHash:        common.RandBytes32(),
		LogIndex:      1,
	}
	assert.Equal(t, ev.ID(), ev.ID())

	// a copy with the same coordinates hashes identically; the amount is
	// not part of the identity
	copied := ev
	copied.Amount = big.NewInt(999)
	assert.Equal(t, ev.ID(), copied.ID())
}

func TestEventIDDistinct(t *testing.T) {
	base := LockEvent{
		SourceChainID: 11155111,
		TxHash:        common.RandBytes32(),
		LogIndex:      1,
	}

	otherChain := base
	otherChain.SourceChainID = 1
	assert.NotEqual(t, base.ID(), otherChain.ID())

	otherTx := base
	otherTx.TxHash = common.RandBytes32()
	assert.NotEqual(t, base.ID(), otherTx.ID())

	otherLog := base
	otherLog.LogIndex = 2
	assert.NotEqual(t, base.ID(), otherLog.ID())
}

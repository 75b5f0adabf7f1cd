package state

import (
	"database/sql"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/crosslock/relay-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func randFile() string {
	return "./" + ethcommon.Hash(common.RandBytes32()).String() + ".db"
}

func newStateDB(t *testing.T) (*StateDB, func()) {
	file := randFile()
	db, err := sql.Open("sqlite3", file)
	assert.NoError(t, err)

	stateDB, err := NewStateDB(db)
	assert.NoError(t, err)

	close := func() {
		stateDB.Close()
		db.Close()
		os.Remove(file)
	}

	return stateDB, close
}

func randProcessedEvent() *ProcessedEvent {
	return &ProcessedEvent{
		EventId:       common.RandBytes32(),
		SourceChainId: 11155111,
		TxHash:        common.RandBytes32(),
		LogIndex:      3,
		MintTxHash:    common.RandBytes32(),
		Amount:        common.RandBigInt(16),
	}
}

func TestCursorRoundTrip(t *testing.T) {
	stateDB, close := newStateDB(t)
	defer close()

	// never scanned
	_, ok, err := stateDB.GetCursor(1)
	assert.NoError(t, err)
	assert.False(t, ok)

	err = stateDB.SetCursor(1, 100)
	assert.NoError(t, err)

	height, ok, err := stateDB.GetCursor(1)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), height)

	// advance
	err = stateDB.SetCursor(1, 150)
	assert.NoError(t, err)

	height, _, err = stateDB.GetCursor(1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(150), height)

	// chains don't share cursors
	_, ok, err = stateDB.GetCursor(2)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCursorNeverMovesBackwards(t *testing.T) {
	stateDB, close := newStateDB(t)
	defer close()

	err := stateDB.SetCursor(1, 200)
	assert.NoError(t, err)

	// lower height is a silent no-op
	err = stateDB.SetCursor(1, 50)
	assert.NoError(t, err)

	height, _, err := stateDB.GetCursor(1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(200), height)
}

func TestCursorSurvivesReopen(t *testing.T) {
	file := randFile()
	defer os.Remove(file)

	db, err := sql.Open("sqlite3", file)
	assert.NoError(t, err)
	stateDB, err := NewStateDB(db)
	assert.NoError(t, err)

	err = stateDB.SetCursor(7, 4242)
	assert.NoError(t, err)
	stateDB.Close()
	db.Close()

	db, err = sql.Open("sqlite3", file)
	assert.NoError(t, err)
	defer db.Close()
	stateDB, err = NewStateDB(db)
	assert.NoError(t, err)
	defer stateDB.Close()

	height, ok, err := stateDB.GetCursor(7)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(4242), height)
}

func randPendingEvent(block uint64, logIndex uint) *PendingEvent {
	return &PendingEvent{
		EventId:       common.RandBytes32(),
		SourceChainId: 11155111,
		TxHash:        common.RandBytes32(),
		LogIndex:      logIndex,
		User:          common.RandEthAddress(),
		Amount:        common.RandBigInt(16),
		BlockNumber:   block,
	}
}

func TestPendingJournalRoundTrip(t *testing.T) {
	stateDB, close := newStateDB(t)
	defer close()

	ev := randPendingEvent(105, 2)
	err := stateDB.AddPending(ev)
	assert.NoError(t, err)

	rows, err := stateDB.ListPending()
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, ev.EventId, rows[0].EventId)
	assert.Equal(t, ev.SourceChainId, rows[0].SourceChainId)
	assert.Equal(t, ev.TxHash, rows[0].TxHash)
	assert.Equal(t, ev.LogIndex, rows[0].LogIndex)
	assert.Equal(t, ev.User, rows[0].User)
	assert.Equal(t, 0, ev.Amount.Cmp(rows[0].Amount))
	assert.Equal(t, ev.BlockNumber, rows[0].BlockNumber)
	assert.LessOrEqual(t, rows[0].DiscoveredAt, time.Now().Unix())

	count, err := stateDB.CountPending()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// re-adding the same event is a no-op
	err = stateDB.AddPending(ev)
	assert.NoError(t, err)
	count, err = stateDB.CountPending()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)

	err = stateDB.DeletePending(ev.EventId)
	assert.NoError(t, err)
	rows, err = stateDB.ListPending()
	assert.NoError(t, err)
	assert.Empty(t, rows)
}

func TestListPendingOrdersByDiscovery(t *testing.T) {
	stateDB, close := newStateDB(t)
	defer close()

	later := randPendingEvent(200, 0)
	earlier := randPendingEvent(100, 3)
	sameBlock := randPendingEvent(100, 7)

	assert.NoError(t, stateDB.AddPending(later))
	assert.NoError(t, stateDB.AddPending(sameBlock))
	assert.NoError(t, stateDB.AddPending(earlier))

	rows, err := stateDB.ListPending()
	assert.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, earlier.EventId, rows[0].EventId)
	assert.Equal(t, sameBlock.EventId, rows[1].EventId)
	assert.Equal(t, later.EventId, rows[2].EventId)
}

func TestPendingSurvivesReopen(t *testing.T) {
	file := randFile()
	defer os.Remove(file)

	db, err := sql.Open("sqlite3", file)
	assert.NoError(t, err)
	stateDB, err := NewStateDB(db)
	assert.NoError(t, err)

	ev := randPendingEvent(105, 2)
	assert.NoError(t, stateDB.AddPending(ev))
	stateDB.Close()
	db.Close()

	// a crashed process finds its unminted events again
	db, err = sql.Open("sqlite3", file)
	assert.NoError(t, err)
	defer db.Close()
	stateDB, err = NewStateDB(db)
	assert.NoError(t, err)
	defer stateDB.Close()

	rows, err := stateDB.ListPending()
	assert.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, ev.EventId, rows[0].EventId)
	assert.Equal(t, ev.User, rows[0].User)
	assert.Equal(t, 0, ev.Amount.Cmp(rows[0].Amount))
}

func TestMarkProcessed(t *testing.T) {
	stateDB, close := newStateDB(t)
	defer close()

	ev := randProcessedEvent()

	ok, err := stateDB.HasProcessed(ev.EventId)
	assert.NoError(t, err)
	assert.False(t, ok)

	err = stateDB.MarkProcessed(ev)
	assert.NoError(t, err)

	ok, err = stateDB.HasProcessed(ev.EventId)
	assert.NoError(t, err)
	assert.True(t, ok)

	chk, found, err := stateDB.GetProcessed(ev.EventId)
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ev.EventId, chk.EventId)
	assert.Equal(t, ev.SourceChainId, chk.SourceChainId)
	assert.Equal(t, ev.TxHash, chk.TxHash)
	assert.Equal(t, ev.LogIndex, chk.LogIndex)
	assert.Equal(t, ev.MintTxHash, chk.MintTxHash)
	assert.Equal(t, 0, ev.Amount.Cmp(chk.Amount))
	assert.LessOrEqual(t, chk.ProcessedAt, time.Now().Unix())
}

func TestMarkProcessedTwiceIsNoop(t *testing.T) {
	stateDB, close := newStateDB(t)
	defer close()

	ev := randProcessedEvent()
	err := stateDB.MarkProcessed(ev)
	assert.NoError(t, err)

	// a re-insert with a different mint tx must not overwrite the record
	dup := *ev
	dup.MintTxHash = common.RandBytes32()
	err = stateDB.MarkProcessed(&dup)
	assert.NoError(t, err)

	chk, _, err := stateDB.GetProcessed(ev.EventId)
	assert.NoError(t, err)
	assert.Equal(t, ev.MintTxHash, chk.MintTxHash)

	count, err := stateDB.CountProcessed()
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestLargeAmountRoundTrip(t *testing.T) {
	stateDB, close := newStateDB(t)
	defer close()

	// larger than uint256, still fits the decimal column
	amount, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)

	ev := randProcessedEvent()
	ev.Amount = amount
	err := stateDB.MarkProcessed(ev)
	assert.NoError(t, err)

	chk, _, err := stateDB.GetProcessed(ev.EventId)
	assert.NoError(t, err)
	assert.Equal(t, 0, amount.Cmp(chk.Amount))
}

func TestCountProcessed(t *testing.T) {
	stateDB, close := newStateDB(t)
	defer close()

	count, err := stateDB.CountProcessed()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count)

	for i := 0; i < 3; i++ {
		err = stateDB.MarkProcessed(randProcessedEvent())
		assert.NoError(t, err)
	}

	count, err = stateDB.CountProcessed()
	assert.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

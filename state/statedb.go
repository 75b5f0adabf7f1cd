package state

import (
	"database/sql"
	"time"

	"github.com/crosslock/relay-go/database"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// StateDB persists the per-chain scan cursors and the processed-event
// ledger. Both survive process restarts; losing either silently skips or
// double-processes lock events.
type StateDB struct {
	stmtCache *database.StmtCache
}

func NewStateDB(db *sql.DB) (*StateDB, error) {
	if _, err := db.Exec(cursorTable + pendingEventTable + processedEventTable); err != nil {
		return nil, err
	}

	return &StateDB{
		stmtCache: database.NewStmtCache(db),
	}, nil
}

func (st *StateDB) Close() {
	st.stmtCache.Clear()
}

// GetCursor returns the last scanned block height for the chain.
// The second return value is false when the chain has never been scanned.
func (st *StateDB) GetCursor(chainId uint64) (uint64, bool, error) {
	query := `SELECT lastScanned FROM cursor WHERE chainId = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return 0, false, err
	}

	var height uint64
	if err := stmt.QueryRow(chainId).Scan(&height); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, err
	}

	return height, true, nil
}

// SetCursor stores the last scanned block height for the chain.
// A stored cursor never moves backwards; a lower height is a no-op.
func (st *StateDB) SetCursor(chainId uint64, height uint64) error {
	query := `INSERT INTO cursor (chainId, lastScanned) VALUES (?, ?)
		ON CONFLICT(chainId) DO UPDATE SET lastScanned = excluded.lastScanned
		WHERE excluded.lastScanned > cursor.lastScanned`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(chainId, height); err != nil {
		return err
	}

	return nil
}

// AddPending journals a discovered event. Re-adding an already journaled
// eventId is a no-op.
func (st *StateDB) AddPending(ev *PendingEvent) error {
	query := `INSERT OR IGNORE INTO pendingEvent
		(eventId, sourceChainId, txHash, logIndex, user, amount, blockNumber, discoveredAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	if ev.DiscoveredAt == 0 {
		ev.DiscoveredAt = time.Now().Unix()
	}

	sqlEv := &sqlPendingEvent{}
	sqlEv.encode(ev)

	if _, err := stmt.Exec(
		sqlEv.EventId,
		sqlEv.SourceChainId,
		sqlEv.TxHash,
		sqlEv.LogIndex,
		sqlEv.User,
		sqlEv.Amount,
		sqlEv.BlockNumber,
		sqlEv.DiscoveredAt,
	); err != nil {
		return err
	}

	return nil
}

// DeletePending removes a journaled event once its mint is in the ledger.
func (st *StateDB) DeletePending(eventId ethcommon.Hash) error {
	query := `DELETE FROM pendingEvent WHERE eventId = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	if _, err := stmt.Exec(eventId.String()[2:]); err != nil {
		return err
	}

	return nil
}

// ListPending returns all journaled events in discovery order.
func (st *StateDB) ListPending() ([]*PendingEvent, error) {
	query := `SELECT * FROM pendingEvent ORDER BY sourceChainId, blockNumber, logIndex`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, err
	}

	rows, err := stmt.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*PendingEvent
	for rows.Next() {
		var sqlEv sqlPendingEvent
		if err := rows.Scan(
			&sqlEv.EventId,
			&sqlEv.SourceChainId,
			&sqlEv.TxHash,
			&sqlEv.LogIndex,
			&sqlEv.User,
			&sqlEv.Amount,
			&sqlEv.BlockNumber,
			&sqlEv.DiscoveredAt,
		); err != nil {
			return nil, err
		}
		events = append(events, sqlEv.decode())
	}

	return events, rows.Err()
}

func (st *StateDB) CountPending() (int64, error) {
	query := `SELECT COUNT(*) FROM pendingEvent`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := stmt.QueryRow().Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

func (st *StateDB) HasProcessed(eventId ethcommon.Hash) (bool, error) {
	query := `SELECT COUNT(*) FROM processedEvent WHERE eventId = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return false, err
	}

	var count int
	if err := stmt.QueryRow(eventId.String()[2:]).Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

// MarkProcessed inserts the event into the ledger. Inserting an already
// present eventId is a no-op.
func (st *StateDB) MarkProcessed(ev *ProcessedEvent) error {
	query := `INSERT OR IGNORE INTO processedEvent
		(eventId, sourceChainId, txHash, logIndex, mintTxHash, amount, processedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return err
	}

	if ev.ProcessedAt == 0 {
		ev.ProcessedAt = time.Now().Unix()
	}

	sqlEv := &sqlProcessedEvent{}
	sqlEv.encode(ev)

	if _, err := stmt.Exec(
		sqlEv.EventId,
		sqlEv.SourceChainId,
		sqlEv.TxHash,
		sqlEv.LogIndex,
		sqlEv.MintTxHash,
		sqlEv.Amount,
		sqlEv.ProcessedAt,
	); err != nil {
		return err
	}

	return nil
}

func (st *StateDB) GetProcessed(eventId ethcommon.Hash) (*ProcessedEvent, bool, error) {
	query := `SELECT * FROM processedEvent WHERE eventId = ?`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return nil, false, err
	}

	var sqlEv sqlProcessedEvent
	if err := stmt.QueryRow(eventId.String()[2:]).Scan(
		&sqlEv.EventId,
		&sqlEv.SourceChainId,
		&sqlEv.TxHash,
		&sqlEv.LogIndex,
		&sqlEv.MintTxHash,
		&sqlEv.Amount,
		&sqlEv.ProcessedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}

	return sqlEv.decode(), true, nil
}

func (st *StateDB) CountProcessed() (int64, error) {
	query := `SELECT COUNT(*) FROM processedEvent`
	stmt, err := st.stmtCache.Prepare(query)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := stmt.QueryRow().Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

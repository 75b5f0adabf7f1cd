package state

import "strings"

var (
	strZeroBytes32 = strings.Repeat("0", 64)

	// last scanned block height per source chain
	cursorTable = `CREATE TABLE IF NOT EXISTS cursor (
		chainId BIGINT UNSIGNED PRIMARY KEY NOT NULL,
		lastScanned BIGINT UNSIGNED NOT NULL
	);`

	// discovered lock events whose mint has not confirmed yet. Rows are
	// written before the scan cursor moves past them and deleted once the
	// mint is in the processedEvent ledger, so a crash in between can
	// always be replayed.
	pendingEventTable = `CREATE TABLE IF NOT EXISTS pendingEvent (
		eventId CHAR(64) PRIMARY KEY NOT NULL,
		sourceChainId BIGINT UNSIGNED NOT NULL,
		txHash CHAR(64) NOT NULL,
		logIndex INTEGER NOT NULL,
		user CHAR(40) NOT NULL,
		amount VARCHAR(78) NOT NULL,
		blockNumber BIGINT UNSIGNED NOT NULL,
		discoveredAt BIGINT NOT NULL,
		CONSTRAINT chk_pending_eventId CHECK (eventId != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_pending_txHash CHECK (txHash != '` + strZeroBytes32 + `')
	);`

	// lock events whose mint has confirmed on the destination chain.
	// eventId is the dedup key; the remaining columns are an audit trail.
	processedEventTable = `CREATE TABLE IF NOT EXISTS processedEvent (
		eventId CHAR(64) PRIMARY KEY NOT NULL,
		sourceChainId BIGINT UNSIGNED NOT NULL,
		txHash CHAR(64) NOT NULL,
		logIndex INTEGER NOT NULL,
		mintTxHash CHAR(64) NOT NULL,
		amount VARCHAR(78) NOT NULL,
		processedAt BIGINT NOT NULL,
		CONSTRAINT chk_eventId CHECK (eventId != '` + strZeroBytes32 + `'),
		CONSTRAINT chk_txHash CHECK (txHash != '` + strZeroBytes32 + `')
	);`
)

package db

import (
	"context"
)

// UpsertEventParams mirrors one row of indexed_event.
type UpsertEventParams struct {
	ID              string
	ContractAddress string
	EventType       string
	BlockNumber     int64
	TransactionHash string
	LogIndex        int64
	Timestamp       int64
	DecodedData     string
	DecodedFields   string
	RawKeys         string
	RawData         string
}

const upsertEventQuery = `
INSERT INTO indexed_event (
	id, contract_address, event_type, block_number, transaction_hash,
	log_index, timestamp, decoded_data, decoded_fields, raw_keys, raw_data
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

// UpsertEvent inserts one event row; an existing row with the same id wins
// (idempotent re-ingestion of the same log).
func (q *Queries) UpsertEvent(ctx context.Context, p UpsertEventParams) error {
	_, err := q.db.ExecContext(ctx, upsertEventQuery,
		p.ID, p.ContractAddress, p.EventType, p.BlockNumber, p.TransactionHash,
		p.LogIndex, p.Timestamp, p.DecodedData, p.DecodedFields, p.RawKeys, p.RawData)
	return err
}

const insertEventKeyQuery = `
INSERT INTO indexed_event_key (event_id, key) VALUES (?, ?)
ON CONFLICT (event_id, key) DO NOTHING`

// InsertEventKey records one raw key belonging to an event, for the
// event_keys filter's substring-free exact-match lookup.
func (q *Queries) InsertEventKey(ctx context.Context, eventID, key string) error {
	_, err := q.db.ExecContext(ctx, insertEventKeyQuery, eventID, key)
	return err
}

const advanceCursorQuery = `
INSERT INTO sync_cursor (contract_address, last_synced_block, updated_at)
VALUES (?, ?, strftime('%s', 'now'))
ON CONFLICT (contract_address) DO UPDATE SET
	last_synced_block = MAX(last_synced_block, excluded.last_synced_block),
	updated_at = strftime('%s', 'now')`

// AdvanceCursor sets last_synced_block = max(existing, toBlock) and stamps
// updated_at with the current time.
func (q *Queries) AdvanceCursor(ctx context.Context, contractAddress string, toBlock int64) error {
	_, err := q.db.ExecContext(ctx, advanceCursorQuery, contractAddress, toBlock)
	return err
}

const getCursorQuery = `SELECT last_synced_block, updated_at FROM sync_cursor WHERE contract_address = ?`

// GetCursor returns the last synced block and its last-updated time for
// contractAddress, or sql.ErrNoRows if the contract has never advanced a
// cursor.
func (q *Queries) GetCursor(ctx context.Context, contractAddress string) (int64, int64, error) {
	var block, updatedAt int64
	err := q.db.QueryRowContext(ctx, getCursorQuery, contractAddress).Scan(&block, &updatedAt)
	if err != nil {
		return 0, 0, err
	}
	return block, updatedAt, nil
}

const listCursorsQuery = `SELECT contract_address, last_synced_block, updated_at FROM sync_cursor`

// CursorRow is one row of sync_cursor.
type CursorRow struct {
	ContractAddress string
	LastSyncedBlock int64
	UpdatedAt       int64
}

// ListCursors returns every contract's current cursor, for sync_status.
func (q *Queries) ListCursors(ctx context.Context) ([]CursorRow, error) {
	rows, err := q.db.QueryContext(ctx, listCursorsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CursorRow
	for rows.Next() {
		var r CursorRow
		if err := rows.Scan(&r.ContractAddress, &r.LastSyncedBlock, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

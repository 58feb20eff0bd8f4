// Package eventstore is the durable event log (component C5): it persists
// decoded events and per-contract sync cursors in one SQLite database and
// answers the relay-style paginated queries the query API exposes.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver registration
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/textileio/starknet-indexer/internal/addr"
	"github.com/textileio/starknet-indexer/internal/domain"
	"github.com/textileio/starknet-indexer/internal/eventstore/db"
	"github.com/textileio/starknet-indexer/internal/eventstore/migrations"
	"github.com/textileio/starknet-indexer/pkg/apierrors"
	"github.com/textileio/starknet-indexer/pkg/metrics"
)

// Store is the event store's public surface: the sync engine writes through
// it, the query API reads through it.
type Store struct {
	log     zerolog.Logger
	db      *sql.DB
	queries *db.Queries
}

var _ EventStore = (*Store)(nil)

// New opens (and migrates) the SQLite database at dbURI and returns a ready
// Store. dbURI is a database/sql data source name, e.g. "file:events.db".
func New(dbURI string, log zerolog.Logger) (*Store, error) {
	attrs := append([]attribute.KeyValue{
		attribute.String("name", "eventstore"),
	}, metrics.BaseAttrs...)

	dbc, err := otelsql.Open("sqlite3", dbURI, otelsql.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %w", err)
	}
	if err := otelsql.RegisterDBStatsMetrics(dbc, otelsql.WithAttributes(attrs...)); err != nil {
		return nil, fmt.Errorf("registering dbstats: %w", err)
	}

	s := &Store{
		log:     log.With().Str("component", "eventstore").Logger(),
		db:      dbc,
		queries: db.New(dbc),
	}

	if err := s.migrate(dbURI); err != nil {
		return nil, fmt.Errorf("initializing db connection: %w", err)
	}

	return s, nil
}

func (s *Store) migrate(dbURI string) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	target, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("creating migration target: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", target)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}
	defer func() {
		if _, err := m.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing db migration")
		}
	}()

	version, dirty, err := m.Version()
	s.log.Info().Uint("dbVersion", version).Bool("dirty", dirty).Err(err).Msg("database migration executed")

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migration up: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	return nil
}

// UpsertEvents persists events and advances contractAddress's cursor to
// toBlock in one transaction: a reader that observes the cursor at toBlock
// is guaranteed to also observe every event up to and including that block.
func (s *Store) UpsertEvents(ctx context.Context, contractAddress addr.Address, events []domain.IndexedEvent, toBlock uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apierrors.Wrap(apierrors.PersistenceFailure, "beginning transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := s.queries.WithTx(tx)
	for _, evt := range events {
		row, err := toRow(evt)
		if err != nil {
			return apierrors.Wrap(apierrors.PersistenceFailure, "encoding event", err)
		}
		if err := q.UpsertEvent(ctx, row); err != nil {
			return apierrors.Wrap(apierrors.PersistenceFailure, "upserting event", err)
		}
		for _, key := range evt.RawKeys {
			if err := q.InsertEventKey(ctx, evt.ID, key); err != nil {
				return apierrors.Wrap(apierrors.PersistenceFailure, "indexing event key", err)
			}
		}
	}
	if err := q.AdvanceCursor(ctx, string(contractAddress), int64(toBlock)); err != nil {
		return apierrors.Wrap(apierrors.PersistenceFailure, "advancing cursor", err)
	}

	if err := tx.Commit(); err != nil {
		return apierrors.Wrap(apierrors.PersistenceFailure, "committing transaction", err)
	}
	return nil
}

// Cursor returns contractAddress's last synced block, and false if it has
// never synced.
func (s *Store) Cursor(ctx context.Context, contractAddress addr.Address) (uint64, bool, error) {
	v, _, err := s.queries.GetCursor(ctx, string(contractAddress))
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apierrors.Wrap(apierrors.PersistenceFailure, "reading cursor", err)
	}
	return uint64(v), true, nil
}

// SyncStatus returns every contract's current cursor, for sync_status.
func (s *Store) SyncStatus(ctx context.Context) ([]ContractSyncStatus, error) {
	rows, err := s.queries.ListCursors(ctx)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.PersistenceFailure, "listing cursors", err)
	}
	out := make([]ContractSyncStatus, len(rows))
	for i, r := range rows {
		out[i] = ContractSyncStatus{
			ContractAddress: addr.Address(r.ContractAddress),
			LastSyncedBlock: uint64(r.LastSyncedBlock),
			UpdatedAt:       time.Unix(r.UpdatedAt, 0).UTC(),
		}
	}
	return out, nil
}

func toRow(evt domain.IndexedEvent) (db.UpsertEventParams, error) {
	decodedData, err := json.Marshal(evt.DecodedData)
	if err != nil {
		return db.UpsertEventParams{}, err
	}
	decodedFields, err := json.Marshal(evt.DecodedFields)
	if err != nil {
		return db.UpsertEventParams{}, err
	}
	rawKeys, err := json.Marshal(evt.RawKeys)
	if err != nil {
		return db.UpsertEventParams{}, err
	}
	rawData, err := json.Marshal(evt.RawData)
	if err != nil {
		return db.UpsertEventParams{}, err
	}
	return db.UpsertEventParams{
		ID:              evt.ID,
		ContractAddress: string(evt.ContractAddress),
		EventType:       evt.EventType,
		BlockNumber:     int64(evt.BlockNumber),
		TransactionHash: evt.TransactionHash,
		LogIndex:        int64(evt.LogIndex),
		Timestamp:       evt.Timestamp.Unix(),
		DecodedData:     string(decodedData),
		DecodedFields:   string(decodedFields),
		RawKeys:         string(rawKeys),
		RawData:         string(rawData),
	}, nil
}

func fromRow(r rawEventRow) (domain.IndexedEvent, error) {
	var decodedData map[string]interface{}
	if err := json.Unmarshal([]byte(r.DecodedData), &decodedData); err != nil {
		return domain.IndexedEvent{}, err
	}
	var decodedFields []string
	if err := json.Unmarshal([]byte(r.DecodedFields), &decodedFields); err != nil {
		return domain.IndexedEvent{}, err
	}
	var rawKeys []string
	if err := json.Unmarshal([]byte(r.RawKeys), &rawKeys); err != nil {
		return domain.IndexedEvent{}, err
	}
	var rawData []string
	if err := json.Unmarshal([]byte(r.RawData), &rawData); err != nil {
		return domain.IndexedEvent{}, err
	}
	return domain.IndexedEvent{
		ID:              r.ID,
		ContractAddress: addr.Address(r.ContractAddress),
		EventType:       r.EventType,
		BlockNumber:     uint64(r.BlockNumber),
		TransactionHash: r.TransactionHash,
		LogIndex:        uint32(r.LogIndex),
		Timestamp:       time.Unix(r.Timestamp, 0).UTC(),
		DecodedData:     decodedData,
		DecodedFields:   decodedFields,
		RawKeys:         rawKeys,
		RawData:         rawData,
	}, nil
}

// rawEventRow mirrors indexed_event's columns as scanned directly by Query,
// which needs the raw row shape (and id) before fromRow's JSON decode.
type rawEventRow struct {
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

// orderColumn and orderAscending resolve an Order into its SQL column and
// sort direction. Ties always break by id ascending.
func orderColumn(o Order) (column string, ascending bool) {
	switch o {
	case BlockNumberAsc:
		return "block_number", true
	case TimestampAsc:
		return "timestamp", true
	case TimestampDesc:
		return "timestamp", false
	case BlockNumberDesc, "":
		return "block_number", false
	default:
		return "block_number", false
	}
}

// Query runs a filtered, paginated read over indexed_event.
func (s *Store) Query(ctx context.Context, filter Filter, pagination Pagination, order Order) (Connection, error) {
	pageSize := pagination.First
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	column, ascending := orderColumn(order)

	where, args := buildWhere(filter)

	if pagination.After != "" {
		cur, err := decodeCursor(pagination.After)
		if err != nil {
			return Connection{}, apierrors.Wrap(apierrors.InvalidInput, "invalid pagination cursor", err)
		}
		cmp := ">"
		if !ascending {
			cmp = "<"
		}
		where = append(where, fmt.Sprintf(
			"(indexed_event.%s %s ? OR (indexed_event.%s = ? AND indexed_event.id > ?))",
			column, cmp, column))
		args = append(args, cur.primary, cur.primary, cur.id)
	}

	total, err := s.countMatching(ctx, filter)
	if err != nil {
		return Connection{}, err
	}

	dir := "ASC"
	if !ascending {
		dir = "DESC"
	}
	query := fmt.Sprintf(`
SELECT DISTINCT indexed_event.id, indexed_event.contract_address, indexed_event.event_type,
	indexed_event.block_number, indexed_event.transaction_hash, indexed_event.log_index,
	indexed_event.timestamp, indexed_event.decoded_data, indexed_event.decoded_fields,
	indexed_event.raw_keys, indexed_event.raw_data
FROM indexed_event
%s
ORDER BY indexed_event.%s %s, indexed_event.id ASC
LIMIT ?`, whereClause(where), column, dir)
	args = append(args, pageSize+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Connection{}, apierrors.Wrap(apierrors.PersistenceFailure, "querying events", err)
	}
	defer rows.Close()

	var raws []rawEventRow
	for rows.Next() {
		var r rawEventRow
		if err := rows.Scan(&r.ID, &r.ContractAddress, &r.EventType, &r.BlockNumber, &r.TransactionHash,
			&r.LogIndex, &r.Timestamp, &r.DecodedData, &r.DecodedFields, &r.RawKeys, &r.RawData); err != nil {
			return Connection{}, apierrors.Wrap(apierrors.PersistenceFailure, "scanning event row", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return Connection{}, apierrors.Wrap(apierrors.PersistenceFailure, "iterating event rows", err)
	}

	hasNext := len(raws) > pageSize
	if hasNext {
		raws = raws[:pageSize]
	}

	edges := make([]Edge, len(raws))
	for i, r := range raws {
		evt, err := fromRow(r)
		if err != nil {
			return Connection{}, apierrors.Wrap(apierrors.PersistenceFailure, "decoding event row", err)
		}
		primary := evt.BlockNumber
		var primaryVal int64
		if column == "timestamp" {
			primaryVal = evt.Timestamp.Unix()
		} else {
			primaryVal = int64(primary)
		}
		edges[i] = Edge{Node: evt, Cursor: encodeCursor(primaryVal, evt.ID)}
	}

	var pageInfo PageInfo
	pageInfo.HasNext = hasNext
	pageInfo.HasPrevious = pagination.After != ""
	if len(edges) > 0 {
		pageInfo.StartCursor = edges[0].Cursor
		pageInfo.EndCursor = edges[len(edges)-1].Cursor
	}

	return Connection{Edges: edges, PageInfo: pageInfo, TotalCount: total}, nil
}

func (s *Store) countMatching(ctx context.Context, filter Filter) (int64, error) {
	where, args := buildWhere(filter)
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT indexed_event.id) FROM indexed_event %s`, whereClause(where))
	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, apierrors.Wrap(apierrors.PersistenceFailure, "counting events", err)
	}
	return total, nil
}

// EventStats summarizes the events matching filter.
func (s *Store) EventStats(ctx context.Context, filter Filter) (Stats, error) {
	where, args := buildWhere(filter)
	clause := whereClause(where)

	var stats Stats
	var firstBlock, lastBlock, firstTimestamp, lastTimestamp sql.NullInt64
	countQuery := fmt.Sprintf(`
SELECT COUNT(DISTINCT indexed_event.id), MIN(indexed_event.block_number), MAX(indexed_event.block_number),
	MIN(indexed_event.timestamp), MAX(indexed_event.timestamp)
FROM indexed_event %s`, clause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(
		&stats.EventCount, &firstBlock, &lastBlock, &firstTimestamp, &lastTimestamp); err != nil {
		return Stats{}, apierrors.Wrap(apierrors.PersistenceFailure, "computing event stats", err)
	}
	if firstBlock.Valid {
		v := uint64(firstBlock.Int64)
		stats.FirstBlock = &v
	}
	if lastBlock.Valid {
		v := uint64(lastBlock.Int64)
		stats.LastBlock = &v
	}
	if firstTimestamp.Valid {
		v := time.Unix(firstTimestamp.Int64, 0).UTC()
		stats.FirstTimestamp = &v
	}
	if lastTimestamp.Valid {
		v := time.Unix(lastTimestamp.Int64, 0).UTC()
		stats.LastTimestamp = &v
	}

	typeQuery := fmt.Sprintf(`
SELECT indexed_event.event_type, COUNT(DISTINCT indexed_event.id)
FROM indexed_event %s
GROUP BY indexed_event.event_type`, clause)
	rows, err := s.db.QueryContext(ctx, typeQuery, args...)
	if err != nil {
		return Stats{}, apierrors.Wrap(apierrors.PersistenceFailure, "computing event type stats", err)
	}
	defer rows.Close()

	stats.EventTypeCounts = make(map[string]int64)
	for rows.Next() {
		var eventType string
		var count int64
		if err := rows.Scan(&eventType, &count); err != nil {
			return Stats{}, apierrors.Wrap(apierrors.PersistenceFailure, "scanning event type stats", err)
		}
		stats.EventTypeCounts[eventType] = count
	}
	return stats, rows.Err()
}

// buildWhere translates filter into SQL predicate fragments and their bind
// args. The event_keys predicate joins indexed_event_key rather than
// scanning raw_keys, since raw_keys is an opaque JSON blob.
func buildWhere(filter Filter) ([]string, []interface{}) {
	var clauses []string
	var args []interface{}

	if len(filter.ContractAddresses) > 0 {
		clauses = append(clauses, "indexed_event.contract_address IN ("+placeholders(len(filter.ContractAddresses))+")")
		for _, a := range filter.ContractAddresses {
			args = append(args, string(a))
		}
	}
	if len(filter.EventTypes) > 0 {
		clauses = append(clauses, "indexed_event.event_type IN ("+placeholders(len(filter.EventTypes))+")")
		for _, t := range filter.EventTypes {
			args = append(args, t)
		}
	}
	if len(filter.EventKeys) > 0 {
		clauses = append(clauses, `indexed_event.id IN (
	SELECT event_id FROM indexed_event_key WHERE key IN (`+placeholders(len(filter.EventKeys))+`)
)`)
		for _, k := range filter.EventKeys {
			args = append(args, k)
		}
	}
	if filter.FromBlock != nil {
		clauses = append(clauses, "indexed_event.block_number >= ?")
		args = append(args, int64(*filter.FromBlock))
	}
	if filter.ToBlock != nil {
		clauses = append(clauses, "indexed_event.block_number <= ?")
		args = append(args, int64(*filter.ToBlock))
	}
	if filter.FromTimestamp != nil {
		clauses = append(clauses, "indexed_event.timestamp >= ?")
		args = append(args, filter.FromTimestamp.Unix())
	}
	if filter.ToTimestamp != nil {
		clauses = append(clauses, "indexed_event.timestamp <= ?")
		args = append(args, filter.ToTimestamp.Unix())
	}
	if filter.TransactionHash != "" {
		clauses = append(clauses, "indexed_event.transaction_hash = ?")
		args = append(args, filter.TransactionHash)
	}

	return clauses, args
}

func whereClause(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

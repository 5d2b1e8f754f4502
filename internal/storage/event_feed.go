package storage

import (
	"context"
	"encoding/json"

	lerrors "github.com/messari/subgraphs-sub014/internal/errors"
	"github.com/messari/subgraphs-sub014/internal/types"
)

// EventFeed reads decoded events from the raw_events table the decoding
// pipeline appends to, in (block, log index) order.
type EventFeed struct {
	db *PostgresDB
}

// NewEventFeed creates a Postgres-backed event feed
func NewEventFeed(db *PostgresDB) *EventFeed {
	return &EventFeed{db: db}
}

// Next returns up to limit events strictly after the given position
func (f *EventFeed) Next(ctx context.Context, after types.EventContext, limit int) ([]*types.Event, error) {
	rows, err := f.db.Pool().Query(ctx,
		`SELECT data FROM raw_events
		 WHERE (block_number, log_index) > ($1, $2)
		 ORDER BY block_number, log_index
		 LIMIT $3`,
		after.BlockNumber, after.LogIndex, limit,
	)
	if err != nil {
		return nil, lerrors.NewStorageError("poll raw_events", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, lerrors.NewStorageError("scan raw_events", err)
		}
		var ev types.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, lerrors.NewInvariantError("CORRUPT_EVENT", "stored event failed to decode", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, lerrors.NewStorageError("iterate raw_events", err)
	}
	return events, nil
}

// Package storage provides the entity store the ledger core writes through:
// an in-memory implementation for tests and replay, a Postgres-backed
// implementation where one unit of work maps to one transaction, and a
// ClickHouse archive for closed snapshot rows.
package storage

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/tokens"
)

// EntityKind identifies a stored entity type
type EntityKind string

const (
	KindProtocol           EntityKind = "protocol"
	KindMarket             EntityKind = "market"
	KindToken              EntityKind = "token"
	KindReserve            EntityKind = "reserve"
	KindAccount            EntityKind = "account"
	KindPosition           EntityKind = "position"
	KindMarketSnapshot     EntityKind = "market_snapshot"
	KindFinancialsSnapshot EntityKind = "financials_snapshot"
	KindUsageSnapshot      EntityKind = "usage_snapshot"
	KindActivityMarker     EntityKind = "activity_marker"
	KindCursor             EntityKind = "cursor"
)

// Cursor records how far the ingestion worker has applied the event stream.
// Persisted inside the same unit of work as the event's entity writes so an
// event is either fully applied or not at all.
type Cursor struct {
	BlockNumber uint64    `json:"blockNumber"`
	LogIndex    uint      `json:"logIndex"`
	RunID       string    `json:"runId"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store opens units of work. All entity reads and writes for one event go
// through a single unit of work; committing it applies the event atomically.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
	Close()
}

// UnitOfWork is the atomic load/upsert surface for one event. Loads return
// (entity, found, error); a missing entity is not an error.
type UnitOfWork interface {
	Protocol(ctx context.Context, id string) (*models.Protocol, bool, error)
	PutProtocol(ctx context.Context, p *models.Protocol) error

	Market(ctx context.Context, id common.Address) (*models.Market, bool, error)
	PutMarket(ctx context.Context, m *models.Market) error

	// Token metadata is persisted so the in-process registry can be warmed
	// on restart without replaying listing events.
	Token(ctx context.Context, token common.Address) (*tokens.Metadata, bool, error)
	PutToken(ctx context.Context, md *tokens.Metadata) error
	Tokens(ctx context.Context) ([]*tokens.Metadata, error)

	Reserve(ctx context.Context, market common.Address) (*models.Reserve, bool, error)
	PutReserve(ctx context.Context, r *models.Reserve) error

	Account(ctx context.Context, id common.Address) (*models.Account, bool, error)
	PutAccount(ctx context.Context, a *models.Account) error

	Position(ctx context.Context, id string) (*models.Position, bool, error)
	PutPosition(ctx context.Context, p *models.Position) error

	MarketSnapshot(ctx context.Context, id string) (*models.MarketSnapshot, bool, error)
	PutMarketSnapshot(ctx context.Context, s *models.MarketSnapshot) error

	FinancialsSnapshot(ctx context.Context, id string) (*models.FinancialsSnapshot, bool, error)
	PutFinancialsSnapshot(ctx context.Context, s *models.FinancialsSnapshot) error

	UsageSnapshot(ctx context.Context, id string) (*models.UsageSnapshot, bool, error)
	PutUsageSnapshot(ctx context.Context, s *models.UsageSnapshot) error

	HasActivityMarker(ctx context.Context, id string) (bool, error)
	PutActivityMarker(ctx context.Context, id string) error

	Cursor(ctx context.Context) (*Cursor, bool, error)
	PutCursor(ctx context.Context, c *Cursor) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

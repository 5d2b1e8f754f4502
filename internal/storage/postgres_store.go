package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	lerrors "github.com/messari/subgraphs-sub014/internal/errors"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/tokens"
)

// cursorID is the well-known id of the singleton ingestion cursor row.
const cursorID = "ingestion"

// PostgresStore implements Store over a single ledger_entities table keyed
// by (kind, id) with a JSONB document per entity. One unit of work is one
// pgx transaction, so every entity write for one event commits atomically.
type PostgresStore struct {
	db *PostgresDB
}

// NewPostgresStore creates a Postgres-backed entity store
func NewPostgresStore(db *PostgresDB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Begin opens a transaction-scoped unit of work
func (s *PostgresStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return nil, lerrors.NewStorageError("begin", err)
	}
	return &pgUOW{tx: tx}, nil
}

// Close closes the underlying pool
func (s *PostgresStore) Close() {
	s.db.Close()
}

type pgUOW struct {
	tx pgx.Tx
}

func (u *pgUOW) load(ctx context.Context, kind EntityKind, id string, dest interface{}) (bool, error) {
	var data []byte
	err := u.tx.QueryRow(ctx,
		`SELECT data FROM ledger_entities WHERE kind = $1 AND id = $2`,
		string(kind), id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, lerrors.NewStorageError("load "+string(kind), err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, lerrors.NewInvariantError("CORRUPT_ENTITY", "stored entity failed to decode", err).
			WithDetail("kind", string(kind)).
			WithDetail("id", id)
	}
	return true, nil
}

func (u *pgUOW) upsert(ctx context.Context, kind EntityKind, id string, entity interface{}) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return lerrors.NewInvariantError("ENCODE_ENTITY", "entity failed to encode", err).
			WithDetail("kind", string(kind)).
			WithDetail("id", id)
	}
	_, err = u.tx.Exec(ctx,
		`INSERT INTO ledger_entities (kind, id, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (kind, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		string(kind), id, data,
	)
	if err != nil {
		return lerrors.NewStorageError("upsert "+string(kind), err)
	}
	return nil
}

func (u *pgUOW) Protocol(ctx context.Context, id string) (*models.Protocol, bool, error) {
	var p models.Protocol
	found, err := u.load(ctx, KindProtocol, id, &p)
	if !found || err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (u *pgUOW) PutProtocol(ctx context.Context, p *models.Protocol) error {
	return u.upsert(ctx, KindProtocol, p.ID, p)
}

func (u *pgUOW) Market(ctx context.Context, id common.Address) (*models.Market, bool, error) {
	var m models.Market
	found, err := u.load(ctx, KindMarket, id.Hex(), &m)
	if !found || err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

func (u *pgUOW) PutMarket(ctx context.Context, m *models.Market) error {
	return u.upsert(ctx, KindMarket, m.ID.Hex(), m)
}

func (u *pgUOW) Token(ctx context.Context, token common.Address) (*tokens.Metadata, bool, error) {
	var md tokens.Metadata
	found, err := u.load(ctx, KindToken, token.Hex(), &md)
	if !found || err != nil {
		return nil, false, err
	}
	return &md, true, nil
}

func (u *pgUOW) PutToken(ctx context.Context, md *tokens.Metadata) error {
	return u.upsert(ctx, KindToken, md.Address.Hex(), md)
}

func (u *pgUOW) Tokens(ctx context.Context) ([]*tokens.Metadata, error) {
	rows, err := u.tx.Query(ctx,
		`SELECT data FROM ledger_entities WHERE kind = $1`, string(KindToken))
	if err != nil {
		return nil, lerrors.NewStorageError("list tokens", err)
	}
	defer rows.Close()

	var out []*tokens.Metadata
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, lerrors.NewStorageError("scan token", err)
		}
		var md tokens.Metadata
		if err := json.Unmarshal(data, &md); err != nil {
			return nil, lerrors.NewInvariantError("CORRUPT_ENTITY", "stored token failed to decode", err).
				WithDetail("kind", string(KindToken))
		}
		out = append(out, &md)
	}
	if err := rows.Err(); err != nil {
		return nil, lerrors.NewStorageError("list tokens", err)
	}
	return out, nil
}

func (u *pgUOW) Reserve(ctx context.Context, market common.Address) (*models.Reserve, bool, error) {
	var r models.Reserve
	found, err := u.load(ctx, KindReserve, market.Hex(), &r)
	if !found || err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (u *pgUOW) PutReserve(ctx context.Context, r *models.Reserve) error {
	return u.upsert(ctx, KindReserve, r.Market.Hex(), r)
}

func (u *pgUOW) Account(ctx context.Context, id common.Address) (*models.Account, bool, error) {
	var a models.Account
	found, err := u.load(ctx, KindAccount, id.Hex(), &a)
	if !found || err != nil {
		return nil, false, err
	}
	return &a, true, nil
}

func (u *pgUOW) PutAccount(ctx context.Context, a *models.Account) error {
	return u.upsert(ctx, KindAccount, a.ID.Hex(), a)
}

func (u *pgUOW) Position(ctx context.Context, id string) (*models.Position, bool, error) {
	var p models.Position
	found, err := u.load(ctx, KindPosition, id, &p)
	if !found || err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (u *pgUOW) PutPosition(ctx context.Context, p *models.Position) error {
	return u.upsert(ctx, KindPosition, p.ID, p)
}

func (u *pgUOW) MarketSnapshot(ctx context.Context, id string) (*models.MarketSnapshot, bool, error) {
	var s models.MarketSnapshot
	found, err := u.load(ctx, KindMarketSnapshot, id, &s)
	if !found || err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (u *pgUOW) PutMarketSnapshot(ctx context.Context, s *models.MarketSnapshot) error {
	return u.upsert(ctx, KindMarketSnapshot, s.ID, s)
}

func (u *pgUOW) FinancialsSnapshot(ctx context.Context, id string) (*models.FinancialsSnapshot, bool, error) {
	var s models.FinancialsSnapshot
	found, err := u.load(ctx, KindFinancialsSnapshot, id, &s)
	if !found || err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (u *pgUOW) PutFinancialsSnapshot(ctx context.Context, s *models.FinancialsSnapshot) error {
	return u.upsert(ctx, KindFinancialsSnapshot, s.ID, s)
}

func (u *pgUOW) UsageSnapshot(ctx context.Context, id string) (*models.UsageSnapshot, bool, error) {
	var s models.UsageSnapshot
	found, err := u.load(ctx, KindUsageSnapshot, id, &s)
	if !found || err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (u *pgUOW) PutUsageSnapshot(ctx context.Context, s *models.UsageSnapshot) error {
	return u.upsert(ctx, KindUsageSnapshot, s.ID, s)
}

func (u *pgUOW) HasActivityMarker(ctx context.Context, id string) (bool, error) {
	var marker models.ActivityMarker
	return u.load(ctx, KindActivityMarker, id, &marker)
}

func (u *pgUOW) PutActivityMarker(ctx context.Context, id string) error {
	return u.upsert(ctx, KindActivityMarker, id, &models.ActivityMarker{ID: id})
}

func (u *pgUOW) Cursor(ctx context.Context) (*Cursor, bool, error) {
	var c Cursor
	found, err := u.load(ctx, KindCursor, cursorID, &c)
	if !found || err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

func (u *pgUOW) PutCursor(ctx context.Context, c *Cursor) error {
	return u.upsert(ctx, KindCursor, cursorID, c)
}

func (u *pgUOW) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return lerrors.NewStorageError("commit", err)
	}
	return nil
}

func (u *pgUOW) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return lerrors.NewStorageError("rollback", err)
	}
	return nil
}

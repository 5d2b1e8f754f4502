package storage

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/tokens"
)

// MemoryStore is an in-memory entity store used by tests and offline replay.
// A unit of work stages writes in an overlay and merges it on Commit, so a
// rolled-back event leaves no trace, matching the Postgres store's
// transactional behavior.
type MemoryStore struct {
	mu sync.Mutex

	protocols           map[string]*models.Protocol
	markets             map[common.Address]*models.Market
	tokens              map[common.Address]*tokens.Metadata
	reserves            map[common.Address]*models.Reserve
	accounts            map[common.Address]*models.Account
	positions           map[string]*models.Position
	marketSnapshots     map[string]*models.MarketSnapshot
	financialsSnapshots map[string]*models.FinancialsSnapshot
	usageSnapshots      map[string]*models.UsageSnapshot
	activityMarkers     map[string]bool
	cursor              *Cursor
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		protocols:           make(map[string]*models.Protocol),
		markets:             make(map[common.Address]*models.Market),
		tokens:              make(map[common.Address]*tokens.Metadata),
		reserves:            make(map[common.Address]*models.Reserve),
		accounts:            make(map[common.Address]*models.Account),
		positions:           make(map[string]*models.Position),
		marketSnapshots:     make(map[string]*models.MarketSnapshot),
		financialsSnapshots: make(map[string]*models.FinancialsSnapshot),
		usageSnapshots:      make(map[string]*models.UsageSnapshot),
		activityMarkers:     make(map[string]bool),
	}
}

// Begin opens a staged unit of work over the store
func (s *MemoryStore) Begin(ctx context.Context) (UnitOfWork, error) {
	return &memoryUOW{
		store:               s,
		protocols:           make(map[string]*models.Protocol),
		markets:             make(map[common.Address]*models.Market),
		tokens:              make(map[common.Address]*tokens.Metadata),
		reserves:            make(map[common.Address]*models.Reserve),
		accounts:            make(map[common.Address]*models.Account),
		positions:           make(map[string]*models.Position),
		marketSnapshots:     make(map[string]*models.MarketSnapshot),
		financialsSnapshots: make(map[string]*models.FinancialsSnapshot),
		usageSnapshots:      make(map[string]*models.UsageSnapshot),
		activityMarkers:     make(map[string]bool),
	}, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() {}

// memoryUOW stages writes until Commit. Reads prefer staged writes, then the
// base store; loaded entities are deep-copied so callers mutate freely.
type memoryUOW struct {
	store *MemoryStore
	done  bool

	protocols           map[string]*models.Protocol
	markets             map[common.Address]*models.Market
	tokens              map[common.Address]*tokens.Metadata
	reserves            map[common.Address]*models.Reserve
	accounts            map[common.Address]*models.Account
	positions           map[string]*models.Position
	marketSnapshots     map[string]*models.MarketSnapshot
	financialsSnapshots map[string]*models.FinancialsSnapshot
	usageSnapshots      map[string]*models.UsageSnapshot
	activityMarkers     map[string]bool
	cursor              *Cursor
}

func (u *memoryUOW) Protocol(ctx context.Context, id string) (*models.Protocol, bool, error) {
	if p, ok := u.protocols[id]; ok {
		return p.Clone(), true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if p, ok := u.store.protocols[id]; ok {
		return p.Clone(), true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutProtocol(ctx context.Context, p *models.Protocol) error {
	u.protocols[p.ID] = p.Clone()
	return nil
}

func (u *memoryUOW) Market(ctx context.Context, id common.Address) (*models.Market, bool, error) {
	if m, ok := u.markets[id]; ok {
		return m.Clone(), true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if m, ok := u.store.markets[id]; ok {
		return m.Clone(), true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutMarket(ctx context.Context, m *models.Market) error {
	u.markets[m.ID] = m.Clone()
	return nil
}

func (u *memoryUOW) Token(ctx context.Context, token common.Address) (*tokens.Metadata, bool, error) {
	if md, ok := u.tokens[token]; ok {
		cp := *md
		return &cp, true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if md, ok := u.store.tokens[token]; ok {
		cp := *md
		return &cp, true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutToken(ctx context.Context, md *tokens.Metadata) error {
	cp := *md
	u.tokens[md.Address] = &cp
	return nil
}

func (u *memoryUOW) Tokens(ctx context.Context) ([]*tokens.Metadata, error) {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	out := make([]*tokens.Metadata, 0, len(u.store.tokens)+len(u.tokens))
	for addr, md := range u.store.tokens {
		if _, staged := u.tokens[addr]; staged {
			continue
		}
		cp := *md
		out = append(out, &cp)
	}
	for _, md := range u.tokens {
		cp := *md
		out = append(out, &cp)
	}
	return out, nil
}

func (u *memoryUOW) Reserve(ctx context.Context, market common.Address) (*models.Reserve, bool, error) {
	if r, ok := u.reserves[market]; ok {
		return r.Clone(), true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if r, ok := u.store.reserves[market]; ok {
		return r.Clone(), true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutReserve(ctx context.Context, r *models.Reserve) error {
	u.reserves[r.Market] = r.Clone()
	return nil
}

func (u *memoryUOW) Account(ctx context.Context, id common.Address) (*models.Account, bool, error) {
	if a, ok := u.accounts[id]; ok {
		return a.Clone(), true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if a, ok := u.store.accounts[id]; ok {
		return a.Clone(), true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutAccount(ctx context.Context, a *models.Account) error {
	u.accounts[a.ID] = a.Clone()
	return nil
}

func (u *memoryUOW) Position(ctx context.Context, id string) (*models.Position, bool, error) {
	if p, ok := u.positions[id]; ok {
		return p.Clone(), true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if p, ok := u.store.positions[id]; ok {
		return p.Clone(), true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutPosition(ctx context.Context, p *models.Position) error {
	u.positions[p.ID] = p.Clone()
	return nil
}

func (u *memoryUOW) MarketSnapshot(ctx context.Context, id string) (*models.MarketSnapshot, bool, error) {
	if s, ok := u.marketSnapshots[id]; ok {
		return s.Clone(), true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if s, ok := u.store.marketSnapshots[id]; ok {
		return s.Clone(), true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutMarketSnapshot(ctx context.Context, s *models.MarketSnapshot) error {
	u.marketSnapshots[s.ID] = s.Clone()
	return nil
}

func (u *memoryUOW) FinancialsSnapshot(ctx context.Context, id string) (*models.FinancialsSnapshot, bool, error) {
	if s, ok := u.financialsSnapshots[id]; ok {
		return s.Clone(), true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if s, ok := u.store.financialsSnapshots[id]; ok {
		return s.Clone(), true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutFinancialsSnapshot(ctx context.Context, s *models.FinancialsSnapshot) error {
	u.financialsSnapshots[s.ID] = s.Clone()
	return nil
}

func (u *memoryUOW) UsageSnapshot(ctx context.Context, id string) (*models.UsageSnapshot, bool, error) {
	if s, ok := u.usageSnapshots[id]; ok {
		return s.Clone(), true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if s, ok := u.store.usageSnapshots[id]; ok {
		return s.Clone(), true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutUsageSnapshot(ctx context.Context, s *models.UsageSnapshot) error {
	u.usageSnapshots[s.ID] = s.Clone()
	return nil
}

func (u *memoryUOW) HasActivityMarker(ctx context.Context, id string) (bool, error) {
	if u.activityMarkers[id] {
		return true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	return u.store.activityMarkers[id], nil
}

func (u *memoryUOW) PutActivityMarker(ctx context.Context, id string) error {
	u.activityMarkers[id] = true
	return nil
}

func (u *memoryUOW) Cursor(ctx context.Context) (*Cursor, bool, error) {
	if u.cursor != nil {
		c := *u.cursor
		return &c, true, nil
	}
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if u.store.cursor != nil {
		c := *u.store.cursor
		return &c, true, nil
	}
	return nil, false, nil
}

func (u *memoryUOW) PutCursor(ctx context.Context, c *Cursor) error {
	cp := *c
	u.cursor = &cp
	return nil
}

// Commit merges staged writes into the base store
func (u *memoryUOW) Commit(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true

	u.store.mu.Lock()
	defer u.store.mu.Unlock()

	for k, v := range u.protocols {
		u.store.protocols[k] = v
	}
	for k, v := range u.markets {
		u.store.markets[k] = v
	}
	for k, v := range u.tokens {
		u.store.tokens[k] = v
	}
	for k, v := range u.reserves {
		u.store.reserves[k] = v
	}
	for k, v := range u.accounts {
		u.store.accounts[k] = v
	}
	for k, v := range u.positions {
		u.store.positions[k] = v
	}
	for k, v := range u.marketSnapshots {
		u.store.marketSnapshots[k] = v
	}
	for k, v := range u.financialsSnapshots {
		u.store.financialsSnapshots[k] = v
	}
	for k, v := range u.usageSnapshots {
		u.store.usageSnapshots[k] = v
	}
	for k := range u.activityMarkers {
		u.store.activityMarkers[k] = true
	}
	if u.cursor != nil {
		u.store.cursor = u.cursor
	}
	return nil
}

// Rollback discards staged writes
func (u *memoryUOW) Rollback(ctx context.Context) error {
	u.done = true
	return nil
}

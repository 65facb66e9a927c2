package storage

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/clanbank/internal/common"
	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/service"
)

// MemoryStorage is a process-local ledger store. Transactions stage their
// writes and apply them on commit.
type MemoryStorage struct {
	balances   map[string]int
	holdings   map[string]map[string]int
	reputation map[string]float64
	overrides  map[string]model.CategoryOverride
	locks      map[string]chan struct{}
	history    []model.HistoryEntry
	nextID     int64
	mu         sync.RWMutex
	lockMu     sync.Mutex
}

var _ service.LedgerStore = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		balances:   make(map[string]int),
		holdings:   make(map[string]map[string]int),
		reputation: make(map[string]float64),
		overrides:  make(map[string]model.CategoryOverride),
		locks:      make(map[string]chan struct{}),
	}
}

// Migrate is a no-op.
func (m *MemoryStorage) Migrate(ctx context.Context) error {
	return validateContext(ctx)
}

// Close is a no-op.
func (m *MemoryStorage) Close() error {
	return nil
}

// acquire blocks until key is free or ctx is done.
func (m *MemoryStorage) acquire(ctx context.Context, key string) (func(), error) {
	m.lockMu.Lock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	m.lockMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BeginTx starts a transaction holding exclusive access to itemKey.
func (m *MemoryStorage) BeginTx(ctx context.Context, itemKey string) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx := newMemoryTransaction(m)
	if key := model.NormalizeKey(itemKey); key != "" {
		release, err := m.acquire(ctx, "item:"+key)
		if err != nil {
			return nil, err
		}
		tx.releases = append(tx.releases, release)
	}
	return tx, nil
}

func (m *MemoryStorage) GetBalance(ctx context.Context, itemKey string) (*model.InventoryBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := model.NormalizeKey(itemKey)
	qty, ok := m.balances[key]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &model.InventoryBalance{ItemKey: key, Quantity: qty}, nil
}

func (m *MemoryStorage) ListBalances(ctx context.Context) ([]model.InventoryBalance, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	balances := make([]model.InventoryBalance, 0, len(m.balances))
	for key, qty := range m.balances {
		balances = append(balances, model.InventoryBalance{ItemKey: key, Quantity: qty})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].ItemKey < balances[j].ItemKey })
	return balances, nil
}

func (m *MemoryStorage) GetHolding(ctx context.Context, userID, itemKey string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.holdings[userID][model.NormalizeKey(itemKey)], nil
}

func (m *MemoryStorage) ListHoldingsByUser(ctx context.Context, userID string) ([]model.UserHolding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	holdings := make([]model.UserHolding, 0, len(m.holdings[userID]))
	for item, qty := range m.holdings[userID] {
		holdings = append(holdings, model.UserHolding{UserID: userID, ItemKey: item, Quantity: qty})
	}
	sortHoldingsByItem(holdings)
	return holdings, nil
}

func (m *MemoryStorage) ListHoldingsByItem(ctx context.Context, itemKey string) ([]model.UserHolding, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := model.NormalizeKey(itemKey)
	var holdings []model.UserHolding
	for user, items := range m.holdings {
		if qty, ok := items[key]; ok {
			holdings = append(holdings, model.UserHolding{UserID: user, ItemKey: key, Quantity: qty})
		}
	}
	sortHoldingsByQuantity(holdings)
	return holdings, nil
}

func (m *MemoryStorage) GetReputation(ctx context.Context, userID string) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reputation[userID], nil
}

func (m *MemoryStorage) ListReputation(ctx context.Context, limit int) ([]model.ReputationAccount, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	accounts := make([]model.ReputationAccount, 0, len(m.reputation))
	for user, points := range m.reputation {
		accounts = append(accounts, model.ReputationAccount{UserID: user, Points: points})
	}
	m.mu.RUnlock()

	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Points != accounts[j].Points {
			return accounts[i].Points > accounts[j].Points
		}
		return accounts[i].UserID < accounts[j].UserID
	})
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

func (m *MemoryStorage) GetHistory(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []model.HistoryEntry
	for _, e := range m.history {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *MemoryStorage) GetCategoryOverride(ctx context.Context, itemKey string) (model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return model.CategoryUnclassified, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return model.CategoryUnclassified, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.overrides[model.NormalizeKey(itemKey)]
	if !ok {
		return model.CategoryUnclassified, common.ErrNotFound
	}
	return o.Category, nil
}

func (m *MemoryStorage) GetAllCategoryOverrides(ctx context.Context) ([]model.CategoryOverride, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	overrides := make([]model.CategoryOverride, 0, len(m.overrides))
	for _, o := range m.overrides {
		overrides = append(overrides, o)
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].ItemKey < overrides[j].ItemKey })
	return overrides, nil
}

func sortHoldingsByItem(holdings []model.UserHolding) {
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].ItemKey < holdings[j].ItemKey })
}

func sortHoldingsByQuantity(holdings []model.UserHolding) {
	sort.Slice(holdings, func(i, j int) bool {
		if holdings[i].Quantity != holdings[j].Quantity {
			return holdings[i].Quantity > holdings[j].Quantity
		}
		return holdings[i].UserID < holdings[j].UserID
	})
}

type holdingKey struct {
	user string
	item string
}

// memoryTransaction stages writes over a MemoryStorage snapshot.
type memoryTransaction struct {
	store     *MemoryStorage
	balances  map[string]int
	holdings  map[holdingKey]int
	repDelta  map[string]decimal.Decimal
	overrides map[string]model.CategoryOverride
	repLocked map[string]bool
	history   []model.HistoryEntry
	callers   []*model.HistoryEntry
	releases  []func()
	done      bool
}

func newMemoryTransaction(m *MemoryStorage) *memoryTransaction {
	return &memoryTransaction{
		store:     m,
		balances:  make(map[string]int),
		holdings:  make(map[holdingKey]int),
		repDelta:  make(map[string]decimal.Decimal),
		overrides: make(map[string]model.CategoryOverride),
		repLocked: make(map[string]bool),
	}
}

func (t *memoryTransaction) release() {
	t.done = true
	for i := len(t.releases) - 1; i >= 0; i-- {
		t.releases[i]()
	}
	t.releases = nil
}

func (t *memoryTransaction) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	defer t.release()

	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, qty := range t.balances {
		m.balances[key] = qty
	}
	for hk, qty := range t.holdings {
		if qty == 0 {
			delete(m.holdings[hk.user], hk.item)
			if len(m.holdings[hk.user]) == 0 {
				delete(m.holdings, hk.user)
			}
			continue
		}
		if m.holdings[hk.user] == nil {
			m.holdings[hk.user] = make(map[string]int)
		}
		m.holdings[hk.user][hk.item] = qty
	}
	for user, delta := range t.repDelta {
		total, _ := decimal.NewFromFloat(m.reputation[user]).Add(delta).Round(2).Float64()
		m.reputation[user] = total
	}
	for key, o := range t.overrides {
		if _, exists := m.overrides[key]; !exists {
			m.overrides[key] = o
		}
	}
	// IDs are handed out here, under m.mu, so a transaction's entries stay
	// contiguous in every member's history.
	for i, e := range t.history {
		m.nextID++
		e.ID = m.nextID
		t.callers[i].ID = e.ID
		m.history = append(m.history, e)
	}

	return nil
}

func (t *memoryTransaction) Rollback() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.release()
	return nil
}

func (t *memoryTransaction) GetBalance(ctx context.Context, itemKey string) (*model.InventoryBalance, error) {
	if err := validateString(itemKey, "itemKey"); err != nil {
		return nil, err
	}
	key := model.NormalizeKey(itemKey)
	if qty, ok := t.balances[key]; ok {
		return &model.InventoryBalance{ItemKey: key, Quantity: qty}, nil
	}
	return t.store.GetBalance(ctx, key)
}

func (t *memoryTransaction) ListBalances(ctx context.Context) ([]model.InventoryBalance, error) {
	base, err := t.store.ListBalances(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]int, len(base)+len(t.balances))
	for _, b := range base {
		merged[b.ItemKey] = b.Quantity
	}
	for key, qty := range t.balances {
		merged[key] = qty
	}
	balances := make([]model.InventoryBalance, 0, len(merged))
	for key, qty := range merged {
		balances = append(balances, model.InventoryBalance{ItemKey: key, Quantity: qty})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].ItemKey < balances[j].ItemKey })
	return balances, nil
}

func (t *memoryTransaction) SetBalance(ctx context.Context, itemKey string, quantity int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return err
	}
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	t.balances[model.NormalizeKey(itemKey)] = quantity
	return nil
}

func (t *memoryTransaction) GetHolding(ctx context.Context, userID, itemKey string) (int, error) {
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return 0, err
	}
	if qty, ok := t.holdings[holdingKey{user: userID, item: model.NormalizeKey(itemKey)}]; ok {
		return qty, nil
	}
	return t.store.GetHolding(ctx, userID, itemKey)
}

func (t *memoryTransaction) ListHoldingsByUser(ctx context.Context, userID string) ([]model.UserHolding, error) {
	base, err := t.store.ListHoldingsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	holdings := t.mergeHoldings(base, func(hk holdingKey) bool { return hk.user == userID })
	sortHoldingsByItem(holdings)
	return holdings, nil
}

func (t *memoryTransaction) ListHoldingsByItem(ctx context.Context, itemKey string) ([]model.UserHolding, error) {
	base, err := t.store.ListHoldingsByItem(ctx, itemKey)
	if err != nil {
		return nil, err
	}
	key := model.NormalizeKey(itemKey)
	holdings := t.mergeHoldings(base, func(hk holdingKey) bool { return hk.item == key })
	sortHoldingsByQuantity(holdings)
	return holdings, nil
}

func (t *memoryTransaction) mergeHoldings(base []model.UserHolding, match func(holdingKey) bool) []model.UserHolding {
	merged := make(map[holdingKey]int, len(base))
	for _, h := range base {
		merged[holdingKey{user: h.UserID, item: h.ItemKey}] = h.Quantity
	}
	for hk, qty := range t.holdings {
		if match(hk) {
			merged[hk] = qty
		}
	}
	holdings := make([]model.UserHolding, 0, len(merged))
	for hk, qty := range merged {
		if qty > 0 {
			holdings = append(holdings, model.UserHolding{UserID: hk.user, ItemKey: hk.item, Quantity: qty})
		}
	}
	return holdings
}

func (t *memoryTransaction) SetHolding(ctx context.Context, userID, itemKey string, quantity int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return err
	}
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	t.holdings[holdingKey{user: userID, item: model.NormalizeKey(itemKey)}] = quantity
	return nil
}

func (t *memoryTransaction) GetReputation(ctx context.Context, userID string) (float64, error) {
	base, err := t.store.GetReputation(ctx, userID)
	if err != nil {
		return 0, err
	}
	delta, ok := t.repDelta[userID]
	if !ok {
		return base, nil
	}
	total, _ := decimal.NewFromFloat(base).Add(delta).Round(2).Float64()
	return total, nil
}

func (t *memoryTransaction) ListReputation(ctx context.Context, limit int) ([]model.ReputationAccount, error) {
	accounts, err := t.store.ListReputation(ctx, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(accounts))
	for i := range accounts {
		seen[accounts[i].UserID] = true
		if delta, ok := t.repDelta[accounts[i].UserID]; ok {
			accounts[i].Points, _ = decimal.NewFromFloat(accounts[i].Points).Add(delta).Round(2).Float64()
		}
	}
	for user, delta := range t.repDelta {
		if !seen[user] {
			points, _ := delta.Round(2).Float64()
			accounts = append(accounts, model.ReputationAccount{UserID: user, Points: points})
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].Points != accounts[j].Points {
			return accounts[i].Points > accounts[j].Points
		}
		return accounts[i].UserID < accounts[j].UserID
	})
	if limit > 0 && len(accounts) > limit {
		accounts = accounts[:limit]
	}
	return accounts, nil
}

// AddReputation locks the member's account until the transaction ends so the
// returned total cannot be overtaken by another commit.
func (t *memoryTransaction) AddReputation(ctx context.Context, userID string, points float64) (float64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return 0, err
	}
	if err := validatePoints(points); err != nil {
		return 0, err
	}

	if !t.repLocked[userID] {
		release, err := t.store.acquire(ctx, "reputation:"+userID)
		if err != nil {
			return 0, err
		}
		t.releases = append(t.releases, release)
		t.repLocked[userID] = true
	}

	t.repDelta[userID] = t.repDelta[userID].Add(decimal.NewFromFloat(points))
	return t.GetReputation(ctx, userID)
}

func (t *memoryTransaction) GetHistory(ctx context.Context, userID string) ([]model.HistoryEntry, error) {
	entries, err := t.store.GetHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, e := range t.history {
		if e.UserID == userID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (t *memoryTransaction) AppendHistory(ctx context.Context, entry *model.HistoryEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateHistoryEntry(entry); err != nil {
		return err
	}
	t.history = append(t.history, *entry)
	t.callers = append(t.callers, entry)
	return nil
}

func (t *memoryTransaction) GetCategoryOverride(ctx context.Context, itemKey string) (model.Category, error) {
	if err := validateString(itemKey, "itemKey"); err != nil {
		return model.CategoryUnclassified, err
	}
	category, err := t.store.GetCategoryOverride(ctx, itemKey)
	if err == nil {
		return category, nil
	}
	if o, ok := t.overrides[model.NormalizeKey(itemKey)]; ok {
		return o.Category, nil
	}
	return category, err
}

func (t *memoryTransaction) GetAllCategoryOverrides(ctx context.Context) ([]model.CategoryOverride, error) {
	overrides, err := t.store.GetAllCategoryOverrides(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		seen[o.ItemKey] = true
	}
	for key, o := range t.overrides {
		if !seen[key] {
			overrides = append(overrides, o)
		}
	}
	sort.Slice(overrides, func(i, j int) bool { return overrides[i].ItemKey < overrides[j].ItemKey })
	return overrides, nil
}

func (t *memoryTransaction) SaveCategoryOverride(ctx context.Context, itemKey string, category model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(itemKey, "itemKey"); err != nil {
		return err
	}
	if err := validateCategory(category); err != nil {
		return err
	}
	key := model.NormalizeKey(itemKey)
	if _, exists := t.overrides[key]; exists {
		return nil
	}
	if _, err := t.store.GetCategoryOverride(ctx, key); err == nil {
		return nil
	}
	t.overrides[key] = model.CategoryOverride{
		ItemKey:   key,
		Category:  category,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

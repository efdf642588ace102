package storage

import (
	"context"
	"sync"
	"time"
)

// MockStore is an in-memory DataStore for testing.
type MockStore struct {
	mu sync.RWMutex

	CopyTrades        []CopyTradeRecord
	ReconcileOutcomes []ReconcileRecord
	driftCache        map[string]string

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error
}

var _ DataStore = (*MockStore)(nil)

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		CopyTrades:        []CopyTradeRecord{},
		ReconcileOutcomes: []ReconcileRecord{},
		driftCache:        make(map[string]string),
		Calls:             make(map[string]int),
		ErrorOnNext:       make(map[string]error),
	}
}

func (m *MockStore) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockStore) SaveCopyTrade(ctx context.Context, rec CopyTradeRecord) error {
	if err := m.trackCall("SaveCopyTrade"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.CopyTrades = append(m.CopyTrades, rec)
	return nil
}

func (m *MockStore) ListCopyTrades(ctx context.Context, limit int) ([]CopyTradeRecord, error) {
	if err := m.trackCall("ListCopyTrades"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]CopyTradeRecord, len(m.CopyTrades))
	copy(records, m.CopyTrades)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *MockStore) SaveReconcileOutcome(ctx context.Context, rec ReconcileRecord) error {
	if err := m.trackCall("SaveReconcileOutcome"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.ReconcileOutcomes = append(m.ReconcileOutcomes, rec)
	return nil
}

func (m *MockStore) ListReconcileOutcomes(ctx context.Context, limit int) ([]ReconcileRecord, error) {
	if err := m.trackCall("ListReconcileOutcomes"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]ReconcileRecord, len(m.ReconcileOutcomes))
	copy(records, m.ReconcileOutcomes)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *MockStore) CacheDriftReport(ctx context.Context, key string, reportJSON string, ttl time.Duration) error {
	if err := m.trackCall("CacheDriftReport"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.driftCache[key] = reportJSON
	return nil
}

func (m *MockStore) GetCachedDriftReport(ctx context.Context, key string) (string, bool, error) {
	if err := m.trackCall("GetCachedDriftReport"); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.driftCache[key]
	return val, ok, nil
}

func (m *MockStore) Close() error {
	m.trackCall("Close")
	return nil
}

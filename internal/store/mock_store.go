package store

import (
	"sync"

	"github.com/seiken-dev/jiten/internal/models"
)

// MockStore provides a scripted Store for orchestrator tests. Tests
// capture UpdateWithRetry calls and fire the callbacks themselves.
type MockStore struct {
	mu sync.Mutex

	states       map[models.Dataset]models.DatasetState
	updateStates map[models.Series]models.UpdateState

	// Call tracking
	updates    []UpdateOptions
	cancels    []models.Series
	clearCalls int
	destroyed  bool
	closed     bool

	// Error injection
	DestroyErr error

	subs map[int]func()
	next int
}

// NewMockStore creates a mock store with every dataset empty.
func NewMockStore() *MockStore {
	states := make(map[models.Dataset]models.DatasetState)
	for _, ds := range models.AllDatasets() {
		states[ds] = models.DatasetState{State: models.LoadStateEmpty}
	}
	return &MockStore{
		states:       states,
		updateStates: make(map[models.Series]models.UpdateState),
		subs:         make(map[int]func()),
	}
}

// States implements Store.
func (m *MockStore) States() map[models.Dataset]models.DatasetState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[models.Dataset]models.DatasetState, len(m.states))
	for ds, st := range m.states {
		out[ds] = st
	}
	return out
}

// UpdateState implements Store.
func (m *MockStore) UpdateState(series models.Series) models.UpdateState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateStates[series]
}

// UpdateWithRetry implements Store; the call is recorded, nothing runs.
func (m *MockStore) UpdateWithRetry(opts UpdateOptions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, opts)
}

// CancelUpdate implements Store.
func (m *MockStore) CancelUpdate(series models.Series) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels = append(m.cancels, series)
}

// ClearCachedVersionInfo implements Store.
func (m *MockStore) ClearCachedVersionInfo() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearCalls++
}

// Subscribe implements Store.
func (m *MockStore) Subscribe(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.next
	m.next++
	m.subs[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// Destroy implements Store.
func (m *MockStore) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	return m.DestroyErr
}

// Close implements Store.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Helper methods for tests

// SetState overrides one dataset's record.
func (m *MockStore) SetState(ds models.Dataset, st models.DatasetState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[ds] = st
}

// SetUpdateState overrides one series' progress report.
func (m *MockStore) SetUpdateState(series models.Series, us models.UpdateState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateStates[series] = us
}

// UpdateCalls returns the captured UpdateWithRetry calls.
func (m *MockStore) UpdateCalls() []UpdateOptions {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UpdateOptions, len(m.updates))
	copy(out, m.updates)
	return out
}

// LastUpdate returns the most recent UpdateWithRetry call.
func (m *MockStore) LastUpdate() (UpdateOptions, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.updates) == 0 {
		return UpdateOptions{}, false
	}
	return m.updates[len(m.updates)-1], true
}

// Cancels returns the captured CancelUpdate calls.
func (m *MockStore) Cancels() []models.Series {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Series, len(m.cancels))
	copy(out, m.cancels)
	return out
}

// ClearCalls returns how often ClearCachedVersionInfo was invoked.
func (m *MockStore) ClearCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCalls
}

// Destroyed reports whether Destroy was called.
func (m *MockStore) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// Notify fires every subscribed change hook.
func (m *MockStore) Notify() {
	m.mu.Lock()
	subs := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

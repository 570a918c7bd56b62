package metadata

import (
	"context"
	"sync"
)

// MockStore implements MetadataStore for testing.
// It is exported so that tests in other packages can use it.
type MockStore struct {
	mu      sync.RWMutex
	data    map[string]GetResult
	closed  bool
	nextVer Version
	getErr  error
}

// NewMockStore creates a new MockStore for testing.
func NewMockStore() *MockStore {
	return &MockStore{
		data:    make(map[string]GetResult),
		nextVer: 1,
	}
}

// SetGetError makes every Get return err. Nil restores normal behaviour.
func (m *MockStore) SetGetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// ExpireSession drops every ephemeral key, as the server does when a client
// session times out.
func (m *MockStore) ExpireSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.data)
}

func (m *MockStore) Get(_ context.Context, key string) (GetResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return GetResult{}, ErrStoreClosed
	}
	if m.getErr != nil {
		return GetResult{}, m.getErr
	}
	r, ok := m.data[key]
	if !ok {
		return GetResult{Exists: false}, nil
	}
	return r, nil
}

func (m *MockStore) PutEphemeral(_ context.Context, key string, value []byte, opts ...EphemeralOption) (Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	expectNotExists, expectedVersion := ExtractEphemeralOptions(opts)
	existing, ok := m.data[key]
	if expectNotExists && ok {
		return 0, ErrVersionMismatch
	}
	if expectedVersion != nil && (!ok || existing.Version != *expectedVersion) {
		return 0, ErrVersionMismatch
	}

	ver := m.nextVer
	m.nextVer++
	m.data[key] = GetResult{Value: append([]byte(nil), value...), Version: ver, Exists: true}
	return ver, nil
}

func (m *MockStore) Delete(_ context.Context, key string, opts ...DeleteOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	existing, ok := m.data[key]
	if !ok {
		return nil
	}
	if v := ExtractDeleteExpectedVersion(opts); v != nil && existing.Version != *v {
		return ErrVersionMismatch
	}
	delete(m.data, key)
	return nil
}

func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ MetadataStore = (*MockStore)(nil)

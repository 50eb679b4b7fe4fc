package service

import (
	"context"
	"sort"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/driftkv/driftkv/internal/client"
	"github.com/driftkv/driftkv/internal/model"
)

// MockNodeClient is a testify mock of the inter-node client.
type MockNodeClient struct {
	mock.Mock
}

func (m *MockNodeClient) Put(ctx context.Context, nodeID, key string, value []byte) (int64, error) {
	args := m.Called(ctx, nodeID, key, value)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNodeClient) Get(ctx context.Context, nodeID, key string) (*client.GetResult, error) {
	args := m.Called(ctx, nodeID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*client.GetResult), args.Error(1)
}

func (m *MockNodeClient) Delete(ctx context.Context, nodeID, key string) error {
	args := m.Called(ctx, nodeID, key)
	return args.Error(0)
}

func (m *MockNodeClient) AllMeta(ctx context.Context, nodeID string) (map[string]int64, error) {
	args := m.Called(ctx, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *MockNodeClient) Ping(ctx context.Context, nodeID string) error {
	args := m.Called(ctx, nodeID)
	return args.Error(0)
}

// fakeLocalStore is an in-memory LocalStore with controllable
// timestamps for replica resolution tests.
type fakeLocalStore struct {
	mu     sync.Mutex
	data   map[string]*model.Entry
	nextTS int64
	putErr error
	getErr error
}

func newFakeLocalStore() *fakeLocalStore {
	return &fakeLocalStore{data: make(map[string]*model.Entry), nextTS: 1}
}

func (s *fakeLocalStore) set(key string, value []byte, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = &model.Entry{Value: value, Timestamp: ts}
}

func (s *fakeLocalStore) Put(ctx context.Context, key string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return 0, s.putErr
	}
	ts := s.nextTS
	s.nextTS++
	s.data[key] = &model.Entry{Value: value, Timestamp: ts}
	return ts, nil
}

func (s *fakeLocalStore) Get(ctx context.Context, key string) (*model.Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	entry, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return entry, true, nil
}

func (s *fakeLocalStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *fakeLocalStore) AllKeys(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeLocalStore) AllMeta(ctx context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := make(map[string]int64, len(s.data))
	for key, entry := range s.data {
		meta[key] = entry.Timestamp
	}
	return meta, nil
}

func (s *fakeLocalStore) Close() error {
	return nil
}

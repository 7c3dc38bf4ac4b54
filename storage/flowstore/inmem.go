package flowstore

import (
	"context"
	"sync"

	"github.com/WebgateSystems/akademy/core/register"
)

type inMemStore struct {
	mutex sync.RWMutex
	flows map[string]register.FlowState
}

var _ register.Store = (*inMemStore)(nil)

func NewInMemStore() *inMemStore {
	return &inMemStore{flows: make(map[string]register.FlowState)}
}

func (s *inMemStore) Get(_ context.Context, sessionID string) (register.FlowState, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.flows[sessionID], nil
}

func (s *inMemStore) Save(_ context.Context, sessionID string, fs register.FlowState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.flows[sessionID] = fs
	return nil
}

func (s *inMemStore) Clear(_ context.Context, sessionID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.flows, sessionID)
	return nil
}

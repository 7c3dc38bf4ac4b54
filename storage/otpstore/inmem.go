package otpstore

import (
	"context"
	"sync"

	"github.com/WebgateSystems/akademy/core/otp"
)

type inMemStore struct {
	mutex    sync.RWMutex
	records  map[string]otp.VerificationRecord
	verified map[string]bool
}

var _ otp.RecordStore = (*inMemStore)(nil)

func NewInMemStore() *inMemStore {
	return &inMemStore{
		records:  make(map[string]otp.VerificationRecord),
		verified: make(map[string]bool),
	}
}

func (s *inMemStore) SaveRecord(_ context.Context, target string, rec otp.VerificationRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.records[target] = rec
	return nil
}

func (s *inMemStore) GetRecord(_ context.Context, target string) (otp.VerificationRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	rec, ok := s.records[target]
	if !ok {
		return otp.VerificationRecord{}, otp.ErrNoRecord
	}
	return rec, nil
}

func (s *inMemStore) DeleteRecord(_ context.Context, target string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.records, target)
	return nil
}

func (s *inMemStore) MarkVerified(_ context.Context, target string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.verified[target] = true
	return nil
}

func (s *inMemStore) IsVerified(_ context.Context, target string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.verified[target], nil
}

package flowstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/WebgateSystems/akademy/core/register"
)

const (
	keyPrefix = "wizard:flow:"

	// flowTTL bounds abandoned flows; an in-progress registration is
	// retryable from step 1 if it outlives the session anyway.
	flowTTL = 24 * time.Hour
)

type redisStore struct {
	rdb *redis.Client
}

var _ register.Store = (*redisStore)(nil)

func NewRedisStore(rdb *redis.Client) *redisStore {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) Get(ctx context.Context, sessionID string) (register.FlowState, error) {
	data, err := s.rdb.Get(ctx, keyPrefix+sessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return register.FlowState{}, nil
		}
		return register.FlowState{}, errors.Wrap(err, "getting flow state")
	}
	var fs register.FlowState
	if err := json.Unmarshal(data, &fs); err != nil {
		return register.FlowState{}, errors.Wrap(err, "unmarshalling flow state")
	}
	return fs, nil
}

func (s *redisStore) Save(ctx context.Context, sessionID string, fs register.FlowState) error {
	data, err := json.Marshal(fs)
	if err != nil {
		return errors.Wrap(err, "marshalling flow state")
	}
	return errors.Wrap(s.rdb.Set(ctx, keyPrefix+sessionID, data, flowTTL).Err(), "saving flow state")
}

func (s *redisStore) Clear(ctx context.Context, sessionID string) error {
	return errors.Wrap(s.rdb.Del(ctx, keyPrefix+sessionID).Err(), "clearing flow state")
}

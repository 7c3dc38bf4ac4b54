package otpstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/WebgateSystems/akademy/core/otp"
)

const (
	recordKeyPrefix   = "otp:record:"
	verifiedKeyPrefix = "otp:verified:"

	// gcTTL is a garbage-collection TTL only. It is deliberately much longer
	// than the code TTL: if redis expired records at the code TTL, a stale
	// code would verify as "no_request" instead of "expired".
	gcTTL = 24 * time.Hour
)

type redisStore struct {
	rdb *redis.Client
}

var _ otp.RecordStore = (*redisStore)(nil)

func NewRedisStore(rdb *redis.Client) *redisStore {
	return &redisStore{rdb: rdb}
}

func (s *redisStore) SaveRecord(ctx context.Context, target string, rec otp.VerificationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshalling verification record")
	}
	return errors.Wrap(s.rdb.Set(ctx, recordKeyPrefix+target, data, gcTTL).Err(), "saving verification record")
}

func (s *redisStore) GetRecord(ctx context.Context, target string) (otp.VerificationRecord, error) {
	data, err := s.rdb.Get(ctx, recordKeyPrefix+target).Bytes()
	if err != nil {
		if err == redis.Nil {
			return otp.VerificationRecord{}, otp.ErrNoRecord
		}
		return otp.VerificationRecord{}, errors.Wrap(err, "getting verification record")
	}
	var rec otp.VerificationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return otp.VerificationRecord{}, errors.Wrap(err, "unmarshalling verification record")
	}
	return rec, nil
}

func (s *redisStore) DeleteRecord(ctx context.Context, target string) error {
	return errors.Wrap(s.rdb.Del(ctx, recordKeyPrefix+target).Err(), "deleting verification record")
}

func (s *redisStore) MarkVerified(ctx context.Context, target string) error {
	return errors.Wrap(s.rdb.Set(ctx, verifiedKeyPrefix+target, "1", gcTTL).Err(), "marking verified")
}

func (s *redisStore) IsVerified(ctx context.Context, target string) (bool, error) {
	if err := s.rdb.Get(ctx, verifiedKeyPrefix+target).Err(); err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, errors.Wrap(err, "checking verified flag")
	}
	return true, nil
}

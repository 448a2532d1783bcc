package providers

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisCodeStore keeps codes in redis hashes that expire with the code.
type RedisCodeStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCodeStore(client *redis.Client, ttl time.Duration) *RedisCodeStore {
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	return &RedisCodeStore{redis: client, ttl: ttl}
}

func (s *RedisCodeStore) key(tenantID, phone string) string {
	return verificationPrefix + ":" + tenantID + ":" + phone
}

func (s *RedisCodeStore) Issue(ctx context.Context, tenantID, phone string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", pkgerrors.Wrap(err, "[RedisCodeStore.Issue] generateCode")
	}
	key := s.key(tenantID, phone)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "code", code, "attempts", 0)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", errors.Mark(pkgerrors.Wrap(err, "[RedisCodeStore.Issue] TxPipelined"), errors.ErrStoreUnavailable)
	}
	return code, nil
}

func (s *RedisCodeStore) Consume(ctx context.Context, tenantID, phone, code string) error {
	const maxRetries = 4
	key := s.key(tenantID, phone)

	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			stored, err := tx.HGet(ctx, key, "code").Result()
			if err != nil {
				return err
			}

			if codesEqual(stored, code) {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			attempts, err := tx.HGet(ctx, key, "attempts").Int()
			if err != nil && !pkgerrors.Is(err, redis.Nil) {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if attempts+1 >= maxCodeAttempts {
					pipe.Del(ctx, key)
				} else {
					pipe.HIncrBy(ctx, key, "attempts", 1)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return errors.ErrInvalidCredentials
		}, key)

		switch {
		case err == nil:
			return nil
		case pkgerrors.Is(err, redis.TxFailedErr):
			continue
		case pkgerrors.Is(err, redis.Nil), pkgerrors.Is(err, errors.ErrInvalidCredentials):
			return errors.ErrInvalidCredentials
		default:
			return errors.Mark(pkgerrors.Wrap(err, "[RedisCodeStore.Consume] Watch"), errors.ErrStoreUnavailable)
		}
	}
	return errors.ErrInvalidCredentials
}

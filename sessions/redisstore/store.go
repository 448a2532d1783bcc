// Package redisstore keeps session records in redis. Each record is a JSON
// string keyed by id. Two sorted sets scored by login time index them: the
// full history per (tenant, user) and the live records per (tenant, user,
// client class). Invalidation removes a record from its live set, so live
// lookups never walk the history.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jrsteele09/go-session-gateway/sessions"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "sgw:session"

var _ sessions.Store = (*Store)(nil)

type Store struct {
	redis  *redis.Client
	prefix string
}

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

func New(client *redis.Client, options ...Option) *Store {
	s := &Store{redis: client, prefix: defaultPrefix}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) recordKey(id string) string {
	return s.prefix + ":rec:" + id
}

func (s *Store) indexKey(tenantID, userID string) string {
	return s.prefix + ":idx:" + tenantID + ":" + userID
}

func (s *Store) liveKey(tenantID, userID string, class sessions.ClientClass) string {
	return s.prefix + ":live:" + tenantID + ":" + userID + ":" + string(class)
}

// liveClasses lists every live set a query for class has to read.
func liveClasses(class sessions.ClientClass) []sessions.ClientClass {
	if class != sessions.ClientAny {
		return []sessions.ClientClass{class}
	}
	return []sessions.ClientClass{sessions.ClientPC, sessions.ClientMobile, sessions.ClientMicroMessenger, sessions.ClientAny}
}

// Find requires TenantID and UserID; the indexes are per principal. Live
// queries and unfiltered history queries read at most one page window per
// index.
func (s *Store) Find(ctx context.Context, q sessions.Query, page sessions.Page) ([]sessions.Record, error) {
	if q.TenantID == "" || q.UserID == "" {
		return nil, errors.New("[redisstore.Find] tenant and user are required")
	}
	if q.ID != "" {
		return s.findByID(ctx, q, page)
	}

	var keys []string
	if q.LiveOnly {
		for _, class := range liveClasses(q.ClientClass) {
			keys = append(keys, s.liveKey(q.TenantID, q.UserID, class))
		}
	} else {
		keys = []string{s.indexKey(q.TenantID, q.UserID)}
	}

	rangeBy := redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if q.LoginTime > 0 {
		score := fmt.Sprintf("%d", q.LoginTime)
		rangeBy.Min, rangeBy.Max = score, score
	}
	// The class filter is the only term the history index cannot answer.
	if page.Size > 0 && (q.LiveOnly || q.ClientClass == sessions.ClientAny) {
		rangeBy.Count = int64(page.Offset() + page.Size)
	}

	var ids []string
	for _, key := range keys {
		found, err := s.redis.ZRevRangeByScore(ctx, key, &rangeBy).Result()
		if err != nil {
			return nil, errors.Wrap(err, "[redisstore.Find] ZRevRangeByScore")
		}
		ids = append(ids, found...)
	}

	matched, err := s.load(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].LoginTime == matched[j].LoginTime {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].LoginTime > matched[j].LoginTime
	})
	return paginate(matched, page), nil
}

func (s *Store) findByID(ctx context.Context, q sessions.Query, page sessions.Page) ([]sessions.Record, error) {
	matched, err := s.load(ctx, q, []string{q.ID})
	if err != nil {
		return nil, err
	}
	return paginate(matched, page), nil
}

// load fetches the records for ids and keeps those matching q. Ids whose
// record is gone are skipped.
func (s *Store) load(ctx context.Context, q sessions.Query, ids []string) ([]sessions.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "[redisstore.load] MGet")
	}

	matched := make([]sessions.Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var r sessions.Record
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, errors.Wrap(err, "[redisstore.load] decode record")
		}
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func paginate(records []sessions.Record, page sessions.Page) []sessions.Record {
	offset := page.Offset()
	if offset >= len(records) {
		return nil
	}
	end := len(records)
	if page.Size > 0 && offset+page.Size < end {
		end = offset + page.Size
	}
	return records[offset:end]
}

// UpdateAll overwrites existing records only and drops invalidated ones from
// their live set. Each write is independent, a missing or failed record does
// not stop the others.
func (s *Store) UpdateAll(ctx context.Context, records []sessions.Record) error {
	if len(records) == 0 {
		return nil
	}
	encoded := make([][]byte, len(records))
	for i, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "[redisstore.UpdateAll] encode record")
		}
		encoded[i] = data
	}

	cmds := make([]*redis.StatusCmd, len(records))
	// Per-command errors are inspected below.
	_, _ = s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, r := range records {
			cmds[i] = pipe.SetArgs(ctx, s.recordKey(r.ID), encoded[i], redis.SetArgs{Mode: "XX"})
			if !r.Live() {
				pipe.ZRem(ctx, s.liveKey(r.TenantID, r.UserID, r.ClientClass), r.ID)
			}
		}
		return nil
	})

	var failed []string
	var lastErr error
	for i, cmd := range cmds {
		if err := cmd.Err(); err != nil {
			if errors.Is(err, redis.Nil) {
				err = fmt.Errorf("record %s does not exist", records[i].ID)
			}
			failed = append(failed, records[i].ID)
			lastErr = err
		}
	}
	if len(failed) > 0 {
		return &sessions.UpdateError{Failed: failed, Err: lastErr}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, record sessions.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "[redisstore.Create] encode record")
	}
	member := redis.Z{Score: float64(record.LoginTime), Member: record.ID}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(record.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(record.TenantID, record.UserID), member)
		if record.Live() {
			pipe.ZAdd(ctx, s.liveKey(record.TenantID, record.UserID, record.ClientClass), member)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "[redisstore.Create] TxPipelined")
	}
	return nil
}

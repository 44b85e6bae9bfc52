package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "admission:"
	redisIndexKey  = "admissions:by_updated"
)

type redisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Store that keeps each record as a JSON string and
// orders them with a sorted set scored by LastUpdated in milliseconds.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func (s *redisStore) Upsert(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode admission %s: %w", rec.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisKeyPrefix+rec.ID, data, 0)
		pipe.ZAdd(ctx, redisIndexKey, redis.Z{
			Score:  float64(rec.LastUpdated.UnixMilli()),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert admission %s: %w", rec.ID, err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get admission %s: %w", id, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode admission %s: %w", id, err)
	}
	return &rec, nil
}

func (s *redisStore) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	total, err := s.client.ZCard(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("count admissions: %w", err)
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(offset + limit - 1)
	}
	ids, err := s.client.ZRevRange(ctx, redisIndexKey, int64(offset), stop).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}
	if len(ids) == 0 {
		return []*Record{}, int(total), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("load admissions: %w", err)
	}

	items := make([]*Record, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// index entry without a value; skip it
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, 0, fmt.Errorf("decode admission %s: %w", ids[i], err)
		}
		items = append(items, &rec)
	}
	return items, int(total), nil
}

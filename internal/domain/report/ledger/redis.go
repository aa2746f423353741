package ledger

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
)

const defaultRedisPrefix = "cleancity:"

// redisStore keeps the ledger in Redis, one JSON value per report keyed by
// tracking ID. Records never expire.
type redisStore struct {
	client *redis.Client
	prefix string
}

func newRedisStore(cfg config.LedgerRedisStore) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "ledger.redis", "failed to connect to redis", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + "report:" + id
}

func (s *redisStore) Put(ctx context.Context, record *aggregate.Record) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "ledger.put", "failed to encode report", err)
	}
	if err := s.client.Set(ctx, s.key(record.ID), raw, 0).Err(); err != nil {
		return errors.Wrap(errors.KindStorage, "ledger.put", "failed to store report", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, id string) (*aggregate.Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, aggregate.ErrReportNotFound
		}
		return nil, errors.Wrap(errors.KindStorage, "ledger.get", "failed to load report", err)
	}
	var record aggregate.Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "ledger.get", "failed to decode report", err)
	}
	return &record, nil
}

func (s *redisStore) MarkVerified(ctx context.Context, id string, at time.Time) (*aggregate.Record, error) {
	var record *aggregate.Record
	key := s.key(id)

	// Optimistic transaction so a concurrent Put cannot be lost under a
	// racing verify.
	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return aggregate.ErrReportNotFound
			}
			return err
		}
		var current aggregate.Record
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		current.Verified = true
		stamp := at
		current.VerifiedAt = &stamp
		record = &current

		updated, err := json.Marshal(&current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for i := 0; i < 3; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return record, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, aggregate.ErrReportNotFound) {
			return nil, aggregate.ErrReportNotFound
		}
		return nil, errors.Wrap(errors.KindStorage, "ledger.verify", "failed to update report", err)
	}
	return nil, errors.New(errors.KindStorage, "ledger.verify", "verify transaction kept conflicting")
}

func (s *redisStore) List(ctx context.Context) ([]*aggregate.Record, error) {
	var out []*aggregate.Record
	iter := s.client.Scan(ctx, 0, s.prefix+"report:*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, errors.Wrap(errors.KindStorage, "ledger.list", "failed to load report", err)
		}
		var record aggregate.Record
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "ledger.list", "failed to decode report", err)
		}
		out = append(out, &record)
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "ledger.list", "failed to scan reports", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *redisStore) Stats(ctx context.Context) (Stats, error) {
	records, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Total: len(records)}
	for _, record := range records {
		if record.Verified {
			stats.Verified++
		}
	}
	return stats, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// Stores archived documents in Redis.

package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maruel/ksid"
	"github.com/redis/go-redis/v9"
)

// defaultRedisHistory is the number of snapshots kept per document.
const defaultRedisHistory = 20

// Redis stores the latest text of a document under <prefix>doc:<id> and
// a bounded list of JSON snapshots under <prefix>history:<id>.
type Redis struct {
	rdb     redis.UniversalClient
	prefix  string
	history int64
}

// NewRedis returns a Redis archiver using rdb. history bounds the number of
// snapshots kept per document, 0 means the default.
func NewRedis(rdb redis.UniversalClient, prefix string, history int) *Redis {
	if prefix == "" {
		prefix = "coedit:"
	}
	if history <= 0 {
		history = defaultRedisHistory
	}
	return &Redis{rdb: rdb, prefix: prefix, history: int64(history)}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, prefix string, history int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	return NewRedis(rdb, prefix, history), nil
}

func (r *Redis) docKey(id ksid.ID) string {
	return r.prefix + "doc:" + id.String()
}

func (r *Redis) historyKey(id ksid.ID) string {
	return r.prefix + "history:" + id.String()
}

// Archive implements Archiver. Both keys are updated in one transaction.
func (r *Redis) Archive(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return wrapErr("redis", rec.ID, err)
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.docKey(rec.ID), rec.Text(), 0)
		p.LPush(ctx, r.historyKey(rec.ID), data)
		p.LTrim(ctx, r.historyKey(rec.ID), 0, r.history-1)
		return nil
	})
	if err != nil {
		return wrapErr("redis", rec.ID, err)
	}
	return nil
}

// History implements Historian from the snapshot list.
func (r *Redis) History(ctx context.Context, id ksid.ID, n int) ([]*Revision, error) {
	stop := int64(n) - 1
	if n <= 0 {
		stop = -1
	}
	items, err := r.rdb.LRange(ctx, r.historyKey(id), 0, stop).Result()
	if err != nil {
		return nil, wrapErr("redis", id, fmt.Errorf("failed to read history: %w", err))
	}
	out := make([]*Revision, 0, len(items))
	for _, it := range items {
		rec := &Record{}
		if err := json.Unmarshal([]byte(it), rec); err != nil {
			return nil, wrapErr("redis", id, fmt.Errorf("failed to decode history: %w", err))
		}
		out = append(out, rec.revision())
	}
	return out, nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

package docstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	docKeyPrefix = "doc:"
	colKeyPrefix = "col:"
	versionField = "_version"
)

var (
	insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], '_version', 1, unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

	setScript = redis.NewScript(`
local v = tonumber(redis.call('HGET', KEYS[1], '_version') or '0')
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], '_version', v + 1, unpack(ARGV, 3))
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
return v + 1
`)

	mergeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
if #ARGV > 0 then redis.call('HSET', KEYS[1], unpack(ARGV)) end
redis.call('HINCRBY', KEYS[1], '_version', 1)
return 1
`)

	incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  if ARGV[1] ~= '1' then return 0 end
  redis.call('HSET', KEYS[1], ARGV[4], ARGV[5])
  redis.call('ZADD', KEYS[2], ARGV[2], ARGV[3])
end
for i = 6, #ARGV, 2 do
  redis.call('HINCRBY', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('HINCRBY', KEYS[1], '_version', 1)
return 1
`)

	deleteScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then return 0 end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)
)

// Redis stores each document as a hash and indexes collections with sorted
// sets scored by TimestampField. The timestamp is fixed once the document
// exists; changing it through Merge or Update does not reorder List results.
type Redis struct {
	client     redis.UniversalClient
	maxRetries int
	now        func() time.Time
}

// NewRedis wraps an existing client. maxRetries bounds Update attempts; zero
// selects DefaultMaxRetries.
func NewRedis(client redis.UniversalClient, maxRetries int) *Redis {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Redis{client: client, maxRetries: maxRetries, now: time.Now}
}

func docKey(path Path) string       { return docKeyPrefix + string(path) }
func colKey(collection Path) string { return colKeyPrefix + string(collection) }

func score(t time.Time) float64 { return float64(t.UnixMicro()) }

func encodeFields(fields Fields) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, formatValue(v))
	}
	return args
}

func decodeHash(path Path, raw map[string]string) Document {
	fields := make(Fields, len(raw))
	var version int64
	for k, v := range raw {
		if k == versionField {
			version, _ = strconv.ParseInt(v, 10, 64)
			continue
		}
		fields[k] = v
	}
	return Document{Path: path, Fields: fields, Version: version}
}

func (r *Redis) Create(ctx context.Context, collection Path, fields Fields) (Document, error) {
	if err := collection.validate(false); err != nil {
		return Document{}, err
	}
	return r.Insert(ctx, collection.Doc(NewID()), fields)
}

func (r *Redis) Insert(ctx context.Context, path Path, fields Fields) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	normalized, err := normalize(withTimestamp(fields, r.now()))
	if err != nil {
		return Document{}, err
	}
	ts := Document{Fields: normalized}.Timestamp()
	args := append([]any{score(ts), string(path)}, encodeFields(normalized)...)
	created, err := insertScript.Run(ctx, r.client, []string{docKey(path), colKey(path.Parent())}, args...).Int()
	if err != nil {
		return Document{}, fmt.Errorf("docstore: insert %s: %w", path, err)
	}
	if created == 0 {
		return Document{}, ErrExists
	}
	return Document{Path: path, Fields: normalized, Version: 1}, nil
}

func (r *Redis) Set(ctx context.Context, path Path, fields Fields) error {
	if err := path.validate(true); err != nil {
		return err
	}
	normalized, err := normalize(withTimestamp(fields, r.now()))
	if err != nil {
		return err
	}
	ts := Document{Fields: normalized}.Timestamp()
	args := append([]any{score(ts), string(path)}, encodeFields(normalized)...)
	if err := setScript.Run(ctx, r.client, []string{docKey(path), colKey(path.Parent())}, args...).Err(); err != nil {
		return fmt.Errorf("docstore: set %s: %w", path, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, path Path) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	raw, err := r.client.HGetAll(ctx, docKey(path)).Result()
	if err != nil {
		return Document{}, fmt.Errorf("docstore: get %s: %w", path, err)
	}
	if len(raw) == 0 {
		return Document{}, ErrNotFound
	}
	return decodeHash(path, raw), nil
}

func (r *Redis) Merge(ctx context.Context, path Path, fields Fields) error {
	if err := path.validate(true); err != nil {
		return err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}
	updated, err := mergeScript.Run(ctx, r.client, []string{docKey(path)}, encodeFields(normalized)...).Int()
	if err != nil {
		return fmt.Errorf("docstore: merge %s: %w", path, err)
	}
	if updated == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, path Path) error {
	if err := path.validate(true); err != nil {
		return err
	}
	deleted, err := deleteScript.Run(ctx, r.client, []string{docKey(path), colKey(path.Parent())}, string(path)).Int()
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", path, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Redis) Increment(ctx context.Context, path Path, deltas map[string]int64, opts ...IncrementOption) error {
	if err := path.validate(true); err != nil {
		return err
	}
	o := applyIncrementOptions(opts)
	upsert := "0"
	if o.upsert {
		upsert = "1"
	}
	now := r.now().UTC()
	args := []any{upsert, score(now), string(path), TimestampField, formatValue(now)}
	for field, delta := range deltas {
		if field == "" || field == versionField {
			return ErrUnsupportedValue
		}
		args = append(args, field, delta)
	}
	applied, err := incrementScript.Run(ctx, r.client, []string{docKey(path), colKey(path.Parent())}, args...).Int()
	if err != nil {
		return fmt.Errorf("docstore: increment %s: %w", path, err)
	}
	if applied == 0 {
		return ErrNotFound
	}
	return nil
}

// Update watches the document key and retries when another client modifies
// it between the read and the commit.
func (r *Redis) Update(ctx context.Context, path Path, fn UpdateFunc) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	key := docKey(path)
	for attempt := 0; attempt < r.maxRetries; attempt++ {
		var result Document
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(raw) == 0 {
				return ErrNotFound
			}
			current := decodeHash(path, raw)
			patch, err := fn(current)
			if err != nil {
				return err
			}
			if patch == nil {
				result = current
				return nil
			}
			normalized, err := normalize(patch)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if len(normalized) > 0 {
					pipe.HSet(ctx, key, encodeFields(normalized)...)
				}
				pipe.HIncrBy(ctx, key, versionField, 1)
				return nil
			})
			if err != nil {
				return err
			}
			for k, v := range normalized {
				current.Fields[k] = formatValue(v)
			}
			current.Version++
			result = current
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return Document{}, err
		}
		return result, nil
	}
	return Document{}, ErrConflict
}

func (r *Redis) List(ctx context.Context, collection Path, q Query) ([]Document, error) {
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	filters, err := normalizeFilters(q.Where)
	if err != nil {
		return nil, err
	}
	var members []string
	if q.Order == Descending {
		members, err = r.client.ZRevRange(ctx, colKey(collection), 0, -1).Result()
	} else {
		members, err = r.client.ZRange(ctx, colKey(collection), 0, -1).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	if len(members) == 0 {
		return []Document{}, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(members))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, member := range members {
			cmds[i] = pipe.HGetAll(ctx, docKey(Path(member)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	out := make([]Document, 0, len(members))
	for i, member := range members {
		raw := cmds[i].Val()
		if len(raw) == 0 {
			continue
		}
		doc := decodeHash(Path(member), raw)
		if !matches(doc, filters) {
			continue
		}
		out = append(out, doc)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

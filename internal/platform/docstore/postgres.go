package docstore

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jntims/jntims/internal/platform/db"
)

//go:embed schema.sql
var schemaSQL string

// Postgres keeps all documents in a single jsonb table.
type Postgres struct {
	pool       *pgxpool.Pool
	maxRetries int
	now        func() time.Time
}

// NewPostgres wraps a pool. maxRetries bounds serialization retries; zero
// selects DefaultMaxRetries.
func NewPostgres(pool *pgxpool.Pool, maxRetries int) *Postgres {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Postgres{pool: pool, maxRetries: maxRetries, now: time.Now}
}

// EnsureSchema creates the documents table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("docstore: ensure schema: %w", err)
	}
	return nil
}

func encodeJSON(fields Fields) (string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeJSON(path Path, raw []byte, version int64) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	fields := Fields{}
	if err := dec.Decode(&fields); err != nil {
		return Document{}, fmt.Errorf("docstore: decode %s: %w", path, err)
	}
	return Document{Path: path, Fields: fields, Version: version}, nil
}

func (p *Postgres) Create(ctx context.Context, collection Path, fields Fields) (Document, error) {
	if err := collection.validate(false); err != nil {
		return Document{}, err
	}
	return p.Insert(ctx, collection.Doc(NewID()), fields)
}

func (p *Postgres) Insert(ctx context.Context, path Path, fields Fields) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	normalized, err := normalize(withTimestamp(fields, p.now()))
	if err != nil {
		return Document{}, err
	}
	data, err := encodeJSON(normalized)
	if err != nil {
		return Document{}, err
	}
	tag, err := p.pool.Exec(ctx, `
INSERT INTO documents (path, collection, data, version, ts)
VALUES ($1, $2, $3::jsonb, 1, $4)
ON CONFLICT (path) DO NOTHING`, string(path), string(path.Parent()), data, Document{Fields: normalized}.Timestamp())
	if err != nil {
		return Document{}, fmt.Errorf("docstore: insert %s: %w", path, err)
	}
	if tag.RowsAffected() == 0 {
		return Document{}, ErrExists
	}
	return Document{Path: path, Fields: normalized, Version: 1}, nil
}

func (p *Postgres) Set(ctx context.Context, path Path, fields Fields) error {
	if err := path.validate(true); err != nil {
		return err
	}
	normalized, err := normalize(withTimestamp(fields, p.now()))
	if err != nil {
		return err
	}
	data, err := encodeJSON(normalized)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
INSERT INTO documents (path, collection, data, version, ts)
VALUES ($1, $2, $3::jsonb, 1, $4)
ON CONFLICT (path) DO UPDATE
SET data = EXCLUDED.data, ts = EXCLUDED.ts, version = documents.version + 1`,
		string(path), string(path.Parent()), data, Document{Fields: normalized}.Timestamp())
	if err != nil {
		return fmt.Errorf("docstore: set %s: %w", path, err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, path Path) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	var (
		raw     []byte
		version int64
	)
	err := p.pool.QueryRow(ctx, `SELECT data, version FROM documents WHERE path = $1`, string(path)).Scan(&raw, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("docstore: get %s: %w", path, err)
	}
	return decodeJSON(path, raw, version)
}

func (p *Postgres) Merge(ctx context.Context, path Path, fields Fields) error {
	if err := path.validate(true); err != nil {
		return err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}
	data, err := encodeJSON(normalized)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
UPDATE documents SET data = data || $2::jsonb, version = version + 1 WHERE path = $1`, string(path), data)
	if err != nil {
		return fmt.Errorf("docstore: merge %s: %w", path, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, path Path) error {
	if err := path.validate(true); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, string(path))
	if err != nil {
		return fmt.Errorf("docstore: delete %s: %w", path, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Increment(ctx context.Context, path Path, deltas map[string]int64, opts ...IncrementOption) error {
	if err := path.validate(true); err != nil {
		return err
	}
	o := applyIncrementOptions(opts)
	now := p.now().UTC()
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		if o.upsert {
			seed, err := encodeJSON(Fields{TimestampField: now})
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
INSERT INTO documents (path, collection, data, version, ts)
VALUES ($1, $2, $3::jsonb, 0, $4)
ON CONFLICT (path) DO NOTHING`, string(path), string(path.Parent()), seed, now); err != nil {
				return err
			}
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM documents WHERE path = $1 FOR UPDATE`, string(path)).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		for field, delta := range deltas {
			if field == "" {
				return ErrUnsupportedValue
			}
			if _, err := tx.Exec(ctx, `
UPDATE documents
SET data = jsonb_set(data, ARRAY[$2::text], to_jsonb(COALESCE((data->>$2)::bigint, 0) + $3::bigint))
WHERE path = $1`, string(path), field, delta); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE documents SET version = version + 1 WHERE path = $1`, string(path))
		return err
	})
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrUnsupportedValue) && !errors.Is(err, ErrConflict) {
		return fmt.Errorf("docstore: increment %s: %w", path, err)
	}
	return err
}

// Update locks the row for the duration of fn.
func (p *Postgres) Update(ctx context.Context, path Path, fn UpdateFunc) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	var result Document
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		var (
			raw     []byte
			version int64
		)
		err := tx.QueryRow(ctx, `SELECT data, version FROM documents WHERE path = $1 FOR UPDATE`, string(path)).Scan(&raw, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeJSON(path, raw, version)
		if err != nil {
			return err
		}
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
		data, err := encodeJSON(normalized)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
UPDATE documents SET data = data || $2::jsonb, version = version + 1
WHERE path = $1 RETURNING data, version`, string(path), data).Scan(&raw, &version); err != nil {
			return err
		}
		result, err = decodeJSON(path, raw, version)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	return result, nil
}

func (p *Postgres) List(ctx context.Context, collection Path, q Query) ([]Document, error) {
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	filters, err := normalizeFilters(q.Where)
	if err != nil {
		return nil, err
	}
	contains := Fields{}
	for _, f := range filters {
		contains[f.Field] = f.Value
	}
	filter, err := encodeJSON(contains)
	if err != nil {
		return nil, err
	}
	order := "ASC"
	if q.Order == Descending {
		order = "DESC"
	}
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
SELECT path, data, version FROM documents
WHERE collection = $1 AND data @> $2::jsonb
ORDER BY ts %[1]s, path %[1]s
LIMIT $3`, order), string(collection), filter, limit)
	if err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		var (
			path    string
			raw     []byte
			version int64
		)
		if err := rows.Scan(&path, &raw, &version); err != nil {
			return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
		}
		doc, err := decodeJSON(Path(path), raw, version)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: list %s: %w", collection, err)
	}
	return out, nil
}

func (p *Postgres) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	err := db.WithRetryTx(ctx, p.pool, p.maxRetries, fn)
	if errors.Is(err, db.ErrRetriesExhausted) {
		return ErrConflict
	}
	return err
}

// Package docstore defines the document store the ledgers persist into and
// provides memory, Redis and PostgreSQL backends.
//
// Documents live in collections addressed by slash separated paths such as
// "companies/{id}/payments/{id}". Field values are limited to string, int64,
// bool and time.Time. Every backend maintains a per-document version and the
// TimestampField used for ordering.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampField is set on create when the caller does not provide it.
const TimestampField = "timestamp"

var (
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrExists indicates Insert hit an existing document.
	ErrExists = errors.New("docstore: document already exists")
	// ErrConflict indicates an optimistic transaction kept losing races.
	ErrConflict = errors.New("docstore: too many concurrent modifications")
	// ErrInvalidPath indicates a path of the wrong kind for the operation.
	ErrInvalidPath = errors.New("docstore: invalid path")
	// ErrUnsupportedValue indicates a field value outside the supported types.
	ErrUnsupportedValue = errors.New("docstore: unsupported field value")
)

// DefaultMaxRetries bounds optimistic transaction attempts.
const DefaultMaxRetries = 16

// Path addresses a collection (odd number of segments) or a document (even).
type Path string

// Collection returns a top-level collection path.
func Collection(name string) Path { return Path(name) }

// Doc returns the document id inside collection p.
func (p Path) Doc(id string) Path { return Path(string(p) + "/" + id) }

// Collection returns the sub-collection name of document p.
func (p Path) Collection(name string) Path { return Path(string(p) + "/" + name) }

func (p Path) segments() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), "/")
}

// IsDocument reports whether p addresses a document.
func (p Path) IsDocument() bool {
	segs := p.segments()
	return len(segs) > 0 && len(segs)%2 == 0
}

// ID returns the last path segment.
func (p Path) ID() string {
	segs := p.segments()
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Parent returns the collection containing document p.
func (p Path) Parent() Path {
	idx := strings.LastIndex(string(p), "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

func (p Path) String() string { return string(p) }

func (p Path) validate(document bool) error {
	segs := p.segments()
	if len(segs) == 0 {
		return ErrInvalidPath
	}
	for _, s := range segs {
		if s == "" {
			return ErrInvalidPath
		}
	}
	if p.IsDocument() != document {
		return ErrInvalidPath
	}
	return nil
}

// Fields is a flat set of document values.
type Fields map[string]any

// Document is a read snapshot.
type Document struct {
	Path    Path
	Fields  Fields
	Version int64
}

// ID returns the document id.
func (d Document) ID() string { return d.Path.ID() }

// String returns a string field or "".
func (d Document) String(key string) string {
	switch v := d.Fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return formatValue(v)
	}
}

// Int returns an integer field or 0.
func (d Document) Int(key string) int64 {
	switch v := d.Fields[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Bool returns a boolean field or false.
func (d Document) Bool(key string) bool {
	switch v := d.Fields[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return false
	}
}

// Time returns a time field or the zero time.
func (d Document) Time(key string) time.Time {
	switch v := d.Fields[key].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	default:
		return time.Time{}
	}
}

// Timestamp returns the ordering timestamp.
func (d Document) Timestamp() time.Time { return d.Time(TimestampField) }

// Direction orders List results by TimestampField.
type Direction int

const (
	// Ascending orders oldest first.
	Ascending Direction = iota
	// Descending orders newest first.
	Descending
)

// Filter is an equality condition.
type Filter struct {
	Field string
	Value any
}

// Query narrows List results.
type Query struct {
	Where []Filter
	Order Direction
	Limit int
}

// Where returns a query with a single equality filter.
func Where(field string, value any) Query {
	return Query{Where: []Filter{{Field: field, Value: value}}}
}

// UpdateFunc computes the fields to merge from the current snapshot. A nil
// result aborts without writing; a non-nil error aborts and is returned as-is.
type UpdateFunc func(current Document) (Fields, error)

// IncrementOption tunes Increment.
type IncrementOption func(*incrementOptions)

type incrementOptions struct {
	upsert bool
}

// WithUpsert creates the document when it does not exist.
func WithUpsert() IncrementOption {
	return func(o *incrementOptions) { o.upsert = true }
}

func applyIncrementOptions(opts []IncrementOption) incrementOptions {
	var o incrementOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Store is the document store collaborator.
type Store interface {
	// Create inserts a document with a generated id into collection.
	Create(ctx context.Context, collection Path, fields Fields) (Document, error)
	// Insert creates the document at path, failing with ErrExists.
	Insert(ctx context.Context, path Path, fields Fields) (Document, error)
	// Set replaces the document at path.
	Set(ctx context.Context, path Path, fields Fields) error
	// Get reads one document.
	Get(ctx context.Context, path Path) (Document, error)
	// Merge updates the given fields of an existing document.
	Merge(ctx context.Context, path Path, fields Fields) error
	// Delete removes the document, failing with ErrNotFound when missing.
	// Sub-collections are not touched.
	Delete(ctx context.Context, path Path) error
	// Increment atomically adds deltas to integer fields.
	Increment(ctx context.Context, path Path, deltas map[string]int64, opts ...IncrementOption) error
	// Update runs fn as an atomic read-modify-write of a single document.
	Update(ctx context.Context, path Path, fn UpdateFunc) (Document, error)
	// List returns the documents of collection matching q.
	List(ctx context.Context, collection Path, q Query) ([]Document, error)
}

// NewID returns a fresh document id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// normalize checks value types and converts ints and times to canonical form.
func normalize(fields Fields) (Fields, error) {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if k == "" {
			return nil, ErrUnsupportedValue
		}
		switch val := v.(type) {
		case string, bool, int64:
			out[k] = val
		case int:
			out[k] = int64(val)
		case int32:
			out[k] = int64(val)
		case time.Time:
			out[k] = val.UTC()
		default:
			return nil, ErrUnsupportedValue
		}
	}
	return out, nil
}

// withTimestamp returns fields carrying TimestampField.
func withTimestamp(fields Fields, now time.Time) Fields {
	if _, ok := fields[TimestampField]; ok {
		return fields
	}
	out := make(Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[TimestampField] = now.UTC()
	return out
}

// formatValue renders a normalized value the way backends compare it.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		got, ok := doc.Fields[f.Field]
		if !ok {
			return false
		}
		if formatValue(got) != formatValue(f.Value) {
			return false
		}
	}
	return true
}

func normalizeFilters(filters []Filter) ([]Filter, error) {
	out := make([]Filter, 0, len(filters))
	for _, f := range filters {
		normalized, err := normalize(Fields{f.Field: f.Value})
		if err != nil {
			return nil, err
		}
		out = append(out, Filter{Field: f.Field, Value: normalized[f.Field]})
	}
	return out, nil
}

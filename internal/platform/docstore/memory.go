package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store guarded by a single mutex.
type Memory struct {
	mu   sync.Mutex
	docs map[Path]*memoryDoc
	now  func() time.Time
}

type memoryDoc struct {
	fields  Fields
	version int64
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[Path]*memoryDoc), now: time.Now}
}

func (m *Memory) snapshot(path Path, doc *memoryDoc) Document {
	fields := make(Fields, len(doc.fields))
	for k, v := range doc.fields {
		fields[k] = v
	}
	return Document{Path: path, Fields: fields, Version: doc.version}
}

func (m *Memory) Create(ctx context.Context, collection Path, fields Fields) (Document, error) {
	if err := collection.validate(false); err != nil {
		return Document{}, err
	}
	return m.Insert(ctx, collection.Doc(NewID()), fields)
}

func (m *Memory) Insert(ctx context.Context, path Path, fields Fields) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	normalized, err := normalize(withTimestamp(fields, m.now()))
	if err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.docs[path]; exists {
		return Document{}, ErrExists
	}
	doc := &memoryDoc{fields: normalized, version: 1}
	m.docs[path] = doc
	return m.snapshot(path, doc), nil
}

func (m *Memory) Set(ctx context.Context, path Path, fields Fields) error {
	if err := path.validate(true); err != nil {
		return err
	}
	normalized, err := normalize(withTimestamp(fields, m.now()))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	version := int64(1)
	if existing, ok := m.docs[path]; ok {
		version = existing.version + 1
	}
	m.docs[path] = &memoryDoc{fields: normalized, version: version}
	return nil
}

func (m *Memory) Get(ctx context.Context, path Path) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	return m.snapshot(path, doc), nil
}

func (m *Memory) Merge(ctx context.Context, path Path, fields Fields) error {
	if err := path.validate(true); err != nil {
		return err
	}
	normalized, err := normalize(fields)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return ErrNotFound
	}
	for k, v := range normalized {
		doc.fields[k] = v
	}
	doc.version++
	return nil
}

func (m *Memory) Delete(ctx context.Context, path Path) error {
	if err := path.validate(true); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[path]; !ok {
		return ErrNotFound
	}
	delete(m.docs, path)
	return nil
}

func (m *Memory) Increment(ctx context.Context, path Path, deltas map[string]int64, opts ...IncrementOption) error {
	if err := path.validate(true); err != nil {
		return err
	}
	o := applyIncrementOptions(opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		if !o.upsert {
			return ErrNotFound
		}
		doc = &memoryDoc{fields: Fields{TimestampField: m.now().UTC()}}
		m.docs[path] = doc
	}
	current := Document{Fields: doc.fields}
	for field, delta := range deltas {
		doc.fields[field] = current.Int(field) + delta
	}
	doc.version++
	return nil
}

func (m *Memory) Update(ctx context.Context, path Path, fn UpdateFunc) (Document, error) {
	if err := path.validate(true); err != nil {
		return Document{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	patch, err := fn(m.snapshot(path, doc))
	if err != nil {
		return Document{}, err
	}
	if patch == nil {
		return m.snapshot(path, doc), nil
	}
	normalized, err := normalize(patch)
	if err != nil {
		return Document{}, err
	}
	for k, v := range normalized {
		doc.fields[k] = v
	}
	doc.version++
	return m.snapshot(path, doc), nil
}

func (m *Memory) List(ctx context.Context, collection Path, q Query) ([]Document, error) {
	if err := collection.validate(false); err != nil {
		return nil, err
	}
	filters, err := normalizeFilters(q.Where)
	if err != nil {
		return nil, err
	}
	prefix := string(collection) + "/"
	m.mu.Lock()
	out := []Document{}
	for path, doc := range m.docs {
		rest, ok := strings.CutPrefix(string(path), prefix)
		if !ok || strings.Contains(rest, "/") {
			continue
		}
		snap := m.snapshot(path, doc)
		if matches(snap, filters) {
			out = append(out, snap)
		}
	}
	m.mu.Unlock()
	sortByTimestamp(out, q.Order)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func sortByTimestamp(docs []Document, dir Direction) {
	sort.SliceStable(docs, func(i, j int) bool {
		ti, tj := docs[i].Timestamp(), docs[j].Timestamp()
		if ti.Equal(tj) {
			if dir == Descending {
				return docs[i].Path > docs[j].Path
			}
			return docs[i].Path < docs[j].Path
		}
		if dir == Descending {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})
}

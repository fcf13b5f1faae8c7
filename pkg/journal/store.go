package journal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when a key or run does not exist.
var ErrNotFound = errors.New("journal: not found")

// Key is a hierarchical key whose segments are joined by ':'.
// Segments must not contain ':'.
type Key []string

// String returns the encoded key.
func (k Key) String() string { return strings.Join(k, ":") }

func (k Key) encode() []byte { return []byte(k.String()) }

// scanPrefix returns the byte prefix matching k and its descendants only,
// so "run:ab" does not match "run:abc".
func (k Key) scanPrefix() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.encode(), ':')
}

func decodeKey(b []byte) Key {
	if len(b) == 0 {
		return nil
	}
	return strings.Split(string(b), ":")
}

// Entry is a key/value pair returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the key/value backend of a Journal.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error
	Delete(ctx context.Context, key Key) error

	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet writes all entries atomically.
	BatchSet(ctx context.Context, entries []Entry) error

	Close() error
}

var (
	_ Store = (*Badger)(nil)
	_ Store = (*Memory)(nil)
)

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db *badger.DB
}

// BadgerOptions configures a Badger store.
type BadgerOptions struct {
	// Dir holds the database files. Required unless InMemory is set.
	Dir string

	// InMemory keeps everything in memory.
	InMemory bool

	// Logger receives badger's own log output. Defaults to slog.Default().
	Logger *slog.Logger
}

// OpenBadger opens a Badger store.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("journal: BadgerOptions.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	dbOpts = dbOpts.WithLogger(slogBadger{l.With("component", "badger")})
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key Key) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key.encode())
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (b *Badger) Set(_ context.Context, key Key, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key.encode(), value)
	})
}

func (b *Badger) Delete(_ context.Context, key Key) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key.encode())
	})
}

func (b *Badger) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := prefix.scanPrefix()
	return func(yield func(Entry, error) bool) {
		var entries []Entry
		err := b.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = p
			it := txn.NewIterator(opts)
			defer it.Close()
			for it.Seek(p); it.ValidForPrefix(p); it.Next() {
				item := it.Item()
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				entries = append(entries, Entry{Key: decodeKey(item.KeyCopy(nil)), Value: val})
			}
			return nil
		})
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (b *Badger) BatchSet(_ context.Context, entries []Entry) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, e := range entries {
			if err := txn.Set(e.Key.encode(), e.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// slogBadger adapts slog to badger.Logger. Badger's info and debug output is
// chatty, so both go to debug.
type slogBadger struct{ l *slog.Logger }

func (s slogBadger) Errorf(f string, v ...any)   { s.log(slog.LevelError, f, v) }
func (s slogBadger) Warningf(f string, v ...any) { s.log(slog.LevelWarn, f, v) }
func (s slogBadger) Infof(f string, v ...any)    { s.log(slog.LevelDebug, f, v) }
func (s slogBadger) Debugf(f string, v ...any)   { s.log(slog.LevelDebug, f, v) }

func (s slogBadger) log(level slog.Level, f string, v []any) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	s.l.Log(ctx, level, strings.TrimSpace(fmt.Sprintf(f, v...)))
}

// Memory is an in-memory Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key.String()] = bytes.Clone(value)
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key.String())
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := string(prefix.scanPrefix())
	m.mu.RLock()
	var matches []Entry
	for k, v := range m.data {
		if strings.HasPrefix(k, p) {
			matches = append(matches, Entry{Key: decodeKey([]byte(k)), Value: bytes.Clone(v)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Key.String() < matches[j].Key.String()
	})
	return func(yield func(Entry, error) bool) {
		for _, e := range matches {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *Memory) BatchSet(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.data[e.Key.String()] = bytes.Clone(e.Value)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

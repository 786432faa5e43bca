// Package store implements the shared in-memory multi-type key-value
// table that commands execute against.
//
// A key holds exactly one kind of entry at a time: a scalar frame, a
// hash of field to frame, or a set of members. Entries are created
// lazily on first write and live for the process lifetime.
//
// Cross-type policy: reading a key that holds a different kind behaves
// as if the key were absent; writing replaces the entry with the new
// kind. There is no WRONGTYPE error.
package store

import (
	"github.com/okutsen/minidis/internal/resp"
	"github.com/okutsen/minidis/pkg/cmap"
)

type entryKind uint8

const (
	kindScalar entryKind = iota
	kindHash
	kindSet
)

// entry is one typed slot in the table. kind is fixed at construction;
// changing a key's kind replaces the whole entry. The hash and set maps
// are only touched under the owning shard's lock.
type entry struct {
	kind   entryKind
	scalar resp.Frame
	hash   map[string]resp.Frame
	set    map[string]struct{}
}

// FieldValue is one hash field with its value.
type FieldValue struct {
	Field string
	Value resp.Frame
}

// Store is a thread-safe multi-type key-value table. A single logical
// operation (such as "insert member, report whether it was new") is
// atomic with respect to other operations on the same key.
type Store struct {
	entries *cmap.Map[*entry]
}

// New creates an empty store with the default shard count.
func New() *Store {
	return &Store{entries: cmap.New[*entry]()}
}

// NewWithShards creates an empty store with the given shard count.
// shardCount must be a power of 2.
func NewWithShards(shardCount int) *Store {
	return &Store{entries: cmap.NewWithShards[*entry](shardCount)}
}

// Len returns the number of keys currently stored.
func (s *Store) Len() int {
	return s.entries.Count()
}

// Set stores value under key, replacing any previous entry of any kind.
func (s *Store) Set(key string, value resp.Frame) {
	s.entries.Set(key, &entry{kind: kindScalar, scalar: value})
}

// Get returns the scalar value stored under key. A key holding a hash
// or a set reports as absent.
func (s *Store) Get(key string) (resp.Frame, bool) {
	var (
		value resp.Frame
		ok    bool
	)
	s.entries.View(key, func(e *entry, exists bool) {
		if exists && e.kind == kindScalar {
			value, ok = e.scalar, true
		}
	})
	return value, ok
}

// HSet upserts field in the hash stored under key, creating the hash if
// the key is absent or holds a different kind. It reports whether the
// field did not exist before.
func (s *Store) HSet(key, field string, value resp.Frame) bool {
	var isNew bool
	s.entries.Update(key, func(e *entry, exists bool) *entry {
		if !exists || e.kind != kindHash {
			e = &entry{kind: kindHash, hash: make(map[string]resp.Frame)}
		}
		_, present := e.hash[field]
		isNew = !present
		e.hash[field] = value
		return e
	})
	return isNew
}

// HGet returns the value of field in the hash stored under key.
func (s *Store) HGet(key, field string) (resp.Frame, bool) {
	var (
		value resp.Frame
		ok    bool
	)
	s.entries.View(key, func(e *entry, exists bool) {
		if exists && e.kind == kindHash {
			value, ok = e.hash[field]
		}
	})
	return value, ok
}

// HGetAll returns all field-value pairs of the hash stored under key,
// in map iteration order. An absent or differently-typed key yields an
// empty slice.
func (s *Store) HGetAll(key string) []FieldValue {
	var pairs []FieldValue
	s.entries.View(key, func(e *entry, exists bool) {
		if !exists || e.kind != kindHash {
			return
		}
		pairs = make([]FieldValue, 0, len(e.hash))
		for f, v := range e.hash {
			pairs = append(pairs, FieldValue{Field: f, Value: v})
		}
	})
	return pairs
}

// HMGet returns the value for each requested field in input order.
// Missing fields yield a nil frame at their position.
func (s *Store) HMGet(key string, fields []string) []resp.Frame {
	values := make([]resp.Frame, len(fields))
	s.entries.View(key, func(e *entry, exists bool) {
		if !exists || e.kind != kindHash {
			return
		}
		for i, f := range fields {
			if v, ok := e.hash[f]; ok {
				values[i] = v
			}
		}
	})
	return values
}

// SAdd inserts each member into the set stored under key, creating the
// set if the key is absent or holds a different kind. The result holds
// one flag per member in input order: true if that insertion was new.
// A duplicate later in the same call reports false.
func (s *Store) SAdd(key string, members ...string) []bool {
	added := make([]bool, len(members))
	s.entries.Update(key, func(e *entry, exists bool) *entry {
		if !exists || e.kind != kindSet {
			e = &entry{kind: kindSet, set: make(map[string]struct{})}
		}
		for i, m := range members {
			if _, present := e.set[m]; !present {
				e.set[m] = struct{}{}
				added[i] = true
			}
		}
		return e
	})
	return added
}

// SIsMember reports whether member is in the set stored under key.
// An absent or differently-typed key behaves as an empty set.
func (s *Store) SIsMember(key, member string) bool {
	var ok bool
	s.entries.View(key, func(e *entry, exists bool) {
		if exists && e.kind == kindSet {
			_, ok = e.set[member]
		}
	})
	return ok
}

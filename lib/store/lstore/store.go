package lstore

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/ValentinKolb/dHA/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

type storeImpl struct {
	data   *xsync.MapOf[string, []byte]
	closed atomic.Bool
}

// NewLocalStore creates a new local store instance.
// This store implementation is not durable and only lives as long as the process.
func NewLocalStore() store.IStore {
	return &storeImpl{
		data: xsync.NewMapOf[string, []byte](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Set(key string, value []byte) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	s.data.Store(key, clone(value))
	return nil
}

func (s *storeImpl) Get(key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, store.ErrClosed
	}
	val, ok := s.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	return clone(val), true, nil
}

func (s *storeImpl) Delete(keys ...string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	for _, key := range keys {
		s.data.Delete(key)
	}
	return nil
}

func (s *storeImpl) Scan(prefix string) ([]store.Entry, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	var entries []store.Entry
	s.data.Range(func(key string, value []byte) bool {
		if strings.HasPrefix(key, prefix) {
			entries = append(entries, store.Entry{Key: key, Value: clone(value)})
		}
		return true
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *storeImpl) Close() error {
	s.closed.Store(true)
	return nil
}

// clone returns a copy of b, so callers never share memory with the store
func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

package storetest

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/dHA/lib/store"
)

// Factory is a function that creates a new, empty instance of an IStore implementation
type Factory func() store.IStore

// RunStoreTests runs the test suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory Factory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("ScanOrdered", func(t *testing.T) {
			testScanOrdered(t, factory())
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory())
		})

		t.Run("ConcurrentSet", func(t *testing.T) {
			testConcurrentSet(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, s store.IStore) {
	defer s.Close()

	if err := s.Set("key", []byte("value1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, ok, err := s.Get("key")
	if err != nil || !ok {
		t.Fatalf("Expected key to exist after Set (ok=%v, err=%v)", ok, err)
	}
	if !bytes.Equal(val, []byte("value1")) {
		t.Errorf("Expected value1, got %s", val)
	}

	if err := s.Set("key", []byte("value2")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, _, _ = s.Get("key")
	if !bytes.Equal(val, []byte("value2")) {
		t.Errorf("Expected value2 after overwrite, got %s", val)
	}

	// returned values must be copies
	val[0] = 'X'
	again, _, _ := s.Get("key")
	if bytes.Equal(val, again) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	if _, ok, _ := s.Get("missing"); ok {
		t.Errorf("Expected missing key to return ok=false")
	}

	if err := s.Set("empty", nil); err != nil {
		t.Fatalf("Set with nil value failed: %v", err)
	}
	if _, ok, _ := s.Get("empty"); !ok {
		t.Errorf("Expected key with empty value to exist")
	}
}

func testDelete(t *testing.T, s store.IStore) {
	defer s.Close()

	for i := 0; i < 3; i++ {
		_ = s.Set(fmt.Sprintf("k%d", i), []byte("v"))
	}
	if err := s.Delete("k0", "k1", "does-not-exist"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	for i, want := range []bool{false, false, true} {
		if _, ok, _ := s.Get(fmt.Sprintf("k%d", i)); ok != want {
			t.Errorf("k%d: expected exists=%v, got %v", i, want, ok)
		}
	}
	if err := s.Delete(); err != nil {
		t.Errorf("Delete without keys should be a no-op, got %v", err)
	}
}

func testScanOrdered(t *testing.T, s store.IStore) {
	defer s.Close()

	keys := []string{"log/00000000000000000003", "log/00000000000000000001", "active", "log/00000000000000000002", "logx"}
	for _, k := range keys {
		_ = s.Set(k, []byte(k))
	}

	entries, err := s.Scan("log/")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	want := []string{"log/00000000000000000001", "log/00000000000000000002", "log/00000000000000000003"}
	if len(entries) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Key != want[i] {
			t.Errorf("entry %d: expected key %s, got %s", i, want[i], e.Key)
		}
		if string(e.Value) != e.Key {
			t.Errorf("entry %d: expected value %s, got %s", i, e.Key, e.Value)
		}
	}

	all, _ := s.Scan("")
	if len(all) != len(keys) {
		t.Errorf("Scan with empty prefix: expected %d entries, got %d", len(keys), len(all))
	}
}

func testClosed(t *testing.T, s store.IStore) {
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Set("k", []byte("v")); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed on Set after Close, got %v", err)
	}
	if _, _, err := s.Get("k"); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed on Get after Close, got %v", err)
	}
	if _, err := s.Scan(""); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected ErrClosed on Scan after Close, got %v", err)
	}
}

func testConcurrentSet(t *testing.T, s store.IStore) {
	defer s.Close()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := s.Set(fmt.Sprintf("w%d/%03d", w, i), []byte("v")); err != nil {
					t.Errorf("Set failed: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	entries, err := s.Scan("w")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(entries) != workers*perWorker {
		t.Errorf("Expected %d entries, got %d", workers*perWorker, len(entries))
	}
}

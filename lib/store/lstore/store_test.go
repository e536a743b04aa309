package lstore

import (
	"testing"

	"github.com/ValentinKolb/dHA/lib/store"
	"github.com/ValentinKolb/dHA/lib/store/storetest"
)

func Test(t *testing.T) {
	storetest.RunStoreTests(t, "LocalStore", func() store.IStore {
		return NewLocalStore()
	})
}

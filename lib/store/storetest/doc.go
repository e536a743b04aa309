// Package storetest provides a reusable test suite for store.IStore implementations.
//
// Usage:
//
//	func Test(t *testing.T) {
//		storetest.RunStoreTests(t, "LocalStore", func() store.IStore {
//			return lstore.NewLocalStore()
//		})
//	}
package storetest

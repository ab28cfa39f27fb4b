// Package query caches table page results by cache key and runs the
// fetches that fill the cache.
//
// A Client owns the cache. Fetch returns fresh cached data without
// calling the backend; otherwise it runs one fetch per key no matter how
// many callers ask, retrying retryable failures:
//
//	client := query.NewClient[User](query.StaleTime(30*time.Second), query.Retry(2))
//	result, err := client.Fetch(ctx, key, loadUsers)
//
// An Observer follows one key at a time for one consumer and exposes its
// state as a Snapshot: Idle, Loading, Success or Error. When the key
// changes, results for the previous key are discarded, so a consumer
// never sees an older page land after a newer one.
//
// Entries no observer has used for GCTime are evicted by Collect, which
// Run calls periodically.
package query

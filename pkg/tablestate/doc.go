// Package tablestate maps URL query parameters to and from a canonical
// table state.
//
// A table state describes which view of a server-paginated data set is
// requested: page, page size, free-text search, sort field and direction,
// and arbitrary filters. The state lives entirely in the URL so that a
// table view can be shared, bookmarked and survive a refresh.
//
// # Query Format
//
//	page=2&limit=20&search=bob&sort_by=name&sort_order=asc&role=Admin&role=Editor
//
// The keys page, limit, search, sort_by and sort_order are reserved. Every
// other key is a filter. A filter key that occurs once decodes to a scalar
// value; repeated keys decode to an ordered sequence.
//
// # Usage
//
//	state := tablestate.DecodeQuery(r.URL.RawQuery, tablestate.Defaults{Limit: 10})
//	state.Page = 3
//	query := tablestate.Encode(state)
//
//	key := tablestate.CacheKey("users-table", state)
//
// Decoding never fails. Malformed or missing page and limit values are
// replaced by defaults; use DecodeWithReport to see which fields were
// defaulted.
package tablestate

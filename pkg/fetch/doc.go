// Package fetch defines how a table loads one page of data.
//
// A Fetcher turns a tablestate.State into a raw backend response and a
// ResponseAdapter normalizes that response into a PaginatedResult. The
// two are deliberately small so one table can be bound to any paginated
// API:
//
//	fetcher := fetch.NewHTTPFetcher("https://api.example.com/users")
//	adapter := fetch.FieldAdapter[User]{Items: "items", Total: "meta.count"}
//	result, err := fetch.Load(ctx, fetcher, adapter, state)
//
// # Errors
//
// Load reports two kinds of failure. A *FetchError means the backend
// could not be reached or answered with a non-2xx status; it is worth
// retrying. An *AdapterError means the response had an unexpected shape;
// retrying will not help.
package fetch

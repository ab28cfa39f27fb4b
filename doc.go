// Package datatable binds URL-driven table state to a paginated backend.
//
// A Table keeps the table state (page, limit, search, sort and filters)
// in the URL, turns user actions into navigation requests and loads the
// matching page through a cached, de-duplicated query:
//
//	client := query.NewClient[User]()
//	table := datatable.New(client, fetch.NewHTTPFetcher(apiURL), fetch.JSONAdapter[User](),
//	    datatable.WithSearchDebounce(300*time.Millisecond),
//	    datatable.WithNavigationSink(func(req urlparam.NavigationRequest) {
//	        // push or replace req.URL() in the browser
//	    }),
//	)
//	table.Open("/users?page=2&sort_by=name&sort_order=asc")
//	table.SetSearch("ada")
//
// ViewModel returns everything a renderer needs: rows, pagination
// numbers, loading and error state.
//
// The building blocks live in subpackages: tablestate encodes and
// decodes state, urlparam derives navigation requests, fetch defines the
// Fetcher and ResponseAdapter contract, and query caches results.
package datatable

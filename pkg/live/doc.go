// Package live serves a table over a WebSocket.
//
// Each connection opens a datatable.Table from the request's query
// string and then streams JSON frames to the browser:
//
//	{"type":"session","id":"3f0c..."}
//	{"type":"view","view":{"status":"loading",...}}
//	{"type":"navigate","url":"/users?page=2&limit=10","mode":"push"}
//	{"type":"error","code":"T030","message":"Invalid live table message"}
//
// The browser sends one JSON message per user action:
//
//	{"op":"setPage","page":2}
//	{"op":"setLimit","limit":50}
//	{"op":"setSearch","search":"ada"}
//	{"op":"setSorting","sortBy":"name","sortOrder":"desc"}
//	{"op":"setFilters","filters":{"role":["Admin","Editor"]}}
//	{"op":"resetFilters"}
//	{"op":"refresh"}
//	{"op":"open","url":"/users?page=3"}
//
// A navigate frame asks the browser to update its address bar with
// history.pushState or history.replaceState per mode; "open" replays a
// popstate. A rejected message produces an error frame and the session
// continues.
package live

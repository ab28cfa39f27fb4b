// Package config provides configuration for the datatable command.
//
// The configuration is stored in datatable.json. Every field can be
// overridden by an environment variable named after its JSON path with a
// DATATABLE prefix, e.g. DATATABLE_QUERY_STALE_TIME=1m.
//
// # Configuration File Structure
//
//	{
//	  "server":  {"addr": ":8080", "shutdownTimeout": "10s"},
//	  "backend": {"url": "https://api.example.com/users", "filterEncoding": "comma"},
//	  "table": {
//	    "baseKey": "server-table",
//	    "defaultLimit": 10,
//	    "pageSizeOptions": [10, 20, 50, 100],
//	    "searchDebounce": "300ms"
//	  },
//	  "query": {"staleTime": "30s", "gcTime": "5m", "retry": 2, "retryDelay": "1s"},
//	  "mock":  {"users": 100, "seed": 1, "latency": "300ms", "rateLimit": 120},
//	  "log":   {"format": "text", "level": "info"}
//	}
//
// An empty backend.url serves the bundled mock users API. Setting
// query.redisAddr shares cached query results through Redis.
package config

// Package mockapi is an in-memory users backend for demos and tests.
//
// GET /api/users accepts page, limit, search, sort_by and sort_order plus
// the role, status, joinedDateFrom, joinedDateTo, lastActiveDateFrom and
// lastActiveDateTo filters, and answers with
//
//	{"data":[...],"total":100,"page":1,"limit":10,"totalPages":10}
//
// Errors are RFC 7807 problem documents.
package mockapi

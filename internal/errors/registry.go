package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// Registered error codes.
const (
	CodeDecodeDefaulted  = "T001"
	CodeFetchFailed      = "T010"
	CodeAdapterFailed    = "T011"
	CodeRetriesExhausted = "T012"
	CodeConfigMissing    = "T020"
	CodeConfigParse      = "T021"
	CodeConfigInvalid    = "T022"
	CodeProtocol         = "T030"
	CodeInvalidArgument  = "T040"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Decode (T001-T009)
	// ============================================

	CodeDecodeDefaulted: {
		Category: CategoryDecode,
		Message:  "URL parameter replaced by default",
		Detail:   "A malformed page, limit or sort_order value was ignored and the default used instead.",
		DocURL:   "https://vango.dev/docs/datatable/errors/T001",
	},

	// ============================================
	// Fetch / adapter (T010-T019)
	// ============================================

	CodeFetchFailed: {
		Category: CategoryFetch,
		Message:  "Failed to load data",
		Detail:   "The backend request did not succeed.",
		DocURL:   "https://vango.dev/docs/datatable/errors/T010",
	},
	CodeAdapterFailed: {
		Category: CategoryAdapter,
		Message:  "Unexpected response shape",
		Detail:   "The backend response could not be normalized into a paginated result.",
		DocURL:   "https://vango.dev/docs/datatable/errors/T011",
	},
	CodeRetriesExhausted: {
		Category: CategoryFetch,
		Message:  "Retries exhausted",
		Detail:   "Every retry of the backend request failed.",
		DocURL:   "https://vango.dev/docs/datatable/errors/T012",
	},

	// ============================================
	// Config (T020-T029)
	// ============================================

	CodeConfigMissing: {
		Category: CategoryConfig,
		Message:  "Config file not found",
		DocURL:   "https://vango.dev/docs/datatable/errors/T020",
	},
	CodeConfigParse: {
		Category: CategoryConfig,
		Message:  "Invalid config file",
		DocURL:   "https://vango.dev/docs/datatable/errors/T021",
	},
	CodeConfigInvalid: {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		DocURL:   "https://vango.dev/docs/datatable/errors/T022",
	},

	// ============================================
	// Live protocol (T030-T039)
	// ============================================

	CodeProtocol: {
		Category: CategoryProtocol,
		Message:  "Invalid live table message",
		DocURL:   "https://vango.dev/docs/datatable/errors/T030",
	},

	// ============================================
	// CLI (T040-T049)
	// ============================================

	CodeInvalidArgument: {
		Category: CategoryCLI,
		Message:  "Invalid argument",
		DocURL:   "https://vango.dev/docs/datatable/errors/T040",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

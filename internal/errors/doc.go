// Package errors provides coded, actionable errors for the datatable
// command line and runtime.
//
// Every error carries a registered code (T0xx), a category, a short
// message and optionally a detail, a fix suggestion and the wrapped
// cause:
//
//	err := errors.New(errors.CodeConfigInvalid).
//	    WithDetail("limit must be at least 1").
//	    WithSuggestion(`Set "defaultLimit" in datatable.json`)
//
// # Codes
//
//	T001        URL parameter replaced by default
//	T010-T012   Fetch and adapter failures
//	T020-T022   Configuration
//	T030        Live protocol
//	T040        CLI arguments
//
// # Output
//
// Format renders a colored block for terminals, FormatCompact a single
// line for logs and FormatJSON a machine-readable object. DisableColors
// turns off ANSI escapes.
package errors

package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	datatable "github.com/vango-dev/datatable"
	"github.com/vango-dev/datatable/internal/errors"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

func encodeCmd() *cobra.Command {
	var (
		page, limit int
		search      string
		sortBy      string
		sortOrder   string
		filters     []string
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Build a table query string",
		Long: `Build the query string for a table state.

Repeat --filter for several keys or for several values of one key.

Examples:
  datatable encode --page=2 --limit=20 --search=bob
  datatable encode --sort-by=name --sort-order=desc --filter role=Admin --filter role=Editor`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := tablestate.New(tablestate.Defaults{})
			if page < 1 || limit < 1 {
				return invalidArg("page and limit must be at least 1")
			}
			s.Page, s.Limit, s.Search, s.SortBy = page, limit, search, sortBy

			if sortOrder != "" {
				order, ok := tablestate.ParseSortOrder(sortOrder)
				if !ok {
					return invalidArg("sort order must be asc or desc, got %q", sortOrder)
				}
				s.SortOrder = order
			}

			f, err := parseFilters(filters)
			if err != nil {
				return err
			}
			s.Filters = f

			fmt.Fprintln(cmd.OutOrStdout(), tablestate.Encode(s.Normalize()))
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", tablestate.DefaultPage, "Page number")
	cmd.Flags().IntVar(&limit, "limit", tablestate.DefaultLimit, "Rows per page")
	cmd.Flags().StringVar(&search, "search", "", "Search text")
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "Sort field")
	cmd.Flags().StringVar(&sortOrder, "sort-order", "", "Sort order (asc or desc)")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter as key=value (repeatable)")

	return cmd
}

// parseFilters turns key=value pairs into filters. A key given more
// than once becomes a multi-valued filter.
func parseFilters(pairs []string) (tablestate.Filters, error) {
	seen := make(map[string][]string)
	var order []string
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, invalidArg("filter must be key=value, got %q", p)
		}
		if tablestate.IsReserved(key) {
			return nil, invalidArg("%q is a reserved parameter, use its own flag", key)
		}
		if _, ok := seen[key]; !ok {
			order = append(order, key)
		}
		seen[key] = append(seen[key], value)
	}

	f := make(tablestate.Filters, len(seen))
	for _, key := range order {
		vals := seen[key]
		if len(vals) == 1 {
			f[key] = tablestate.Scalar(vals[0])
		} else {
			f[key] = tablestate.Multi(vals...)
		}
	}
	return f, nil
}

func decodeCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "decode <query|url>",
		Short: "Print the table state of a query string",
		Long: `Decode a query string or URL into a table state and print it as JSON.
Malformed page, limit or sort_order values are replaced by defaults
and reported on stderr.

Examples:
  datatable decode 'page=2&limit=20&role=Admin&role=Editor'
  datatable decode 'http://localhost:8080/users?sort_by=name&sort_order=desc'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := queryValues(args[0])
			if err != nil {
				return err
			}
			s, report := tablestate.DecodeWithReport(values, tablestate.Defaults{Limit: limit})
			for _, param := range report.Defaulted {
				te := errors.New(errors.CodeDecodeDefaulted).WithDetail(param)
				fmt.Fprintln(cmd.ErrOrStderr(), te.Error())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		},
	}

	cmd.Flags().IntVar(&limit, "default-limit", tablestate.DefaultLimit, "Limit used when the query has none")

	return cmd
}

func keyCmd() *cobra.Command {
	var base string

	cmd := &cobra.Command{
		Use:   "key <query|url>",
		Short: "Print the cache key of a query string",
		Long: `Print the query cache key for a table URL. Two URLs that load the
same data print the same key, whatever their filter order.

Example:
  datatable key --base=users 'status=active&role=Admin'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := queryValues(args[0])
			if err != nil {
				return err
			}
			s := tablestate.Decode(values, tablestate.Defaults{})
			fmt.Fprintln(cmd.OutOrStdout(), tablestate.CacheKey(base, s).String())
			return nil
		},
	}

	cmd.Flags().StringVar(&base, "base", datatable.DefaultBaseKey, "Cache key namespace")

	return cmd
}

// queryValues accepts a bare query string, "?query" or a full URL.
func queryValues(arg string) (url.Values, error) {
	raw := arg
	if strings.Contains(arg, "://") || strings.HasPrefix(arg, "/") {
		u, err := url.Parse(arg)
		if err != nil {
			return nil, invalidArg("invalid URL %q", arg)
		}
		raw = u.RawQuery
	}
	values, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return nil, invalidArg("invalid query string: %v", err)
	}
	return values, nil
}

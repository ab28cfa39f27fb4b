package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vango-dev/datatable/internal/errors"
	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/query"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

type row = map[string]any

type fetchOptions struct {
	retry    int
	timeout  time.Duration
	encoding string
	columns  []string
	asJSON   bool
}

func fetchCmd() *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch one page from a paginated JSON API",
		Long: `Fetch one page the way a table would: the URL's query string is
decoded into a table state, re-encoded for the backend, and the
response is normalized and printed.

The backend must answer {"data":[...],"total":N,"page":P,"limit":L}.

Examples:
  datatable fetch 'http://localhost:8080/api/users?page=2&sort_by=name'
  datatable fetch --columns=id,name,role --encoding=comma 'http://localhost:8080/api/users?role=Admin&role=Editor'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.retry, "retry", query.DefaultRetry, "Retries after a failed request")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "Per-request timeout")
	cmd.Flags().StringVar(&opts.encoding, "encoding", "repeat", "Multi-value filter encoding (repeat or comma)")
	cmd.Flags().StringSliceVar(&opts.columns, "columns", nil, "Columns to print (default: all)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the normalized result as JSON")

	return cmd
}

func runFetch(cmd *cobra.Command, rawURL string, opts fetchOptions) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalidArg("expected an absolute URL, got %q", rawURL)
	}
	encoding, err := fetch.ParseFilterEncoding(opts.encoding)
	if err != nil {
		return invalidArg("%v", err)
	}

	s := tablestate.Decode(u.Query(), tablestate.Defaults{})
	base := *u
	base.RawQuery = ""

	f := fetch.NewHTTPFetcher(base.String(),
		fetch.WithHTTPClient(&http.Client{Timeout: opts.timeout}),
		fetch.WithFilterEncoding(encoding),
	)
	client := query.NewClient[row](
		query.Retry(opts.retry),
		query.RetryDelay(query.ExponentialDelay(500*time.Millisecond, 5*time.Second)),
		query.WithHooks(query.Hooks{
			OnRetry: func(_ tablestate.Key, attempt int, err error) {
				fmt.Fprintf(cmd.ErrOrStderr(), "retry %d after: %v\n", attempt, err)
			},
		}),
	)

	res, err := client.Fetch(cmd.Context(), tablestate.CacheKey("fetch", s), func(ctx context.Context) (fetch.PaginatedResult[row], error) {
		return fetch.Load(ctx, f, fetch.JSONAdapter[row](), s)
	})
	if err != nil {
		switch {
		case fetch.IsAdapterError(err):
			return errors.FromError(err, errors.CodeAdapterFailed)
		case opts.retry > 0 && fetch.Retryable(err):
			return errors.New(errors.CodeRetriesExhausted).
				WithDetail(fmt.Sprintf("%d attempts failed, last: %v", opts.retry+1, err)).
				WithSuggestion("Check the backend is reachable or raise --retry").
				Wrap(err)
		}
		return errors.FromError(err, errors.CodeFetchFailed)
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return printTable(out, res, opts.columns)
}

// printTable writes rows as aligned columns followed by a page summary.
func printTable(w io.Writer, res fetch.PaginatedResult[row], columns []string) error {
	if len(res.Items) == 0 {
		fmt.Fprintln(w, "No results.")
	} else {
		if len(columns) == 0 {
			columns = columnsOf(res.Items)
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		header := make([]string, len(columns))
		for i, c := range columns {
			header[i] = strings.ToUpper(c)
		}
		fmt.Fprintln(tw, strings.Join(header, "\t"))
		for _, item := range res.Items {
			cells := make([]string, len(columns))
			for i, c := range columns {
				if v, ok := item[c]; ok && v != nil {
					cells[i] = fmt.Sprint(v)
				}
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "\nPage %d of %d (%d total)\n", res.Page, res.DisplayPages(), res.Total)
	return nil
}

// columnsOf returns every key seen in items, sorted, with "id" first.
func columnsOf(items []row) []string {
	var cols []string
	for _, item := range items {
		for k := range item {
			if !slices.Contains(cols, k) {
				cols = append(cols, k)
			}
		}
	}
	slices.SortFunc(cols, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == "id":
			return -1
		case b == "id":
			return 1
		}
		return strings.Compare(a, b)
	})
	return cols
}

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/vango-dev/datatable/pkg/tablestate"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 16 << 20

// FilterEncoding selects how multi-valued filters are sent to the backend.
type FilterEncoding int

const (
	// EncodingRepeat sends one parameter per value: role=a&role=b.
	EncodingRepeat FilterEncoding = iota
	// EncodingComma joins values: role=a,b.
	EncodingComma
)

// ParseFilterEncoding maps "repeat" and "comma" to a FilterEncoding.
func ParseFilterEncoding(s string) (FilterEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "repeat":
		return EncodingRepeat, nil
	case "comma":
		return EncodingComma, nil
	}
	return EncodingRepeat, fmt.Errorf("unknown filter encoding %q", s)
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.header.Add(key, value)
	}
}

// WithFilterEncoding sets how multi-valued filters are encoded.
func WithFilterEncoding(e FilterEncoding) HTTPOption {
	return func(f *HTTPFetcher) {
		f.encoding = e
	}
}

// WithCircuitBreaker guards requests with a circuit breaker. While the
// breaker is open requests fail fast with a *FetchError.
func WithCircuitBreaker(st gobreaker.Settings) HTTPOption {
	return func(f *HTTPFetcher) {
		if st.Name == "" {
			st.Name = f.baseURL
		}
		f.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

// HTTPFetcher GETs baseURL with the table state encoded in the query
// string and returns the response body.
type HTTPFetcher struct {
	baseURL  string
	client   *http.Client
	header   http.Header
	encoding FilterEncoding
	breaker  *gobreaker.CircuitBreaker
}

// NewHTTPFetcher creates a fetcher for baseURL. Query parameters already
// present in baseURL are kept and sent before the table parameters.
func NewHTTPFetcher(baseURL string, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		baseURL: baseURL,
		client:  http.DefaultClient,
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL returns the request URL for s. Parameters fixed in the base URL are
// kept unless the table state owns the key: reserved keys and the keys of
// active filters always come from s.
func (f *HTTPFetcher) URL(s tablestate.State) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", err
	}
	query := f.encode(s)
	if u.RawQuery != "" {
		base, err := url.ParseQuery(u.RawQuery)
		if err != nil {
			return "", err
		}
		for k := range base {
			if _, ok := s.Filters[k]; ok || tablestate.IsReserved(k) {
				delete(base, k)
			}
		}
		if len(base) > 0 {
			query = base.Encode() + "&" + query
		}
	}
	u.RawQuery = query
	return u.String(), nil
}

func (f *HTTPFetcher) encode(s tablestate.State) string {
	if f.encoding != EncodingComma {
		return tablestate.Encode(s)
	}
	params := tablestate.Params(s)
	joined := make([]tablestate.Param, 0, len(params))
	index := make(map[string]int)
	for _, p := range params {
		if tablestate.IsReserved(p.Key) {
			joined = append(joined, p)
			continue
		}
		if i, ok := index[p.Key]; ok {
			joined[i].Value += "," + p.Value
			continue
		}
		index[p.Key] = len(joined)
		joined = append(joined, p)
	}
	return tablestate.EncodeParams(joined)
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, s tablestate.State) ([]byte, error) {
	if f.breaker == nil {
		return f.do(ctx, s)
	}
	body, err := f.breaker.Execute(func() (interface{}, error) {
		return f.do(ctx, s)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{Status: http.StatusServiceUnavailable, Message: "backend unavailable", Err: err}
		}
		return nil, err
	}
	return body.([]byte), nil
}

func (f *HTTPFetcher) do(ctx context.Context, s tablestate.State) ([]byte, error) {
	target, err := f.URL(s)
	if err != nil {
		return nil, &FetchError{Message: "invalid backend URL", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Message: "building request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range f.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Status: resp.StatusCode, Message: "reading response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	return body, nil
}

// errorMessage prefers a message from a JSON error body ({"error": ...}
// or an RFC 7807 problem), then a short plain-text body, then the status
// text.
func errorMessage(status int, body []byte) string {
	var problem struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
		Title   string `json:"title"`
	}
	if json.Unmarshal(body, &problem) == nil {
		for _, m := range []string{problem.Detail, problem.Message, problem.Error, problem.Title} {
			if m != "" {
				return m
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" || len(msg) > 200 || strings.ContainsAny(msg, "\n<{") {
		return http.StatusText(status)
	}
	return msg
}

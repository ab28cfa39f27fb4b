package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	datatable "github.com/vango-dev/datatable"
	"github.com/vango-dev/datatable/pkg/fetch"
	"github.com/vango-dev/datatable/pkg/query"
	"github.com/vango-dev/datatable/pkg/tablestate"
)

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type testFrame struct {
	Type    FrameType                 `json:"type"`
	ID      string                    `json:"id"`
	URL     string                    `json:"url"`
	Mode    string                    `json:"mode"`
	View    *datatable.ViewModel[user] `json:"view"`
	Code    string                    `json:"code"`
	Message string                    `json:"message"`
	Detail  string                    `json:"detail"`
}

func usersFetcher(n int) fetch.Fetcher[fetch.PaginatedResult[user]] {
	return fetch.FetcherFunc[fetch.PaginatedResult[user]](func(_ context.Context, s tablestate.State) (fetch.PaginatedResult[user], error) {
		var all []user
		for i := 1; i <= n; i++ {
			all = append(all, user{ID: i, Name: fmt.Sprintf("user %d", i)})
		}
		start := min(s.Offset(), len(all))
		end := min(start+s.Limit, len(all))
		return fetch.NewPaginatedResult(all[start:end], len(all), s.Page, s.Limit), nil
	})
}

type recorder struct {
	opened, closed chan struct{}
}

func (r *recorder) SessionOpened() { r.opened <- struct{}{} }
func (r *recorder) SessionClosed() { r.closed <- struct{}{} }

func startServer(t *testing.T, opts ...Option) (*Handler[fetch.PaginatedResult[user], user], *httptest.Server) {
	t.Helper()
	h := NewHandler(query.NewClient[user](), usersFetcher(42), nil, opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, pathAndQuery string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + pathAndQuery
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%q) error = %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(testFrame) bool) testFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		var f testFrame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("frame %s: %v", data, err)
		}
		if match(f) {
			return f
		}
	}
}

func loadedView(f testFrame) bool {
	return f.Type == FrameView && f.View != nil && f.View.Status == query.Success && !f.View.Fetching
}

func send(t *testing.T, conn *websocket.Conn, msg any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
}

func TestSessionOpensFromQuery(t *testing.T) {
	_, srv := startServer(t, WithPagePath("/users"))
	conn := dial(t, srv, "/live?page=2&limit=5")

	hello := readUntil(t, conn, func(f testFrame) bool { return true })
	if hello.Type != FrameSession || hello.ID == "" {
		t.Fatalf("first frame = %+v, want session", hello)
	}

	f := readUntil(t, conn, loadedView)
	if f.View.Page != 2 || len(f.View.Items) != 5 || f.View.Items[0].ID != 6 {
		t.Errorf("view = %+v", f.View)
	}
	if f.View.URL != "/users?page=2&limit=5" {
		t.Errorf("view URL = %q", f.View.URL)
	}
	if f.View.TotalPages != 9 {
		t.Errorf("TotalPages = %d, want 9", f.View.TotalPages)
	}
}

func TestSessionActions(t *testing.T) {
	_, srv := startServer(t)
	conn := dial(t, srv, "/users")
	readUntil(t, conn, loadedView)

	send(t, conn, Message{Op: OpSetPage, Page: 3})
	nav := readUntil(t, conn, func(f testFrame) bool { return f.Type == FrameNavigate })
	if nav.URL != "/users?page=3&limit=10" || nav.Mode != "push" {
		t.Errorf("navigate = %+v", nav)
	}
	view := readUntil(t, conn, loadedView)
	if view.View.Page != 3 || view.View.Items[0].ID != 21 {
		t.Errorf("page 3 view = %+v", view.View)
	}

	send(t, conn, Message{Op: OpSetSorting, SortBy: "name", SortOrder: "desc"})
	nav = readUntil(t, conn, func(f testFrame) bool { return f.Type == FrameNavigate })
	if nav.URL != "/users?page=3&limit=10&sort_by=name&sort_order=desc" {
		t.Errorf("sorting navigate = %q", nav.URL)
	}

	send(t, conn, Message{Op: OpSetFilters, Filters: tablestate.Filters{"role": tablestate.Multi("Admin", "Editor")}})
	nav = readUntil(t, conn, func(f testFrame) bool { return f.Type == FrameNavigate })
	if nav.URL != "/users?page=1&limit=10&sort_by=name&sort_order=desc&role=Admin&role=Editor" {
		t.Errorf("filters navigate = %q", nav.URL)
	}

	send(t, conn, Message{Op: OpSetSearch, Search: "bob"})
	nav = readUntil(t, conn, func(f testFrame) bool { return f.Type == FrameNavigate })
	if nav.Mode != "replace" {
		t.Errorf("search mode = %q, want replace", nav.Mode)
	}
}

func TestSessionRejectsBadMessages(t *testing.T) {
	_, srv := startServer(t)
	conn := dial(t, srv, "/users")
	readUntil(t, conn, loadedView)

	tests := []struct {
		name   string
		raw    string
		detail string
	}{
		{"unknown op", `{"op":"explode"}`, `unknown op "explode"`},
		{"malformed", `{"op":`, "malformed message"},
		{"bad page", `{"op":"setPage","page":0}`, "page must be at least 1"},
		{"bad order", `{"op":"setSorting","sortBy":"name","sortOrder":"sideways"}`, `unknown sort order "sideways"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatal(err)
			}
			f := readUntil(t, conn, func(f testFrame) bool { return f.Type == FrameError })
			if f.Code != "T030" || f.Detail != tt.detail {
				t.Errorf("error frame = %+v", f)
			}
		})
	}

	// The session is still usable.
	send(t, conn, Message{Op: OpSetLimit, Limit: 20})
	view := readUntil(t, conn, func(f testFrame) bool { return loadedView(f) && f.View.Limit == 20 })
	if len(view.View.Items) != 20 {
		t.Errorf("items = %d, want 20", len(view.View.Items))
	}
}

func TestSessionOpenReplaysHistory(t *testing.T) {
	_, srv := startServer(t)
	conn := dial(t, srv, "/users?page=4")
	readUntil(t, conn, loadedView)

	send(t, conn, Message{Op: OpOpen, URL: "/users?page=1&limit=20"})
	view := readUntil(t, conn, func(f testFrame) bool { return loadedView(f) && f.View.Page == 1 })
	if view.View.Limit != 20 {
		t.Errorf("limit = %d", view.View.Limit)
	}
}

func TestHandlerTracksSessions(t *testing.T) {
	rec := &recorder{opened: make(chan struct{}, 1), closed: make(chan struct{}, 1)}
	h, srv := startServer(t, WithSessionRecorder(rec))

	conn := dial(t, srv, "/users")
	readUntil(t, conn, loadedView)
	<-rec.opened
	if n := h.SessionCount(); n != 1 {
		t.Errorf("SessionCount() = %d, want 1", n)
	}

	h.Close()
	select {
	case <-rec.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("session did not close")
	}
	if n := h.SessionCount(); n != 0 {
		t.Errorf("SessionCount() after Close = %d", n)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("close error = %v, want going away", err)
			}
			break
		}
	}
}

package live

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	datatable "github.com/vango-dev/datatable"
	"github.com/vango-dev/datatable/internal/errors"
	"github.com/vango-dev/datatable/pkg/query"
	"github.com/vango-dev/datatable/pkg/tablestate"
	"github.com/vango-dev/datatable/pkg/urlparam"
)

type session[R, T any] struct {
	id     string
	conn   *websocket.Conn
	table  *datatable.Table[R, T]
	config handlerConfig
	logger *slog.Logger

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// run opens the table at pageURL and blocks until the connection ends.
func (s *session[R, T]) run(pageURL string) {
	unsubscribe := s.table.Subscribe(s.snapshot)
	defer func() {
		unsubscribe()
		s.table.Close()
		s.close(websocket.CloseNormalClosure, "")
	}()

	s.write(Frame{Type: FrameSession, ID: s.id})
	s.table.Open(pageURL)

	go s.pingLoop()
	s.readLoop()
}

func (s *session[R, T]) readLoop() {
	s.conn.SetReadLimit(s.config.readLimit)
	s.conn.SetReadDeadline(time.Now().Add(s.config.readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.config.readTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(s.config.readTimeout))

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.fail(errors.New(errors.CodeProtocol).WithDetail("malformed message").Wrap(err))
			continue
		}
		if err := s.handle(msg); err != nil {
			s.fail(err)
		}
	}
}

func (s *session[R, T]) handle(msg Message) error {
	s.logger.Debug("live message", "op", msg.Op)

	switch msg.Op {
	case OpSetPage:
		if msg.Page < 1 {
			return protocolError("page must be at least 1")
		}
		s.table.SetPage(msg.Page)
	case OpSetLimit:
		if msg.Limit < 1 {
			return protocolError("limit must be at least 1")
		}
		s.table.SetLimit(msg.Limit)
	case OpSetSearch:
		s.table.SetSearch(msg.Search)
	case OpSetSorting:
		order := tablestate.SortNone
		if msg.SortOrder != "" {
			o, ok := tablestate.ParseSortOrder(msg.SortOrder)
			if !ok {
				return protocolError(fmt.Sprintf("unknown sort order %q", msg.SortOrder))
			}
			order = o
		}
		s.table.SetSorting(msg.SortBy, order)
	case OpSetFilters:
		s.table.SetFilters(msg.Filters)
	case OpResetFilters:
		s.table.ResetFilters()
	case OpRefresh:
		s.table.Refresh()
	case OpFlushSearch:
		s.table.FlushSearch()
	case OpOpen:
		if msg.URL == "" {
			return protocolError("open needs a url")
		}
		s.table.Open(msg.URL)
	default:
		return protocolError(fmt.Sprintf("unknown op %q", msg.Op))
	}
	return nil
}

func protocolError(detail string) error {
	return errors.New(errors.CodeProtocol).WithDetail(detail)
}

func (s *session[R, T]) fail(err error) {
	te := errors.FromError(err, errors.CodeProtocol)
	s.logger.Warn("rejected live message", "error", err)
	s.write(Frame{Type: FrameError, Code: te.Code, Message: te.Message, Detail: te.Detail})
}

// snapshot is the table subscriber.
func (s *session[R, T]) snapshot(snap query.Snapshot[T]) {
	s.write(Frame{Type: FrameView, View: s.table.ViewOf(snap)})
}

// navigated is the table's navigation sink.
func (s *session[R, T]) navigated(req urlparam.NavigationRequest) {
	s.write(Frame{Type: FrameNavigate, URL: req.URL(), Mode: req.Mode.String()})
}

func (s *session[R, T]) write(f Frame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.config.writeTimeout))
	if err := s.conn.WriteJSON(f); err != nil {
		s.logger.Debug("write failed", "type", f.Type, "error", err)
	}
}

func (s *session[R, T]) pingLoop() {
	if s.config.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.config.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.config.writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				s.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// close sends a close frame once and tears down the connection, which
// ends the read loop.
func (s *session[R, T]) close(code int, reason string) {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(s.config.writeTimeout))
		s.writeMu.Unlock()
		s.conn.Close()
	})
}

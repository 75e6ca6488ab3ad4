package source

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	data []byte
	err  error
}

// WebSocketSource appends the payload of every received WebSocket message
// to the buffer. A read error poisons a gorilla connection, so reads run in
// a dedicated goroutine and Reload waits on its channel with the window.
type WebSocketSource struct {
	conn     *websocket.Conn
	buffer   *Buffer
	timeout  time.Duration
	messages chan wsMessage
	done     chan struct{}
	once     sync.Once
	eof      bool
}

// DialWebSocket connects to url. timeout <= 0 selects DefaultTimeout.
func DialWebSocket(ctx context.Context, url string, header http.Header, timeout time.Duration) (*WebSocketSource, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, setupFailed("ws", "could not connect to "+url, err)
	}
	return NewWebSocketSource(conn, timeout), nil
}

// NewWebSocketSource wraps an established connection and starts its reader.
func NewWebSocketSource(conn *websocket.Conn, timeout time.Duration) *WebSocketSource {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &WebSocketSource{
		conn:     conn,
		buffer:   NewBuffer(DefaultChunkSize),
		timeout:  timeout,
		messages: make(chan wsMessage),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *WebSocketSource) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		select {
		case s.messages <- wsMessage{data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// Reload waits up to the window for one message.
func (s *WebSocketSource) Reload(ctx context.Context, _ *Filter) (*ReloadInfo, error) {
	if s.eof {
		return nil, nil
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return &ReloadInfo{AvailableBytes: s.buffer.Len()}, nil
	case m := <-s.messages:
		if m.err != nil {
			if websocket.IsCloseError(m.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.eof = true
				return nil, nil
			}
			return nil, unrecoverable("ws", "read failed", m.err)
		}
		_, _ = s.buffer.Write(m.data)
		return &ReloadInfo{
			NewlyLoadedBytes:   len(m.data),
			AvailableBytes:     s.buffer.Len(),
			LastKnownTimestamp: receivedAt(len(m.data)),
		}, nil
	}
}

// CurrentSlice returns the unconsumed bytes.
func (s *WebSocketSource) CurrentSlice() []byte { return s.buffer.Bytes() }

// Consume releases processed bytes.
func (s *WebSocketSource) Consume(offset int) { s.buffer.Consume(offset) }

// Len returns the number of unconsumed bytes.
func (s *WebSocketSource) Len() int { return s.buffer.Len() }

// IsEmpty reports whether no unconsumed bytes are buffered.
func (s *WebSocketSource) IsEmpty() bool { return s.buffer.Len() == 0 }

// Close stops the reader and closes the connection.
func (s *WebSocketSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}

package feedloader

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// LiveTailer streams a live market feed purely for operator visibility while
// a backtest replays the corresponding historical window side by side — it
// never feeds the deterministic core and carries no influence over a run's
// outcome or fingerprint. Disabled by default; SPEC_FULL.md §11 notes this
// is the teacher's gorilla/websocket dependency's home in this domain,
// generalized from internal/exchange/ws.go's reconnecting read-loop shape.
type LiveTailer struct {
	url    string
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	onEvent func(raw json.RawMessage)
}

func NewLiveTailer(url string, onEvent func(raw json.RawMessage), logger *slog.Logger) *LiveTailer {
	return &LiveTailer{url: url, onEvent: onEvent, logger: logger}
}

// Start connects and reads frames until Stop is called or the connection
// drops. It is the caller's responsibility to run Start in its own
// goroutine; it never touches any core data structure directly.
func (t *LiveTailer) Start() error {
	conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
	if err != nil {
		return fmt.Errorf("live tail dial %s: %w", t.url, err)
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	for {
		t.mu.Lock()
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return nil
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if t.logger != nil {
				t.logger.Warn("live tail read error", "url", t.url, "err", err)
			}
			return err
		}
		if t.onEvent != nil {
			t.onEvent(json.RawMessage(raw))
		}
	}
}

func (t *LiveTailer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.conn != nil {
		_ = t.conn.Close()
	}
}

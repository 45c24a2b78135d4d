package supabase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"predictionclub/internal/gateway"
	"predictionclub/internal/logger"
)

// HeartbeatInterval is how often the realtime socket is kept alive
var HeartbeatInterval = 30 * time.Second

// websocketURL converts the project URL to the realtime endpoint
func (c *Client) websocketURL() string {
	wsURL := c.baseURL
	switch {
	case strings.HasPrefix(wsURL, "https"):
		wsURL = "wss" + wsURL[5:]
	case strings.HasPrefix(wsURL, "http"):
		wsURL = "ws" + wsURL[4:]
	}
	return wsURL + "/realtime/v1/websocket?apikey=" + c.apiKey + "&vsn=1.0.0"
}

// watch is one realtime channel on its own socket
type watch struct {
	mu   sync.Mutex
	conn *websocket.Conn
	ref  int
	done chan struct{}
	once sync.Once
}

func (w *watch) send(msg map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ref++
	msg["ref"] = fmt.Sprintf("%d", w.ref)
	return w.conn.WriteJSON(msg)
}

func (w *watch) close() {
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.mu.Unlock()
		w.conn.Close()
	})
}

// WatchCollection subscribes to inserts and updates of a table. The handler runs
// on the socket's reader goroutine. stop closes the socket.
func (c *Client) WatchCollection(ctx context.Context, collection string, handler gateway.ChangeHandler) (func(), error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.websocketURL(), nil)
	if err != nil {
		return nil, &gateway.BackendError{Collection: collection, Err: fmt.Errorf("websocket dial: %w", err)}
	}

	w := &watch{conn: conn, done: make(chan struct{})}
	topic := "realtime:public:" + collection
	join := map[string]any{
		"topic": topic,
		"event": "phx_join",
		"payload": map[string]any{
			"config": map[string]any{
				"postgres_changes": []map[string]string{
					{"event": "*", "schema": "public", "table": collection},
				},
			},
			"access_token": c.bearer(),
		},
	}
	if err := w.send(join); err != nil {
		conn.Close()
		return nil, &gateway.BackendError{Collection: collection, Err: fmt.Errorf("send join: %w", err)}
	}

	go w.readLoop(topic, collection, handler)
	go w.heartbeat()

	return w.close, nil
}

func (w *watch) readLoop(topic, collection string, handler gateway.ChangeHandler) {
	defer w.close()
	for {
		_, message, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
			default:
				logger.Debug("", "realtime_closed", fmt.Sprintf("collection=%s error=%v", collection, err))
			}
			return
		}

		msg := gjson.ParseBytes(message)
		if msg.Get("topic").String() != topic || msg.Get("event").String() != "postgres_changes" {
			continue
		}
		data := msg.Get("payload.data")
		switch data.Get("type").String() {
		case "INSERT", "UPDATE":
			record := data.Get("record")
			if !record.IsObject() {
				continue
			}
			handler(collection, toRow(record))
		}
	}
}

func (w *watch) heartbeat() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			err := w.send(map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
			})
			if err != nil {
				logger.Debug("", "realtime_heartbeat_failed", err.Error())
				return
			}
		}
	}
}

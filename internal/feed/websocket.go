package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"vitalsops/internal/telemetry"
)

// VitalsEvent is the push event carrying one reading.
const VitalsEvent = "newVitals"

// Frame is the websocket envelope sent by the backend.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebsocketTransport dials the backend's push endpoint.
type WebsocketTransport struct {
	URL        string
	Credential func() string
	Log        *slog.Logger
}

// Connect dials the endpoint with the current bearer credential.
func (t *WebsocketTransport) Connect(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if t.Credential != nil {
		if tok := t.Credential(); tok != "" {
			header.Set("Authorization", "Bearer "+tok)
		}
	}
	c, _, err := websocket.Dial(ctx, t.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.URL, err)
	}
	c.SetReadLimit(1 << 20)
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	return &wsConn{c: c, log: log}, nil
}

type wsConn struct {
	c   *websocket.Conn
	log *slog.Logger
}

func (w *wsConn) Next(ctx context.Context) (telemetry.SoldierReading, error) {
	for {
		var f Frame
		if err := wsjson.Read(ctx, w.c, &f); err != nil {
			return telemetry.SoldierReading{}, err
		}
		if f.Event != VitalsEvent {
			continue
		}
		var r telemetry.SoldierReading
		if err := json.Unmarshal(f.Data, &r); err != nil || r.SoldierID == "" {
			w.log.Debug("[Feed] malformed vitals frame", "error", err)
			continue
		}
		return r, nil
	}
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "closed")
}

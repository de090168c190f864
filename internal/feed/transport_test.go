package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"vitalsops/internal/telemetry"
)

func writeRecording(t *testing.T, rows []telemetry.SoldierReading) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vitals.jsonl")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	return path
}

func TestWebsocketTransportDecodesVitalsFrames(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "done")
		ctx := r.Context()
		data, _ := json.Marshal(reading("FC-001", 1, telemetry.RiskCritical))
		_ = wsjson.Write(ctx, c, Frame{Event: "ready"})
		_ = wsjson.Write(ctx, c, Frame{Event: VitalsEvent, Data: json.RawMessage(`{"heartRate":1}`)})
		_ = wsjson.Write(ctx, c, Frame{Event: VitalsEvent, Data: data})
		// hold the connection until the client leaves
		_, _, _ = c.Read(ctx)
	}))
	defer srv.Close()

	tr := &WebsocketTransport{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Credential: func() string { return "tok" },
		Log:        quietLogger(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := tr.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	r, err := conn.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if r.SoldierID != "FC-001" || r.RiskLevel != telemetry.RiskCritical {
		t.Fatalf("unexpected reading %+v", r)
	}
	if gotAuth := <-auth; gotAuth != "Bearer tok" {
		t.Fatalf("expected bearer credential on dial, got %q", gotAuth)
	}
}

func TestWebsocketTransportDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	tr := &WebsocketTransport{URL: "ws" + strings.TrimPrefix(srv.URL, "http")}
	if _, err := tr.Connect(context.Background()); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestReplayConnEndsWithStreamEnded(t *testing.T) {
	path := writeRecording(t, []telemetry.SoldierReading{reading("FC-001", 0, "")})
	conn, err := (&ReplayTransport{Path: path}).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Next(context.Background()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := conn.Next(context.Background()); !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("expected ErrStreamEnded, got %v", err)
	}
}

func TestReplayHonoursSpeed(t *testing.T) {
	path := writeRecording(t, []telemetry.SoldierReading{
		reading("FC-001", 0, ""),
		reading("FC-001", 1, ""),
	})
	conn, err := (&ReplayTransport{Path: path, Speed: 20}).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()
	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := conn.Next(context.Background()); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("replay ignored recorded gap: %v", elapsed)
	}
}

func TestSimTransportRoundRobin(t *testing.T) {
	conn, err := (&SimTransport{Soldiers: DefaultSquad(2), Interval: time.Millisecond, Seed: 1}).Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()
	var got []string
	for i := 0; i < 3; i++ {
		r, err := conn.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, r.SoldierID)
	}
	if got[0] != "FC-001" || got[1] != "FC-002" || got[2] != "FC-001" {
		t.Fatalf("unexpected rotation %v", got)
	}
	if _, err := (&SimTransport{}).Connect(context.Background()); err == nil {
		t.Fatalf("expected error for empty squad")
	}
}

func TestVitalsTopic(t *testing.T) {
	if got := VitalsTopic(""); got != "vitalsops/+/vitals" {
		t.Fatalf("unexpected default topic %q", got)
	}
	if got := VitalsTopic("base7"); got != "base7/+/vitals" {
		t.Fatalf("unexpected topic %q", got)
	}
}

package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"vitalsops/internal/telemetry"
)

// ReplayTransport streams readings from a JSONL recording. Speed > 0 scales
// the recorded gaps between readings (2 plays twice as fast); speed <= 0
// emits without delay.
type ReplayTransport struct {
	Path  string
	Speed float64
}

// Connect opens the recording.
func (t *ReplayTransport) Connect(context.Context) (Conn, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return NewReplayConn(f, t.Speed), nil
}

// NewReplayConn replays readings decoded from r.
func NewReplayConn(r io.ReadCloser, speed float64) Conn {
	return &replayConn{src: r, dec: json.NewDecoder(r), speed: speed}
}

type replayConn struct {
	src   io.ReadCloser
	dec   *json.Decoder
	speed float64
	prev  time.Time
}

func (c *replayConn) Next(ctx context.Context) (telemetry.SoldierReading, error) {
	var r telemetry.SoldierReading
	if err := c.dec.Decode(&r); err != nil {
		if errors.Is(err, io.EOF) {
			return r, ErrStreamEnded
		}
		return r, fmt.Errorf("decode recording: %w", err)
	}
	if !c.prev.IsZero() && c.speed > 0 {
		gap := r.Timestamp.Sub(c.prev)
		if c.speed != 1 {
			gap = time.Duration(float64(gap) / c.speed)
		}
		if gap > 0 && !sleep(ctx, gap) {
			return telemetry.SoldierReading{}, ctx.Err()
		}
	}
	c.prev = r.Timestamp
	return r, nil
}

func (c *replayConn) Close() error {
	return c.src.Close()
}

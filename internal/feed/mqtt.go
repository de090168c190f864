package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"vitalsops/internal/metrics"
	"vitalsops/internal/telemetry"
)

// VitalsTopic returns the subscription filter for every soldier's vitals
// under prefix.
func VitalsTopic(prefix string) string {
	if prefix == "" {
		prefix = "vitalsops"
	}
	return prefix + "/+/vitals"
}

// MQTTTransport subscribes to vitals published by gateway nodes.
type MQTTTransport struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	QoS         byte
	Log         *slog.Logger
}

// Connect opens a broker session. Reconnects are driven by the feed, so the
// client's own auto-reconnect is disabled.
func (t *MQTTTransport) Connect(ctx context.Context) (Conn, error) {
	log := t.Log
	if log == nil {
		log = slog.Default()
	}
	clientID := t.ClientID
	if clientID == "" {
		clientID = "vitalsops-" + uuid.NewString()
	}
	conn := &mqttConn{
		readings: make(chan telemetry.SoldierReading, 256),
		lost:     make(chan error, 1),
		log:      log,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.Broker)
	opts.SetClientID(clientID)
	if t.Username != "" {
		opts.SetUsername(t.Username)
	}
	if t.Password != "" {
		opts.SetPassword(t.Password)
	}
	opts.SetAutoReconnect(false)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		select {
		case conn.lost <- err:
		default:
		}
	})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", t.Broker, err)
	}
	conn.client = client

	topic := VitalsTopic(t.TopicPrefix)
	if err := wait(ctx, client.Subscribe(topic, t.QoS, conn.onMessage)); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	log.Info("[Feed] MQTT subscribed", "broker", t.Broker, "topic", topic)
	return conn, nil
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tok.Done():
		return tok.Error()
	}
}

type mqttConn struct {
	client   mqtt.Client
	readings chan telemetry.SoldierReading
	lost     chan error
	log      *slog.Logger
}

func (m *mqttConn) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var r telemetry.SoldierReading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil || r.SoldierID == "" {
		m.log.Debug("[Feed] malformed MQTT payload", "topic", msg.Topic(), "error", err)
		return
	}
	select {
	case m.readings <- r:
	default:
		metrics.IncEventDropped("buffer_full")
		m.log.Warn("[Feed] MQTT buffer full, dropping reading", "soldier", r.SoldierID)
	}
}

func (m *mqttConn) Next(ctx context.Context) (telemetry.SoldierReading, error) {
	select {
	case <-ctx.Done():
		return telemetry.SoldierReading{}, ctx.Err()
	case err := <-m.lost:
		return telemetry.SoldierReading{}, fmt.Errorf("MQTT connection lost: %w", err)
	case r := <-m.readings:
		return r, nil
	}
}

func (m *mqttConn) Close() error {
	m.client.Disconnect(250)
	return nil
}

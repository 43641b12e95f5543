package mqtt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/maomorales/bark-sensor-home-assistant/internal/config"
	"github.com/maomorales/bark-sensor-home-assistant/internal/metrics"
	"github.com/maomorales/bark-sensor-home-assistant/internal/pipeline"
)

const (
	connectTimeout  = 10 * time.Second
	reconnectPeriod = 5 * time.Second
	publishTimeout  = 5 * time.Second
)

// eventPayload is the JSON message published for one bark event
type eventPayload struct {
	Event    string  `json:"event"`
	Score    float64 `json:"score"`
	TS       string  `json:"ts"`
	DeviceID string  `json:"device_id"`
	Detector string  `json:"detector"`
	Capture  string  `json:"capture,omitempty"`
}

// Publisher delivers bark events to an MQTT broker. Delivery is best
// effort: the client reconnects on its own, a failed publish is logged and
// counted, and the detection pipeline is never blocked on the broker.
type Publisher struct {
	cfg     config.MQTTConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	client  pahomqtt.Client
}

// NewPublisher creates an MQTT publisher. The broker connection is not
// opened until Start.
func NewPublisher(cfg config.MQTTConfig, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	broker := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "bark-sensor-" + uuid.NewString()[:8]
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(reconnectPeriod).
		SetConnectTimeout(connectTimeout)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		logger.Info("MQTT connected",
			slog.String("broker", broker),
			slog.String("client_id", clientID),
		)
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("MQTT connection lost, reconnecting",
			slog.String("broker", broker),
			slog.String("error", err.Error()),
		)
	})

	return &Publisher{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		client:  pahomqtt.NewClient(opts),
	}
}

// Start begins connecting to the broker. With connect retry enabled the
// client keeps trying in the background, so an unreachable broker does not
// fail startup.
func (p *Publisher) Start() error {
	token := p.client.Connect()

	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Error("MQTT connect failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	return nil
}

// Stop disconnects from the broker, allowing a short drain for in-flight
// messages
func (p *Publisher) Stop() {
	p.client.Disconnect(250)
	p.logger.Info("MQTT publisher stopped")
}

// Notify publishes one bark event. It returns immediately; delivery
// confirmation is handled asynchronously.
func (p *Publisher) Notify(event pipeline.Event) {
	data, err := marshalEvent(event)
	if err != nil {
		p.logger.Error("Failed to encode MQTT event",
			slog.String("error", err.Error()),
		)
		p.metrics.RecordMQTTPublish(false)
		return
	}

	token := p.client.Publish(p.cfg.Topic, byte(p.cfg.QoS), p.cfg.Retain, data)

	go func() {
		ok := token.WaitTimeout(publishTimeout) && token.Error() == nil
		p.metrics.RecordMQTTPublish(ok)

		if !ok {
			errMsg := "timeout"
			if err := token.Error(); err != nil {
				errMsg = err.Error()
			}
			p.logger.Warn("MQTT publish failed",
				slog.String("topic", p.cfg.Topic),
				slog.String("error", errMsg),
			)
			return
		}

		p.logger.Debug("MQTT event published",
			slog.String("topic", p.cfg.Topic),
			slog.Float64("score", event.Score),
		)
	}()
}

// marshalEvent renders the wire payload for one event
func marshalEvent(event pipeline.Event) ([]byte, error) {
	return json.Marshal(eventPayload{
		Event:    "dog_bark",
		Score:    event.Score,
		TS:       event.Timestamp.UTC().Format(time.RFC3339),
		DeviceID: event.DeviceID,
		Detector: event.Detector,
		Capture:  event.CapturePath,
	})
}

// Package mqttbridge feeds uplinks arriving over MQTT into the same
// ingestion gateway the HTTP handlers use. Devices on cellular plans often
// prefer the broker path; the pipeline semantics must not differ by
// transport.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/ingest"
)

// Uplink topic layout: <prefix>/<signal>, e.g. fleet/uplink/temperature.
const (
	SignalTemperature = "temperature"
	SignalOdometer    = "odometer"
	SignalDriveState  = "drive-state"
	SignalLocation    = "location"
)

// Bridge subscribes to the uplink topics and dispatches each message to the
// matching pipeline.
type Bridge struct {
	client      mqtt.Client
	topicPrefix string
	gateway     *ingest.Gateway
	timeout     time.Duration
}

func New(client mqtt.Client, topicPrefix string, gateway *ingest.Gateway, timeout time.Duration) *Bridge {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		client:      client,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		gateway:     gateway,
		timeout:     timeout,
	}
}

// Start subscribes to all uplink signals at QoS 1.
func (b *Bridge) Start() error {
	topic := b.topicPrefix + "/+"
	token := b.client.Subscribe(topic, 1, b.handleMessage)
	if !token.WaitTimeout(b.timeout) {
		return errors.New("mqtt subscribe timeout")
	}
	if err := token.Error(); err != nil {
		return err
	}
	log.WithField("topic", topic).Info("MQTT uplink bridge subscribed")
	return nil
}

// Stop unsubscribes from the uplink topics.
func (b *Bridge) Stop() {
	token := b.client.Unsubscribe(b.topicPrefix + "/+")
	token.WaitTimeout(b.timeout)
}

func (b *Bridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	signal := signalFromTopic(msg.Topic())

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	disposition, err := b.Dispatch(ctx, signal, msg.Payload())
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"topic":  msg.Topic(),
			"signal": signal,
		}).Warn("MQTT uplink rejected")
		return
	}

	log.WithFields(log.Fields{
		"signal":      signal,
		"disposition": disposition.String(),
	}).Debug("MQTT uplink processed")
}

// Dispatch decodes the payload for the given signal and runs the pipeline.
func (b *Bridge) Dispatch(ctx context.Context, signal string, payload []byte) (ingest.Disposition, error) {
	switch signal {
	case SignalTemperature:
		var uplink ingest.TemperatureUplink
		if err := json.Unmarshal(payload, &uplink); err != nil {
			return 0, err
		}
		_, disposition, err := b.gateway.HandleTemperature(ctx, uplink)
		return disposition, err
	case SignalOdometer:
		var uplink ingest.OdometerUplink
		if err := json.Unmarshal(payload, &uplink); err != nil {
			return 0, err
		}
		_, disposition, err := b.gateway.HandleOdometer(ctx, uplink)
		return disposition, err
	case SignalDriveState:
		var uplink ingest.DriveStateUplink
		if err := json.Unmarshal(payload, &uplink); err != nil {
			return 0, err
		}
		_, disposition, err := b.gateway.HandleDriveState(ctx, uplink)
		return disposition, err
	case SignalLocation:
		var uplink ingest.LocationUplink
		if err := json.Unmarshal(payload, &uplink); err != nil {
			return 0, err
		}
		return b.gateway.HandleLocation(ctx, uplink)
	default:
		return 0, errors.New("unknown uplink signal: " + signal)
	}
}

func signalFromTopic(topic string) string {
	if idx := strings.LastIndex(topic, "/"); idx != -1 {
		return topic[idx+1:]
	}
	return topic
}

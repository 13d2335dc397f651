// Package events decouples "drive state persisted" from work-event
// publication. Ingestion enqueues onto a bounded channel and returns; a
// single consumer goroutine pushes events to the configured sink, so a slow
// or failing sink never rolls back a persisted record.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/fleetops/backoffice/internal/metrics"
	"github.com/fleetops/backoffice/internal/models"
)

// Sink delivers work events to downstream consumers.
type Sink interface {
	PublishWorkEvent(ctx context.Context, event models.WorkEvent) error
}

// Bus buffers work events between ingestion and the sink.
type Bus struct {
	ch   chan models.WorkEvent
	sink Sink
}

func NewBus(size int, sink Sink) *Bus {
	return &Bus{ch: make(chan models.WorkEvent, size), sink: sink}
}

// Enqueue hands an event to the bus without blocking. When the buffer is
// full the event is dropped and counted; ingestion must not stall on the
// publication side-channel.
func (b *Bus) Enqueue(event models.WorkEvent) bool {
	select {
	case b.ch <- event:
		return true
	default:
		metrics.WorkEventDrops.Add(1)
		log.WithFields(log.Fields{
			"event_id":  event.ID,
			"driver_id": event.DriverID,
		}).Warn("Work event buffer full, dropping event")
		return false
	}
}

// Run consumes the buffer until ctx is cancelled. Publish failures are
// logged and the event is dropped; there is no redelivery, the next state
// transition carries fresh information anyway.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case event := <-b.ch:
			if err := b.sink.PublishWorkEvent(ctx, event); err != nil {
				log.WithError(err).WithField("event_id", event.ID).Warn("Work event publication failed")
				continue
			}
			metrics.WorkEventsPublished.Add(1)
		case <-ctx.Done():
			return
		}
	}
}

// MQTTSink publishes work events as JSON to an MQTT topic.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	// publish wait bound; the bus consumer must keep draining
	timeout time.Duration
}

func NewMQTTSink(client mqtt.Client, topic string, timeout time.Duration) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, timeout: timeout}
}

func (s *MQTTSink) PublishWorkEvent(ctx context.Context, event models.WorkEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal work event: %w", err)
	}
	token := s.client.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return fmt.Errorf("publish work event: timeout after %s", s.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish work event: %w", err)
	}
	return nil
}

// LogSink is the fallback sink when no broker is configured; events are
// visible in the logs only.
type LogSink struct{}

func (LogSink) PublishWorkEvent(ctx context.Context, event models.WorkEvent) error {
	log.WithFields(log.Fields{
		"event_id":        event.ID,
		"driver_id":       event.DriverID,
		"work_event_type": event.WorkEventType,
		"time":            event.Time,
	}).Info("Work event")
	return nil
}

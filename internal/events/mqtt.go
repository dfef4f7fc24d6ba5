package events

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/service-logbook/internal/models"
)

const publishTimeout = 5 * time.Second

// EntryEvent is the payload broadcast after a service entry is persisted.
type EntryEvent struct {
	Action        string              `json:"action"` // "created" or "updated"
	VehicleNumber string              `json:"vehicle_number"`
	Key           string              `json:"key"`
	Entry         models.ServiceEntry `json:"entry"`
}

// Publisher broadcasts service-entry events to an MQTT broker. A nil
// Publisher is valid and publishes nothing, so eventing stays optional.
type Publisher struct {
	client mqtt.Client
}

// NewPublisher connects to the broker named by the MQTT_BROKER environment
// variable (e.g. tcp://localhost:1883). It returns (nil, nil) when the
// variable is unset.
func NewPublisher() (*Publisher, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		return nil, nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(fmt.Sprintf("service-logbook-%d", os.Getpid())).
		SetConnectTimeout(publishTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", token.Error())
	}
	log.WithField("broker", broker).Info("Connected to MQTT broker")
	return &Publisher{client: client}, nil
}

// EntrySaved publishes a created/updated event on the vehicle's topic.
// Failures are logged and never propagate; eventing is best effort.
func (p *Publisher) EntrySaved(entry models.ServiceEntry, key string, created bool) {
	if p == nil || p.client == nil {
		return
	}
	action := "updated"
	if created {
		action = "created"
	}
	evt := EntryEvent{
		Action:        action,
		VehicleNumber: entry.VehicleNumber,
		Key:           key,
		Entry:         entry,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.WithError(err).Error("Failed to marshal entry event")
		return
	}
	token := p.client.Publish(EntryTopic(entry.VehicleNumber), 0, false, payload)
	if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		log.WithError(token.Error()).WithField("vehicle", entry.VehicleNumber).Warn("Failed to publish entry event")
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	p.client.Disconnect(uint(publishTimeout.Milliseconds()))
}

// EntryTopic is the per-vehicle topic entry events are published on.
func EntryTopic(vehicleNumber string) string {
	return "servicelog/" + vehicleNumber
}

package deviceadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-scheduler/internal/model"
)

const publishTimeout = 10 * time.Second

// MQTTAdapter publishes apply-requests to <prefix>/<device_id>/set.
type MQTTAdapter struct {
	client      mqtt.Client
	topicPrefix string
}

// NewMQTT connects in the background with retry, so a broker that is down at
// startup does not block the daemon. Publishes fail until connected; the
// next tick is the retry path.
func NewMQTT(brokerURL, clientID, topicPrefix string) *MQTTAdapter {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", brokerURL).Msg("Connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", brokerURL).Msg("Lost connection to MQTT broker")
	}

	client := mqtt.NewClient(opts)
	client.Connect()

	return &MQTTAdapter{
		client:      client,
		topicPrefix: topicPrefix,
	}
}

func (a *MQTTAdapter) Apply(ctx context.Context, req model.ApplyRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal apply request: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/set", a.topicPrefix, req.DeviceID)
	token := a.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}

	log.Debug().
		Str("device", req.DeviceID).
		Str("topic", topic).
		Msg("Apply request published")

	return nil
}

func (a *MQTTAdapter) Close() {
	a.client.Disconnect(250)
}

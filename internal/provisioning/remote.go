package provisioning

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/muurk/relaynode/internal/deviceconfig"
	"github.com/muurk/relaynode/internal/logging"
)

// DefaultRemoteTimeout bounds how long the device waits for a pushed
// configuration.
const DefaultRemoteTimeout = 5 * time.Minute

// ProvisionTopic returns the topic a device listens on for remote pushes.
func ProvisionTopic(device string) string {
	return fmt.Sprintf("relaynode/%s/provision", device)
}

// Subscriber delivers messages published on a topic. Handlers are called
// from the subscriber's own goroutines.
type Subscriber interface {
	Subscribe(topic string, handler func(payload []byte)) error
	Close()
}

// MQTTSubscriber is a Subscriber backed by an MQTT broker.
type MQTTSubscriber struct {
	opts   *mqtt.ClientOptions
	client mqtt.Client
}

// NewMQTTSubscriber prepares a client for broker (e.g. tcp://host:1883).
// Nothing is dialled until Subscribe.
func NewMQTTSubscriber(broker, clientID string) *MQTTSubscriber {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logging.Warn("MQTT connection lost", zap.String("broker", broker), zap.Error(err))
	})
	return &MQTTSubscriber{opts: opts}
}

// Subscribe connects in the background and (re)subscribes to topic on
// every successful connection.
func (s *MQTTSubscriber) Subscribe(topic string, handler func(payload []byte)) error {
	if s.client != nil {
		return fmt.Errorf("already subscribed")
	}

	s.opts.SetOnConnectHandler(func(c mqtt.Client) {
		logging.Info("MQTT connected", zap.String("topic", topic))
		token := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Payload())
		})
		go func() {
			if token.Wait() && token.Error() != nil {
				logging.Warn("MQTT subscribe failed", zap.String("topic", topic), zap.Error(token.Error()))
			}
		}()
	})

	s.client = mqtt.NewClient(s.opts)
	token := s.client.Connect()
	go func() {
		if token.Wait() && token.Error() != nil {
			logging.Warn("MQTT connect failed", zap.Error(token.Error()))
		}
	}()
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSubscriber) Close() {
	if s.client == nil {
		return
	}
	s.client.Disconnect(250)
	s.client = nil
}

// RemoteMethod waits for a provisioning document pushed over a
// Subscriber. Malformed pushes are logged and ignored; the method keeps
// waiting until its deadline.
type RemoteMethod struct {
	newSubscriber func() Subscriber
	topic         string
	timeout       time.Duration

	sub      Subscriber
	payloads chan []byte
	wait     deadline
}

// NewRemoteMethod creates a remote push method. newSubscriber is called on
// every Start so that each run gets a fresh connection.
func NewRemoteMethod(newSubscriber func() Subscriber, topic string, timeout time.Duration) *RemoteMethod {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteMethod{
		newSubscriber: newSubscriber,
		topic:         topic,
		timeout:       timeout,
	}
}

// Kind implements Method.
func (m *RemoteMethod) Kind() deviceconfig.Method {
	return deviceconfig.MethodRemotePush
}

// Topic returns the topic the method listens on.
func (m *RemoteMethod) Topic() string {
	return m.topic
}

// Start implements Method.
func (m *RemoteMethod) Start(now uint32) error {
	payloads := make(chan []byte, 1)
	sub := m.newSubscriber()
	err := sub.Subscribe(m.topic, func(payload []byte) {
		select {
		case payloads <- payload:
		default:
			logging.Debug("Dropping remote push, one is already pending")
		}
	})
	if err != nil {
		sub.Close()
		return deviceconfig.NewConnectionError("failed to subscribe for remote push", err)
	}

	m.sub = sub
	m.payloads = payloads
	m.wait.arm(now, m.timeout)
	logging.LogProvisioning(m.Kind().String(), "waiting",
		zap.String("topic", m.topic),
		zap.Duration("timeout", m.timeout))
	return nil
}

// Poll implements Method.
func (m *RemoteMethod) Poll(now uint32) Result {
	select {
	case payload := <-m.payloads:
		if candidate, ok := acceptPush(payload); ok {
			return ready(candidate)
		}
	default:
	}

	if m.wait.expired(now) {
		return declined(deviceconfig.NewProvisioningTimeoutError(m.Kind()))
	}
	return pending()
}

func acceptPush(payload []byte) (deviceconfig.ConfigRecord, bool) {
	candidate, err := deviceconfig.CandidateFromJSON(payload)
	if err != nil {
		logging.Warn("Ignoring malformed remote push", zap.Error(err))
		return deviceconfig.ConfigRecord{}, false
	}
	if err := deviceconfig.CheckCandidate(candidate); err != nil {
		logging.Warn("Ignoring invalid remote push", zap.Error(err))
		return deviceconfig.ConfigRecord{}, false
	}
	return candidate, true
}

// Stop implements Method.
func (m *RemoteMethod) Stop() {
	if m.sub != nil {
		m.sub.Close()
		m.sub = nil
	}
}

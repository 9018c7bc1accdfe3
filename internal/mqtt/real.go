package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Kzm-Igrsh/EX-peltier/internal/logic"
)

// BufferSize is how many messages are kept while the broker is unreachable.
const BufferSize = 1000

// RealPublisher publishes to an actual MQTT broker. Messages produced while
// disconnected are buffered and replayed, in order, on reconnect.
type RealPublisher struct {
	client paho.Client

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not an error: the client keeps retrying in the background.
func NewRealPublisher(broker, clientID string) (*RealPublisher, error) {
	p := &RealPublisher{buf: newRingBuffer(BufferSize)}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	msgs, dropped := p.buf.drainAll()
	p.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected")
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(TopicSystem, 1, false, payload)
	} else {
		log.Printf("mqtt: connected")
	}
	if len(msgs) > 0 {
		log.Printf("mqtt: replaying %d buffered messages (%d dropped)", len(msgs), dropped)
	}
	for _, m := range msgs {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Publish sends a controller event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: TopicFor(event), payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) send(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.requeue(m)
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		p.requeue(m)
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) requeue(m bufferedMsg) {
	p.mu.Lock()
	p.buf.push(m)
	p.mu.Unlock()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"thermalguard/internal/config"
	"thermalguard/internal/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// FrameHandler is called for each valid frame.
type FrameHandler func(ctx context.Context, frame types.Frame) error

// Client subscribes to thermal frames and publishes action events.
type Client struct {
	client    mqtt.Client
	cfg       config.Config
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	handler FrameHandler
	inbox   chan inbound

	stopCh   chan struct{}
	stopOnce sync.Once
}

type inbound struct {
	topic   string
	payload []byte
}

const inboxSize = 64

func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logger,
		inbox:  make(chan inbound, inboxSize),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// Resubscribe after reconnects; the session is clean.
		if c.getHandler() != nil {
			if err := c.subscribe(); err != nil {
				logger.Error("mqtt subscribe failed", "topic", cfg.MQTTTopic, "error", err)
			}
		}
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	go c.dispatch()
	return c
}

// SetFrameHandler must be called before Connect so the subscription is made
// as soon as the broker accepts the connection.
func (c *Client) SetFrameHandler(h FrameHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect waits for the initial connection, respecting ctx and Disconnect.
// When ctx ends first the client keeps retrying in the background.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			c.client.Disconnect(0)
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

func (c *Client) subscribe() error {
	topic := c.cfg.MQTTTopic
	qos := byte(1)

	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		c.enqueue(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, token.Error())
	}

	c.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

// enqueue hands a message to the dispatch goroutine. Paho callbacks must not
// block, and frame handlers publish events and wait on their tokens.
func (c *Client) enqueue(topic string, payload []byte) {
	select {
	case c.inbox <- inbound{topic: topic, payload: payload}:
	default:
		c.logger.Warn("frame queue full, dropping message", "topic", topic)
	}
}

// dispatch handles queued messages one at a time until Disconnect.
func (c *Client) dispatch() {
	for {
		select {
		case <-c.stopCh:
			return
		case m := <-c.inbox:
			c.handleMessage(m.topic, m.payload)
		}
	}
}

func (c *Client) handleMessage(topic string, payload []byte) {
	c.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	frame, err := ParseFrame(payload)
	if err != nil {
		c.logger.Warn("invalid frame message", "topic", topic, "error", err)
		return
	}

	h := c.getHandler()
	if h == nil {
		return
	}
	if err := h(context.Background(), frame); err != nil {
		c.logger.Error("frame handler failed", "topic", topic, "device_id", frame.DeviceID, "error", err)
	}
}

// ParseFrame decodes and validates a frame payload.
func ParseFrame(payload []byte) (types.Frame, error) {
	var f types.Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return types.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.DeviceID == "" {
		return types.Frame{}, fmt.Errorf("device_id is required")
	}
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now()
	}
	if f.MaxPixel == nil && len(f.People) == 0 {
		return types.Frame{}, fmt.Errorf("frame has neither max_pixel nor people")
	}
	if f.MaxPixel != nil && *f.MaxPixel < 0 {
		return types.Frame{}, fmt.Errorf("max_pixel must not be negative: %f", *f.MaxPixel)
	}
	return f, nil
}

// PublishEvent sends ev to thermalguard/<device>/events.
func (c *Client) PublishEvent(ev types.Event) error {
	if !c.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	topic := fmt.Sprintf("thermalguard/%s/events", ev.DeviceID)
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	token := c.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("publish event: %w", token.Error())
	}

	c.logger.Debug("published event", "topic", topic, "kind", ev.Kind, "outcome", ev.Outcome)
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect is idempotent. Connect fails after it.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	if c.IsConnected() {
		c.client.Unsubscribe(c.cfg.MQTTTopic).WaitTimeout(2 * time.Second)
	}
	c.client.Disconnect(250)

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) getHandler() FrameHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handler
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

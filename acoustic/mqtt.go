package acoustic

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Topic suffixes under the configured publish prefix.
const (
	TopicPlace   = "place"
	TopicCamera  = "camera"
	TopicRemove  = "remove"
	TopicNoise   = "noise"
	TopicSources = "sources"
	TopicAudio   = "audio"
)

// CommandHandler receives the commands carried by subscribed topics.
// *Engine satisfies it.
type CommandHandler interface {
	PlaceSource(pos Vec3, t SourceType) (string, error)
	RemoveSource(id string) error
	SetCameraPose(pose ListenerPose) bool
}

// PlaceCommand is the payload of <prefix>/place.
type PlaceCommand struct {
	Position Vec3       `json:"position"`
	Type     SourceType `json:"type"`
}

// RemoveCommand is the payload of <prefix>/remove.
type RemoveCommand struct {
	ID string `json:"id"`
}

// MQTTClient manages the MQTT connection and command subscriptions
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	handler     CommandHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT creates the MQTT client and starts connecting in the background.
// If no broker is configured, MQTT is disabled and this returns nil.
func InitMQTT(config *Config, handler CommandHandler) (*MQTTClient, error) {
	if config == nil || config.MQTT.Broker == "" {
		log.Println("[MQTT] disabled: no broker configured")
		return nil, nil
	}
	if handler == nil {
		return nil, fmt.Errorf("MQTT enabled but no command handler provided")
	}

	client := &MQTTClient{
		config:  config,
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTT.Broker)

	clientID := config.MQTT.ClientID
	if clientID == "" {
		clientID = "noisemesh"
	}
	opts.SetClientID(clientID)

	if config.MQTT.Username != "" {
		opts.SetUsername(config.MQTT.Username)
		opts.SetPassword(config.MQTT.Password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(true)  // Placement order defines registry order

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	return client, nil
}

// topic joins the publish prefix and suffix.
func (c *MQTTClient) topic(suffix string) string {
	prefix := strings.TrimSuffix(c.config.MQTT.PublishPrefix, "/")
	if prefix == "" {
		prefix = "noisemesh"
	}
	return prefix + "/" + suffix
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("[MQTT] connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] connected to broker")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] connection timeout")
		}

		log.Printf("[MQTT] retrying connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to the command topics
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] connected, subscribing to command topics...")
	c.setConnected(true)

	subs := map[string]mqtt.MessageHandler{
		c.topic(TopicPlace):  c.handlePlace,
		c.topic(TopicCamera): c.handleCamera,
		c.topic(TopicRemove): c.handleRemove,
	}
	for topic, h := range subs {
		token := client.Subscribe(topic, 0, h)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] error subscribing to %s: %v", topic, token.Error())
		} else {
			log.Printf("[MQTT] subscribed to %s", topic)
		}
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("[MQTT] reconnecting...")
}

// handlePlace adds a preset source. Malformed payloads are logged and dropped.
func (c *MQTTClient) handlePlace(client mqtt.Client, msg mqtt.Message) {
	var cmd PlaceCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		log.Printf("[MQTT] invalid placement on %s: %v", msg.Topic(), err)
		return
	}
	id, err := c.handler.PlaceSource(cmd.Position, cmd.Type)
	if err != nil {
		log.Printf("[MQTT] placement rejected: %v", err)
		return
	}
	log.Printf("[MQTT] placed %s source %s at (%.1f, %.1f, %.1f)",
		cmd.Type, id, cmd.Position.X, cmd.Position.Y, cmd.Position.Z)
}

// handleCamera feeds the listener. Poses arrive at frame rate, so only
// failures are logged.
func (c *MQTTClient) handleCamera(client mqtt.Client, msg mqtt.Message) {
	var pose ListenerPose
	if err := json.Unmarshal(msg.Payload(), &pose); err != nil {
		log.Printf("[MQTT] invalid camera pose: %v", err)
		return
	}
	if !c.handler.SetCameraPose(pose) {
		log.Printf("[MQTT] camera pose ignored: non-finite components")
	}
}

// handleRemove accepts {"id":"..."}, a JSON string or a bare id.
func (c *MQTTClient) handleRemove(client mqtt.Client, msg mqtt.Message) {
	id := parseRemovePayload(msg.Payload())
	if id == "" {
		log.Printf("[MQTT] empty remove payload, skipping")
		return
	}
	if err := c.handler.RemoveSource(id); err != nil {
		log.Printf("[MQTT] remove %s: %v", id, err)
	}
}

func parseRemovePayload(payload []byte) string {
	var cmd RemoveCommand
	if err := json.Unmarshal(payload, &cmd); err == nil {
		return cmd.ID
	}
	var plain string
	if err := json.Unmarshal(payload, &plain); err == nil {
		return plain
	}
	return strings.TrimSpace(string(payload))
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] disconnecting from broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler CommandHandler) *MQTTClient {
	return &MQTTClient{
		client:  client,
		config:  config,
		handler: handler,
	}
}

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

// NoiseSummary is the compact form of NoiseData published to <prefix>/noise.
type NoiseSummary struct {
	TotalNoise    float64 `json:"totalNoise"`
	AffectedCount int     `json:"affectedCount"`
	RegionArea    float64 `json:"regionArea"`
	Threshold     float64 `json:"threshold"`
	SourceCount   int     `json:"sourceCount"`
	Timestamp     int64   `json:"timestamp"`
}

// Summary condenses d for publishing.
func (d NoiseData) Summary() NoiseSummary {
	ts := d.ComputedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return NoiseSummary{
		TotalNoise:    d.TotalNoise,
		AffectedCount: len(d.AffectedAreas),
		RegionArea:    d.AffectedRegion.Area,
		Threshold:     d.Threshold,
		SourceCount:   len(d.Sources),
		Timestamp:     ts.Unix(),
	}
}

// AudioStatus is published to <prefix>/audio.
type AudioStatus struct {
	Enabled bool `json:"enabled"`
	Voices  int  `json:"voices"`
}

// Publisher publishes noise snapshots to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          *NoiseSummary
	mu            sync.RWMutex
}

// NewPublisher creates a new noise publisher
// If client is nil, publishing is disabled (for testing)
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = "noisemesh"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // fire and forget
		retain:        true, // late subscribers get the latest state
	}
}

// PublishNoise publishes the summary, the source list and the audio status
func (p *Publisher) PublishNoise(data NoiseData, audio AudioStatus) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	summary := data.Summary()
	p.mu.Lock()
	p.last = &summary
	p.mu.Unlock()

	if err := p.publishJSON(TopicNoise, summary); err != nil {
		log.Printf("[MQTT] error publishing noise summary: %v", err)
		return err
	}

	sources := data.Sources
	if sources == nil {
		sources = []NoiseSource{}
	}
	if err := p.publishJSON(TopicSources, sources); err != nil {
		log.Printf("[MQTT] error publishing source list: %v", err)
		return err
	}

	if err := p.publishJSON(TopicAudio, audio); err != nil {
		log.Printf("[MQTT] error publishing audio status: %v", err)
		return err
	}

	log.Printf("[MQTT] published noise: total=%.1f affected=%d sources=%d",
		summary.TotalNoise, summary.AffectedCount, summary.SourceCount)
	return nil
}

func (p *Publisher) publishJSON(suffix string, v interface{}) error {
	topic := fmt.Sprintf("%s/%s", p.publishPrefix, suffix)

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// LastSummary returns the most recently published summary
func (p *Publisher) LastSummary() (NoiseSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return NoiseSummary{}, false
	}
	return *p.last, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

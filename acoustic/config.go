package acoustic

import "time"

// Audio backend names accepted in the configuration.
const (
	BackendNone = "none"
	BackendWAV  = "wav"
	BackendOto  = "oto"
)

// SimulationConfig holds propagation display and sampling settings.
type SimulationConfig struct {
	NoiseThreshold float64 `yaml:"noiseThreshold" json:"noiseThreshold"`
	GridSize       int     `yaml:"gridSize" json:"gridSize"`
	AreaSize       float64 `yaml:"areaSize" json:"areaSize"`
	SampleCount    int     `yaml:"sampleCount" json:"sampleCount"`
	SampleArea     float64 `yaml:"sampleArea" json:"sampleArea"`
	SampleHeight   float64 `yaml:"sampleHeight,omitempty" json:"sampleHeight,omitempty"`
	Opacity        float64 `yaml:"opacity,omitempty" json:"opacity,omitempty"`
}

// AudioConfig selects and tunes the spatial audio backend.
type AudioConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	GlobalVolume     float64       `yaml:"globalVolume" json:"globalVolume"`
	Backend          string        `yaml:"backend" json:"backend"` // none, wav, oto
	SampleRate       int           `yaml:"sampleRate,omitempty" json:"sampleRate,omitempty"`
	ListenerInterval time.Duration `yaml:"listenerInterval,omitempty" json:"listenerInterval,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// SourceConfig declares an initial source. Unset physical fields fall back
// to the type's preset.
type SourceConfig struct {
	Name               string     `yaml:"name,omitempty" json:"name,omitempty"`
	Type               SourceType `yaml:"type" json:"type"`
	Position           Vec3       `yaml:"position" json:"position"`
	Intensity          *float64   `yaml:"intensity,omitempty" json:"intensity,omitempty"`
	Radius             *float64   `yaml:"radius,omitempty" json:"radius,omitempty"`
	Frequency          *float64   `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Attenuation        *float64   `yaml:"attenuation,omitempty" json:"attenuation,omitempty"`
	MaterialAbsorption *float64   `yaml:"materialAbsorption,omitempty" json:"materialAbsorption,omitempty"`
	Cone               *Cone      `yaml:"cone,omitempty" json:"cone,omitempty"`
	Omnidirectional    bool       `yaml:"omnidirectional,omitempty" json:"omnidirectional,omitempty"` // drop a preset cone
	Inactive           bool       `yaml:"inactive,omitempty" json:"inactive,omitempty"`
}

// Config represents the full configuration file
type Config struct {
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
	Audio      AudioConfig      `yaml:"audio" json:"audio"`
	MQTT       MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	Sources    []SourceConfig   `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Simulation: SimulationConfig{
			NoiseThreshold: 50,
			GridSize:       50,
			AreaSize:       200,
			SampleCount:    20,
			SampleArea:     100,
			Opacity:        0.7,
		},
		Audio: AudioConfig{
			GlobalVolume:     0.5,
			Backend:          BackendNone,
			SampleRate:       DefaultSampleRate,
			ListenerInterval: 33 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			PublishPrefix: "noisemesh",
			ClientID:      "noisemesh",
		},
	}
}

// Settings converts the configuration into engine settings.
func (c *Config) Settings() Settings {
	return Settings{
		Threshold: c.Simulation.NoiseThreshold,
		Heatmap: HeatmapOptions{
			GridSize: c.Simulation.GridSize,
			AreaSize: c.Simulation.AreaSize,
			Height:   c.Simulation.SampleHeight,
			Opacity:  c.Simulation.Opacity,
		},
		Stats: StatsOptions{
			SampleCount: c.Simulation.SampleCount,
			AreaSize:    c.Simulation.SampleArea,
			Height:      c.Simulation.SampleHeight,
		},
		AudioEnabled: c.Audio.Enabled,
		GlobalVolume: c.Audio.GlobalVolume,
		Enabled:      true,
	}
}

// Source builds the NoiseSource described by sc.
func (sc SourceConfig) Source() (NoiseSource, bool) {
	src, ok := NewSourceFromPreset(sc.Type, sc.Position)
	if !ok {
		return NoiseSource{}, false
	}
	if sc.Name != "" {
		src.Name = sc.Name
	}
	if sc.Intensity != nil {
		src.Intensity = *sc.Intensity
	}
	if sc.Radius != nil {
		src.Radius = *sc.Radius
	}
	if sc.Frequency != nil {
		src.Frequency = *sc.Frequency
	}
	if sc.Attenuation != nil {
		src.Attenuation = *sc.Attenuation
	}
	if sc.MaterialAbsorption != nil {
		src.MaterialAbsorption = *sc.MaterialAbsorption
	}
	if sc.Omnidirectional {
		src.Cone = nil
	}
	if sc.Cone != nil {
		c := *sc.Cone
		src.Cone = &c
	}
	src.IsActive = !sc.Inactive
	return src, true
}

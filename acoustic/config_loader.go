package acoustic

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads the configuration from a YAML file. Fields absent from
// the file keep their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks ranges and fills zero values that have a sensible default.
func (c *Config) Validate() error {
	d := DefaultConfig()
	sim := &c.Simulation

	if sim.NoiseThreshold < 0 {
		return fmt.Errorf("simulation.noiseThreshold must be >= 0")
	}
	if sim.GridSize == 0 {
		sim.GridSize = d.Simulation.GridSize
	}
	if sim.GridSize < 1 || sim.GridSize > 1000 {
		return fmt.Errorf("simulation.gridSize must be between 1 and 1000, got %d", sim.GridSize)
	}
	if sim.AreaSize == 0 {
		sim.AreaSize = d.Simulation.AreaSize
	}
	if sim.AreaSize < 0 {
		return fmt.Errorf("simulation.areaSize must be > 0")
	}
	if sim.SampleCount == 0 {
		sim.SampleCount = d.Simulation.SampleCount
	}
	if sim.SampleCount < 1 || sim.SampleCount > 1000 {
		return fmt.Errorf("simulation.sampleCount must be between 1 and 1000, got %d", sim.SampleCount)
	}
	if sim.SampleArea == 0 {
		sim.SampleArea = d.Simulation.SampleArea
	}
	if sim.SampleArea < 0 {
		return fmt.Errorf("simulation.sampleArea must be > 0")
	}
	if sim.Opacity < 0 || sim.Opacity > 1 {
		return fmt.Errorf("simulation.opacity must be within [0,1]")
	}

	if c.Audio.GlobalVolume < 0 || c.Audio.GlobalVolume > 1 {
		return fmt.Errorf("audio.globalVolume must be within [0,1], got %v", c.Audio.GlobalVolume)
	}
	switch c.Audio.Backend {
	case "":
		c.Audio.Backend = BackendNone
	case BackendNone, BackendWAV, BackendOto:
	default:
		return fmt.Errorf("audio.backend must be one of none, wav, oto; got %q", c.Audio.Backend)
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}
	if c.Audio.SampleRate < 8000 || c.Audio.SampleRate > 192000 {
		return fmt.Errorf("audio.sampleRate out of range: %d", c.Audio.SampleRate)
	}

	for i, sc := range c.Sources {
		if !sc.Type.Valid() {
			return fmt.Errorf("sources[%d].type: %w: %q", i, ErrUnknownType, sc.Type)
		}
		src, _ := sc.Source()
		if err := sanitize(&src); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	return nil
}

// DefaultConfigFromEnv returns DefaultConfig with environment overrides
// applied, for hosts that run without a config file.
func DefaultConfigFromEnv() *Config {
	config := DefaultConfig()
	applyEnvOverrides(config)
	return config
}

// applyEnvOverrides lets the environment supply MQTT settings the way the
// container deployment expects.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		c.MQTT.PublishPrefix = v
	}
}

// LoadSources adds every configured source to the engine.
func LoadSources(e *Engine, sources []SourceConfig) ([]string, error) {
	ids := make([]string, 0, len(sources))
	for i, sc := range sources {
		src, ok := sc.Source()
		if !ok {
			return ids, fmt.Errorf("sources[%d]: %w: %q", i, ErrUnknownType, sc.Type)
		}
		id, err := e.AddSource(src)
		if err != nil {
			return ids, fmt.Errorf("sources[%d]: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

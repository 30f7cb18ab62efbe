package acoustic

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidParameter is returned when a mutation would produce a
	// malformed source (negative radius, NaN coordinates, ...).
	ErrInvalidParameter = errors.New("invalid source parameter")
	// ErrUnknownType is returned for source types outside the closed set.
	ErrUnknownType = errors.New("unknown source type")
	// ErrSourceNotFound is returned when an id is not in the registry.
	ErrSourceNotFound = errors.New("source not found")
	// ErrAudioUnavailable is reported by backends that cannot produce sound
	// (no device, suspended context, autoplay policy).
	ErrAudioUnavailable = errors.New("audio unavailable")
)

// SourceType classifies an emitter. It selects default physical parameters
// and the synthesized timbre.
type SourceType string

const (
	TypeTraffic      SourceType = "traffic"
	TypeConstruction SourceType = "construction"
	TypeIndustrial   SourceType = "industrial"
	TypeResidential  SourceType = "residential"
	TypeCustom       SourceType = "custom"
)

// SourceTypes lists every valid type in display order.
var SourceTypes = []SourceType{TypeTraffic, TypeConstruction, TypeIndustrial, TypeResidential, TypeCustom}

// Valid reports whether t belongs to the closed set of source types.
func (t SourceType) Valid() bool {
	for _, st := range SourceTypes {
		if t == st {
			return true
		}
	}
	return false
}

// ParseSourceType validates s as a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Waveform is the oscillator shape of a voice.
type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveSquare   Waveform = "square"
	WaveSawtooth Waveform = "sawtooth"
	WaveTriangle Waveform = "triangle"
)

// Waveform returns the oscillator shape synthesized for sources of type t.
func (t SourceType) Waveform() Waveform {
	switch t {
	case TypeTraffic:
		return WaveSawtooth
	case TypeConstruction:
		return WaveSquare
	case TypeIndustrial:
		return WaveTriangle
	case TypeResidential:
		return WaveSine
	default:
		return WaveSine
	}
}

// Cone makes a source directional. Full level applies within ConeAngle
// (full angle, degrees) around Direction; outside it the level is multiplied
// by ConeAttenuation.
type Cone struct {
	Direction       Vec3    `json:"direction" yaml:"direction"`
	ConeAngle       float64 `json:"coneAngle" yaml:"coneAngle"`
	ConeAttenuation float64 `json:"coneAttenuation" yaml:"coneAttenuation"`
}

// NoiseSource is a single emitter owned by the Registry.
type NoiseSource struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Type               SourceType `json:"type"`
	Position           Vec3       `json:"position"`
	Intensity          float64    `json:"intensity"`          // dB-equivalent, >= 0
	Radius             float64    `json:"radius"`             // meters, > 0
	Frequency          float64    `json:"frequency"`          // Hz, audio only
	Attenuation        float64    `json:"attenuation"`        // decay per squared meter, > 0
	MaterialAbsorption float64    `json:"materialAbsorption"` // [0,1]
	Cone               *Cone      `json:"cone,omitempty"`     // nil = omnidirectional
	IsActive           bool       `json:"isActive"`
}

// IsDirectional reports whether the source uses cone emission.
func (s NoiseSource) IsDirectional() bool {
	return s.Cone != nil
}

// clone returns a deep copy so callers never alias registry state.
func (s NoiseSource) clone() NoiseSource {
	if s.Cone != nil {
		c := *s.Cone
		s.Cone = &c
	}
	return s
}

// SourcePatch is a partial update. Nil fields are left unchanged.
type SourcePatch struct {
	Name               *string     `json:"name,omitempty"`
	Type               *SourceType `json:"type,omitempty"`
	Position           *Vec3       `json:"position,omitempty"`
	Intensity          *float64    `json:"intensity,omitempty"`
	Radius             *float64    `json:"radius,omitempty"`
	Frequency          *float64    `json:"frequency,omitempty"`
	Attenuation        *float64    `json:"attenuation,omitempty"`
	MaterialAbsorption *float64    `json:"materialAbsorption,omitempty"`
	IsActive           *bool       `json:"isActive,omitempty"`
	SetCone            *Cone       `json:"cone,omitempty"`
	ClearCone          bool        `json:"clearCone,omitempty"`
}

// RegionStats describes the planar extent of the affected sample points.
type RegionStats struct {
	Hull []Vec3  `json:"hull"`
	Area float64 `json:"area"` // square meters on the sampling plane
}

// NoiseData is the consolidated result emitted after every recompute. It is
// an immutable snapshot valid until the next mutation.
type NoiseData struct {
	Sources        []NoiseSource `json:"sources"`
	TotalNoise     float64       `json:"totalNoise"`
	AffectedAreas  []Vec3        `json:"affectedAreas"`
	Threshold      float64       `json:"threshold"`
	AffectedRegion RegionStats   `json:"affectedRegion"`
	Audio          AudioStatus   `json:"audio"` // filled by Engine
	ComputedAt     time.Time     `json:"computedAt"`
}

// VoiceParams are the parameters pushed onto one audio voice.
type VoiceParams struct {
	Waveform    Waveform `json:"waveform"`
	Frequency   float64  `json:"frequency"`
	Position    Vec3     `json:"position"`
	MaxDistance float64  `json:"maxDistance"`
	Rolloff     float64  `json:"rolloff"`
	Gain        float64  `json:"gain"`
}

// ListenerPose is the position and orientation of the synthetic ear.
type ListenerPose struct {
	Position Vec3 `json:"position"`
	Forward  Vec3 `json:"forward"`
	Up       Vec3 `json:"up"`
}

// DefaultListenerPose looks down -Z from the origin with Y up.
func DefaultListenerPose() ListenerPose {
	return ListenerPose{
		Forward: Vec3{Z: -1},
		Up:      Vec3{Y: 1},
	}
}

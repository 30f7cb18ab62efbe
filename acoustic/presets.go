package acoustic

// Preset holds the physical defaults seeded into a newly placed source.
type Preset struct {
	Name               string
	Intensity          float64
	Radius             float64
	Frequency          float64
	Attenuation        float64
	MaterialAbsorption float64
	Cone               *Cone
}

var presets = map[SourceType]Preset{
	TypeTraffic: {
		Name:               "Traffic Noise",
		Intensity:          70,
		Radius:             100,
		Frequency:          120,
		Attenuation:        0.001,
		MaterialAbsorption: 0.1,
	},
	TypeConstruction: {
		Name:               "Construction Site",
		Intensity:          85,
		Radius:             80,
		Frequency:          250,
		Attenuation:        0.002,
		MaterialAbsorption: 0.05,
	},
	TypeIndustrial: {
		Name:               "Industrial Equipment",
		Intensity:          90,
		Radius:             150,
		Frequency:          60,
		Attenuation:        0.0008,
		MaterialAbsorption: 0.15,
		Cone: &Cone{
			Direction:       Vec3{X: 1},
			ConeAngle:       90,
			ConeAttenuation: 0.4,
		},
	},
	TypeResidential: {
		Name:               "Residential Activity",
		Intensity:          45,
		Radius:             40,
		Frequency:          440,
		Attenuation:        0.005,
		MaterialAbsorption: 0.3,
	},
	TypeCustom: {
		Name:               "Custom Source",
		Intensity:          60,
		Radius:             60,
		Frequency:          1000,
		Attenuation:        0.002,
		MaterialAbsorption: 0.2,
	},
}

// PresetFor returns the defaults for t. ok is false for unknown types.
func PresetFor(t SourceType) (Preset, bool) {
	p, ok := presets[t]
	if ok && p.Cone != nil {
		c := *p.Cone
		p.Cone = &c
	}
	return p, ok
}

// NewSourceFromPreset builds an active source of type t at pos. The id is
// left empty; the Registry assigns it.
func NewSourceFromPreset(t SourceType, pos Vec3) (NoiseSource, bool) {
	p, ok := PresetFor(t)
	if !ok {
		return NoiseSource{}, false
	}
	return NoiseSource{
		Name:               p.Name,
		Type:               t,
		Position:           pos,
		Intensity:          p.Intensity,
		Radius:             p.Radius,
		Frequency:          p.Frequency,
		Attenuation:        p.Attenuation,
		MaterialAbsorption: p.MaterialAbsorption,
		Cone:               p.Cone,
		IsActive:           true,
	}, true
}

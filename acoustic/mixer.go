package acoustic

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// DefaultSampleRate is used by the audio backends when none is configured.
const DefaultSampleRate = 48000

// refDistance is the distance at which a voice plays at its nominal gain.
const refDistance = 1.0

type mixVoice struct {
	params VoiceParams
	phase  float64 // [0,1)
}

// Mixer renders the voice table into interleaved stereo samples. It holds
// the voice and listener state shared by the WAV and live backends and is
// safe for concurrent use: the engine pushes parameters while the audio
// goroutine pulls samples.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	voices     map[string]*mixVoice
	listener   ListenerPose
}

// NewMixer creates a mixer producing sampleRate frames per second.
func NewMixer(sampleRate int) *Mixer {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Mixer{
		sampleRate: sampleRate,
		voices:     make(map[string]*mixVoice),
		listener:   DefaultListenerPose(),
	}
}

// SampleRate returns the output rate in frames per second.
func (m *Mixer) SampleRate() int { return m.sampleRate }

func (m *Mixer) CreateVoice(id string, p VoiceParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.voices[id]; ok {
		return fmt.Errorf("voice %s already exists", id)
	}
	m.voices[id] = &mixVoice{params: p}
	return nil
}

func (m *Mixer) UpdateVoice(id string, p VoiceParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.voices[id]
	if !ok {
		return fmt.Errorf("voice %s does not exist", id)
	}
	// Phase is kept so frequency changes do not click.
	v.params = p
	return nil
}

func (m *Mixer) DestroyVoice(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.voices[id]; !ok {
		return fmt.Errorf("voice %s does not exist", id)
	}
	delete(m.voices, id)
	return nil
}

func (m *Mixer) SetListenerPose(pose ListenerPose) error {
	m.mu.Lock()
	m.listener = pose
	m.mu.Unlock()
	return nil
}

// VoiceCount returns the number of live voices.
func (m *Mixer) VoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Mix fills dst with interleaved stereo frames (L, R, L, R, ...) in [-1, 1].
// A trailing odd sample is left at zero.
func (m *Mixer) Mix(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	frames := len(dst) / 2

	m.mu.Lock()
	defer m.mu.Unlock()

	sr := float64(m.sampleRate)
	for _, v := range m.voices {
		if v.params.Gain <= 0 || v.params.Frequency <= 0 {
			continue
		}
		gl, gr := spatialGains(v.params, m.listener)
		if gl == 0 && gr == 0 {
			continue
		}
		inc := v.params.Frequency / sr
		for f := 0; f < frames; f++ {
			s := oscillator(v.params.Waveform, v.phase)
			dst[2*f] += float32(s * gl)
			dst[2*f+1] += float32(s * gr)
			v.phase += inc
			if v.phase >= 1 {
				v.phase -= math.Floor(v.phase)
			}
		}
	}

	for i := 0; i < frames*2; i++ {
		if dst[i] > 1 {
			dst[i] = 1
		} else if dst[i] < -1 {
			dst[i] = -1
		}
	}
}

// Read implements io.Reader producing signed 16-bit little-endian stereo
// PCM, the format the live backend plays.
func (m *Mixer) Read(p []byte) (int, error) {
	frameBytes := len(p) - len(p)%4
	if frameBytes == 0 {
		return 0, nil
	}
	buf := make([]float32, frameBytes/2)
	m.Mix(buf)
	for i, s := range buf {
		binary.LittleEndian.PutUint16(p[2*i:], uint16(int16(s*32767)))
	}
	return frameBytes, nil
}

// spatialGains returns the left/right gain of a voice as heard by the
// listener: inverse distance rolloff clamped at MaxDistance, then an
// equal-power pan along the listener's right axis.
func spatialGains(p VoiceParams, l ListenerPose) (left, right float64) {
	rel := p.Position.Sub(l.Position)
	d := rel.Length()
	if p.MaxDistance > 0 && d > p.MaxDistance {
		d = p.MaxDistance
	}
	if d < refDistance {
		d = refDistance
	}
	distGain := refDistance / (refDistance + p.Rolloff*(d-refDistance))
	g := p.Gain * distGain

	pan := 0.0
	if axis, ok := l.Forward.Cross(l.Up).Normalize(); ok {
		if dir, ok := rel.Normalize(); ok {
			pan = clamp(dir.Dot(axis), -1, 1)
		}
	}
	theta := (pan + 1) * math.Pi / 4
	return g * math.Cos(theta), g * math.Sin(theta)
}

// oscillator evaluates one period-normalized waveform sample at phase.
func oscillator(w Waveform, phase float64) float64 {
	switch w {
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case WaveSawtooth:
		return 2*phase - 1
	case WaveTriangle:
		return 4*math.Abs(phase-0.5) - 1
	default:
		return math.Sin(2 * math.Pi * phase)
	}
}

package acoustic

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMixer_DefaultRate(t *testing.T) {
	assert.Equal(t, DefaultSampleRate, NewMixer(0).SampleRate())
	assert.Equal(t, 22050, NewMixer(22050).SampleRate())
}

func TestMixer_VoiceLifecycle(t *testing.T) {
	m := NewMixer(8000)
	p := VoiceParams{Waveform: WaveSine, Frequency: 440, Gain: 0.5, Rolloff: 1, MaxDistance: 50}

	require.NoError(t, m.CreateVoice("a", p))
	assert.Error(t, m.CreateVoice("a", p), "duplicate ids are rejected")
	assert.Equal(t, 1, m.VoiceCount())

	p.Frequency = 880
	assert.NoError(t, m.UpdateVoice("a", p))
	assert.Error(t, m.UpdateVoice("b", p))

	assert.NoError(t, m.DestroyVoice("a"))
	assert.Error(t, m.DestroyVoice("a"))
	assert.Equal(t, 0, m.VoiceCount())
}

func TestMixer_SilentWithoutVoices(t *testing.T) {
	m := NewMixer(8000)
	buf := []float32{1, 1, 1, 1, 1}
	m.Mix(buf)
	for i, s := range buf {
		if s != 0 {
			t.Errorf("sample %d = %v, want 0", i, s)
		}
	}
}

func TestMixer_PansToTheRight(t *testing.T) {
	m := NewMixer(8000)
	// Default listener faces -Z, so +X is to its right.
	require.NoError(t, m.CreateVoice("r", VoiceParams{
		Waveform:  WaveSquare,
		Frequency: 100,
		Position:  Vec3{X: 5},
		Gain:      0.8,
		Rolloff:   0,
	}))

	buf := make([]float32, 200)
	m.Mix(buf)

	var left, right float64
	for f := 0; f < 100; f++ {
		left += math.Abs(float64(buf[2*f]))
		right += math.Abs(float64(buf[2*f+1]))
	}
	assert.Greater(t, right, 10*left)
}

func TestMixer_Clips(t *testing.T) {
	m := NewMixer(8000)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.CreateVoice(id, VoiceParams{Waveform: WaveSquare, Frequency: 50, Position: Vec3{Z: -1}, Gain: 1}))
	}
	buf := make([]float32, 400)
	m.Mix(buf)
	for _, s := range buf {
		assert.LessOrEqual(t, s, float32(1))
		assert.GreaterOrEqual(t, s, float32(-1))
	}
}

func TestMixer_Read(t *testing.T) {
	m := NewMixer(8000)
	require.NoError(t, m.CreateVoice("a", VoiceParams{Waveform: WaveSine, Frequency: 440, Position: Vec3{Z: -1}, Gain: 1}))

	buf := make([]byte, 1023)
	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1020, n, "only whole stereo frames are produced")

	n, err = m.Read(make([]byte, 3))
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSpatialGains(t *testing.T) {
	listener := DefaultListenerPose()

	// Straight ahead at the reference distance: centered, full gain.
	l, r := spatialGains(VoiceParams{Position: Vec3{Z: -1}, Gain: 1, Rolloff: 1}, listener)
	assert.InDelta(t, math.Cos(math.Pi/4), l, 1e-9)
	assert.InDelta(t, l, r, 1e-9)

	// Inverse distance: twice the reference distance with rolloff 1 halves the gain.
	l2, r2 := spatialGains(VoiceParams{Position: Vec3{Z: -2}, Gain: 1, Rolloff: 1}, listener)
	assert.InDelta(t, l/2, l2, 1e-9)
	assert.InDelta(t, r/2, r2, 1e-9)

	// Beyond MaxDistance the rolloff stops.
	far, _ := spatialGains(VoiceParams{Position: Vec3{Z: -100}, Gain: 1, Rolloff: 1, MaxDistance: 2}, listener)
	assert.InDelta(t, l2, far, 1e-9)
}

func TestOscillator(t *testing.T) {
	assert.InDelta(t, 1.0, oscillator(WaveSine, 0.25), 1e-9)
	assert.Equal(t, 1.0, oscillator(WaveSquare, 0.1))
	assert.Equal(t, -1.0, oscillator(WaveSquare, 0.6))
	assert.Equal(t, -1.0, oscillator(WaveSawtooth, 0))
	assert.InDelta(t, 0.0, oscillator(WaveSawtooth, 0.5), 1e-9)
	assert.Equal(t, 1.0, oscillator(WaveTriangle, 0))
	assert.Equal(t, -1.0, oscillator(WaveTriangle, 0.5))
}

// ---------------------------------------------------------------------------
// WAV backend
// ---------------------------------------------------------------------------

func TestWAVBackend_RenderFile(t *testing.T) {
	b := NewWAVBackend(8000)
	require.NoError(t, b.Resume())
	require.NoError(t, b.CreateVoice("hum", VoiceParams{Waveform: WaveSine, Frequency: 220, Position: Vec3{Z: -1}, Gain: 0.5}))

	path := filepath.Join(t.TempDir(), "out.wav")
	require.NoError(t, b.RenderFile(path, 100*time.Millisecond))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(8000), dec.SampleRate)
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Len(t, buf.Data, 800*2)

	nonZero := 0
	for _, s := range buf.Data {
		if s != 0 {
			nonZero++
		}
	}
	assert.Greater(t, nonZero, 0, "the voice is audible in the output")
}

func TestWAVBackend_RejectsZeroDuration(t *testing.T) {
	b := NewWAVBackend(8000)
	path := filepath.Join(t.TempDir(), "empty.wav")
	assert.Error(t, b.RenderFile(path, 0))
}

func TestEngine_WithWAVBackend(t *testing.T) {
	b := NewWAVBackend(8000)
	e := newTestEngine(t, b)
	_, err := e.PlaceSource(Vec3{X: 3}, TypeConstruction)
	require.NoError(t, err)
	require.True(t, e.SetAudioEnabled(true))

	assert.Equal(t, 1, b.VoiceCount())
}

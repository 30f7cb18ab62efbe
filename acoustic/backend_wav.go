package acoustic

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVBackend renders the voice graph offline into a 16-bit stereo WAV file.
// It never blocks on a device, so Resume always succeeds.
type WAVBackend struct {
	*Mixer
}

// NewWAVBackend creates an offline backend at sampleRate.
func NewWAVBackend(sampleRate int) *WAVBackend {
	return &WAVBackend{Mixer: NewMixer(sampleRate)}
}

func (b *WAVBackend) Resume() error { return nil }

// Render mixes duration worth of audio from the current voice table into w.
func (b *WAVBackend) Render(w io.WriteSeeker, duration time.Duration) error {
	if duration <= 0 {
		return fmt.Errorf("render duration must be positive, got %v", duration)
	}
	sr := b.SampleRate()
	enc := wav.NewEncoder(w, sr, 16, 2, 1)

	totalFrames := int(duration.Seconds() * float64(sr))
	const chunkFrames = 4096
	floats := make([]float32, chunkFrames*2)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: sr},
		SourceBitDepth: 16,
		Data:           make([]int, chunkFrames*2),
	}

	for written := 0; written < totalFrames; written += chunkFrames {
		n := min(chunkFrames, totalFrames-written)
		b.Mix(floats[:n*2])
		buf.Data = buf.Data[:n*2]
		for i, s := range floats[:n*2] {
			buf.Data[i] = int(s * 32767)
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("writing wav samples: %w", err)
		}
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return nil
}

// RenderFile writes duration worth of audio to a WAV file at path.
func (b *WAVBackend) RenderFile(path string, duration time.Duration) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return b.Render(f, duration)
}

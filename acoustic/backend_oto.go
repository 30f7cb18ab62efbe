package acoustic

import (
	"fmt"
	"log"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoBackend plays the voice graph live on the default output device. The
// oto player pulls samples from the Mixer on its own goroutine.
type OtoBackend struct {
	*Mixer
	ctx    *oto.Context
	player *oto.Player
}

// NewOtoBackend opens the default audio device. A missing or blocked device
// yields an error wrapping ErrAudioUnavailable.
func NewOtoBackend(sampleRate int) (*OtoBackend, error) {
	mixer := NewMixer(sampleRate)
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   mixer.SampleRate(),
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   80 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opening audio device: %v", ErrAudioUnavailable, err)
	}
	<-ready

	b := &OtoBackend{
		Mixer:  mixer,
		ctx:    ctx,
		player: ctx.NewPlayer(mixer),
	}
	log.Printf("[AUDIO] oto output ready at %d Hz", mixer.SampleRate())
	return b, nil
}

// Resume un-suspends the device and starts the player.
func (b *OtoBackend) Resume() error {
	if err := b.ctx.Resume(); err != nil {
		return fmt.Errorf("%w: resuming audio context: %v", ErrAudioUnavailable, err)
	}
	if err := b.ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
	}
	if !b.player.IsPlaying() {
		b.player.Play()
	}
	return nil
}

// Suspend pauses output without dropping voices.
func (b *OtoBackend) Suspend() error {
	b.player.Pause()
	return b.ctx.Suspend()
}

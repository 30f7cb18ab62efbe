package acoustic

// SpatialAudioBackend is the capability the Synthesizer drives. Each voice
// is an oscillator → 3D panner → gain chain keyed by source id.
//
// Implementations must not block on the audio thread: parameter changes are
// fire-and-forget and nothing is read back synchronously.
type SpatialAudioBackend interface {
	// Resume starts or un-suspends audio output. It returns an error
	// wrapping ErrAudioUnavailable when output is blocked.
	Resume() error
	CreateVoice(id string, p VoiceParams) error
	UpdateVoice(id string, p VoiceParams) error
	DestroyVoice(id string) error
	SetListenerPose(pose ListenerPose) error
}

package acoustic

import (
	"log"
	"sort"
)

// VoiceParamsFor derives the voice parameters of src at the given global
// volume. Inactive sources map to zero gain.
func VoiceParamsFor(src NoiseSource, globalVolume float64) VoiceParams {
	active := 0.0
	if src.IsActive {
		active = 1
	}
	return VoiceParams{
		Waveform:    src.Type.Waveform(),
		Frequency:   src.Frequency,
		Position:    src.Position,
		MaxDistance: src.Radius,
		Rolloff:     src.Attenuation * 1000,
		Gain:        (src.Intensity / 150) * globalVolume * active,
	}
}

// Synthesizer keeps exactly one backend voice per synthesizable source id.
// Audio is a side channel: every backend failure downgrades the synthesizer
// to disabled and is never reported as an error to the caller.
//
// Synthesizer is not safe for concurrent use; Engine serializes access.
type Synthesizer struct {
	backend SpatialAudioBackend
	voices  map[string]VoiceParams
	enabled bool
	volume  float64
}

// NewSynthesizer creates a disabled synthesizer. backend may be nil, in which
// case audio can never be enabled.
func NewSynthesizer(backend SpatialAudioBackend, globalVolume float64) *Synthesizer {
	return &Synthesizer{
		backend: backend,
		voices:  make(map[string]VoiceParams),
		volume:  clamp(globalVolume, 0, 1),
	}
}

// Enabled reports whether audio is currently being synthesized.
func (s *Synthesizer) Enabled() bool { return s.enabled }

// GlobalVolume returns the master volume in [0,1].
func (s *Synthesizer) GlobalVolume() float64 { return s.volume }

// VoiceCount returns the number of live voices.
func (s *Synthesizer) VoiceCount() int { return len(s.voices) }

// VoiceIDs returns the ids of live voices, sorted.
func (s *Synthesizer) VoiceIDs() []string {
	ids := make([]string, 0, len(s.voices))
	for id := range s.voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Voice returns the parameters last pushed for id.
func (s *Synthesizer) Voice(id string) (VoiceParams, bool) {
	p, ok := s.voices[id]
	return p, ok
}

// SetEnabled turns synthesis on or off and reconciles against sources. It
// returns the resulting state, which stays false when the backend is missing
// or refuses to start.
func (s *Synthesizer) SetEnabled(on bool, sources []NoiseSource) bool {
	if !on {
		if s.enabled {
			log.Printf("[AUDIO] disabling synthesis, releasing %d voices", len(s.voices))
		}
		s.teardown()
		s.enabled = false
		return false
	}

	if s.backend == nil {
		log.Printf("[AUDIO] no audio backend configured, staying silent")
		s.enabled = false
		return false
	}
	if err := s.backend.Resume(); err != nil {
		log.Printf("[AUDIO] audio unavailable: %v", err)
		s.enabled = false
		return false
	}

	s.enabled = true
	s.Reconcile(sources)
	return s.enabled
}

// SetGlobalVolume clamps v to [0,1] and re-pushes every voice gain.
func (s *Synthesizer) SetGlobalVolume(v float64, sources []NoiseSource) {
	s.volume = clamp(v, 0, 1)
	s.Reconcile(sources)
}

// Reconcile diffs the voice table against sources: voices of vanished
// sources are destroyed, active sources without a voice get one, and every
// remaining voice is updated in place.
func (s *Synthesizer) Reconcile(sources []NoiseSource) {
	if !s.enabled {
		s.teardown()
		return
	}

	present := make(map[string]bool, len(sources))
	for _, src := range sources {
		present[src.ID] = true
	}

	for id := range s.voices {
		if present[id] {
			continue
		}
		if err := s.backend.DestroyVoice(id); err != nil {
			log.Printf("[AUDIO] destroying voice %s: %v", id, err)
		}
		delete(s.voices, id)
	}

	for _, src := range sources {
		params := VoiceParamsFor(src, s.volume)
		if _, ok := s.voices[src.ID]; ok {
			if err := s.backend.UpdateVoice(src.ID, params); err != nil {
				log.Printf("[AUDIO] updating voice %s: %v", src.ID, err)
				continue
			}
			s.voices[src.ID] = params
			continue
		}
		if !src.IsActive {
			continue
		}
		if err := s.backend.CreateVoice(src.ID, params); err != nil {
			s.fail(err)
			return
		}
		s.voices[src.ID] = params
	}
}

// SetListenerPose forwards pose to the backend while enabled. Failures are
// logged and dropped.
func (s *Synthesizer) SetListenerPose(pose ListenerPose) bool {
	if !s.enabled {
		return false
	}
	if err := s.backend.SetListenerPose(pose); err != nil {
		log.Printf("[LISTENER] pose update dropped: %v", err)
		return false
	}
	return true
}

// fail downgrades to disabled after a backend failure.
func (s *Synthesizer) fail(err error) {
	log.Printf("[AUDIO] backend failure, disabling synthesis: %v", err)
	s.teardown()
	s.enabled = false
}

func (s *Synthesizer) teardown() {
	if s.backend == nil {
		s.voices = make(map[string]VoiceParams)
		return
	}
	for id := range s.voices {
		if err := s.backend.DestroyVoice(id); err != nil {
			log.Printf("[AUDIO] destroying voice %s: %v", id, err)
		}
	}
	s.voices = make(map[string]VoiceParams)
}

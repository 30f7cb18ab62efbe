package acoustic

import (
	"fmt"
	"sync"
)

// BackendCall records one invocation on a RecordingBackend.
type BackendCall struct {
	Method string
	ID     string
	Params VoiceParams
	Pose   ListenerPose
}

// RecordingBackend implements SpatialAudioBackend in memory for tests and
// headless runs. Errors can be injected per operation.
type RecordingBackend struct {
	mu          sync.RWMutex
	voices      map[string]VoiceParams
	listener    ListenerPose
	calls       []BackendCall
	resumeError error
	createError error
	updateError error
}

// NewRecordingBackend creates an empty recording backend.
func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{
		voices:   make(map[string]VoiceParams),
		listener: DefaultListenerPose(),
	}
}

// SetResumeError makes Resume fail, simulating a blocked audio context.
func (b *RecordingBackend) SetResumeError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resumeError = err
}

// SetCreateError makes CreateVoice fail.
func (b *RecordingBackend) SetCreateError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.createError = err
}

// SetUpdateError makes UpdateVoice fail.
func (b *RecordingBackend) SetUpdateError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateError = err
}

func (b *RecordingBackend) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, BackendCall{Method: "Resume"})
	return b.resumeError
}

func (b *RecordingBackend) CreateVoice(id string, p VoiceParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, BackendCall{Method: "CreateVoice", ID: id, Params: p})
	if b.createError != nil {
		return b.createError
	}
	if _, ok := b.voices[id]; ok {
		return fmt.Errorf("voice %s already exists", id)
	}
	b.voices[id] = p
	return nil
}

func (b *RecordingBackend) UpdateVoice(id string, p VoiceParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, BackendCall{Method: "UpdateVoice", ID: id, Params: p})
	if b.updateError != nil {
		return b.updateError
	}
	if _, ok := b.voices[id]; !ok {
		return fmt.Errorf("voice %s does not exist", id)
	}
	b.voices[id] = p
	return nil
}

func (b *RecordingBackend) DestroyVoice(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, BackendCall{Method: "DestroyVoice", ID: id})
	if _, ok := b.voices[id]; !ok {
		return fmt.Errorf("voice %s does not exist", id)
	}
	delete(b.voices, id)
	return nil
}

func (b *RecordingBackend) SetListenerPose(pose ListenerPose) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, BackendCall{Method: "SetListenerPose", Pose: pose})
	b.listener = pose
	return nil
}

// Voices returns a copy of the live voice table.
func (b *RecordingBackend) Voices() map[string]VoiceParams {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]VoiceParams, len(b.voices))
	for id, p := range b.voices {
		out[id] = p
	}
	return out
}

// Listener returns the last pose pushed.
func (b *RecordingBackend) Listener() ListenerPose {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.listener
}

// Calls returns every recorded call in order.
func (b *RecordingBackend) Calls() []BackendCall {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]BackendCall, len(b.calls))
	copy(out, b.calls)
	return out
}

// CountCalls returns how many times method was invoked.
func (b *RecordingBackend) CountCalls(method string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, c := range b.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

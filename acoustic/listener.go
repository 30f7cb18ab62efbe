package acoustic

import "sync"

// CameraSource supplies the host camera pose. ok is false when the camera is
// momentarily unavailable.
type CameraSource interface {
	CameraPose() (pose ListenerPose, ok bool)
}

// CameraFeed is a CameraSource written by transports (MQTT, HTTP) and read
// by the ListenerTracker. It is safe for concurrent use.
type CameraFeed struct {
	mu   sync.RWMutex
	pose ListenerPose
	set  bool
}

// Set records the latest camera pose. Poses with non-finite components are
// ignored.
func (c *CameraFeed) Set(pose ListenerPose) bool {
	if !pose.Position.IsFinite() || !pose.Forward.IsFinite() || !pose.Up.IsFinite() {
		return false
	}
	c.mu.Lock()
	c.pose = pose
	c.set = true
	c.mu.Unlock()
	return true
}

func (c *CameraFeed) CameraPose() (ListenerPose, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pose, c.set
}

// ListenerTracker copies the camera pose onto the audio listener once per
// tick. No smoothing is applied.
type ListenerTracker struct {
	camera  CameraSource
	synth   *Synthesizer
	last    ListenerPose
	hasPose bool
}

// NewListenerTracker binds camera to synth's listener.
func NewListenerTracker(camera CameraSource, synth *Synthesizer) *ListenerTracker {
	return &ListenerTracker{camera: camera, synth: synth, last: DefaultListenerPose()}
}

// Tick pushes the current camera pose, or the last known one when the camera
// is unavailable. It reports whether a pose reached the backend.
func (t *ListenerTracker) Tick() bool {
	if t.synth == nil || !t.synth.Enabled() {
		return false
	}
	if t.camera != nil {
		if pose, ok := t.camera.CameraPose(); ok {
			t.last = pose
			t.hasPose = true
		}
	}
	if !t.hasPose {
		return false
	}
	return t.synth.SetListenerPose(t.last)
}

// LastPose returns the last camera pose seen and whether one was seen.
func (t *ListenerTracker) LastPose() (ListenerPose, bool) {
	return t.last, t.hasPose
}

package acoustic

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrSimulationDisabled is returned by mutations while the simulation is off.
var ErrSimulationDisabled = errors.New("noise simulation is disabled")

// Settings are the host-facing knobs of the engine.
type Settings struct {
	Threshold    float64        `json:"threshold"`
	Heatmap      HeatmapOptions `json:"heatmap"`
	Stats        StatsOptions   `json:"stats"`
	AudioEnabled bool           `json:"audioEnabled"`
	GlobalVolume float64        `json:"globalVolume"`
	Enabled      bool           `json:"enabled"`
}

// DefaultSettings returns an enabled, silent engine with a 50 dB threshold.
func DefaultSettings() Settings {
	return Settings{
		Threshold:    50,
		Heatmap:      DefaultHeatmapOptions(),
		Stats:        DefaultStatsOptions(),
		GlobalVolume: 0.5,
		Enabled:      true,
	}
}

// Engine is the event-driven controller. Every mutation recomputes the
// statistics and heatmap, reconciles the synthesizer and then notifies
// OnNoiseChange listeners in registration order.
//
// Engine is safe for concurrent use. Listeners run without any engine lock
// held and may call query methods, but must not call mutators.
type Engine struct {
	mu sync.Mutex

	// Notifications are ordered by ticket: a mutation draws one under mu,
	// then waits on turn until serving reaches it.
	notifyMu   sync.Mutex
	turn       *sync.Cond
	nextTicket uint64
	serving    uint64

	registry *Registry
	synth    *Synthesizer
	tracker  *ListenerTracker
	camera   *CameraFeed

	settings  Settings
	snapshot  NoiseData
	grid      ColorGrid
	listeners []func(NoiseData)
}

// NewEngine creates an engine with an empty registry. backend may be nil.
func NewEngine(settings Settings, backend SpatialAudioBackend) *Engine {
	settings.Heatmap = settings.Heatmap.normalized()
	settings.Stats = settings.Stats.normalized()
	settings.GlobalVolume = clamp(settings.GlobalVolume, 0, 1)

	e := &Engine{
		registry: NewRegistry(),
		synth:    NewSynthesizer(backend, settings.GlobalVolume),
		camera:   &CameraFeed{},
		settings: settings,
	}
	e.turn = sync.NewCond(&e.notifyMu)
	e.tracker = NewListenerTracker(e.camera, e.synth)
	e.registry.Subscribe(e.onRegistryChange)

	e.recompute()
	if settings.AudioEnabled {
		e.settings.AudioEnabled = e.synth.SetEnabled(true, e.registry.List())
	}
	return e
}

// OnNoiseChange registers fn to receive every recomputed snapshot.
func (e *Engine) OnNoiseChange(fn func(NoiseData)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

func (e *Engine) onRegistryChange(c Change) {
	if c.Kind == ChangeRemoved {
		log.Printf("[ENGINE] source %s removed", c.ID)
	}
	e.recompute()
}

// recompute must be called with e.mu held.
func (e *Engine) recompute() {
	sources := e.registry.List()
	e.snapshot = Summarize(sources, e.settings.Threshold, e.settings.Stats)
	e.grid = BuildGrid(sources, e.settings.Threshold, e.settings.Heatmap)
	e.synth.Reconcile(sources)
	e.settings.AudioEnabled = e.synth.Enabled()
}

// audioStatus must be called with e.mu held.
func (e *Engine) audioStatus() AudioStatus {
	return AudioStatus{Enabled: e.synth.Enabled(), Voices: e.synth.VoiceCount()}
}

// commit hands the current snapshot to listeners. It must be called with
// e.mu held and releases it. Listeners observe snapshots in mutation order
// and run with no engine lock held.
func (e *Engine) commit() {
	e.snapshot.Audio = e.audioStatus()
	data := e.snapshot
	listeners := make([]func(NoiseData), len(e.listeners))
	copy(listeners, e.listeners)
	ticket := e.nextTicket
	e.nextTicket++
	e.mu.Unlock()

	e.notifyMu.Lock()
	for e.serving != ticket {
		e.turn.Wait()
	}
	e.notifyMu.Unlock()

	defer func() {
		e.notifyMu.Lock()
		e.serving++
		e.turn.Broadcast()
		e.notifyMu.Unlock()
	}()
	for _, fn := range listeners {
		fn(data)
	}
}

// PlaceSource adds a preset source of type t at pos.
func (e *Engine) PlaceSource(pos Vec3, t SourceType) (string, error) {
	e.mu.Lock()
	if !e.settings.Enabled {
		e.mu.Unlock()
		return "", ErrSimulationDisabled
	}
	id, err := e.registry.Add(pos, t)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.commit()
	return id, nil
}

// AddSource adds a fully specified source.
func (e *Engine) AddSource(src NoiseSource) (string, error) {
	e.mu.Lock()
	if !e.settings.Enabled {
		e.mu.Unlock()
		return "", ErrSimulationDisabled
	}
	id, err := e.registry.AddSource(src)
	if err != nil {
		e.mu.Unlock()
		return "", err
	}
	e.commit()
	return id, nil
}

// UpdateSource applies patch to the source with id.
func (e *Engine) UpdateSource(id string, patch SourcePatch) error {
	e.mu.Lock()
	if err := e.registry.Update(id, patch); err != nil {
		e.mu.Unlock()
		return err
	}
	e.commit()
	return nil
}

// RemoveSource deletes a source and its voice.
func (e *Engine) RemoveSource(id string) error {
	e.mu.Lock()
	if err := e.registry.Remove(id); err != nil {
		e.mu.Unlock()
		return err
	}
	e.commit()
	return nil
}

// ClearSources removes every source.
func (e *Engine) ClearSources() {
	e.mu.Lock()
	e.registry.Clear()
	e.commit()
}

// SetThreshold changes the noise threshold and recomputes.
func (e *Engine) SetThreshold(t float64) error {
	if !isFinite(t) || t < 0 {
		return fmt.Errorf("%w: threshold must be >= 0, got %v", ErrInvalidParameter, t)
	}
	e.mu.Lock()
	e.settings.Threshold = t
	e.recompute()
	e.commit()
	return nil
}

// SetAudioEnabled turns synthesis on or off and returns the resulting state.
// Turning it on can fail silently (no backend, blocked device), in which case
// false is returned.
func (e *Engine) SetAudioEnabled(on bool) bool {
	e.mu.Lock()
	e.settings.AudioEnabled = e.synth.SetEnabled(on, e.registry.List())
	enabled := e.settings.AudioEnabled
	e.commit()
	return enabled
}

// SetGlobalVolume sets the master volume, clamped to [0,1].
func (e *Engine) SetGlobalVolume(v float64) {
	if !isFinite(v) {
		return
	}
	e.mu.Lock()
	e.settings.GlobalVolume = clamp(v, 0, 1)
	e.synth.SetGlobalVolume(v, e.registry.List())
	e.settings.AudioEnabled = e.synth.Enabled()
	e.commit()
}

// SetEnabled turns the whole simulation on or off. Disabling clears every
// source and silences audio.
func (e *Engine) SetEnabled(on bool) {
	e.mu.Lock()
	e.settings.Enabled = on
	if on {
		e.recompute()
	} else {
		e.synth.SetEnabled(false, nil)
		// Clear recomputes through onRegistryChange.
		e.registry.Clear()
	}
	e.commit()
}

// SetCameraPose feeds the camera pose used by the next listener tick.
func (e *Engine) SetCameraPose(pose ListenerPose) bool {
	return e.camera.Set(pose)
}

// TickListener runs one listener update. It reports whether a pose reached
// the audio backend.
func (e *Engine) TickListener() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Tick()
}

// RunListener ticks the listener every interval until ctx is done.
func (e *Engine) RunListener(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.TickListener()
		}
	}
}

// Sources lists copies of all sources in insertion order.
func (e *Engine) Sources() []NoiseSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.List()
}

// Source returns a copy of the source with id.
func (e *Engine) Source(id string) (NoiseSource, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.Get(id)
}

// Snapshot returns the latest NoiseData.
func (e *Engine) Snapshot() NoiseData {
	e.mu.Lock()
	defer e.mu.Unlock()
	data := e.snapshot
	data.Audio = e.audioStatus()
	return data
}

// Heatmap returns the latest color grid.
func (e *Engine) Heatmap() ColorGrid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// AudioEnabled reports whether audio is being synthesized.
func (e *Engine) AudioEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synth.Enabled()
}

// VoiceCount returns the number of live audio voices.
func (e *Engine) VoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.synth.VoiceCount()
}

package acoustic

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// ChangeKind identifies a registry mutation.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
	ChangeCleared ChangeKind = "cleared"
)

// Change is emitted to subscribers after every successful mutation.
type Change struct {
	Kind ChangeKind
	ID   string // empty for ChangeCleared
}

// Registry owns the set of noise emitters. It keeps insertion order so
// listings and recomputes are deterministic.
//
// Registry is not safe for concurrent use; Engine serializes access.
type Registry struct {
	sources     map[string]*NoiseSource
	order       []string
	subscribers []func(Change)
	newID       func() string
}

// NewRegistry creates an empty registry that assigns uuid identifiers.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]*NoiseSource),
		newID:   uuid.NewString,
	}
}

// Subscribe registers fn to be called synchronously after each mutation.
func (r *Registry) Subscribe(fn func(Change)) {
	if fn != nil {
		r.subscribers = append(r.subscribers, fn)
	}
}

func (r *Registry) emit(c Change) {
	for _, fn := range r.subscribers {
		fn(c)
	}
}

// Add places a new source of type t at pos, seeded from the preset table.
func (r *Registry) Add(pos Vec3, t SourceType) (string, error) {
	src, ok := NewSourceFromPreset(t, pos)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	src.Name = r.uniqueName(src.Name)
	return r.AddSource(src)
}

// AddSource validates and stores a fully specified source. A fresh id is
// assigned when src.ID is empty.
func (r *Registry) AddSource(src NoiseSource) (string, error) {
	if err := sanitize(&src); err != nil {
		return "", err
	}
	if src.ID == "" {
		src.ID = r.newID()
	}
	if _, exists := r.sources[src.ID]; exists {
		return "", fmt.Errorf("%w: duplicate id %s", ErrInvalidParameter, src.ID)
	}
	if src.Name == "" {
		if p, ok := PresetFor(src.Type); ok {
			src.Name = r.uniqueName(p.Name)
		}
	}

	stored := src.clone()
	r.sources[src.ID] = &stored
	r.order = append(r.order, src.ID)
	r.emit(Change{Kind: ChangeAdded, ID: src.ID})
	return src.ID, nil
}

// Update applies a partial update. The mutation is refused as a whole if
// the result would be invalid.
func (r *Registry) Update(id string, patch SourcePatch) error {
	cur, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}

	next := cur.clone()
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Type != nil {
		next.Type = *patch.Type
	}
	if patch.Position != nil {
		next.Position = *patch.Position
	}
	if patch.Intensity != nil {
		next.Intensity = *patch.Intensity
	}
	if patch.Radius != nil {
		next.Radius = *patch.Radius
	}
	if patch.Frequency != nil {
		next.Frequency = *patch.Frequency
	}
	if patch.Attenuation != nil {
		next.Attenuation = *patch.Attenuation
	}
	if patch.MaterialAbsorption != nil {
		next.MaterialAbsorption = *patch.MaterialAbsorption
	}
	if patch.IsActive != nil {
		next.IsActive = *patch.IsActive
	}
	if patch.ClearCone {
		next.Cone = nil
	}
	if patch.SetCone != nil {
		c := *patch.SetCone
		next.Cone = &c
	}

	if err := sanitize(&next); err != nil {
		return err
	}
	*cur = next
	r.emit(Change{Kind: ChangeUpdated, ID: id})
	return nil
}

// Remove deletes a source.
func (r *Registry) Remove(id string) error {
	if _, ok := r.sources[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	delete(r.sources, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.emit(Change{Kind: ChangeRemoved, ID: id})
	return nil
}

// Clear removes every source.
func (r *Registry) Clear() {
	r.sources = make(map[string]*NoiseSource)
	r.order = nil
	r.emit(Change{Kind: ChangeCleared})
}

// Get returns a copy of the source with the given id.
func (r *Registry) Get(id string) (NoiseSource, bool) {
	s, ok := r.sources[id]
	if !ok {
		return NoiseSource{}, false
	}
	return s.clone(), true
}

// List returns copies of all sources in insertion order.
func (r *Registry) List() []NoiseSource {
	out := make([]NoiseSource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sources[id].clone())
	}
	return out
}

// Len returns the number of sources.
func (r *Registry) Len() int {
	return len(r.order)
}

// uniqueName appends a counter when base is already taken.
func (r *Registry) uniqueName(base string) string {
	taken := make(map[string]bool, len(r.sources))
	for _, s := range r.sources {
		taken[s.Name] = true
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s %d", base, n)
		if !taken[name] {
			return name
		}
	}
}

// sanitize refuses sign and finiteness violations and clamps range-bound
// fields into their meaningful interval.
func sanitize(s *NoiseSource) error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, s.Type)
	}
	if !s.Position.IsFinite() {
		return fmt.Errorf("%w: position must be finite", ErrInvalidParameter)
	}
	if !isFinite(s.Intensity) || s.Intensity < 0 {
		return fmt.Errorf("%w: intensity must be >= 0, got %v", ErrInvalidParameter, s.Intensity)
	}
	if !isFinite(s.Radius) || s.Radius <= 0 {
		return fmt.Errorf("%w: radius must be > 0, got %v", ErrInvalidParameter, s.Radius)
	}
	if !isFinite(s.Attenuation) || s.Attenuation <= 0 {
		return fmt.Errorf("%w: attenuation must be > 0, got %v", ErrInvalidParameter, s.Attenuation)
	}
	if math.IsNaN(s.MaterialAbsorption) || math.IsNaN(s.Frequency) {
		return fmt.Errorf("%w: absorption and frequency must be numbers", ErrInvalidParameter)
	}
	s.MaterialAbsorption = clamp(s.MaterialAbsorption, 0, 1)
	s.Frequency = clamp(s.Frequency, 20, 20000)

	if s.Cone != nil {
		c := s.Cone
		if !c.Direction.IsFinite() || math.IsNaN(c.ConeAngle) || math.IsNaN(c.ConeAttenuation) {
			return fmt.Errorf("%w: cone fields must be finite", ErrInvalidParameter)
		}
		c.ConeAngle = clamp(c.ConeAngle, 10, 180)
		c.ConeAttenuation = clamp(c.ConeAttenuation, 0, 1)
	}
	return nil
}

package renderer

import (
	"slices"
	"sync"

	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/df07/go-turntable-renderer/pkg/engine"
)

// Scene is the set of entities a view renders, plus its lighting
type Scene struct {
	mu       sync.RWMutex
	entities []engine.Entity
	light    *IndirectLight
	version  uint64
}

// AddEntity adds e to the scene. Adding an entity twice has no effect.
func (s *Scene) AddEntity(e engine.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.entities, e) {
		return
	}
	s.entities = append(s.entities, e)
	s.version++
}

// Remove removes e from the scene
func (s *Scene) Remove(e engine.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.entities, e); i >= 0 {
		s.entities = slices.Delete(s.entities, i, i+1)
		s.version++
	}
}

// EntityCount returns the number of entities in the scene
func (s *Scene) EntityCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// SetIndirectLight sets the image based light. Only lights created by this
// package are used; anything else clears the light.
func (s *Scene) SetIndirectLight(light engine.IndirectLight) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, _ := light.(*IndirectLight)
	s.light = l
	s.version++
}

// IndirectLight returns the image based light, nil when none was set
func (s *Scene) IndirectLight() *IndirectLight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.light
}

// Bounds returns the world-space union of the bounds of every renderable in the scene
func (s *Scene) Bounds(rm *RenderableManager) core.AABB {
	box := core.EmptyAABB()
	for _, e := range s.snapshot() {
		if b := rm.Bounds(e); !b.IsEmpty() {
			box = box.Union(b)
		}
	}
	return box
}

func (s *Scene) snapshot() []engine.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entities)
}

func (s *Scene) currentVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

package renderer

import (
	"sync"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
)

type transformComponent struct {
	local  mgl32.Mat4
	parent engine.Entity
}

// TransformManager stores local transforms and a parent hierarchy
type TransformManager struct {
	mu         sync.RWMutex
	components map[engine.Entity]*transformComponent
	version    uint64
}

func newTransformManager() *TransformManager {
	return &TransformManager{components: make(map[engine.Entity]*transformComponent)}
}

// Create gives e an identity transform component if it has none
func (tm *TransformManager) Create(e engine.Entity) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.components[e]; !ok {
		tm.components[e] = &transformComponent{local: mgl32.Ident4()}
		tm.version++
	}
}

// SetTransform sets the local transform, creating the component if needed
func (tm *TransformManager) SetTransform(e engine.Entity, m mgl32.Mat4) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	c, ok := tm.components[e]
	if !ok {
		c = &transformComponent{}
		tm.components[e] = c
	}
	c.local = m
	tm.version++
}

// Transform returns the local transform, identity for unknown entities
func (tm *TransformManager) Transform(e engine.Entity) mgl32.Mat4 {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if c, ok := tm.components[e]; ok {
		return c.local
	}
	return mgl32.Ident4()
}

// SetParent links child under parent. A null parent detaches the child.
// Links that would create a cycle are ignored.
func (tm *TransformManager) SetParent(child, parent engine.Entity) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	c, ok := tm.components[child]
	if !ok {
		c = &transformComponent{local: mgl32.Ident4()}
		tm.components[child] = c
	}
	for p := parent; !p.IsNull(); {
		if p == child {
			return
		}
		pc, ok := tm.components[p]
		if !ok {
			break
		}
		p = pc.parent
	}
	c.parent = parent
	tm.version++
}

// Parent returns the parent of e
func (tm *TransformManager) Parent(e engine.Entity) engine.Entity {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	if c, ok := tm.components[e]; ok {
		return c.parent
	}
	return 0
}

// WorldTransform composes local transforms from the root down to e
func (tm *TransformManager) WorldTransform(e engine.Entity) mgl32.Mat4 {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.worldLocked(e)
}

func (tm *TransformManager) worldLocked(e engine.Entity) mgl32.Mat4 {
	world := mgl32.Ident4()
	for !e.IsNull() {
		c, ok := tm.components[e]
		if !ok {
			break
		}
		world = c.local.Mul4(world)
		e = c.parent
	}
	return world
}

// Version changes whenever any transform or parent link changes
func (tm *TransformManager) Version() uint64 {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.version
}

// destroy removes the component of e; children become roots
func (tm *TransformManager) destroy(e engine.Entity) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, ok := tm.components[e]; !ok {
		return
	}
	delete(tm.components, e)
	for _, c := range tm.components {
		if c.parent == e {
			c.parent = 0
		}
	}
	tm.version++
}

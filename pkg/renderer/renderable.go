package renderer

import (
	"fmt"
	"sync"

	"github.com/df07/go-turntable-renderer/pkg/core"
	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
)

type renderable struct {
	prims []engine.Primitive
	local core.AABB // bounds in the entity's local space
}

// RenderableManager stores the primitives attached to entities
type RenderableManager struct {
	mu          sync.RWMutex
	transforms  *TransformManager
	renderables map[engine.Entity]*renderable
	version     uint64
}

func newRenderableManager(transforms *TransformManager) *RenderableManager {
	return &RenderableManager{
		transforms:  transforms,
		renderables: make(map[engine.Entity]*renderable),
	}
}

// SetPrimitives replaces the primitives of e after validating their geometry.
// Material instances must come from this engine.
func (rm *RenderableManager) SetPrimitives(e engine.Entity, prims []engine.Primitive) error {
	local := core.EmptyAABB()
	for i, p := range prims {
		if err := p.Geometry.Validate(); err != nil {
			return fmt.Errorf("renderer: entity %d primitive %d: %w", e, i, err)
		}
		if _, ok := p.Material.(*MaterialInstance); !ok {
			return fmt.Errorf("renderer: entity %d primitive %d: foreign material instance %T", e, i, p.Material)
		}
		if len(p.Geometry.Positions) > 0 {
			local = local.Union(p.Geometry.Bounds())
		}
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.renderables[e] = &renderable{prims: append([]engine.Primitive(nil), prims...), local: local}
	rm.version++
	return nil
}

// PrimitiveCount returns the number of primitives of e
func (rm *RenderableManager) PrimitiveCount(e engine.Entity) int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if r, ok := rm.renderables[e]; ok {
		return len(r.prims)
	}
	return 0
}

// MaterialInstanceAt returns the material of primitive i of e
func (rm *RenderableManager) MaterialInstanceAt(e engine.Entity, i int) engine.MaterialInstance {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	r, ok := rm.renderables[e]
	if !ok || i < 0 || i >= len(r.prims) {
		return nil
	}
	return r.prims[i].Material
}

// Bounds returns the world-space bounds of e, empty if e has no geometry
func (rm *RenderableManager) Bounds(e engine.Entity) core.AABB {
	rm.mu.RLock()
	r, ok := rm.renderables[e]
	rm.mu.RUnlock()
	if !ok || r.local.IsEmpty() {
		return core.EmptyAABB()
	}
	return r.local.Transform(rm.transforms.WorldTransform(e))
}

// Version changes whenever primitives change
func (rm *RenderableManager) Version() uint64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.version
}

func (rm *RenderableManager) destroy(e engine.Entity) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, ok := rm.renderables[e]; ok {
		delete(rm.renderables, e)
		rm.version++
	}
}

// appendTriangles transforms the primitives of e to world space
func (rm *RenderableManager) appendTriangles(dst []triangle, e engine.Entity) []triangle {
	rm.mu.RLock()
	r, ok := rm.renderables[e]
	rm.mu.RUnlock()
	if !ok {
		return dst
	}

	world := rm.transforms.WorldTransform(e)
	normalMatrix := world.Mat3().Inv().Transpose()

	for _, p := range r.prims {
		mi := p.Material.(*MaterialInstance)
		g := p.Geometry
		positions := make([]mgl32.Vec3, len(g.Positions))
		for i, pos := range g.Positions {
			positions[i] = mgl32.TransformCoordinate(pos, world)
		}

		for f := 0; f+2 < len(g.Indices); f += 3 {
			i0, i1, i2 := g.Indices[f], g.Indices[f+1], g.Indices[f+2]
			tri := newTriangle(positions[i0], positions[i1], positions[i2], mi)
			if g.Normals != nil {
				tri.hasNormals = true
				tri.n = [3]mgl32.Vec3{
					normalMatrix.Mul3x1(g.Normals[i0]).Normalize(),
					normalMatrix.Mul3x1(g.Normals[i1]).Normalize(),
					normalMatrix.Mul3x1(g.Normals[i2]).Normalize(),
				}
			}
			if g.UVs != nil {
				tri.uv = [3]mgl32.Vec2{g.UVs[i0], g.UVs[i1], g.UVs[i2]}
			}
			if g.Colors != nil {
				tri.color = [3]mgl32.Vec4{g.Colors[i0], g.Colors[i1], g.Colors[i2]}
			}
			dst = append(dst, tri)
		}
	}
	return dst
}

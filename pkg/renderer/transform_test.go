package renderer

import (
	"testing"

	"github.com/df07/go-turntable-renderer/pkg/engine"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestTransformHierarchy(t *testing.T) {
	tm := newTransformManager()
	root, child, leaf := engine.Entity(1), engine.Entity(2), engine.Entity(3)

	tm.SetTransform(root, mgl32.Scale3D(2, 2, 2))
	tm.SetTransform(child, mgl32.Translate3D(1, 0, 0))
	tm.Create(leaf)
	tm.SetParent(child, root)
	tm.SetParent(leaf, child)

	assert.Equal(t, mgl32.Ident4(), tm.Transform(leaf))
	assert.Equal(t, child, tm.Parent(leaf))

	// Parent transforms apply after child transforms
	p := mgl32.TransformCoordinate(mgl32.Vec3{0, 0, 0}, tm.WorldTransform(leaf))
	assert.True(t, p.ApproxEqual(mgl32.Vec3{2, 0, 0}))
}

func TestTransformIgnoresCycles(t *testing.T) {
	tm := newTransformManager()
	a, b := engine.Entity(1), engine.Entity(2)
	tm.Create(a)
	tm.Create(b)
	tm.SetParent(b, a)
	tm.SetParent(a, b)

	assert.True(t, tm.Parent(a).IsNull())
	assert.Equal(t, a, tm.Parent(b))

	tm.SetParent(a, a)
	assert.True(t, tm.Parent(a).IsNull())
}

func TestTransformDestroyDetachesChildren(t *testing.T) {
	tm := newTransformManager()
	parent, child := engine.Entity(1), engine.Entity(2)
	tm.SetTransform(parent, mgl32.Translate3D(0, 5, 0))
	tm.Create(child)
	tm.SetParent(child, parent)

	before := tm.Version()
	tm.destroy(parent)
	assert.Greater(t, tm.Version(), before)
	assert.True(t, tm.Parent(child).IsNull())
	assert.Equal(t, mgl32.Ident4(), tm.WorldTransform(child))
	assert.Equal(t, mgl32.Ident4(), tm.Transform(parent))
}

func TestRenderableBoundsFollowTransform(t *testing.T) {
	e := NewEngine(Options{Samples: 1, Workers: 1})
	defer e.Close()

	ent := e.CreateEntity()
	mi := e.CreateMaterial(engine.MaterialDesc{BaseColor: mgl32.Vec4{1, 1, 1, 1}})
	err := e.RenderableManager().SetPrimitives(ent, []engine.Primitive{{
		Geometry: engine.Geometry{
			Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
			Indices:   []uint32{0, 1, 2},
		},
		Material: mi,
	}})
	assert.NoError(t, err)
	assert.Equal(t, 1, e.RenderableManager().PrimitiveCount(ent))
	assert.Same(t, mi, e.RenderableManager().MaterialInstanceAt(ent, 0))
	assert.Nil(t, e.RenderableManager().MaterialInstanceAt(ent, 1))

	e.TransformManager().SetTransform(ent, mgl32.Translate3D(0, 0, 3))
	b := e.RenderableManager().Bounds(ent)
	assert.True(t, b.Min.ApproxEqual(mgl32.Vec3{0, 0, 3}))
	assert.True(t, b.Max.ApproxEqual(mgl32.Vec3{1, 1, 3}))
}

func TestSetPrimitivesValidates(t *testing.T) {
	e := NewEngine(Options{Samples: 1, Workers: 1})
	defer e.Close()
	ent := e.CreateEntity()
	mi := e.CreateMaterial(engine.MaterialDesc{})

	err := e.RenderableManager().SetPrimitives(ent, []engine.Primitive{{
		Geometry: engine.Geometry{Positions: []mgl32.Vec3{{0, 0, 0}}, Indices: []uint32{0, 1, 2}},
		Material: mi,
	}})
	assert.Error(t, err)
	assert.Equal(t, 0, e.RenderableManager().PrimitiveCount(ent))
}

func TestCreateMaterialSharesByName(t *testing.T) {
	e := NewEngine(Options{Samples: 1, Workers: 1})
	defer e.Close()

	a := e.CreateMaterial(engine.MaterialDesc{Name: "paint"})
	b := e.CreateMaterial(engine.MaterialDesc{Name: "paint"})
	c := e.CreateMaterial(engine.MaterialDesc{Name: "glass"})

	assert.Same(t, a.Material(), b.Material())
	assert.NotSame(t, a.Material(), c.Material())
	assert.Equal(t, 2, e.MaterialCount())

	m := a.Material().(*Material)
	assert.False(t, m.Prepared())
	m.Prepare()
	assert.True(t, m.Prepared())
}

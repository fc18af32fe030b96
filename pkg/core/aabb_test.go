package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestAABBFromPoints(t *testing.T) {
	box := NewAABBFromPoints(
		mgl32.Vec3{1, -2, 3},
		mgl32.Vec3{-1, 4, 0},
		mgl32.Vec3{0, 0, 5},
	)
	assert.Equal(t, mgl32.Vec3{-1, -2, 0}, box.Min)
	assert.Equal(t, mgl32.Vec3{1, 4, 5}, box.Max)
	assert.Equal(t, mgl32.Vec3{0, 1, 2.5}, box.Center())
	assert.Equal(t, float32(6), box.MaxExtent())
	assert.Equal(t, 1, box.LongestAxis())
	assert.True(t, box.IsValid())
}

func TestAABBEmpty(t *testing.T) {
	empty := EmptyAABB()
	assert.True(t, empty.IsEmpty())
	assert.False(t, empty.IsValid())

	box := NewAABB(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1})
	assert.Equal(t, box, empty.Union(box))
	assert.Equal(t, box, box.Union(empty))
	assert.False(t, box.IsEmpty())
}

func TestAABBIsValid(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name  string
		box   AABB
		valid bool
	}{
		{"unit", NewAABB(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}), true},
		{"point", NewAABB(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{1, 1, 1}), true},
		{"inverted", NewAABB(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 1}), false},
		{"nan", NewAABB(mgl32.Vec3{nan, 0, 0}, mgl32.Vec3{1, 1, 1}), false},
		{"infinite", NewAABB(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{inf, 1, 1}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.box.IsValid())
		})
	}
}

func TestAABBCorners(t *testing.T) {
	box := NewAABB(mgl32.Vec3{-1, -2, -3}, mgl32.Vec3{1, 2, 3})
	corners := box.Corners()

	seen := make(map[mgl32.Vec3]bool)
	for _, c := range corners {
		seen[c] = true
		for i := 0; i < 3; i++ {
			assert.True(t, c[i] == box.Min[i] || c[i] == box.Max[i])
		}
	}
	assert.Len(t, seen, 8)
}

func TestAABBTransform(t *testing.T) {
	box := NewAABB(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{2, 1, 1})

	moved := box.Transform(mgl32.Translate3D(1, 2, 3))
	assert.True(t, moved.Min.ApproxEqual(mgl32.Vec3{1, 2, 3}))
	assert.True(t, moved.Max.ApproxEqual(mgl32.Vec3{3, 3, 4}))

	// A quarter turn about Z swaps the X and Y extents
	rotated := box.Transform(mgl32.HomogRotate3DZ(mgl32.DegToRad(90)))
	size := rotated.Size()
	assert.InDelta(t, 1, size[0], 1e-5)
	assert.InDelta(t, 2, size[1], 1e-5)
	assert.InDelta(t, 1, size[2], 1e-5)
}

func TestAABBHit(t *testing.T) {
	box := NewAABB(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})
	inv := func(d mgl32.Vec3) mgl32.Vec3 { return mgl32.Vec3{1 / d[0], 1 / d[1], 1 / d[2]} }

	tests := []struct {
		name   string
		origin mgl32.Vec3
		dir    mgl32.Vec3
		tMax   float32
		hit    bool
	}{
		{"straight on", mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, -1}, 100, true},
		{"miss", mgl32.Vec3{3, 0, 5}, mgl32.Vec3{0, 0, -1}, 100, false},
		{"too short", mgl32.Vec3{0, 0, 5}, mgl32.Vec3{0, 0, -1}, 3, false},
		{"diagonal", mgl32.Vec3{5, 5, 5}, mgl32.Vec3{-1, -1, -1}, 100, true},
		{"inside", mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0}, 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.hit, box.Hit(tt.origin, inv(tt.dir), 0.001, tt.tMax))
		})
	}
}
